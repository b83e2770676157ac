package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"library-catalog/library"
)

// ------------------ book ------------------

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage catalog books"}

	var title, author, isbn string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.mgr.AddBook(cmd.Context(), title, author, isbn)
			if err != nil {
				return err
			}
			return a.emit(b, func(w io.Writer) { fmt.Fprintf(w, "Added book ID %d\n", b.ID) })
		},
	}
	add.Flags().StringVar(&title, "title", "", "book title")
	add.Flags().StringVar(&author, "author", "", "book author")
	add.Flags().StringVar(&isbn, "isbn", "", "ISBN-10 or ISBN-13")

	update := &cobra.Command{
		Use:   "update <book-id>",
		Short: "Change title, author or ISBN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			b, err := a.mgr.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("title") {
				b.Title = title
			}
			if flags.Changed("author") {
				b.Author = author
			}
			if flags.Changed("isbn") {
				b.ISBN = isbn
			}
			if b, err = a.mgr.UpdateBook(cmd.Context(), *b); err != nil {
				return err
			}
			return a.emit(b, func(w io.Writer) { fmt.Fprintf(w, "Updated book ID %d\n", b.ID) })
		},
	}
	update.Flags().StringVar(&title, "title", "", "new title")
	update.Flags().StringVar(&author, "author", "", "new author")
	update.Flags().StringVar(&isbn, "isbn", "", "new ISBN")

	del := &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book that was never lent out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			if err := a.mgr.DeleteBook(cmd.Context(), id); err != nil {
				return err
			}
			return a.emit(map[string]int64{"deleted": id}, func(w io.Writer) { fmt.Fprintf(w, "Deleted book ID %d\n", id) })
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			books, err := a.mgr.GetAllBooks(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(books, func(w io.Writer) { printBooks(w, books, termWidth()) })
		},
	}

	search := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Find books by title, author or ISBN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := a.mgr.SearchBooks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(books, func(w io.Writer) { printBooks(w, books, termWidth()) })
		},
	}

	show := &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show a book with its loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			b, err := a.mgr.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			history, err := a.mgr.Database().LoanHistory(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := struct {
				*library.Book
				History []*library.LoanRecord `json:"history"`
			}{b, history}
			return a.emit(out, func(w io.Writer) {
				printBooks(w, []*library.Book{b}, termWidth())
				fmt.Fprintf(w, "\nLoan history (%d):\n", len(history))
				for _, r := range history {
					fmt.Fprintf(w, "  loan %-5d member %-5d issued %s returned %s\n",
						r.ID, r.MemberID, r.IssueDate.Format(library.DateLayout), library.FormatDate(r.ReturnDate))
				}
			})
		},
	}

	cmd.AddCommand(add, update, del, list, search, show)
	return cmd
}

// ------------------ member ------------------

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Manage library members"}

	var name, email, phone string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.mgr.AddMember(cmd.Context(), name, email, phone)
			if err != nil {
				return err
			}
			return a.emit(m, func(w io.Writer) { fmt.Fprintf(w, "Added member '%s' with ID %d\n", m.Name, m.ID) })
		},
	}
	add.Flags().StringVar(&name, "name", "", "member name")
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&phone, "phone", "", "phone number")

	update := &cobra.Command{
		Use:   "update <member-id>",
		Short: "Change name, email or phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "member")
			if err != nil {
				return err
			}
			m, err := a.mgr.GetMember(cmd.Context(), id)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				m.Name = name
			}
			if flags.Changed("email") {
				m.Email = email
			}
			if flags.Changed("phone") {
				m.Phone = phone
			}
			if m, err = a.mgr.UpdateMember(cmd.Context(), *m); err != nil {
				return err
			}
			return a.emit(m, func(w io.Writer) { fmt.Fprintf(w, "Updated member ID %d\n", m.ID) })
		},
	}
	update.Flags().StringVar(&name, "name", "", "new name")
	update.Flags().StringVar(&email, "email", "", "new email")
	update.Flags().StringVar(&phone, "phone", "", "new phone")

	del := &cobra.Command{
		Use:   "delete <member-id>",
		Short: "Delete a member without loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "member")
			if err != nil {
				return err
			}
			if err := a.mgr.DeleteMember(cmd.Context(), id); err != nil {
				return err
			}
			return a.emit(map[string]int64{"deleted": id}, func(w io.Writer) { fmt.Fprintf(w, "Deleted member ID %d\n", id) })
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			members, err := a.mgr.GetAllMembers(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(members, func(w io.Writer) { printMembers(w, members, termWidth()) })
		},
	}

	search := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Find members by name, email or phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := a.mgr.SearchMembers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(members, func(w io.Writer) { printMembers(w, members, termWidth()) })
		},
	}

	cmd.AddCommand(add, update, del, list, search)
	return cmd
}

// ------------------ loan ------------------

func newLoanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "loan", Short: "Issue and return books"}

	var bookID, memberID int64
	var date string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Lend a book to a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issueDate := a.today()
			if date != "" {
				d, err := library.ParseDate(date)
				if err != nil {
					return err
				}
				issueDate = d
			}
			rec, err := a.mgr.CheckoutBook(cmd.Context(), bookID, memberID, issueDate)
			if err != nil {
				return err
			}
			return a.emit(rec, func(w io.Writer) {
				fmt.Fprintf(w, "Issued book %d to member %d (loan ID %d, %s)\n",
					rec.BookID, rec.MemberID, rec.ID, rec.IssueDate.Format(library.DateLayout))
			})
		},
	}
	issue.Flags().Int64Var(&bookID, "book", 0, "book ID")
	issue.Flags().Int64Var(&memberID, "member", 0, "member ID")
	issue.Flags().StringVar(&date, "date", "", "issue date as YYYY-MM-DD (default today)")
	_ = issue.MarkFlagRequired("book")
	_ = issue.MarkFlagRequired("member")

	var returnBook int64
	ret := &cobra.Command{
		Use:   "return [<loan-id> | --book <book-id>]",
		Short: "Return a loaned book",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				rec *library.LoanRecord
				err error
			)
			switch {
			case len(args) == 1 && returnBook == 0:
				id, perr := parseID(args[0], "loan")
				if perr != nil {
					return perr
				}
				rec, err = a.mgr.ReturnBookWithDetails(cmd.Context(), id)
			case len(args) == 0 && returnBook > 0:
				rec, err = a.mgr.ReturnBookByBook(cmd.Context(), returnBook)
			default:
				return errors.New("give either a loan ID or --book")
			}
			if err != nil {
				return err
			}
			return a.emit(rec, func(w io.Writer) {
				fmt.Fprintf(w, "Loan %d returned on %s; book %d is available again\n",
					rec.ID, library.FormatDate(rec.ReturnDate), rec.BookID)
			})
		},
	}

	ret.Flags().Int64Var(&returnBook, "book", 0, "return the open loan of this book")

	var forMember int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List every loan, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				loans []*library.LoanView
				err   error
			)
			if forMember > 0 {
				loans, err = a.mgr.GetMemberLoans(cmd.Context(), forMember)
			} else {
				loans, err = a.mgr.GetAllLoans(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.emit(loans, func(w io.Writer) { printLoans(w, loans, termWidth()) })
		},
	}
	list.Flags().Int64Var(&forMember, "member", 0, "only loans of this member")

	active := &cobra.Command{
		Use:   "active",
		Short: "List books currently out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loans, err := a.mgr.GetActiveLoans(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(loans, func(w io.Writer) { printLoans(w, loans, termWidth()) })
		},
	}

	cmd.AddCommand(issue, ret, list, active)
	return cmd
}

// ------------------ audit ------------------

func newAuditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare availability flags with the loan ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mismatches, err := a.mgr.Audit(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.emit(mismatches, func(w io.Writer) { printMismatches(w, mismatches) }); err != nil {
				return err
			}
			if len(mismatches) > 0 {
				return errors.New("availability flags disagree with the loan ledger")
			}
			return nil
		},
	}
}

// ------------------ tables ------------------

// columnWidth splits what is left of width after fixed columns between n text columns.
func columnWidth(width, fixed, n int) int {
	w := (width - fixed) / n
	switch {
	case w < 10:
		return 10
	case w > 40:
		return 40
	}
	return w
}

func printBooks(w io.Writer, books []*library.Book, width int) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	col := columnWidth(width, 6+18+10+3, 2)
	fmt.Fprintf(w, "%-5s %-*s %-*s %-17s %s\n", "ID", col, "Title", col, "Author", "ISBN", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 6+2*(col+1)+18+10))
	for _, b := range books {
		status := "available"
		if !b.Available {
			status = "issued"
		}
		fmt.Fprintf(w, "%-5d %-*s %-*s %-17s %s\n",
			b.ID, col, truncateString(b.Title, col), col, truncateString(b.Author, col), b.ISBN, status)
	}
}

func printMembers(w io.Writer, members []*library.Member, width int) {
	if len(members) == 0 {
		fmt.Fprintln(w, "No members found.")
		return
	}
	col := columnWidth(width, 6+16+2, 2)
	fmt.Fprintf(w, "%-5s %-*s %-*s %s\n", "ID", col, "Name", col, "Email", "Phone")
	fmt.Fprintln(w, strings.Repeat("-", 6+2*(col+1)+16))
	for _, m := range members {
		fmt.Fprintf(w, "%-5d %-*s %-*s %s\n",
			m.ID, col, truncateString(m.Name, col), col, truncateString(m.Email, col), m.Phone)
	}
}

func printLoans(w io.Writer, loans []*library.LoanView, width int) {
	if len(loans) == 0 {
		fmt.Fprintln(w, "No loans found.")
		return
	}
	col := columnWidth(width, 6+11+11+9+4, 2)
	fmt.Fprintf(w, "%-5s %-*s %-*s %-10s %-10s %s\n", "ID", col, "Book", col, "Member", "Issued", "Returned", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 6+2*(col+1)+11+11+8))
	for _, v := range loans {
		fmt.Fprintf(w, "%-5d %-*s %-*s %-10s %-10s %s\n",
			v.ID, col, truncateString(v.BookTitle, col), col, truncateString(v.MemberName, col),
			v.IssueDate.Format(library.DateLayout), library.FormatDate(v.ReturnDate), v.Status)
	}
}

func printMismatches(w io.Writer, mismatches []*library.AvailabilityMismatch) {
	if len(mismatches) == 0 {
		fmt.Fprintln(w, "Availability flags match the loan ledger.")
		return
	}
	fmt.Fprintf(w, "%-5s %-40s %-10s %s\n", "ID", "Title", "Flag", "Open loans")
	for _, m := range mismatches {
		fmt.Fprintf(w, "%-5d %-40s %-10t %d\n", m.BookID, truncateString(m.Title, 40), m.Available, m.OpenLoans)
	}
}
