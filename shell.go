package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"library-catalog/library"
)

const shellHelp = `Available commands:
  Books: add book, update book, delete book, list books, search book
  Members: add member, list members, search member
  Loans: issue, return, active loans, all loans, member loans
  System: audit, help, exit`

// runShell is the interactive prompt. Each command asks for its inputs line by line.
func (a *app) runShell(ctx context.Context) error {
	sc := bufio.NewScanner(a.in)

	fmt.Fprintln(a.out, "Welcome to the Library Catalog!")
	fmt.Fprintln(a.out, shellHelp)

	for {
		fmt.Fprint(a.out, "\n> ")
		if !sc.Scan() {
			break
		}
		cmd := strings.ToLower(strings.TrimSpace(sc.Text()))

		switch cmd {
		case "":
		case "add book":
			a.handleAddBook(ctx, sc)
		case "update book":
			a.handleUpdateBook(ctx, sc)
		case "delete book":
			a.handleDeleteBook(ctx, sc)
		case "list books":
			a.handleListBooks(ctx)
		case "search book":
			a.handleSearchBooks(ctx, sc)
		case "add member":
			a.handleAddMember(ctx, sc)
		case "list members":
			a.handleListMembers(ctx, "")
		case "search member":
			if kw, ok := a.prompt(sc, "Keyword: "); ok {
				a.handleListMembers(ctx, kw)
			}
		case "issue":
			a.handleIssue(ctx, sc)
		case "return":
			a.handleReturn(ctx, sc)
		case "active loans":
			a.handleListLoans(ctx, true)
		case "all loans":
			a.handleListLoans(ctx, false)
		case "member loans":
			a.handleMemberLoans(ctx, sc)
		case "audit":
			mismatches, err := a.mgr.Audit(ctx)
			if err != nil {
				fmt.Fprintf(a.out, "Error: %v\n", err)
				continue
			}
			printMismatches(a.out, mismatches)
		case "help":
			fmt.Fprintln(a.out, shellHelp)
		case "exit", "quit":
			fmt.Fprintln(a.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(a.out, "Unknown command. Type 'help' to see the available commands.")
		}
	}
	return sc.Err()
}

func (a *app) prompt(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Fprint(a.out, label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

func (a *app) promptID(sc *bufio.Scanner, label, what string) (int64, bool) {
	s, ok := a.prompt(sc, label)
	if !ok {
		return 0, false
	}
	id, err := parseID(s, what)
	if err != nil {
		fmt.Fprintln(a.out, err)
		return 0, false
	}
	return id, true
}

func (a *app) handleAddBook(ctx context.Context, sc *bufio.Scanner) {
	title, ok := a.prompt(sc, "Title: ")
	if !ok {
		return
	}
	author, ok := a.prompt(sc, "Author: ")
	if !ok {
		return
	}
	isbn, ok := a.prompt(sc, "ISBN (optional): ")
	if !ok {
		return
	}

	b, err := a.mgr.AddBook(ctx, title, author, isbn)
	if err != nil {
		fmt.Fprintf(a.out, "Error adding book: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Added book ID %d\n", b.ID)
}

func (a *app) handleUpdateBook(ctx context.Context, sc *bufio.Scanner) {
	id, ok := a.promptID(sc, "Book ID: ", "book")
	if !ok {
		return
	}
	b, err := a.mgr.GetBook(ctx, id)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}

	// Empty answers keep the current value.
	if s, ok := a.prompt(sc, fmt.Sprintf("Title [%s]: ", b.Title)); !ok {
		return
	} else if s != "" {
		b.Title = s
	}
	if s, ok := a.prompt(sc, fmt.Sprintf("Author [%s]: ", b.Author)); !ok {
		return
	} else if s != "" {
		b.Author = s
	}
	if s, ok := a.prompt(sc, fmt.Sprintf("ISBN [%s]: ", b.ISBN)); !ok {
		return
	} else if s != "" {
		b.ISBN = s
	}

	if _, err := a.mgr.UpdateBook(ctx, *b); err != nil {
		fmt.Fprintf(a.out, "Error updating book: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Updated book ID %d\n", id)
}

func (a *app) handleDeleteBook(ctx context.Context, sc *bufio.Scanner) {
	id, ok := a.promptID(sc, "Book ID: ", "book")
	if !ok {
		return
	}
	err := a.mgr.DeleteBook(ctx, id)
	switch {
	case errors.Is(err, library.ErrInUse):
		fmt.Fprintf(a.out, "Book %d has loan history and cannot be deleted.\n", id)
	case err != nil:
		fmt.Fprintf(a.out, "Error: %v\n", err)
	default:
		fmt.Fprintf(a.out, "Deleted book ID %d\n", id)
	}
}

func (a *app) handleListBooks(ctx context.Context) {
	books, err := a.mgr.GetAllBooks(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	printBooks(a.out, books, termWidth())
}

func (a *app) handleSearchBooks(ctx context.Context, sc *bufio.Scanner) {
	kw, ok := a.prompt(sc, "Keyword: ")
	if !ok {
		return
	}
	books, err := a.mgr.SearchBooks(ctx, kw)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	printBooks(a.out, books, termWidth())
}

func (a *app) handleAddMember(ctx context.Context, sc *bufio.Scanner) {
	name, ok := a.prompt(sc, "Name: ")
	if !ok {
		return
	}
	email, ok := a.prompt(sc, "Email (optional): ")
	if !ok {
		return
	}
	phone, ok := a.prompt(sc, "Phone (optional): ")
	if !ok {
		return
	}

	m, err := a.mgr.AddMember(ctx, name, email, phone)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Added member '%s' with ID %d\n", m.Name, m.ID)
}

func (a *app) handleListMembers(ctx context.Context, keyword string) {
	members, err := a.mgr.SearchMembers(ctx, keyword)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	printMembers(a.out, members, termWidth())
}

// handleIssue checks the book before asking for the member, as the desk does.
func (a *app) handleIssue(ctx context.Context, sc *bufio.Scanner) {
	bookID, ok := a.promptID(sc, "Book ID: ", "book")
	if !ok {
		return
	}
	available, err := a.mgr.Database().BookAvailability(ctx, bookID)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if !available {
		fmt.Fprintf(a.out, "Book %d is already issued.\n", bookID)
		return
	}

	memberID, ok := a.promptID(sc, "Member ID: ", "member")
	if !ok {
		return
	}
	date, ok := a.prompt(sc, "Issue date YYYY-MM-DD (Enter for today): ")
	if !ok {
		return
	}
	issueDate := a.today()
	if date != "" {
		if issueDate, err = library.ParseDate(date); err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
			return
		}
	}

	rec, err := a.mgr.CheckoutBook(ctx, bookID, memberID, issueDate)
	if err != nil {
		fmt.Fprintf(a.out, "Error issuing book: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Issued book %d to member %d (loan ID %d)\n", rec.BookID, rec.MemberID, rec.ID)
}

func (a *app) handleReturn(ctx context.Context, sc *bufio.Scanner) {
	loanID, ok := a.promptID(sc, "Loan ID: ", "loan")
	if !ok {
		return
	}
	rec, err := a.mgr.ReturnBookWithDetails(ctx, loanID)
	switch {
	case errors.Is(err, library.ErrAlreadyReturned):
		fmt.Fprintf(a.out, "Loan %d has already been returned.\n", loanID)
	case err != nil:
		fmt.Fprintf(a.out, "Error returning book: %v\n", err)
	default:
		fmt.Fprintf(a.out, "Book %d returned on %s\n", rec.BookID, library.FormatDate(rec.ReturnDate))
	}
}

func (a *app) handleListLoans(ctx context.Context, activeOnly bool) {
	var (
		loans []*library.LoanView
		err   error
	)
	if activeOnly {
		loans, err = a.mgr.GetActiveLoans(ctx)
	} else {
		loans, err = a.mgr.GetAllLoans(ctx)
	}
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	printLoans(a.out, loans, termWidth())
}

func (a *app) handleMemberLoans(ctx context.Context, sc *bufio.Scanner) {
	memberID, ok := a.promptID(sc, "Member ID: ", "member")
	if !ok {
		return
	}
	loans, err := a.mgr.GetMemberLoans(ctx, memberID)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	printLoans(a.out, loans, termWidth())
}
