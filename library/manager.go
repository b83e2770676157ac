package library

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
// It performs the precondition checks a front end runs before calling the
// loan workflow.
type LibraryManager struct {
	db *Database
}

// NewLibraryManager opens (or creates) the store behind driver and dsn.
func NewLibraryManager(ctx context.Context, driver, dsn string, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(ctx, driver, dsn, opts...)
	if err != nil {
		return nil, err
	}
	return &LibraryManager{db: db}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Database exposes the storage handle for callers that need the full API.
func (lm *LibraryManager) Database() *Database { return lm.db }

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(ctx context.Context, title, author, isbn string) (*Book, error) {
	return lm.db.AddBook(ctx, Book{Title: title, Author: author, ISBN: isbn})
}

func (lm *LibraryManager) UpdateBook(ctx context.Context, b Book) (*Book, error) {
	return lm.db.UpdateBook(ctx, b)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, id int64) error {
	return lm.db.DeleteBook(ctx, id)
}

func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	return lm.db.GetBook(ctx, id)
}

func (lm *LibraryManager) GetAllBooks(ctx context.Context) ([]*Book, error) {
	return lm.db.AllBooks(ctx)
}

func (lm *LibraryManager) SearchBooks(ctx context.Context, q string) ([]*Book, error) {
	return lm.db.SearchBooks(ctx, q)
}

// ------------------ Member helpers ------------------

func (lm *LibraryManager) AddMember(ctx context.Context, name, email, phone string) (*Member, error) {
	return lm.db.AddMember(ctx, Member{Name: name, Email: email, Phone: phone})
}

func (lm *LibraryManager) UpdateMember(ctx context.Context, m Member) (*Member, error) {
	return lm.db.UpdateMember(ctx, m)
}

func (lm *LibraryManager) DeleteMember(ctx context.Context, id int64) error {
	return lm.db.DeleteMember(ctx, id)
}

func (lm *LibraryManager) GetMember(ctx context.Context, id int64) (*Member, error) {
	return lm.db.GetMember(ctx, id)
}

func (lm *LibraryManager) GetAllMembers(ctx context.Context) ([]*Member, error) {
	return lm.db.AllMembers(ctx)
}

func (lm *LibraryManager) SearchMembers(ctx context.Context, q string) ([]*Member, error) {
	return lm.db.SearchMembers(ctx, q)
}

// ------------------ Circulation ------------------

// CheckoutBook issues a book after confirming it is available.
func (lm *LibraryManager) CheckoutBook(ctx context.Context, bookID, memberID int64, issueDate time.Time) (*LoanRecord, error) {
	available, err := lm.db.BookAvailability(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("book %d is already issued: %w", bookID, ErrBookUnavailable)
	}
	return lm.db.IssueBook(ctx, bookID, memberID, issueDate)
}

// ReturnBookWithDetails returns a loan that is still open and yields the closed record.
func (lm *LibraryManager) ReturnBookWithDetails(ctx context.Context, loanID int64) (*LoanRecord, error) {
	rec, err := lm.db.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !rec.Open() {
		return nil, fmt.Errorf("loan %d was returned on %s: %w", loanID, FormatDate(rec.ReturnDate), ErrAlreadyReturned)
	}
	if err := lm.db.ReturnBook(ctx, loanID); err != nil {
		return nil, err
	}
	return lm.db.GetLoan(ctx, loanID)
}

// ReturnBookByBook returns the open loan of a book.
func (lm *LibraryManager) ReturnBookByBook(ctx context.Context, bookID int64) (*LoanRecord, error) {
	if _, err := lm.db.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	rec, err := lm.db.OpenLoanForBook(ctx, bookID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("book %d is not on loan: %w", bookID, ErrAlreadyReturned)
	}
	if err != nil {
		return nil, err
	}
	return lm.ReturnBookWithDetails(ctx, rec.ID)
}

func (lm *LibraryManager) GetAllLoans(ctx context.Context) ([]*LoanView, error) {
	return lm.db.AllLoans(ctx)
}

func (lm *LibraryManager) GetActiveLoans(ctx context.Context) ([]*LoanView, error) {
	return lm.db.ActiveLoans(ctx)
}

func (lm *LibraryManager) GetMemberLoans(ctx context.Context, memberID int64) ([]*LoanView, error) {
	if _, err := lm.db.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return lm.db.LoansForMember(ctx, memberID)
}

func (lm *LibraryManager) Audit(ctx context.Context) ([]*AvailabilityMismatch, error) {
	return lm.db.AvailabilityMismatches(ctx)
}

// ------------------ Utilities ------------------

// DateLayout is the calendar date format used for input and output.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must look like %s", ErrValidationFailed, s, DateLayout)
	}
	return t, nil
}

// FormatDate renders an optional date, "-" when absent.
func FormatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(DateLayout)
}

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	status := "available"
	if !b.Available {
		status = "issued"
	}
	return fmt.Sprintf("%-5d %-30s %-25s %-17s %-10s", b.ID, b.Title, b.Author, b.ISBN, status)
}
