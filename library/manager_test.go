package library

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newManager(t *testing.T) *LibraryManager {
	dir := t.TempDir()
	mgr, err := NewLibraryManager(context.Background(), DriverSQLite, filepath.Join(dir, "lib.db"))
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestCheckoutAndReturnWithDetails(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	b, err := mgr.AddBook(ctx, "Hello", "Anon", "")
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	m, err := mgr.AddMember(ctx, "Alice", "", "")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	rec, err := mgr.CheckoutBook(ctx, b.ID, m.ID, day(2024, 1, 10))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := mgr.CheckoutBook(ctx, b.ID, m.ID, day(2024, 1, 11)); !errors.Is(err, ErrBookUnavailable) {
		t.Fatalf("second checkout: want ErrBookUnavailable, got %v", err)
	}

	closed, err := mgr.ReturnBookWithDetails(ctx, rec.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if closed.Status != StatusReturned || closed.ReturnDate == nil {
		t.Fatalf("loan not closed: %+v", closed)
	}

	_, err = mgr.ReturnBookWithDetails(ctx, rec.ID)
	if !errors.Is(err, ErrAlreadyReturned) {
		t.Fatalf("double return: want ErrAlreadyReturned, got %v", err)
	}
	if !strings.Contains(err.Error(), closed.ReturnDate.Format(DateLayout)) {
		t.Fatalf("error should name the return date: %v", err)
	}
}

func TestCheckoutUnknownBook(t *testing.T) {
	mgr := newManager(t)
	if _, err := mgr.CheckoutBook(context.Background(), 5, 1, day(2024, 1, 10)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestReturnBookByBook(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	b, err := mgr.AddBook(ctx, "Hello", "Anon", "")
	if err != nil {
		t.Fatalf("add book: %v", err)
	}
	m, err := mgr.AddMember(ctx, "Alice", "", "")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}

	if _, err := mgr.ReturnBookByBook(ctx, b.ID); !errors.Is(err, ErrAlreadyReturned) {
		t.Fatalf("book never lent: want ErrAlreadyReturned, got %v", err)
	}
	if _, err := mgr.ReturnBookByBook(ctx, b.ID+1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown book: want ErrNotFound, got %v", err)
	}

	loan, err := mgr.CheckoutBook(ctx, b.ID, m.ID, day(2024, 1, 10))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	rec, err := mgr.ReturnBookByBook(ctx, b.ID)
	if err != nil {
		t.Fatalf("return by book: %v", err)
	}
	if rec.ID != loan.ID || rec.Open() {
		t.Fatalf("want loan %d closed, got %+v", loan.ID, rec)
	}
	got, _ := mgr.GetBook(ctx, b.ID)
	if !got.Available {
		t.Fatalf("book should be available after return")
	}
}

func TestGetMemberLoansUnknownMember(t *testing.T) {
	mgr := newManager(t)
	if _, err := mgr.GetMemberLoans(context.Background(), 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-01-10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(day(2024, 1, 10)) {
		t.Fatalf("got %s", got)
	}
	if _, err := ParseDate("10/01/2024"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("want ErrValidationFailed, got %v", err)
	}
}

func TestPrettyBook(t *testing.T) {
	line := PrettyBook(&Book{ID: 7, Title: "Dune", Author: "Frank Herbert", Available: false})
	if !strings.HasPrefix(line, "7 ") || !strings.Contains(line, "issued") {
		t.Fatalf("unexpected line %q", line)
	}
	if got := FormatDate(nil); got != "-" {
		t.Fatalf("FormatDate(nil) = %q", got)
	}
}
