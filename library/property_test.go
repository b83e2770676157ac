package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// TestLedgerInvariants drives random issue/return sequences and checks after
// every step that the availability flags, the ledger and the views agree.
func TestLedgerInvariants(t *testing.T) {
	const books, members = 4, 3
	dir := t.TempDir()
	var run atomic.Int64
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		path := filepath.Join(dir, fmt.Sprintf("prop-%d.db", run.Add(1)))
		db, err := NewDatabase(ctx, DriverSQLite, path)
		if err != nil {
			rt.Fatalf("new db: %v", err)
		}
		defer db.Close()
		for i := 1; i <= books; i++ {
			if _, err := db.AddBook(ctx, Book{Title: fmt.Sprintf("Book %d", i), Author: "A"}); err != nil {
				rt.Fatalf("add book: %v", err)
			}
		}
		for i := 1; i <= members; i++ {
			if _, err := db.AddMember(ctx, Member{Name: fmt.Sprintf("Member %d", i)}); err != nil {
				rt.Fatalf("add member: %v", err)
			}
		}

		var loanIDs []int64
		rt.Repeat(map[string]func(*rapid.T){
			"issue": func(rt *rapid.T) {
				bookID := rapid.Int64Range(1, books).Draw(rt, "book")
				memberID := rapid.Int64Range(1, members).Draw(rt, "member")
				wasAvailable, err := db.BookAvailability(ctx, bookID)
				if err != nil {
					rt.Fatalf("availability: %v", err)
				}
				rec, err := db.IssueBook(ctx, bookID, memberID, day(2024, 1, 10))
				switch {
				case wasAvailable && err != nil:
					rt.Fatalf("issue of available book %d failed: %v", bookID, err)
				case !wasAvailable && !errors.Is(err, ErrBookUnavailable):
					rt.Fatalf("issue of unavailable book %d: want ErrBookUnavailable, got %v", bookID, err)
				case err == nil:
					loanIDs = append(loanIDs, rec.ID)
				}
			},
			"return": func(rt *rapid.T) {
				if len(loanIDs) == 0 {
					rt.Skip("no loans yet")
				}
				loanID := rapid.SampledFrom(loanIDs).Draw(rt, "loan")
				before, err := db.GetLoan(ctx, loanID)
				if err != nil {
					rt.Fatalf("get loan: %v", err)
				}
				err = db.ReturnBook(ctx, loanID)
				if before.Open() && err != nil {
					rt.Fatalf("return of open loan %d: %v", loanID, err)
				}
				if !before.Open() && !errors.Is(err, ErrAlreadyReturned) {
					rt.Fatalf("second return of loan %d: want ErrAlreadyReturned, got %v", loanID, err)
				}
			},
			"": func(rt *rapid.T) {
				checkLedgerInvariants(rt, db)
			},
		})
	})
}

func checkLedgerInvariants(rt *rapid.T, db *Database) {
	ctx := context.Background()
	all, err := db.AllLoans(ctx)
	if err != nil {
		rt.Fatalf("all loans: %v", err)
	}
	active, err := db.ActiveLoans(ctx)
	if err != nil {
		rt.Fatalf("active loans: %v", err)
	}

	openPerBook := map[int64]int{}
	var issued []int64
	for _, v := range all {
		if (v.Status == StatusIssued) != (v.ReturnDate == nil) {
			rt.Fatalf("loan %d: status %s with return date %v", v.ID, v.Status, v.ReturnDate)
		}
		if v.Status == StatusIssued {
			openPerBook[v.BookID]++
			issued = append(issued, v.ID)
		}
	}
	for bookID, n := range openPerBook {
		if n > 1 {
			rt.Fatalf("book %d has %d open loans", bookID, n)
		}
	}

	if len(active) != len(issued) {
		rt.Fatalf("active loans %d, issued in full history %d", len(active), len(issued))
	}
	for i, v := range active {
		if v.ID != issued[i] {
			rt.Fatalf("active loan %d is %d, want %d", i, v.ID, issued[i])
		}
	}

	books, err := db.AllBooks(ctx)
	if err != nil {
		rt.Fatalf("all books: %v", err)
	}
	for _, b := range books {
		if b.Available != (openPerBook[b.ID] == 0) {
			rt.Fatalf("book %d available=%t with %d open loans", b.ID, b.Available, openPerBook[b.ID])
		}
	}
}
