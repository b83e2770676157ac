package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

// The ledger lives in the transactions table. Rows are inserted by IssueBook,
// closed by ReturnBook and never deleted.

var loanColumns = []interface{}{"id", "book_id", "member_id", "issue_date", "return_date", "status", "created_at"}

// insertLoan appends an issued record. The partial unique index on open loans
// rejects a second issued record for the same book.
func (d *Database) insertLoan(ctx context.Context, u *UnitOfWork, bookID, memberID int64, issueDate time.Time) (*LoanRecord, error) {
	id, err := d.insertID(ctx, u.tx, d.insert("transactions").Rows(goqu.Record{
		"book_id":    bookID,
		"member_id":  memberID,
		"issue_date": civilDate(issueDate),
		"status":     string(StatusIssued),
	}))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("book %d already has an open loan: %w", bookID, ErrBookUnavailable)
	}
	if err != nil {
		return nil, storeFault("insert loan", err)
	}
	return d.getLoan(ctx, u.tx, id)
}

func (d *Database) getLoan(ctx context.Context, q sqlx.QueryerContext, id int64) (*LoanRecord, error) {
	var rec LoanRecord
	err := d.getOne(ctx, q, &rec, d.from("transactions").Select(loanColumns...).Where(goqu.C("id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("loan", id)
	}
	if err != nil {
		return nil, storeFault("get loan", err)
	}
	return &rec, nil
}

// closeLoan marks an issued record returned on returnDate.
func (d *Database) closeLoan(ctx context.Context, u *UnitOfWork, id int64, returnDate time.Time) error {
	n, err := d.execAffected(ctx, u.tx, d.update("transactions").
		Set(goqu.Record{"return_date": civilDate(returnDate), "status": string(StatusReturned)}).
		Where(goqu.C("id").Eq(id), goqu.C("status").Eq(string(StatusIssued))))
	if err != nil {
		return storeFault("close loan", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: close loan %d: %d rows updated", ErrStoreFault, id, n)
	}
	return nil
}

func (d *Database) countLoans(ctx context.Context, q sqlx.QueryerContext, where exp.Expression) (int64, error) {
	var n int64
	if err := d.getOne(ctx, q, &n, d.from("transactions").Select(goqu.COUNT("*")).Where(where)); err != nil {
		return 0, storeFault("count loans", err)
	}
	return n, nil
}

// GetLoan returns one ledger record.
func (d *Database) GetLoan(ctx context.Context, id int64) (*LoanRecord, error) {
	return d.getLoan(ctx, d.db, id)
}

// OpenLoanForBook returns the issued record of a book, or ErrNotFound when the
// book is not lent out.
func (d *Database) OpenLoanForBook(ctx context.Context, bookID int64) (*LoanRecord, error) {
	var rec LoanRecord
	err := d.getOne(ctx, d.db, &rec, d.from("transactions").Select(loanColumns...).
		Where(goqu.C("book_id").Eq(bookID), goqu.C("status").Eq(string(StatusIssued))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open loan for book %d: %w", bookID, ErrNotFound)
	}
	if err != nil {
		return nil, storeFault("open loan for book", err)
	}
	return &rec, nil
}

// LoanHistory lists every record of a book, newest first.
func (d *Database) LoanHistory(ctx context.Context, bookID int64) ([]*LoanRecord, error) {
	recs := []*LoanRecord{}
	err := d.selectAll(ctx, d.db, &recs, d.from("transactions").Select(loanColumns...).
		Where(goqu.C("book_id").Eq(bookID)).
		Order(goqu.C("id").Desc()))
	if err != nil {
		return nil, storeFault("loan history", err)
	}
	return recs, nil
}
