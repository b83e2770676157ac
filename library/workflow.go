package library

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// IssueBook lends a book to a member. The ledger insert and the availability
// update are applied together or not at all.
func (d *Database) IssueBook(ctx context.Context, bookID, memberID int64, issueDate time.Time) (*LoanRecord, error) {
	if issueDate.IsZero() {
		return nil, fmt.Errorf("%w: issue date is required", ErrValidationFailed)
	}

	var rec *LoanRecord
	err := d.RunInUnit(ctx, "workflow.issue_book", func(ctx context.Context, u *UnitOfWork) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int64("book.id", bookID),
			attribute.Int64("member.id", memberID),
		)

		book, err := d.getBook(ctx, u.tx, bookID)
		if err != nil {
			return err
		}
		if _, err := d.getMember(ctx, u.tx, memberID); err != nil {
			return err
		}
		if !book.Available {
			return fmt.Errorf("book %d: %w", bookID, ErrBookUnavailable)
		}

		if rec, err = d.insertLoan(ctx, u, bookID, memberID, issueDate); err != nil {
			return err
		}
		return d.setAvailable(ctx, u, bookID, false)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ReturnBook closes a loan with today's date and makes the book available again.
// Returning a loan twice is rejected with ErrAlreadyReturned.
func (d *Database) ReturnBook(ctx context.Context, loanID int64) error {
	return d.RunInUnit(ctx, "workflow.return_book", func(ctx context.Context, u *UnitOfWork) error {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.Int64("loan.id", loanID))

		rec, err := d.getLoan(ctx, u.tx, loanID)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int64("book.id", rec.BookID))
		if !rec.Open() {
			return fmt.Errorf("loan %d: %w", loanID, ErrAlreadyReturned)
		}

		if err := d.closeLoan(ctx, u, loanID, d.now()); err != nil {
			return err
		}
		return d.setAvailable(ctx, u, rec.BookID, true)
	})
}

// setAvailable is the only write to books.available.
func (d *Database) setAvailable(ctx context.Context, u *UnitOfWork, bookID int64, available bool) error {
	n, err := d.execAffected(ctx, u.tx, d.update("books").
		Set(goqu.Record{"available": available}).
		Where(goqu.C("id").Eq(bookID)))
	if err != nil {
		return storeFault("set availability", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: book %d availability not updated", ErrStoreFault, bookID)
	}
	return nil
}
