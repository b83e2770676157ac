package library

import (
	"context"

	"github.com/doug-martin/goqu/v9"
)

func (d *Database) loanViews() *goqu.SelectDataset {
	return d.from(goqu.T("transactions").As("t")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("t.book_id")))).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("t.member_id")))).
		Select(
			goqu.I("t.id").As("id"),
			goqu.I("t.book_id").As("book_id"),
			goqu.I("t.member_id").As("member_id"),
			goqu.I("t.issue_date").As("issue_date"),
			goqu.I("t.return_date").As("return_date"),
			goqu.I("t.status").As("status"),
			goqu.I("t.created_at").As("created_at"),
			goqu.I("b.title").As("book_title"),
			goqu.I("m.name").As("member_name"),
		).
		Order(goqu.I("t.id").Desc())
}

func (d *Database) selectLoanViews(ctx context.Context, op string, ds *goqu.SelectDataset) ([]*LoanView, error) {
	views := []*LoanView{}
	if err := d.selectAll(ctx, d.db, &views, ds); err != nil {
		return nil, storeFault(op, err)
	}
	return views, nil
}

// AllLoans lists every loan with its book title and member name, newest first.
func (d *Database) AllLoans(ctx context.Context) ([]*LoanView, error) {
	return d.selectLoanViews(ctx, "all loans", d.loanViews())
}

// ActiveLoans is AllLoans restricted to issued records.
func (d *Database) ActiveLoans(ctx context.Context) ([]*LoanView, error) {
	return d.selectLoanViews(ctx, "active loans",
		d.loanViews().Where(goqu.I("t.status").Eq(string(StatusIssued))))
}

func (d *Database) LoansForMember(ctx context.Context, memberID int64) ([]*LoanView, error) {
	return d.selectLoanViews(ctx, "loans for member",
		d.loanViews().Where(goqu.I("t.member_id").Eq(memberID)))
}

// AvailabilityMismatches returns the books whose availability flag disagrees
// with the ledger. It is empty as long as only the loan workflow writes the flag.
func (d *Database) AvailabilityMismatches(ctx context.Context) ([]*AvailabilityMismatch, error) {
	openLoans := goqu.COUNT(goqu.I("t.id"))
	ds := d.from(goqu.T("books").As("b")).
		LeftJoin(goqu.T("transactions").As("t"), goqu.On(
			goqu.I("t.book_id").Eq(goqu.I("b.id")),
			goqu.I("t.status").Eq(string(StatusIssued)),
		)).
		Select(
			goqu.I("b.id").As("book_id"),
			goqu.I("b.title").As("title"),
			goqu.I("b.available").As("available"),
			openLoans.As("open_loans"),
		).
		GroupBy(goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.available")).
		// Plain boolean tests: goqu renders Eq(true) as IS TRUE, which the
		// sqlite3 dialect refuses.
		Having(goqu.L("(? AND ? > 0) OR (NOT ? AND ? = 0)",
			goqu.I("b.available"), openLoans, goqu.I("b.available"), openLoans)).
		Order(goqu.I("b.id").Asc())

	out := []*AvailabilityMismatch{}
	if err := d.selectAll(ctx, d.db, &out, ds); err != nil {
		return nil, storeFault("availability audit", err)
	}
	return out, nil
}
