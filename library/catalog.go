package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

var (
	bookColumns   = []interface{}{"id", "title", "author", "isbn", "available", "created_at"}
	memberColumns = []interface{}{"id", "name", "email", "phone", "created_at"}
)

// ------------------ Books ------------------

// AddBook stores a new book. New books are always available.
func (d *Database) AddBook(ctx context.Context, b Book) (*Book, error) {
	normalizeBook(&b)
	if err := validateStruct(b); err != nil {
		return nil, err
	}
	id, err := d.insertID(ctx, d.db, d.insert("books").Rows(goqu.Record{
		"title":     b.Title,
		"author":    b.Author,
		"isbn":      b.ISBN,
		"available": true,
	}))
	if err != nil {
		return nil, storeFault("add book", err)
	}
	return d.GetBook(ctx, id)
}

// UpdateBook rewrites title, author and ISBN. The availability flag belongs
// to the loan workflow and is left alone.
func (d *Database) UpdateBook(ctx context.Context, b Book) (*Book, error) {
	normalizeBook(&b)
	if err := validateStruct(b); err != nil {
		return nil, err
	}
	n, err := d.execAffected(ctx, d.db, d.update("books").
		Set(goqu.Record{"title": b.Title, "author": b.Author, "isbn": b.ISBN}).
		Where(goqu.C("id").Eq(b.ID)))
	if err != nil {
		return nil, storeFault("update book", err)
	}
	if n == 0 {
		return nil, notFound("book", b.ID)
	}
	return d.GetBook(ctx, b.ID)
}

// DeleteBook removes a book that has never been lent out.
func (d *Database) DeleteBook(ctx context.Context, id int64) error {
	return d.RunInUnit(ctx, "catalog.delete_book", func(ctx context.Context, u *UnitOfWork) error {
		if _, err := d.getBook(ctx, u.tx, id); err != nil {
			return err
		}
		loans, err := d.countLoans(ctx, u.tx, goqu.C("book_id").Eq(id))
		if err != nil {
			return err
		}
		if loans > 0 {
			return fmt.Errorf("book %d has %d loan records: %w", id, loans, ErrInUse)
		}
		return d.deleteRow(ctx, u.tx, "books", id)
	})
}

func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	return d.getBook(ctx, d.db, id)
}

func (d *Database) getBook(ctx context.Context, q sqlx.QueryerContext, id int64) (*Book, error) {
	var b Book
	err := d.getOne(ctx, q, &b, d.from("books").Select(bookColumns...).Where(goqu.C("id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("book", id)
	}
	if err != nil {
		return nil, storeFault("get book", err)
	}
	return &b, nil
}

// AllBooks lists every book, newest first.
func (d *Database) AllBooks(ctx context.Context) ([]*Book, error) {
	return d.SearchBooks(ctx, "")
}

// SearchBooks matches keyword case-insensitively against title, author and
// ISBN. % and _ in keyword are literal. An empty keyword matches every book.
func (d *Database) SearchBooks(ctx context.Context, keyword string) ([]*Book, error) {
	ds := d.from("books").Select(bookColumns...).Order(goqu.C("id").Desc())
	if kw := strings.TrimSpace(keyword); kw != "" {
		ds = ds.Where(containsFold(kw, "title", "author", "isbn"))
	}
	books := []*Book{}
	if err := d.selectAll(ctx, d.db, &books, ds); err != nil {
		return nil, storeFault("search books", err)
	}
	return books, nil
}

// BookAvailability reports the stored availability flag of a book.
func (d *Database) BookAvailability(ctx context.Context, id int64) (bool, error) {
	var available bool
	err := d.getOne(ctx, d.db, &available, d.from("books").Select("available").Where(goqu.C("id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound("book", id)
	}
	if err != nil {
		return false, storeFault("book availability", err)
	}
	return available, nil
}

// ------------------ Members ------------------

func (d *Database) AddMember(ctx context.Context, m Member) (*Member, error) {
	normalizeMember(&m)
	if err := validateStruct(m); err != nil {
		return nil, err
	}
	id, err := d.insertID(ctx, d.db, d.insert("members").Rows(goqu.Record{
		"name":  m.Name,
		"email": m.Email,
		"phone": m.Phone,
	}))
	if err != nil {
		return nil, storeFault("add member", err)
	}
	return d.GetMember(ctx, id)
}

func (d *Database) UpdateMember(ctx context.Context, m Member) (*Member, error) {
	normalizeMember(&m)
	if err := validateStruct(m); err != nil {
		return nil, err
	}
	n, err := d.execAffected(ctx, d.db, d.update("members").
		Set(goqu.Record{"name": m.Name, "email": m.Email, "phone": m.Phone}).
		Where(goqu.C("id").Eq(m.ID)))
	if err != nil {
		return nil, storeFault("update member", err)
	}
	if n == 0 {
		return nil, notFound("member", m.ID)
	}
	return d.GetMember(ctx, m.ID)
}

// DeleteMember removes a member without loan history.
func (d *Database) DeleteMember(ctx context.Context, id int64) error {
	return d.RunInUnit(ctx, "catalog.delete_member", func(ctx context.Context, u *UnitOfWork) error {
		if _, err := d.getMember(ctx, u.tx, id); err != nil {
			return err
		}
		loans, err := d.countLoans(ctx, u.tx, goqu.C("member_id").Eq(id))
		if err != nil {
			return err
		}
		if loans > 0 {
			return fmt.Errorf("member %d has %d loan records: %w", id, loans, ErrInUse)
		}
		return d.deleteRow(ctx, u.tx, "members", id)
	})
}

func (d *Database) GetMember(ctx context.Context, id int64) (*Member, error) {
	return d.getMember(ctx, d.db, id)
}

func (d *Database) getMember(ctx context.Context, q sqlx.QueryerContext, id int64) (*Member, error) {
	var m Member
	err := d.getOne(ctx, q, &m, d.from("members").Select(memberColumns...).Where(goqu.C("id").Eq(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("member", id)
	}
	if err != nil {
		return nil, storeFault("get member", err)
	}
	return &m, nil
}

func (d *Database) AllMembers(ctx context.Context) ([]*Member, error) {
	return d.SearchMembers(ctx, "")
}

// SearchMembers matches keyword case-insensitively against name, email and phone.
func (d *Database) SearchMembers(ctx context.Context, keyword string) ([]*Member, error) {
	ds := d.from("members").Select(memberColumns...).Order(goqu.C("id").Desc())
	if kw := strings.TrimSpace(keyword); kw != "" {
		ds = ds.Where(containsFold(kw, "name", "email", "phone"))
	}
	members := []*Member{}
	if err := d.selectAll(ctx, d.db, &members, ds); err != nil {
		return nil, storeFault("search members", err)
	}
	return members, nil
}

// likeEscaper makes % and _ in a keyword match literally under ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsFold matches rows where any of cols contains keyword, ignoring case.
// Both sides go through lower(), which is Unicode-aware on both drivers.
func containsFold(keyword string, cols ...string) exp.Expression {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(keyword)) + "%"
	ors := make([]exp.Expression, 0, len(cols))
	for _, col := range cols {
		ors = append(ors, goqu.L("LOWER(?) LIKE ? ESCAPE '!'", goqu.C(col), pattern))
	}
	return goqu.Or(ors...)
}

// deleteRow removes one row by id. A foreign key violation means loan history
// appeared after the guard ran.
func (d *Database) deleteRow(ctx context.Context, q sqlx.ExecerContext, table string, id int64) error {
	n, err := d.execAffected(ctx, q, d.delete(table).Where(goqu.C("id").Eq(id)))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%s %d: %w", strings.TrimSuffix(table, "s"), id, ErrInUse)
	}
	if err != nil {
		return storeFault("delete from "+table, err)
	}
	if n == 0 {
		return notFound(strings.TrimSuffix(table, "s"), id)
	}
	return nil
}
