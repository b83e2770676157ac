package library

import "time"

// LoanStatus is the lifecycle state of a LoanRecord.
type LoanStatus string

const (
	StatusIssued   LoanStatus = "issued"
	StatusReturned LoanStatus = "returned"
)

// Book represents catalog metadata and current availability of a book.
// Available mirrors the ledger: it is false exactly while an issued loan exists.
type Book struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title" validate:"required,max=255"`
	Author    string    `json:"author" db:"author" validate:"required,max=255"`
	ISBN      string    `json:"isbn" db:"isbn" validate:"omitempty,isbnish"`
	Available bool      `json:"available" db:"available"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Member represents a registered library member.
type Member struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name" validate:"required,max=255"`
	Email     string    `json:"email" db:"email" validate:"omitempty,email"`
	Phone     string    `json:"phone" db:"phone" validate:"omitempty,max=32"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LoanRecord is one issue-to-return cycle of a book for a member.
// ReturnDate is nil while Status is StatusIssued.
type LoanRecord struct {
	ID         int64      `json:"id" db:"id"`
	BookID     int64      `json:"book_id" db:"book_id"`
	MemberID   int64      `json:"member_id" db:"member_id"`
	IssueDate  time.Time  `json:"issue_date" db:"issue_date"`
	ReturnDate *time.Time `json:"return_date,omitempty" db:"return_date"`
	Status     LoanStatus `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Open reports whether the loan has not been returned yet.
func (r LoanRecord) Open() bool { return r.Status == StatusIssued }

// LoanView is a LoanRecord joined with the titles a front end shows.
type LoanView struct {
	LoanRecord
	BookTitle  string `json:"book_title" db:"book_title"`
	MemberName string `json:"member_name" db:"member_name"`
}

// AvailabilityMismatch describes a book whose stored flag disagrees with the ledger.
type AvailabilityMismatch struct {
	BookID    int64  `json:"book_id" db:"book_id"`
	Title     string `json:"title" db:"title"`
	Available bool   `json:"available" db:"available"`
	OpenLoans int64  `json:"open_loans" db:"open_loans"`
}

// civilDate truncates t to its calendar date at midnight UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
