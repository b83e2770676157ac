package library

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStoreFault marks connectivity or statement failures of the underlying store.
	ErrStoreFault = errors.New("store fault")
	// ErrNotFound marks a referenced id that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransactionFailed marks an aborted multi-write unit of work.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrValidationFailed marks caller input that was rejected before reaching the store.
	ErrValidationFailed = errors.New("validation failed")

	ErrBookUnavailable = errors.New("book is not available")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrInUse           = errors.New("record is referenced by loan history")
)

// TransactionError is returned when a unit of work was rolled back.
// It unwraps to ErrTransactionFailed, the cause, and the rollback error when
// the rollback itself failed.
type TransactionError struct {
	Op          string
	Err         error
	RollbackErr error
}

func (e *TransactionError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrTransactionFailed.Error())
	sb.WriteString(": ")
	sb.WriteString(e.Op)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.RollbackErr != nil {
		sb.WriteString(" (rollback: ")
		sb.WriteString(e.RollbackErr.Error())
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *TransactionError) Unwrap() []error {
	errs := []error{ErrTransactionFailed}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}

func storeFault(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFault, op, err)
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

// isRejection reports whether err is a domain rejection rather than a store fault.
// Rejections are returned as-is from a unit of work; everything else becomes a
// TransactionError.
func isRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBookUnavailable) ||
		errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInUse)
}
