package library

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionErrorMessage(t *testing.T) {
	cause := errors.New("disk full")
	rb := errors.New("connection lost")

	err := &TransactionError{Op: "workflow.issue_book", Err: cause}
	assert.Equal(t, "transaction failed: workflow.issue_book: disk full", err.Error())

	err.RollbackErr = rb
	assert.Equal(t, "transaction failed: workflow.issue_book: disk full (rollback: connection lost)", err.Error())
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, rb)
}

func TestIsRejection(t *testing.T) {
	assert.True(t, isRejection(notFound("book", 1)))
	assert.True(t, isRejection(ErrAlreadyReturned))
	assert.False(t, isRejection(storeFault("insert loan", errors.New("io"))))
	assert.False(t, isRejection(errors.New("other")))
}
