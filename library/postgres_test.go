package library

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresDB connects to LIBRARY_TEST_POSTGRES_DSN and empties the tables.
// Tests using it must not run in parallel.
func postgresDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	dsn := os.Getenv("LIBRARY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skipping: set LIBRARY_TEST_POSTGRES_DSN to run against PostgreSQL")
	}
	db, err := NewDatabase(context.Background(), DriverPostgres, dsn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.db.Exec(`TRUNCATE transactions, books, members RESTART IDENTITY`)
	require.NoError(t, err)
	return db
}

func TestPostgresIssueAndReturn(t *testing.T) {
	db := postgresDB(t, fixedClock(day(2024, 1, 20)))
	seed(t, db, 7, 3)
	ctx := context.Background()

	rec, err := db.IssueBook(ctx, 7, 3, day(2024, 1, 10))
	require.NoError(t, err)
	assert.True(t, rec.IssueDate.Equal(day(2024, 1, 10)))

	_, err = db.IssueBook(ctx, 7, 1, day(2024, 1, 11))
	assert.ErrorIs(t, err, ErrBookUnavailable)

	require.NoError(t, db.ReturnBook(ctx, rec.ID))
	closed, err := db.GetLoan(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.ReturnDate)
	assert.True(t, closed.ReturnDate.Equal(day(2024, 1, 20)))

	res, err := db.SearchBooks(ctx, "BOOK 7")
	require.NoError(t, err)
	assert.Len(t, res, 1)

	assert.ErrorIs(t, db.DeleteBook(ctx, 7), ErrInUse)

	mismatches, err := db.AvailabilityMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestPostgresIssueAtomicity(t *testing.T) {
	db := postgresDB(t)
	seed(t, db, 1, 1)
	ctx := context.Background()

	_, err := db.db.Exec(`CREATE OR REPLACE FUNCTION block_availability() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'availability is locked';
END;
$$ LANGUAGE plpgsql`)
	require.NoError(t, err)
	_, err = db.db.Exec(`CREATE TRIGGER block_availability BEFORE UPDATE OF available ON books
FOR EACH ROW EXECUTE FUNCTION block_availability()`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.db.Exec(`DROP TRIGGER IF EXISTS block_availability ON books`)
	})

	_, err = db.IssueBook(ctx, 1, 1, day(2024, 1, 10))
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.EqualValues(t, 0, countRows(t, db, "transactions"))
	available, err := db.BookAvailability(ctx, 1)
	require.NoError(t, err)
	assert.True(t, available)
}
