package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanViews(t *testing.T) {
	// setup
	db := tempDB(t, fixedClock(day(2024, 2, 1)))
	ctx := context.Background()
	hobbit, err := db.AddBook(ctx, Book{Title: "The Hobbit", Author: "J.R.R. Tolkien"})
	require.NoError(t, err)
	dune, err := db.AddBook(ctx, Book{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	alice, err := db.AddMember(ctx, Member{Name: "Alice"})
	require.NoError(t, err)
	bob, err := db.AddMember(ctx, Member{Name: "Bob"})
	require.NoError(t, err)

	// arrange
	first, err := db.IssueBook(ctx, hobbit.ID, alice.ID, day(2024, 1, 10))
	require.NoError(t, err)
	require.NoError(t, db.ReturnBook(ctx, first.ID))
	second, err := db.IssueBook(ctx, dune.ID, bob.ID, day(2024, 1, 15))
	require.NoError(t, err)

	// act
	all, err := db.AllLoans(ctx)
	require.NoError(t, err)
	active, err := db.ActiveLoans(ctx)
	require.NoError(t, err)
	mine, err := db.LoansForMember(ctx, alice.ID)
	require.NoError(t, err)

	// assert
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, "Dune", all[0].BookTitle)
	assert.Equal(t, "Bob", all[0].MemberName)
	assert.Equal(t, "The Hobbit", all[1].BookTitle)
	assert.Equal(t, StatusReturned, all[1].Status)
	require.NotNil(t, all[1].ReturnDate)
	assert.True(t, all[1].ReturnDate.Equal(day(2024, 2, 1)))

	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Nil(t, active[0].ReturnDate)

	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)
}

func TestLoanViewsEmpty(t *testing.T) {
	db := tempDB(t)

	all, err := db.AllLoans(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestAvailabilityMismatches(t *testing.T) {
	db := tempDB(t)
	seed(t, db, 3, 1)
	ctx := context.Background()
	_, err := db.IssueBook(ctx, 1, 1, day(2024, 1, 10))
	require.NoError(t, err)

	mismatches, err := db.AvailabilityMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches, "workflow keeps flag and ledger in step")

	_, err = db.db.Exec(`UPDATE books SET available = 1 WHERE id = 1`)
	require.NoError(t, err)
	_, err = db.db.Exec(`UPDATE books SET available = 0 WHERE id = 3`)
	require.NoError(t, err)

	mismatches, err = db.AvailabilityMismatches(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 2)
	assert.Equal(t, AvailabilityMismatch{BookID: 1, Title: "Book 1", Available: true, OpenLoans: 1}, *mismatches[0])
	assert.Equal(t, AvailabilityMismatch{BookID: 3, Title: "Book 3", Available: false, OpenLoans: 0}, *mismatches[1])
}
