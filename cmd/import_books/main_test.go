package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-catalog/library"
)

func TestImportBooks(t *testing.T) {
	ctx := context.Background()
	mgr, err := library.NewLibraryManager(ctx, library.DriverSQLite, filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	csvData := strings.Join([]string{
		"title,author,isbn",
		"1984,George Orwell,978-0-452-28423-4",
		`"The Two Towers", J.R.R. Tolkien`,
		"lonely field",
		",Nobody,",
	}, "\n")
	var out bytes.Buffer

	imported, failed, err := importBooks(ctx, mgr, strings.NewReader(csvData), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 2, failed)
	assert.Contains(t, out.String(), "SUCCESS (ID: 1)")
	assert.Contains(t, out.String(), "line 4: ERROR")

	books, err := mgr.GetAllBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "The Two Towers", books[0].Title)
	assert.Equal(t, "978-0-452-28423-4", books[1].ISBN)
}

func TestImportCommandFresh(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "lib.db")
	csvPath := filepath.Join(dir, "books.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Dune,Frank Herbert\n"), 0o644))

	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		cmd := newImportCmd(&out)
		cmd.SetArgs([]string{"--driver", "sqlite3", "--dsn", dsn, "--fresh", csvPath})
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		assert.Contains(t, out.String(), "Successfully imported: 1 books")
	}

	mgr, err := library.NewLibraryManager(context.Background(), library.DriverSQLite, dsn)
	require.NoError(t, err)
	defer mgr.Close()
	books, err := mgr.GetAllBooks(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 1, "--fresh starts from an empty catalog")
}
