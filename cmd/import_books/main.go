package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"library-catalog/internal/config"
	"library-catalog/internal/logging"
	"library-catalog/library"
)

func main() {
	if err := newImportCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newImportCmd(out io.Writer) *cobra.Command {
	cfg := config.FromEnv()
	var fresh bool

	cmd := &cobra.Command{
		Use:          "import_books <file.csv>",
		Short:        "Bulk-load books from a CSV of title,author,isbn",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if fresh {
				if err := removeSQLiteFiles(out, cfg); err != nil {
					return err
				}
			}

			f, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			defer f.Close()

			manager, err := library.NewLibraryManager(cmd.Context(), cfg.Driver, cfg.DSN, library.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer manager.Close()

			imported, failed, err := importBooks(cmd.Context(), manager, f, out)
			if err != nil {
				return err
			}
			logger.Info("import finished", zap.Int("imported", imported), zap.Int("failed", failed))

			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Successfully imported: %d books\n", imported)
			fmt.Fprintf(out, "Errors: %d\n", failed)

			if imported > 0 {
				books, err := manager.GetAllBooks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "\nCatalog:")
				for _, b := range books {
					fmt.Fprintln(out, library.PrettyBook(b))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Driver, "driver", cfg.Driver, "database driver: sqlite3 or postgres")
	cmd.Flags().StringVar(&cfg.DSN, "dsn", cfg.DSN, "sqlite3 file path or postgres URL")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "delete the sqlite3 database files before importing")
	cmd.SetOut(out)
	return cmd
}

// importBooks adds one book per CSV row. A leading header row is skipped.
// Rows that fail validation are reported and counted; store faults abort.
func importBooks(ctx context.Context, mgr *library.LibraryManager, r io.Reader, out io.Writer) (imported, failed int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return imported, failed, nil
		}
		if err != nil {
			return imported, failed, fmt.Errorf("reading csv: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < 2 {
			fmt.Fprintf(out, "line %d: ERROR - want title,author[,isbn]\n", line)
			failed++
			continue
		}

		isbn := ""
		if len(rec) > 2 {
			isbn = rec[2]
		}
		fmt.Fprintf(out, "Importing: %s by %s... ", rec[0], rec[1])
		b, err := mgr.AddBook(ctx, rec[0], rec[1], isbn)
		switch {
		case errors.Is(err, library.ErrValidationFailed):
			fmt.Fprintf(out, "ERROR - %v\n", err)
			failed++
		case err != nil:
			fmt.Fprintln(out, "ERROR")
			return imported, failed, err
		default:
			fmt.Fprintf(out, "SUCCESS (ID: %d)\n", b.ID)
			imported++
		}
	}
}

func isHeader(rec []string) bool {
	return len(rec) >= 2 &&
		strings.EqualFold(strings.TrimSpace(rec[0]), "title") &&
		strings.EqualFold(strings.TrimSpace(rec[1]), "author")
}

func removeSQLiteFiles(out io.Writer, cfg config.Config) error {
	if cfg.Driver != library.DriverSQLite {
		return fmt.Errorf("--fresh only applies to sqlite3 databases")
	}
	fmt.Fprintln(out, "Cleaning up existing database files...")
	for _, file := range []string{cfg.DSN, cfg.DSN + "-shm", cfg.DSN + "-wal"} {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(out, "Warning: Could not remove %s: %v\n", file, err)
		}
	}
	return nil
}
