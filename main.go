package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"library-catalog/internal/config"
	"library-catalog/internal/logging"
	"library-catalog/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app carries what every command needs once the root command has run.
type app struct {
	cfg     config.Config
	jsonOut bool
	logger  *zap.Logger
	mgr     *library.LibraryManager
	out     io.Writer
	in      io.Reader
	today   func() time.Time
}

func main() {
	a := &app{cfg: config.FromEnv(), out: os.Stdout, in: os.Stdin, today: time.Now}
	err := newRootCmd(a).Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library catalog and loan desk",
		Long:          "Manage books, members and loans. Run without a subcommand for the interactive shell.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runShell(cmd.Context())
		},
	}
	root.SetOut(a.out)
	root.SetIn(a.in)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.Driver, "driver", a.cfg.Driver, "database driver: sqlite3 or postgres (env "+config.EnvDriver+")")
	flags.StringVar(&a.cfg.DSN, "dsn", a.cfg.DSN, "sqlite3 file path or postgres URL (env "+config.EnvDSN+")")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (env "+config.EnvLogLevel+")")
	flags.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log encoding: console or json (env "+config.EnvLogFormat+")")
	flags.BoolVar(&a.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newBookCmd(a),
		newMemberCmd(a),
		newLoanCmd(a),
		newAuditCmd(a),
		&cobra.Command{
			Use:   "shell",
			Short: "Interactive prompt",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runShell(cmd.Context())
			},
		},
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(a.cfg.LogLevel, a.cfg.LogFormat)
	if err != nil {
		return err
	}
	a.logger = logger

	mgr, err := library.NewLibraryManager(ctx, a.cfg.Driver, a.cfg.DSN, library.WithLogger(logger), library.WithClock(a.today))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.mgr = mgr
	logger.Debug("database opened", zap.String("driver", a.cfg.Driver))
	return nil
}

// close is safe to call more than once.
func (a *app) close() error {
	var err error
	if a.mgr != nil {
		err = a.mgr.Close()
		a.mgr = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

// emit prints v as JSON under --json, otherwise runs the text renderer.
func (a *app) emit(v interface{}, text func(w io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}

// termWidth is the width of stdout, or 100 when it is not a terminal.
func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", what, s)
	}
	return id, nil
}

// truncateString shortens s to at most maxLen runes.
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
