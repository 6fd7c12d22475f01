// Package commands implements the ledgerctl command line.
package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"financeflow/internal/core"
	"financeflow/internal/log"
	"financeflow/internal/services"
	"financeflow/internal/storage"
)

const defaultDBPath = "./data/finance.db"

// app holds the state shared by every subcommand. The ledger is opened in
// PersistentPreRunE and closed in PersistentPostRunE.
type app struct {
	dbPath   string
	userID   int64
	logLevel string
	now      func() time.Time

	repo   *storage.SQLiteRepository
	ledger *services.LedgerService
}

type Option func(*app)

// WithClock fixes the ledger clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *app) { a.now = now }
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	dbDefault := os.Getenv("SQLITE_DB_PATH")
	if dbDefault == "" {
		dbDefault = defaultDBPath
	}

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Manage a financeflow ledger from the command line",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", dbDefault, "path to the SQLite database")
	rootCmd.PersistentFlags().Int64Var(&a.userID, "user", core.DefaultUserID, "ledger user id")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newInitCommand(a),
		newAddCommand(a),
		newListCommand(a),
		newSummaryCommand(a),
		newCategoriesCommand(a),
		newBreakdownCommand(a),
		newTrendCommand(a),
		newDeleteCommand(a),
		newExportCommand(a),
	)

	return rootCmd
}

func (a *app) open(stderr io.Writer) error {
	if err := core.ValidateUserID(a.userID); err != nil {
		return err
	}
	logger := log.New(log.Config{
		Level:     log.ParseLevel(a.logLevel),
		Component: log.ComponentCLI,
		Output:    stderr,
	})

	repo, err := storage.NewSQLiteRepository(a.dbPath)
	if err != nil {
		return fmt.Errorf("opening ledger %s: %w", a.dbPath, err)
	}
	a.repo = repo
	a.ledger = services.NewLedgerService(repo,
		services.WithClock(a.now),
		services.WithLogger(logger))
	return nil
}

func (a *app) close() error {
	if a.repo == nil {
		return nil
	}
	err := a.repo.Close()
	a.repo, a.ledger = nil, nil
	return err
}

// rangeFlags are the --start/--end pair shared by the report commands.
type rangeFlags struct {
	start, end string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "last day (YYYY-MM-DD)")
}

// resolve parses the flags, using def when neither bound is given.
func (f *rangeFlags) resolve(def core.DateRange) (core.DateRange, error) {
	if f.start == "" && f.end == "" {
		return def, nil
	}
	return core.ParseDateRange(f.start, f.end)
}

func lastThirtyDays(today core.Date) core.DateRange { return core.LastDays(today, 30) }

func monthToDate(today core.Date) core.DateRange {
	return core.DateRange{Start: today.FirstOfMonth(), End: today}
}
