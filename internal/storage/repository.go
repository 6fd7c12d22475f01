package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"financeflow/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02 15:04:05.000"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// DSN returns the connection string used for every connection to dbPath.
// Writes take the lock up front so concurrent writers queue on busy_timeout
// instead of failing on lock upgrade.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

// NewSQLiteRepository opens the database, applies migrations and seeds the default user.
// Calling it again on an existing file is a no-op apart from opening the connection.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DSN(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	if err := repo.SeedUser(context.Background(), core.DefaultUserID, core.DefaultUsername); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed default user: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SeedUser creates the user if missing and gives it the default categories.
func (r *SQLiteRepository) SeedUser(ctx context.Context, userID int64, username string) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := q.InsertUser(ctx, userID, username); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		for _, c := range core.DefaultCategories {
			if _, err := q.InsertCategory(ctx, userID, c.Name, string(c.Type)); err != nil {
				return fmt.Errorf("insert category %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	ok, err := r.queries.UserExists(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return ok, nil
}

// EnsureCategory registers name under (userID, typ) when absent and reports whether it did.
func (r *SQLiteRepository) EnsureCategory(ctx context.Context, userID int64, name string, typ core.TransactionType) (bool, error) {
	var created bool
	err := r.inTx(ctx, func(q *Queries) error {
		var err error
		created, err = ensureCategory(ctx, q, userID, name, typ)
		return err
	})
	return created, err
}

func ensureCategory(ctx context.Context, q *Queries, userID int64, name string, typ core.TransactionType) (bool, error) {
	exists, err := q.CategoryExists(ctx, userID, name, string(typ))
	if err != nil {
		return false, fmt.Errorf("check category: %w", err)
	}
	if exists {
		return false, nil
	}
	created, err := q.InsertCategory(ctx, userID, name, string(typ))
	if err != nil {
		return false, fmt.Errorf("insert category: %w", err)
	}
	if created {
		slog.InfoContext(ctx, "Category created", "user_id", userID, "category", name, "type", typ)
	}
	return created, nil
}

// InsertTransaction stores an already validated transaction, registering its
// category in the same write transaction, and returns the new row id.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	var id int64
	err := r.inTx(ctx, func(q *Queries) error {
		if _, err := ensureCategory(ctx, q, t.UserID, t.Category, t.Type); err != nil {
			return err
		}
		var err error
		id, err = q.InsertTransaction(ctx, InsertTransactionParams{
			UserID:      t.UserID,
			Type:        string(t.Type),
			Amount:      t.Amount.InexactFloat64(),
			Category:    t.Category,
			Description: t.Description,
			Date:        t.Date.String(),
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"user_id", t.UserID,
		"type", t.Type,
		"amount", t.Amount.StringFixed(2),
		"category", t.Category,
		"date", t.Date.String())

	return id, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, bool, error) {
	row, err := r.queries.GetTransaction(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, false, nil
	}
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("get transaction: %w", err)
	}
	t, err := toTransaction(row)
	if err != nil {
		return core.Transaction{}, false, err
	}
	return t, true, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx, ListTransactionsParams{
		UserID:    f.UserID,
		StartDate: f.Range.Start.String(),
		EndDate:   f.Range.End.String(),
		Category:  f.CategoryName(),
		Limit:     f.Limit,
		Offset:    f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteRepository) Summary(ctx context.Context, userID int64, dr core.DateRange) (core.Summary, error) {
	row, err := r.queries.Summary(ctx, userID, dr.Start.String(), dr.End.String())
	if err != nil {
		return core.Summary{}, fmt.Errorf("get summary: %w", err)
	}
	return core.NewSummary(row.IncomeCents, row.ExpenseCents, row.Count), nil
}

func (r *SQLiteRepository) ExpenseByCategory(ctx context.Context, userID int64, dr core.DateRange, limit int) ([]core.CategoryAmount, error) {
	rows, err := r.queries.ExpenseByCategory(ctx, userID, dr.Start.String(), dr.End.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("get expense by category: %w", err)
	}
	out := make([]core.CategoryAmount, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.CategoryAmount{Category: row.Category, Amount: core.FromCents(row.TotalCents)})
	}
	return out, nil
}

// MonthlyTotals returns per-month cent sums keyed by YYYY-MM for dates in [start, end].
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, userID int64, start, end core.Date) (map[string]core.MonthTotals, error) {
	rows, err := r.queries.MonthlyTotals(ctx, userID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("get monthly totals: %w", err)
	}
	totals := make(map[string]core.MonthTotals, len(rows))
	for _, row := range rows {
		m, ok := totals[row.Month]
		if !ok {
			m = core.MonthTotals{}
			totals[row.Month] = m
		}
		m[core.TransactionType(row.Type)] += row.TotalCents
	}
	return totals, nil
}

// Categories lists category names for the user; an empty typ returns both kinds.
func (r *SQLiteRepository) Categories(ctx context.Context, userID int64, typ core.TransactionType) ([]string, error) {
	names, err := r.queries.ListCategories(ctx, userID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return names, nil
}

// DeleteTransaction removes the row only if it belongs to userID.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id int64) (bool, error) {
	n, err := r.queries.DeleteTransaction(ctx, userID, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toTransaction(row TransactionRow) (core.Transaction, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: stored date %q: %w", row.ID, row.Date, err)
	}
	return core.Transaction{
		ID:          row.ID,
		UserID:      row.UserID,
		Type:        core.TransactionType(row.Type),
		Amount:      core.RoundAmount(decimal.NewFromFloat(row.Amount)),
		Category:    row.Category,
		Description: row.Description,
		Date:        date,
		CreatedAt:   parseTimestamp(row.CreatedAt),
		UpdatedAt:   parseTimestamp(row.UpdatedAt),
	}, nil
}

// parseTimestamp accepts both the millisecond layout written by the schema
// defaults and SQLite's CURRENT_TIMESTAMP format.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timestampLayout, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
