package worker

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/log"
	"financeflow/internal/services"
	"financeflow/internal/sheets/memory"
	"financeflow/internal/storage"
)

func newLedger(t *testing.T) *services.LedgerService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	return services.NewLedgerService(repo,
		services.WithClock(func() time.Time { return now }),
		services.WithLogger(quiet()))
}

func quiet() *log.Logger { return log.New(log.Config{Output: io.Discard}) }

func add(t *testing.T, l *services.LedgerService, typ, amount, category string) core.Transaction {
	t.Helper()
	tx, err := l.AddTransaction(context.Background(), services.AddTransactionParams{
		UserID:   core.DefaultUserID,
		Type:     typ,
		Amount:   decimal.RequireFromString(amount),
		Category: category,
		Date:     core.NewDate(2025, 3, 10),
	})
	require.NoError(t, err)
	return tx
}

func TestHandleCreatedEvent(t *testing.T) {
	ledger := newLedger(t)
	appender := memory.New()
	dir := t.TempDir()
	w := NewReportWorker(ledger, appender, dir, 3, quiet())

	tx := add(t, ledger, "Expense", "42.10", "Food")
	err := w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(amqp.EventCreated, core.DefaultUserID, tx.ID))
	require.NoError(t, err)

	rows := appender.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"2025-03-10", "Expense", "Food", "42.10", "", tx.ID}, rows[0])

	for _, name := range []string{ExpensesSnapshot, TrendSnapshot} {
		data, err := os.ReadFile(filepath.Join(w.SnapshotDir(core.DefaultUserID), name))
		require.NoError(t, err, name)
		assert.Equal(t, "\x89PNG", string(data[:4]), name)
	}
	assert.Equal(t, Stats{Processed: 1, Synced: 1}, w.Stats())
}

func TestHandleDeletedEventRemovesStaleSnapshots(t *testing.T) {
	ledger := newLedger(t)
	w := NewReportWorker(ledger, memory.New(), t.TempDir(), 3, quiet())
	ctx := context.Background()

	tx := add(t, ledger, "Expense", "5", "Food")
	require.NoError(t, w.RefreshSnapshots(ctx, core.DefaultUserID))
	pie := filepath.Join(w.SnapshotDir(core.DefaultUserID), ExpensesSnapshot)
	require.FileExists(t, pie)

	deleted, err := ledger.DeleteTransaction(ctx, core.DefaultUserID, tx.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	require.NoError(t, w.HandleTransactionEvent(ctx, amqp.NewTransactionEvent(amqp.EventDeleted, core.DefaultUserID, tx.ID)))
	assert.NoFileExists(t, pie)
	assert.NoFileExists(t, filepath.Join(w.SnapshotDir(core.DefaultUserID), TrendSnapshot))
}

func TestHandleCreatedEventForMissingTransaction(t *testing.T) {
	appender := memory.New()
	w := NewReportWorker(newLedger(t), appender, "", 3, quiet())

	err := w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(amqp.EventCreated, core.DefaultUserID, 99))
	require.NoError(t, err)
	assert.Empty(t, appender.Rows())
}

func TestHandleCreatedEventAppendFailureIsRetried(t *testing.T) {
	ledger := newLedger(t)
	appender := memory.New()
	appender.FailWith(errors.New("quota exceeded"))
	w := NewReportWorker(ledger, appender, "", 3, quiet())

	tx := add(t, ledger, "Income", "100", "Salary")
	err := w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(amqp.EventCreated, core.DefaultUserID, tx.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, int64(1), w.Stats().Failed)

	appender.FailWith(nil)
	require.NoError(t, w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(amqp.EventCreated, core.DefaultUserID, tx.ID)))
	assert.Len(t, appender.Rows(), 1)
}

func TestWorkerWithoutAppenderOrReportsDir(t *testing.T) {
	ledger := newLedger(t)
	w := NewReportWorker(ledger, nil, "", 0, nil)
	tx := add(t, ledger, "Expense", "1", "Food")

	require.NoError(t, w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(amqp.EventCreated, core.DefaultUserID, tx.ID)))
	assert.Equal(t, int64(0), w.Stats().Synced)
	assert.Equal(t, 12, w.trendMonths)
}

type flakyTrendLedger struct {
	*services.LedgerService
	failures int
}

func (l *flakyTrendLedger) GetMonthlyTrend(ctx context.Context, userID int64, months int) ([]core.MonthTrend, error) {
	if l.failures > 0 {
		l.failures--
		return nil, errors.New("database is locked")
	}
	return l.LedgerService.GetMonthlyTrend(ctx, userID, months)
}

func TestSnapshotFailureAfterMirrorDoesNotDuplicateRow(t *testing.T) {
	base := newLedger(t)
	ledger := &flakyTrendLedger{LedgerService: base, failures: 1}
	appender := memory.New()
	w := NewReportWorker(ledger, appender, t.TempDir(), 3, quiet())
	ctx := context.Background()

	tx := add(t, base, "Expense", "8", "Food")
	evt := amqp.NewTransactionEvent(amqp.EventCreated, core.DefaultUserID, tx.ID)

	require.NoError(t, w.HandleTransactionEvent(ctx, evt))
	assert.Equal(t, int64(1), w.Stats().Failed)

	// a duplicate delivery of the same event
	require.NoError(t, w.HandleTransactionEvent(ctx, evt))
	assert.Len(t, appender.Rows(), 1)
	assert.Equal(t, int64(1), w.Stats().Synced)
}

func TestSnapshotFailureWithoutMirrorIsRetried(t *testing.T) {
	base := newLedger(t)
	ledger := &flakyTrendLedger{LedgerService: base, failures: 1}
	w := NewReportWorker(ledger, memory.New(), t.TempDir(), 3, quiet())

	err := w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(amqp.EventDeleted, core.DefaultUserID, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}
