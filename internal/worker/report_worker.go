package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"financeflow/internal/amqp"
	"financeflow/internal/charts"
	"financeflow/internal/core"
	"financeflow/internal/log"
	"financeflow/internal/sheets"
)

const (
	ExpensesSnapshot = "expenses.png"
	TrendSnapshot    = "trend.png"
)

// Ledger is the read side of the ledger the worker needs.
type Ledger interface {
	Today() core.Date
	GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, bool, error)
	GetExpenseByCategory(ctx context.Context, userID int64, r core.DateRange, limit int) ([]core.CategoryAmount, error)
	GetMonthlyTrend(ctx context.Context, userID int64, months int) ([]core.MonthTrend, error)
}

// ReportWorker reacts to transaction events: new transactions are mirrored to a
// spreadsheet and every event refreshes the user's chart snapshots.
type ReportWorker struct {
	ledger      Ledger
	appender    sheets.TransactionAppender
	reportsDir  string
	trendMonths int
	logger      *log.Logger

	mu       sync.Mutex
	mirrored map[int64]struct{}

	processed int64
	synced    int64
	failed    int64
}

type Stats struct {
	Processed int64
	Synced    int64
	Failed    int64
}

// NewReportWorker builds a worker. A nil appender disables spreadsheet sync and
// an empty reportsDir disables snapshots.
func NewReportWorker(ledger Ledger, appender sheets.TransactionAppender, reportsDir string, trendMonths int, logger *log.Logger) *ReportWorker {
	if trendMonths <= 0 {
		trendMonths = 12
	}
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &ReportWorker{
		ledger:      ledger,
		appender:    appender,
		reportsDir:  reportsDir,
		trendMonths: trendMonths,
		logger:      logger.WithComponent(log.ComponentWorker),
		mirrored:    make(map[int64]struct{}),
	}
}

// HandleTransactionEvent processes one event. A returned error asks the broker
// to redeliver it.
func (w *ReportWorker) HandleTransactionEvent(ctx context.Context, evt *amqp.TransactionEvent) error {
	atomic.AddInt64(&w.processed, 1)
	logger := w.logger.With(
		log.FieldUserID, evt.UserID,
		log.FieldTransactionID, evt.TransactionID,
		"kind", evt.Kind)

	appended := false
	if evt.Kind == amqp.EventCreated && w.appender != nil {
		if err := w.syncTransaction(ctx, evt); err != nil {
			atomic.AddInt64(&w.failed, 1)
			logger.ErrorContext(ctx, "Failed to mirror transaction", log.FieldError, err)
			return err
		}
		appended = true
	}

	if err := w.RefreshSnapshots(ctx, evt.UserID); err != nil {
		atomic.AddInt64(&w.failed, 1)
		logger.ErrorContext(ctx, "Failed to refresh chart snapshots", log.FieldError, err)
		// The row is already in the sheet; a redelivery must not append it again.
		if appended {
			return nil
		}
		return err
	}

	logger.DebugContext(ctx, "Transaction event processed")
	return nil
}

func (w *ReportWorker) syncTransaction(ctx context.Context, evt *amqp.TransactionEvent) error {
	if w.isMirrored(evt.TransactionID) {
		w.logger.DebugContext(ctx, "Transaction already mirrored, skipping",
			log.FieldTransactionID, evt.TransactionID)
		return nil
	}
	t, found, err := w.ledger.GetTransaction(ctx, evt.UserID, evt.TransactionID)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	if !found {
		// deleted before we got to it
		w.logger.WarnContext(ctx, "Transaction no longer exists, skipping sync",
			log.FieldTransactionID, evt.TransactionID,
			log.FieldErrorType, log.ErrorTypeNotFound)
		return nil
	}

	ref, err := w.appender.AppendTransaction(ctx, t)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	w.markMirrored(t.ID)
	atomic.AddInt64(&w.synced, 1)
	w.logger.InfoContext(ctx, "Transaction mirrored to sheet",
		log.NewFields().
			WithOperation(log.OpAppend).
			WithTransaction(t.ID, t.Type.String(), t.Amount, t.Category, t.Date.String()).
			ToSlice()...)
	w.logger.DebugContext(ctx, "Sheet row written", "sheets_ref", ref)
	return nil
}

func (w *ReportWorker) isMirrored(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.mirrored[id]
	return ok
}

func (w *ReportWorker) markMirrored(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mirrored[id] = struct{}{}
}

// SnapshotDir is where the snapshots of userID are written.
func (w *ReportWorker) SnapshotDir(userID int64) string {
	return filepath.Join(w.reportsDir, fmt.Sprintf("user_%d", userID))
}

// RefreshSnapshots re-renders the month-to-date expense pie and the monthly
// trend for userID. A chart with nothing to draw removes its stale file.
func (w *ReportWorker) RefreshSnapshots(ctx context.Context, userID int64) error {
	if w.reportsDir == "" {
		return nil
	}
	dir := w.SnapshotDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	today := w.ledger.Today()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := w.ledger.GetExpenseByCategory(gctx, userID,
			core.DateRange{Start: today.FirstOfMonth(), End: today}, 0)
		if err != nil {
			return fmt.Errorf("expense breakdown: %w", err)
		}
		return writeSnapshot(filepath.Join(dir, ExpensesSnapshot), func(buf *bytes.Buffer) error {
			return charts.RenderExpensePie(buf, items)
		})
	})
	g.Go(func() error {
		trend, err := w.ledger.GetMonthlyTrend(gctx, userID, w.trendMonths)
		if err != nil {
			return fmt.Errorf("monthly trend: %w", err)
		}
		return writeSnapshot(filepath.Join(dir, TrendSnapshot), func(buf *bytes.Buffer) error {
			return charts.RenderTrendLine(buf, trend)
		})
	})
	return g.Wait()
}

// writeSnapshot renders into a temp file and renames it over path so readers
// never see a partial image.
func writeSnapshot(path string, draw func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := draw(&buf); err != nil {
		if errors.Is(err, charts.ErrNoData) {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("remove stale %s: %w", filepath.Base(path), rmErr)
			}
			return nil
		}
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := buf.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (w *ReportWorker) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&w.processed),
		Synced:    atomic.LoadInt64(&w.synced),
		Failed:    atomic.LoadInt64(&w.failed),
	}
}
