package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, evt *amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *evt)
	return p.err
}

// brokenStore fails every call, to exercise the storage error policy.
type brokenStore struct{}

var errDisk = errors.New("disk I/O error")

func (brokenStore) Ping(context.Context) error { return errDisk }
func (brokenStore) InsertTransaction(context.Context, core.Transaction) (int64, error) {
	return 0, errDisk
}
func (brokenStore) EnsureCategory(context.Context, int64, string, core.TransactionType) (bool, error) {
	return false, errDisk
}
func (brokenStore) GetTransaction(context.Context, int64, int64) (core.Transaction, bool, error) {
	return core.Transaction{}, false, errDisk
}
func (brokenStore) ListTransactions(context.Context, core.TransactionFilter) ([]core.Transaction, error) {
	return nil, errDisk
}
func (brokenStore) Summary(context.Context, int64, core.DateRange) (core.Summary, error) {
	return core.Summary{}, errDisk
}
func (brokenStore) ExpenseByCategory(context.Context, int64, core.DateRange, int) ([]core.CategoryAmount, error) {
	return nil, errDisk
}
func (brokenStore) MonthlyTotals(context.Context, int64, core.Date, core.Date) (map[string]core.MonthTotals, error) {
	return nil, errDisk
}
func (brokenStore) Categories(context.Context, int64, core.TransactionType) ([]string, error) {
	return nil, errDisk
}
func (brokenStore) DeleteTransaction(context.Context, int64, int64) (bool, error) {
	return false, errDisk
}

func newTestService(t *testing.T, opts ...Option) *LedgerService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewLedgerService(repo, opts...)
}

func add(t *testing.T, s *LedgerService, typ, amount, category, date string) core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	tx, err := s.AddTransaction(context.Background(), AddTransactionParams{
		UserID:   core.DefaultUserID,
		Type:     typ,
		Amount:   decimal.RequireFromString(amount),
		Category: category,
		Date:     d,
	})
	require.NoError(t, err)
	return tx
}

func TestAddTransactionNormalizesAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	tx := add(t, s, "expense", "19.999", "Books", "2025-03-15")
	assert.Equal(t, core.Expense, tx.Type)
	assert.Equal(t, "20", tx.Amount.String())
	assert.Positive(t, tx.ID)

	cats, err := s.GetAllCategories(ctx, core.DefaultUserID, "Expense")
	require.NoError(t, err)
	assert.Contains(t, cats, "Books")

	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventCreated, pub.events[0].Kind)
	assert.Equal(t, tx.ID, pub.events[0].TransactionID)
}

func TestAddTransactionValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.AddTransaction(ctx, AddTransactionParams{
		UserID: 1, Type: "Expense", Amount: decimal.NewFromInt(5), Category: "Food",
		Date: core.NewDate(2025, 3, 16),
	})
	assert.ErrorIs(t, err, core.ErrFutureDate)
	assert.True(t, core.IsValidation(err))

	_, err = s.AddTransaction(ctx, AddTransactionParams{
		UserID: 1, Type: "Transfer", Amount: decimal.NewFromInt(5), Category: "Food",
		Date: core.NewDate(2025, 3, 1),
	})
	assert.ErrorIs(t, err, core.ErrInvalidType)

	for _, amount := range []string{"0", "-1", "0.001"} {
		_, err = s.AddTransaction(ctx, AddTransactionParams{
			UserID: 1, Type: "Expense", Amount: decimal.RequireFromString(amount), Category: "Food",
			Date: core.NewDate(2025, 3, 1),
		})
		assert.ErrorIs(t, err, core.ErrInvalidAmount, amount)
	}

	txs, err := s.GetTransactions(ctx, core.TransactionFilter{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, txs, "rejected input must not be stored")
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := newTestService(t, WithPublisher(pub))

	tx := add(t, s, "Income", "10", "Salary", "2025-03-01")
	assert.Positive(t, tx.ID)
}

func TestSummaryBalanceIdentity(t *testing.T) {
	s := newTestService(t)
	add(t, s, "Income", "0.10", "Gift", "2025-03-01")
	add(t, s, "Income", "0.20", "Gift", "2025-03-02")
	add(t, s, "Expense", "0.30", "Food", "2025-03-03")

	sum, err := s.GetSummary(context.Background(), core.DefaultUserID, core.DateRange{})
	require.NoError(t, err)
	assert.True(t, sum.Balance.IsZero(), "0.1+0.2-0.3 must be exactly zero, got %s", sum.Balance)
	assert.EqualValues(t, 3, sum.TransactionCount)
}

func TestMonthlyTrend(t *testing.T) {
	s := newTestService(t)
	add(t, s, "Income", "100", "Salary", "2025-01-31")
	add(t, s, "Expense", "40", "Rent", "2025-03-01")
	add(t, s, "Expense", "5", "Food", "2024-12-31")

	trend, err := s.GetMonthlyTrend(context.Background(), core.DefaultUserID, 2)
	require.NoError(t, err)
	require.Len(t, trend, 3)
	assert.Equal(t, []string{"2025-01", "2025-02", "2025-03"}, []string{trend[0].Month, trend[1].Month, trend[2].Month})
	assert.Equal(t, "100", trend[0].Income.String())
	assert.True(t, trend[1].Income.IsZero() && trend[1].Expense.IsZero())
	assert.Equal(t, "-40", trend[2].Balance.String())

	_, err = s.GetMonthlyTrend(context.Background(), core.DefaultUserID, 0)
	assert.ErrorIs(t, err, core.ErrInvalidMonths)
}

func TestDeleteTransaction(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestService(t, WithPublisher(pub))
	ctx := context.Background()
	tx := add(t, s, "Expense", "3", "Food", "2025-03-01")

	ok, err := s.DeleteTransaction(ctx, core.DefaultUserID, tx.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteTransaction(ctx, core.DefaultUserID, tx.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DeleteTransaction(ctx, core.DefaultUserID, 0)
	assert.ErrorIs(t, err, core.ErrInvalidTransactionID)

	require.Len(t, pub.events, 2)
	assert.Equal(t, amqp.EventDeleted, pub.events[1].Kind)
}

func TestEnsureCategory(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.EnsureCategory(ctx, core.DefaultUserID, "Pets", "expense")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureCategory(ctx, core.DefaultUserID, "Pets", "Expense")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.EnsureCategory(ctx, core.DefaultUserID, "  ", "Expense")
	assert.ErrorIs(t, err, core.ErrEmptyCategory)
}

func TestStorageErrorPolicy(t *testing.T) {
	s := NewLedgerService(brokenStore{}, WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	// absorbed
	sum, err := s.GetSummary(ctx, 1, core.DateRange{})
	require.NoError(t, err)
	assert.True(t, sum.Balance.IsZero())

	txs, err := s.GetTransactions(ctx, core.TransactionFilter{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, txs)

	cats, err := s.GetAllCategories(ctx, 1, "")
	require.NoError(t, err)
	assert.Empty(t, cats)

	// propagated
	_, err = s.AddTransaction(ctx, AddTransactionParams{
		UserID: 1, Type: "Income", Amount: decimal.NewFromInt(1), Category: "Gift", Date: core.NewDate(2025, 1, 1),
	})
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.ErrorIs(t, err, errDisk)

	_, err = s.DeleteTransaction(ctx, 1, 1)
	assert.ErrorIs(t, err, core.ErrStorage)

	_, err = s.EnsureCategory(ctx, 1, "X", "Income")
	assert.ErrorIs(t, err, core.ErrStorage)

	_, err = s.GetExpenseByCategory(ctx, 1, core.DateRange{}, 0)
	assert.ErrorIs(t, err, core.ErrStorage)

	_, err = s.GetMonthlyTrend(ctx, 1, 3)
	assert.ErrorIs(t, err, core.ErrStorage)

	assert.ErrorIs(t, s.Ready(ctx), core.ErrStorage)

	// validation still comes first
	_, err = s.GetSummary(ctx, 0, core.DateRange{})
	assert.ErrorIs(t, err, core.ErrInvalidUserID)
}
