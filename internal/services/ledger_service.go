package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/log"
)

// Store is the persistence the ledger needs. *storage.SQLiteRepository implements it.
type Store interface {
	Ping(ctx context.Context) error
	InsertTransaction(ctx context.Context, t core.Transaction) (int64, error)
	EnsureCategory(ctx context.Context, userID int64, name string, typ core.TransactionType) (bool, error)
	GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, bool, error)
	ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
	Summary(ctx context.Context, userID int64, r core.DateRange) (core.Summary, error)
	ExpenseByCategory(ctx context.Context, userID int64, r core.DateRange, limit int) ([]core.CategoryAmount, error)
	MonthlyTotals(ctx context.Context, userID int64, start, end core.Date) (map[string]core.MonthTotals, error)
	Categories(ctx context.Context, userID int64, typ core.TransactionType) ([]string, error)
	DeleteTransaction(ctx context.Context, userID, id int64) (bool, error)
}

type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, evt *amqp.TransactionEvent) error
}

// AddTransactionParams is the caller supplied form of a new entry.
type AddTransactionParams = core.TransactionInput

// LedgerService validates requests, runs them against the store and applies
// the error policy: writes and analytics propagate storage failures, while
// the summary, listing and category reads log them and return empty results.
type LedgerService struct {
	store     Store
	publisher EventPublisher
	now       func() time.Time
	logger    *log.Logger
}

type Option func(*LedgerService)

// WithClock sets the source of "today" used to reject future dates and anchor trends.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithPublisher enables created/deleted events after successful writes.
func WithPublisher(p EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l.WithComponent(log.ComponentLedger) }
}

func NewLedgerService(store Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:  store,
		now:    time.Now,
		logger: log.Default(log.ComponentLedger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar date according to the service clock.
func (s *LedgerService) Today() core.Date {
	return core.DateOf(s.now())
}

func (s *LedgerService) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", core.ErrStorage, err)
	}
	return nil
}

// AddTransaction validates and records a transaction, registering its category
// for the user when it is new. The stored transaction is returned with its id.
func (s *LedgerService) AddTransaction(ctx context.Context, p AddTransactionParams) (core.Transaction, error) {
	t, err := p.Normalize(s.Today())
	if err != nil {
		return core.Transaction{}, err
	}

	id, err := s.store.InsertTransaction(ctx, t)
	if err != nil {
		s.logStorageError(ctx, "Failed to add transaction", err, log.OpCreate,
			log.NewFields().WithUser(t.UserID).WithTransaction(0, string(t.Type), t.Amount, t.Category, t.Date.String()))
		return core.Transaction{}, fmt.Errorf("add transaction: %w: %w", core.ErrStorage, err)
	}
	t.ID = id

	s.publish(ctx, amqp.EventCreated, t.UserID, id)
	return t, nil
}

// GetTransactions lists matching transactions, newest first.
func (s *LedgerService) GetTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		s.logStorageError(ctx, "Failed to get transactions", err, log.OpList,
			log.NewFields().WithUser(f.UserID).WithRange(f.Range.Start.String(), f.Range.End.String()))
		return []core.Transaction{}, nil
	}
	return txs, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, bool, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return core.Transaction{}, false, err
	}
	if err := core.ValidateTransactionID(id); err != nil {
		return core.Transaction{}, false, err
	}
	t, found, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("get transaction: %w: %w", core.ErrStorage, err)
	}
	return t, found, nil
}

func (s *LedgerService) GetSummary(ctx context.Context, userID int64, r core.DateRange) (core.Summary, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return core.Summary{}, err
	}
	if err := r.Validate(); err != nil {
		return core.Summary{}, err
	}
	summary, err := s.store.Summary(ctx, userID, r)
	if err != nil {
		s.logStorageError(ctx, "Failed to get summary", err, log.OpSummary,
			log.NewFields().WithUser(userID).WithRange(r.Start.String(), r.End.String()))
		return core.NewSummary(0, 0, 0), nil
	}
	return summary, nil
}

// GetExpenseByCategory totals expenses per category, largest first. A
// non-positive limit returns every category.
func (s *LedgerService) GetExpenseByCategory(ctx context.Context, userID int64, r core.DateRange, limit int) ([]core.CategoryAmount, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	items, err := s.store.ExpenseByCategory(ctx, userID, r, limit)
	if err != nil {
		s.logStorageError(ctx, "Failed to get expenses by category", err, log.OpSummary,
			log.NewFields().WithUser(userID).WithRange(r.Start.String(), r.End.String()))
		return nil, fmt.Errorf("expense by category: %w: %w", core.ErrStorage, err)
	}
	return items, nil
}

// GetMonthlyTrend returns months+1 rows, oldest first, ending with the current month.
func (s *LedgerService) GetMonthlyTrend(ctx context.Context, userID int64, months int) ([]core.MonthTrend, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if months <= 0 {
		return nil, &core.ValidationError{Field: "months", Err: core.ErrInvalidMonths}
	}

	today := s.Today()
	start := core.SpineStart(today, months)
	end := today.FirstOfMonth().Time.AddDate(0, 1, -1)

	totals, err := s.store.MonthlyTotals(ctx, userID, start, core.Date{Time: end})
	if err != nil {
		s.logStorageError(ctx, "Failed to get monthly trend", err, log.OpTrend,
			log.NewFields().WithUser(userID))
		return nil, fmt.Errorf("monthly trend: %w: %w", core.ErrStorage, err)
	}
	return core.BuildTrend(core.MonthSpine(today, months), totals), nil
}

// GetAllCategories lists the user's category names alphabetically. An empty
// typ returns categories of both kinds.
func (s *LedgerService) GetAllCategories(ctx context.Context, userID int64, typ string) ([]string, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return nil, err
	}
	var tt core.TransactionType
	if typ != "" {
		var err error
		if tt, err = core.ParseTransactionType(typ); err != nil {
			return nil, err
		}
	}
	names, err := s.store.Categories(ctx, userID, tt)
	if err != nil {
		s.logStorageError(ctx, "Failed to get categories", err, log.OpList, log.NewFields().WithUser(userID))
		return []string{}, nil
	}
	return names, nil
}

// EnsureCategory registers a category for the user and reports whether it was new.
func (s *LedgerService) EnsureCategory(ctx context.Context, userID int64, name, typ string) (bool, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return false, err
	}
	tt, err := core.ParseTransactionType(typ)
	if err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, &core.ValidationError{Field: "category", Err: core.ErrEmptyCategory}
	}
	created, err := s.store.EnsureCategory(ctx, userID, name, tt)
	if err != nil {
		return false, fmt.Errorf("ensure category: %w: %w", core.ErrStorage, err)
	}
	return created, nil
}

// DeleteTransaction removes a transaction owned by userID. It reports false,
// without error, when there is no such transaction for that user.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, transactionID int64) (bool, error) {
	if err := core.ValidateUserID(userID); err != nil {
		return false, err
	}
	if err := core.ValidateTransactionID(transactionID); err != nil {
		return false, err
	}
	deleted, err := s.store.DeleteTransaction(ctx, userID, transactionID)
	if err != nil {
		s.logStorageError(ctx, "Failed to delete transaction", err, log.OpDelete,
			log.NewFields().WithUser(userID))
		return false, fmt.Errorf("delete transaction: %w: %w", core.ErrStorage, err)
	}
	if deleted {
		s.publish(ctx, amqp.EventDeleted, userID, transactionID)
	}
	return deleted, nil
}

// publish never fails the caller: the write is already committed.
func (s *LedgerService) publish(ctx context.Context, kind amqp.EventKind, userID, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, amqp.NewTransactionEvent(kind, userID, id)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish transaction event",
			log.FieldOperation, log.OpPublish,
			log.FieldTransactionID, id,
			"kind", kind,
			log.FieldError, err)
	}
}

func (s *LedgerService) logStorageError(ctx context.Context, msg string, err error, op string, fields log.LogFields) {
	fields = fields.WithError(err).WithOperation(op).WithErrorType(log.ErrorTypeDatabase)
	s.logger.ErrorContext(ctx, msg, fields.ToSlice()...)
}
