package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"financeflow/internal/cache"
	"financeflow/internal/core"
	"financeflow/internal/log"
	"financeflow/internal/middleware/ratelimit"
	"financeflow/internal/middleware/security"
	"financeflow/internal/middleware/trace"
	"financeflow/internal/services"
	appweb "financeflow/web"
)

const (
	requestTimeout  = 7 * time.Second
	cleanupInterval = 10 * time.Minute
	historyPageSize = 25
	recentCount     = 10
)

// Ledger is the slice of services.LedgerService the handlers use.
type Ledger interface {
	Today() core.Date
	Ready(ctx context.Context) error
	AddTransaction(ctx context.Context, p services.AddTransactionParams) (core.Transaction, error)
	GetTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
	GetSummary(ctx context.Context, userID int64, r core.DateRange) (core.Summary, error)
	GetExpenseByCategory(ctx context.Context, userID int64, r core.DateRange, limit int) ([]core.CategoryAmount, error)
	GetMonthlyTrend(ctx context.Context, userID int64, months int) ([]core.MonthTrend, error)
	GetAllCategories(ctx context.Context, userID int64, typ string) ([]string, error)
	DeleteTransaction(ctx context.Context, userID, transactionID int64) (bool, error)
}

type Options struct {
	UserID             int64
	TrendMonths        int
	CacheTTL           time.Duration
	RateLimitPerMinute int
	Logger             *log.Logger
}

func (o *Options) setDefaults() {
	if o.UserID <= 0 {
		o.UserID = core.DefaultUserID
	}
	if o.TrendMonths <= 0 {
		o.TrendMonths = 12
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = log.Default(log.ComponentHTTP)
	}
}

// Server serves the dashboard for a single ledger user.
type Server struct {
	http.Server
	ledger      Ledger
	userID      int64
	trendMonths int
	templates   *template.Template
	logger      *log.Logger

	caches          *cache.Manager
	summaryCache    *cache.LRUCache[core.Summary]
	breakdownCache  *cache.LRUCache[[]core.CategoryAmount]
	trendCache      *cache.LRUCache[[]core.MonthTrend]
	categoriesCache *cache.LRUCache[[]string]

	// reportGen is bumped on every write; loads that straddle a bump are not stored.
	genMu     sync.RWMutex
	reportGen uint64

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	transactionsCreated int64
	transactionsDeleted int64
	cacheHits           int64
	cacheMisses         int64
	uptime              time.Time
}

// NewServer configures routes, middleware and templates, returning a ready-to-run server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	opts.setDefaults()
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:      ledger,
		userID:      opts.UserID,
		trendMonths: opts.TrendMonths,
		logger:      logger,

		caches:          cache.NewManager(logger),
		summaryCache:    cache.NewLRUCache[core.Summary](100, opts.CacheTTL),
		breakdownCache:  cache.NewLRUCache[[]core.CategoryAmount](100, opts.CacheTTL),
		trendCache:      cache.NewLRUCache[[]core.MonthTrend](20, opts.CacheTTL),
		categoriesCache: cache.NewLRUCache[[]string](20, opts.CacheTTL),

		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),

		appMetrics: &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	s.caches.Register(s.summaryCache)
	s.caches.Register(s.breakdownCache)
	s.caches.Register(s.trendCache)
	s.caches.Register(s.categoriesCache)
	s.caches.StartCleanup(cleanupInterval)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	// UI partials
	mux.HandleFunc("/ui/summary", s.handleSummaryPartial)
	mux.HandleFunc("/ui/transactions", s.handleTransactionsPartial)
	mux.HandleFunc("/ui/categories", s.handleCategoryOptions)
	mux.HandleFunc("/ui/expense-breakdown", s.handleExpenseBreakdown)

	mux.HandleFunc("/transactions", s.handleCreateTransaction)
	mux.HandleFunc("/transactions/delete", s.handleDeleteTransaction)
	mux.Handle("/transactions/export", security.NoStore(http.HandlerFunc(s.handleExport)))

	mux.HandleFunc("/charts/expenses.png", s.handleExpenseChart)
	mux.HandleFunc("/charts/trend.png", s.handleTrendChart)

	mux.HandleFunc("/api/summary", s.handleAPISummary)
	mux.HandleFunc("/api/trend", s.handleAPITrend)
	mux.HandleFunc("/api/expenses-by-category", s.handleAPIExpensesByCategory)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, ratelimit.WritesOnly, s.onRateLimited)(handler)
	handler = s.securityDetector.Middleware(true)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.requestLogger(r).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldErrorType, log.ErrorTypeRateLimit)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again later.").Write(w)
}

// Shutdown stops background cleanup and drains the HTTP server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Run serves on ln until ctx is done, then shuts the server down. It returns
// only once in-flight requests have drained or shutdownTimeout has passed, so
// callers may release the ledger afterwards.
func (s *Server) Run(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ln) }()

	select {
	case err := <-serveErr:
		s.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Shutdown(shutdownCtx)
	if serr := <-serveErr; serr != nil && !errors.Is(serr, http.ErrServerClosed) && err == nil {
		err = serr
	}
	return err
}

// invalidateReports drops every cached report for the user after a write.
func (s *Server) invalidateReports(userID int64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.reportGen++
	s.caches.InvalidatePrefix(userPrefix(userID))
}

func (s *Server) generation() uint64 {
	s.genMu.RLock()
	defer s.genMu.RUnlock()
	return s.reportGen
}

// cached returns the value under key, loading and storing it on a miss.
// Failed loads are not cached, and neither are loads that raced with a write.
func cached[T any](s *Server, c cache.Cache[T], key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return v, nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)
	gen := s.generation()
	v, err := load()
	if err != nil {
		return v, err
	}
	s.genMu.RLock()
	if s.reportGen == gen {
		c.Set(key, v)
	}
	s.genMu.RUnlock()
	return v, nil
}

func (s *Server) summary(ctx context.Context, r core.DateRange) (core.Summary, error) {
	return cached(s, s.summaryCache, rangeKey(s.userID, "summary", r), func() (core.Summary, error) {
		return s.ledger.GetSummary(ctx, s.userID, r)
	})
}

func (s *Server) breakdown(ctx context.Context, r core.DateRange, limit int) ([]core.CategoryAmount, error) {
	return cached(s, s.breakdownCache, rangeKey(s.userID, "breakdown", r, limit), func() ([]core.CategoryAmount, error) {
		return s.ledger.GetExpenseByCategory(ctx, s.userID, r, limit)
	})
}

func (s *Server) trend(ctx context.Context, months int) ([]core.MonthTrend, error) {
	key := rangeKey(s.userID, "trend", core.DateRange{End: s.ledger.Today()}, months)
	return cached(s, s.trendCache, key, func() ([]core.MonthTrend, error) {
		return s.ledger.GetMonthlyTrend(ctx, s.userID, months)
	})
}

func (s *Server) categories(ctx context.Context, typ string) ([]string, error) {
	key := userPrefix(s.userID) + "categories:" + typ
	return cached(s, s.categoriesCache, key, func() ([]string, error) {
		return s.ledger.GetAllCategories(ctx, s.userID, typ)
	})
}
