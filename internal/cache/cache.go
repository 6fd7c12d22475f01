package cache

import (
	"sync"
	"time"

	"financeflow/internal/log"
)

// Cache is the read side used by report handlers.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Store is a cache the Manager can expire and invalidate.
type Store interface {
	CleanExpired() int
	DeletePrefix(prefix string) int
	Purge()
}

// Manager owns a set of caches: it expires entries periodically and drops
// a user's cached reports when their ledger changes.
type Manager struct {
	mu          sync.Mutex
	caches      []Store
	logger      *log.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default(log.ComponentCache)
	}
	return &Manager{
		logger:      logger.WithComponent(log.ComponentCache),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

func (m *Manager) Register(c Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

func (m *Manager) stores() []Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Store(nil), m.caches...)
}

// InvalidatePrefix drops matching keys from every registered cache.
func (m *Manager) InvalidatePrefix(prefix string) int {
	n := 0
	for _, c := range m.stores() {
		n += c.DeletePrefix(prefix)
	}
	if n > 0 {
		m.logger.Debug("Cache entries invalidated", "prefix", prefix, "count", n)
	}
	return n
}

func (m *Manager) Purge() {
	for _, c := range m.stores() {
		c.Purge()
	}
}

// StartCleanup expires entries every interval until Stop is called.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleaned := 0
			for _, c := range m.stores() {
				cleaned += c.CleanExpired()
			}
			if cleaned > 0 {
				m.logger.Debug("Expired cache entries removed", "count", cleaned)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.started = false
	m.mu.Unlock()
	if started {
		close(m.stopCleanup)
		<-m.cleanupDone
	}
}
