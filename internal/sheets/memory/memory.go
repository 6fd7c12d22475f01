package memory

import (
	"context"
	"fmt"
	"sync"

	"financeflow/internal/core"
	ports "financeflow/internal/sheets"
)

// Store is an in-process TransactionAppender. It keeps rows in append order
// and can be made to fail for exercising retry paths.
type Store struct {
	mu   sync.Mutex
	rows [][]any
	err  error
}

var _ ports.TransactionAppender = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, t core.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.rows = append(s.rows, ports.Row(t))
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// FailWith makes subsequent appends return err; nil restores normal behavior.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Rows returns a copy of every appended row.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	copy(out, s.rows)
	return out
}
