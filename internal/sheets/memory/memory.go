// Package memory is an in-process ledger mirror for tests and for running
// the worker without a spreadsheet.
package memory

import (
	"context"
	"sort"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

var (
	_ sheets.LedgerMirror = (*Store)(nil)
	_ sheets.LedgerReader = (*Store)(nil)
)

type Store struct {
	mu   sync.Mutex
	rows map[string]map[string]core.Tx
}

func New() *Store {
	return &Store{rows: map[string]map[string]core.Tx{}}
}

func (s *Store) Upsert(_ context.Context, namespace string, records []core.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.rows[namespace]
	if ns == nil {
		ns = map[string]core.Tx{}
		s.rows[namespace] = ns
	}
	for _, tx := range records {
		ns[tx.ID] = tx
	}
	return nil
}

func (s *Store) Delete(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.rows[namespace], id)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, namespace string, records []core.Tx) error {
	s.mu.Lock()
	delete(s.rows, namespace)
	s.mu.Unlock()
	return s.Upsert(ctx, namespace, records)
}

// List returns the namespace's rows, newest first.
func (s *Store) List(_ context.Context, namespace string) ([]core.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Tx, 0, len(s.rows[namespace]))
	for _, tx := range s.rows[namespace] {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key() != out[j].Key() {
			return out[i].Key() > out[j].Key()
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
