// Package memory is an in-process blob store used by tests and the memory
// storage backend.
package memory

import (
	"context"
	"sort"
	"sync"
)

type Store struct {
	mu    sync.RWMutex
	blobs map[string]map[string][]byte
}

func New() *Store {
	return &Store{blobs: map[string]map[string][]byte{}}
}

func (s *Store) SaveBlobs(_ context.Context, namespace string, blobs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.blobs[namespace]
	if ns == nil {
		ns = map[string][]byte{}
		s.blobs[namespace] = ns
	}
	for k, v := range blobs {
		ns[k] = append([]byte(nil), v...)
	}
	return nil
}

func (s *Store) LoadBlobs(_ context.Context, namespace string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.blobs[namespace]))
	for k, v := range s.blobs[namespace] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (s *Store) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, namespace)
	return nil
}

func (s *Store) Namespaces(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blobs))
	for ns := range s.blobs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
