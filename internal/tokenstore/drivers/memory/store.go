// Package memory is a process-local session backend, used in tests and when
// no persistence is configured.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aussiebroadwan/loyalty/internal/tokenstore"
)

type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ tokenstore.Backend = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, tokenstore.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *Store) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(value)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Close() error { return nil }
