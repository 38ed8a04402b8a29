// Package memory provides an in-memory record store for tests and
// single-process deployments that do not need durability.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/entitle/entitlement"
	entitlestore "github.com/xraph/entitle/store"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store keeps records in a mutex-guarded map. Records are deep-copied on
// the way in and out so callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*entitlement.Record
	closed  bool
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]*entitlement.Record)}
}

func (s *Store) Load(_ context.Context) (map[string]*entitlement.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, entitlement.ErrStoreClosed
	}
	out := make(map[string]*entitlement.Record, len(s.records))
	for k, r := range s.records {
		out[k] = r.Clone()
	}
	return out, nil
}

func (s *Store) Save(_ context.Context, records map[string]*entitlement.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entitlement.ErrStoreClosed
	}
	for k, r := range records {
		if r == nil {
			continue
		}
		s.records[k] = r.Clone()
	}
	return nil
}

func (s *Store) Get(_ context.Context, clientKey string) (*entitlement.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, entitlement.ErrStoreClosed
	}
	r, ok := s.records[clientKey]
	if !ok {
		return nil, entitlement.ErrNotFound
	}
	return r.Clone(), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return entitlement.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
