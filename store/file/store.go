// Package file persists the full record mapping as one JSON document,
// {clientKey: record}, replaced atomically on every save.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/xraph/entitle/entitlement"
	entitlestore "github.com/xraph/entitle/store"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store is a single-file JSON backend. Writes go to a temp file in the same
// directory which is then renamed over the target.
type Store struct {
	path string

	mu     sync.Mutex
	closed bool
}

// New returns a store backed by the file at path. The file need not exist.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(_ context.Context) (map[string]*entitlement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, entitlement.ErrStoreClosed
	}
	return s.read()
}

func (s *Store) Save(_ context.Context, records map[string]*entitlement.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entitlement.ErrStoreClosed
	}
	current, err := s.read()
	if err != nil {
		return err
	}
	for k, r := range records {
		if r == nil {
			continue
		}
		current[k] = r
	}
	return s.write(current)
}

func (s *Store) Get(_ context.Context, clientKey string) (*entitlement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, entitlement.ErrStoreClosed
	}
	all, err := s.read()
	if err != nil {
		return nil, err
	}
	r, ok := all[clientKey]
	if !ok {
		return nil, entitlement.ErrNotFound
	}
	return r, nil
}

// Migrate creates the parent directory and an empty mapping when the file
// is missing.
func (s *Store) Migrate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("entitle/file: create dir: %w", err)
	}
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return s.write(map[string]*entitlement.Record{})
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entitlement.ErrStoreClosed
	}
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("entitle/file: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// read returns an empty mapping for a missing or empty file.
func (s *Store) read() (map[string]*entitlement.Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*entitlement.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entitle/file: read: %w", err)
	}
	out := map[string]*entitlement.Record{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("entitle/file: decode %s: %w", s.path, err)
	}
	for k, r := range out {
		if r == nil {
			delete(out, k)
			continue
		}
		r.Normalize()
	}
	return out, nil
}

func (s *Store) write(records map[string]*entitlement.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("entitle/file: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("entitle/file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("entitle/file: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("entitle/file: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("entitle/file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("entitle/file: rename: %w", err)
	}
	return nil
}
