package entitlement

import (
	"context"
	"time"
)

// Store persists records keyed by client key.
//
// Save merges the given records into the durable mapping: each supplied
// record replaces the stored one for its key and nothing is ever deleted.
// Passing the full mapping and passing a single record are both valid.
type Store interface {
	Load(ctx context.Context) (map[string]*Record, error)
	Save(ctx context.Context, records map[string]*Record) error

	// Get returns ErrNotFound when no record exists for the key.
	Get(ctx context.Context, clientKey string) (*Record, error)
}

// Cache memoizes reconciliation results, including empty ones.
type Cache interface {
	// GetCached returns ErrCacheMiss when no unexpired entry exists.
	GetCached(ctx context.Context, clientKey string) (*CacheEntry, error)
	SetCached(ctx context.Context, clientKey string, result Result, ttl time.Duration) error
	Invalidate(ctx context.Context, clientKey string) error

	// Sweep drops expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}
