// Package memorycache is an in-process TTL cache for reconciliation
// results with a bounded number of entries.
package memorycache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/entitle/entitlement"
)

// DefaultMaxEntries bounds the cache when no limit is given.
const DefaultMaxEntries = 10000

// compile-time interface check
var _ entitlement.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxEntries caps the number of entries. At capacity the entry with the
// oldest capture time is evicted on insert. Zero or negative means the
// default.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.max = n
		}
	}
}

// Cache holds entries in a mutex-guarded map. Expired entries are hidden
// from reads immediately and removed by Sweep.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entitlement.CacheEntry
	max     int
	now     func() time.Time
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entitlement.CacheEntry),
		max:     DefaultMaxEntries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) GetCached(_ context.Context, clientKey string) (*entitlement.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[clientKey]
	if !ok {
		return nil, entitlement.ErrCacheMiss
	}
	if e.IsExpired(c.now()) {
		delete(c.entries, clientKey)
		return nil, entitlement.ErrCacheMiss
	}
	e.Result.Packs = append(e.Result.Packs[:0:0], e.Result.Packs...)
	return &e, nil
}

func (c *Cache) SetCached(_ context.Context, clientKey string, result entitlement.Result, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[clientKey]; !exists && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}

	now := c.now()
	result.Packs = append(result.Packs[:0:0], result.Packs...)
	c.entries[clientKey] = entitlement.CacheEntry{
		Result:     result,
		CapturedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return nil
}

func (c *Cache) Invalidate(_ context.Context, clientKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, clientKey)
	return nil
}

func (c *Cache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if e.IsExpired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.CapturedAt.Before(oldest) {
			oldestKey, oldest, found = k, e.CapturedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
