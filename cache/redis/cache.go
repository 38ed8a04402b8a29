// Package rediscache stores reconciliation results in Redis so several
// engine processes share one cache. Expiry is left to Redis key TTLs.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "entitle:restore:"

// compile-time interface check
var _ entitlement.Cache = (*Cache)(nil)

// Cache implements entitlement.Cache on a Redis client.
type Cache struct {
	rdb   redis.UniversalClient
	keyNS string
	now   func() time.Time
}

// New returns a cache using rdb. An empty prefix means DefaultKeyPrefix.
func New(rdb redis.UniversalClient, keyPrefix string) *Cache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Cache{rdb: rdb, keyNS: keyPrefix, now: time.Now}
}

func (c *Cache) key(clientKey string) string { return c.keyNS + clientKey }

func (c *Cache) GetCached(ctx context.Context, clientKey string) (*entitlement.CacheEntry, error) {
	val, err := c.rdb.Get(ctx, c.key(clientKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entitlement.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("entitle/redis: get: %w", err)
	}

	var e entitlement.CacheEntry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("entitle/redis: decode: %w", err)
	}
	if e.Result.Packs == nil {
		e.Result.Packs = []pack.ID{}
	}
	return &e, nil
}

func (c *Cache) SetCached(ctx context.Context, clientKey string, result entitlement.Result, ttl time.Duration) error {
	now := c.now()
	b, err := json.Marshal(entitlement.CacheEntry{
		Result:     result,
		CapturedAt: now,
		ExpiresAt:  now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("entitle/redis: encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(clientKey), b, ttl).Err(); err != nil {
		return fmt.Errorf("entitle/redis: set: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, clientKey string) error {
	if err := c.rdb.Del(ctx, c.key(clientKey)).Err(); err != nil {
		return fmt.Errorf("entitle/redis: del: %w", err)
	}
	return nil
}

// Sweep is a no-op; Redis expires keys itself.
func (c *Cache) Sweep(_ context.Context) (int, error) { return 0, nil }
