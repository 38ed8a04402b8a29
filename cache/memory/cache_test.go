package memorycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func TestSetAndGet(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.GetCached(ctx, "k")
	require.ErrorIs(t, err, entitlement.ErrCacheMiss)

	res := entitlement.Result{Packs: []pack.ID{"gamer"}, SubscriptionActive: true}
	require.NoError(t, c.SetCached(ctx, "k", res, time.Minute))

	e, err := c.GetCached(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, res, e.Result)
	assert.Equal(t, clock.Now(), e.CapturedAt)
	assert.Equal(t, clock.Now().Add(time.Minute), e.ExpiresAt)
}

func TestEmptyResultIsCached(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.SetCached(ctx, "k", entitlement.EmptyResult(), time.Minute))

	e, err := c.GetCached(ctx, "k")
	require.NoError(t, err)
	assert.True(t, e.Result.IsEmpty())
}

func TestExpiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.SetCached(ctx, "k", entitlement.EmptyResult(), time.Minute))

	clock.Advance(59 * time.Second)
	_, err := c.GetCached(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.GetCached(ctx, "k")
	require.ErrorIs(t, err, entitlement.ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestSweep(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.SetCached(ctx, "short", entitlement.EmptyResult(), time.Minute))
	require.NoError(t, c.SetCached(ctx, "long", entitlement.EmptyResult(), time.Hour))

	clock.Advance(2 * time.Minute)
	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.SetCached(ctx, "k", entitlement.EmptyResult(), time.Minute))
	require.NoError(t, c.Invalidate(ctx, "k"))
	require.NoError(t, c.Invalidate(ctx, "absent"))

	_, err := c.GetCached(ctx, "k")
	require.ErrorIs(t, err, entitlement.ErrCacheMiss)
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now), WithMaxEntries(2))
	ctx := context.Background()

	require.NoError(t, c.SetCached(ctx, "a", entitlement.EmptyResult(), time.Hour))
	clock.Advance(time.Second)
	require.NoError(t, c.SetCached(ctx, "b", entitlement.EmptyResult(), time.Hour))
	clock.Advance(time.Second)
	require.NoError(t, c.SetCached(ctx, "c", entitlement.EmptyResult(), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.GetCached(ctx, "a")
	require.ErrorIs(t, err, entitlement.ErrCacheMiss)

	// Overwriting an existing key never evicts.
	require.NoError(t, c.SetCached(ctx, "b", entitlement.EmptyResult(), time.Hour))
	assert.Equal(t, 2, c.Len())
	_, err = c.GetCached(ctx, "c")
	require.NoError(t, err)
}

func TestReturnedEntryIsACopy(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.SetCached(ctx, "k", entitlement.Result{Packs: []pack.ID{"gamer"}}, time.Minute))

	e, err := c.GetCached(ctx, "k")
	require.NoError(t, err)
	e.Result.Packs[0] = "mutated"

	again, err := c.GetCached(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []pack.ID{"gamer"}, again.Result.Packs)
}
