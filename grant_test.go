package entitle

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/store/memory"
)

func TestGrantIndividualPack(t *testing.T) {
	h := newHarness(t)
	ok, err := h.engine.Grant(context.Background(), "ck_1", "gamer")
	require.NoError(t, err)
	assert.True(t, ok)

	r := h.record(t, "ck_1")
	assert.Equal(t, []pack.ID{"gamer"}, r.Packs)
	assert.False(t, r.SubscriptionActive)
	assert.Equal(t, h.clock.Now(), r.LastUpdated)
}

func TestGrantIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Grant(ctx, "ck_1", "gamer")
	require.NoError(t, err)
	first := h.record(t, "ck_1")

	h.clock.Advance(1)
	_, err = h.engine.Grant(ctx, "ck_1", "gamer")
	require.NoError(t, err)
	second := h.record(t, "ck_1")

	assert.Equal(t, first.Packs, second.Packs)
	assert.Equal(t, first.SubscriptionActive, second.SubscriptionActive)
}

func TestGrantBundle(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Grant(context.Background(), "ck_1", pack.Bundle)
	require.NoError(t, err)

	r := h.record(t, "ck_1")
	assert.Equal(t, testCatalog, r.Packs)
	assert.True(t, r.SubscriptionActive)
	assert.NotContains(t, r.Packs, pack.Bundle)
}

func TestGrantSubscriptionLeavesPacks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Grant(ctx, "ck_1", "date")
	require.NoError(t, err)
	_, err = h.engine.Grant(ctx, "ck_1", pack.Subscription)
	require.NoError(t, err)

	r := h.record(t, "ck_1")
	assert.Equal(t, []pack.ID{"date"}, r.Packs)
	assert.True(t, r.SubscriptionActive)
}

func TestGrantNormalizesAndAcceptsUnknownPacks(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Grant(context.Background(), "ck_1", " Astro ")
	require.NoError(t, err)
	assert.Equal(t, []pack.ID{"astro"}, h.record(t, "ck_1").Packs)
}

func TestGrantRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.engine.Grant(ctx, "  ", "gamer")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, ok)

	_, err = h.engine.Grant(ctx, "ck_1", "")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, h.store.Len())
}

func TestGrantInvalidatesCachedEmptyResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.True(t, h.engine.Restore(ctx, "ck_1").IsEmpty())
	_, err := h.engine.cache.GetCached(ctx, "ck_1")
	require.NoError(t, err, "empty restore result is cached")

	_, err = h.engine.Grant(ctx, "ck_1", "gamer")
	require.NoError(t, err)
	_, err = h.engine.cache.GetCached(ctx, "ck_1")
	require.ErrorIs(t, err, entitlement.ErrCacheMiss)
}

func TestGrantSurfacesPersistenceFailure(t *testing.T) {
	s := &failingStore{Store: memory.New(), failSave: true}
	e := New(s, testResolver(t), WithLogger(discardLogger()))

	ok, err := e.Grant(context.Background(), "ck_1", "gamer")
	require.ErrorIs(t, err, ErrPersistence)
	assert.False(t, ok)
	assert.True(t, IsRetryable(err))
}

func TestGrantDoesNotOverwriteOnReadFailure(t *testing.T) {
	s := &failingStore{Store: memory.New()}
	ctx := context.Background()
	require.NoError(t, s.Store.Save(ctx, map[string]*entitlement.Record{
		"ck_1": {Packs: []pack.ID{"date", "party"}},
	}))
	s.failGet = true
	e := New(s, testResolver(t), WithLogger(discardLogger()))

	_, err := e.Grant(ctx, "ck_1", "gamer")
	require.ErrorIs(t, err, ErrPersistence)

	r, err := s.Store.Get(ctx, "ck_1")
	require.NoError(t, err)
	assert.Equal(t, []pack.ID{"date", "party"}, r.Packs)
}

func TestConcurrentGrantsForOneKeyLoseNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Grant(ctx, "ck_1", pack.ID(fmt.Sprintf("pack-%02d", i)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.record(t, "ck_1").Packs, 40)
	assert.Equal(t, 0, h.engine.locks.size())
}

func TestConcurrentGrantsForDifferentKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Grant(ctx, fmt.Sprintf("ck_%d", i), "gamer")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, h.store.Len())
}
