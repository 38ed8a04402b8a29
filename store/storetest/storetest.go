// Package storetest holds the behavioural suite every record backend must
// pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/store"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("EmptyLoad", func(t *testing.T) {
		s := newStore(t)
		all, err := s.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "ck_missing")
		require.ErrorIs(t, err, entitlement.ErrNotFound)
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := record([]pack.ID{"date", "gamer"}, true)

		require.NoError(t, s.Save(ctx, map[string]*entitlement.Record{"k1": want}))

		got, err := s.Get(ctx, "k1")
		require.NoError(t, err)
		assertRecord(t, want, got)
	})

	t.Run("SaveMergesKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := record([]pack.ID{"gamer"}, false)
		b := record(nil, true)

		require.NoError(t, s.Save(ctx, map[string]*entitlement.Record{"a": a}))
		require.NoError(t, s.Save(ctx, map[string]*entitlement.Record{"b": b}))

		all, err := s.Load(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assertRecord(t, a, all["a"])
		assertRecord(t, b, all["b"])
	})

	t.Run("SaveReplacesRecord", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, map[string]*entitlement.Record{"k": record([]pack.ID{"gamer"}, false)}))
		updated := record([]pack.ID{"date", "gamer"}, true)
		updated.Bundle = true
		require.NoError(t, s.Save(ctx, map[string]*entitlement.Record{"k": updated}))

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assertRecord(t, updated, got)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, map[string]*entitlement.Record{"k": record([]pack.ID{"gamer"}, false)}))

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		got.Packs[0] = "mutated"

		again, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []pack.ID{"gamer"}, again.Packs)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
	})
}

func record(packs []pack.ID, sub bool) *entitlement.Record {
	return &entitlement.Record{
		Packs:              packs,
		SubscriptionActive: sub,
		LastUpdated:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func assertRecord(t *testing.T, want, got *entitlement.Record) {
	t.Helper()
	require.NotNil(t, got)
	opts := cmp.Options{
		cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}
