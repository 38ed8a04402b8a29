package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

type recorder struct {
	name string

	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnGrant(_ context.Context, key string, p pack.ID, changed bool) error {
	if changed {
		r.record("grant:" + key + ":" + p.String())
	} else {
		r.record("grant-noop:" + key + ":" + p.String())
	}
	return nil
}

func (r *recorder) OnRestore(_ context.Context, key string, _ entitlement.Result, src RestoreSource) error {
	r.record("restore:" + key + ":" + string(src))
	return nil
}

// grantOnly implements a single hook.
type grantOnly struct{ calls int }

func (g *grantOnly) Name() string { return "grant-only" }
func (g *grantOnly) OnGrant(context.Context, string, pack.ID, bool) error {
	g.calls++
	return errors.New("boom")
}

type slowShutdown struct{}

func (slowShutdown) Name() string { return "slow" }
func (slowShutdown) OnShutdown(ctx context.Context) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterDiscoversHooks(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{name: "rec"}
	g := &grantOnly{}
	require.NoError(t, r.Register(rec))
	require.NoError(t, r.Register(g))

	assert.Equal(t, 2, r.Count())
	assert.Len(t, r.onGrant, 2)
	assert.Len(t, r.onRestore, 1)
	assert.Empty(t, r.onShutdown)
	assert.Same(t, rec, r.Get("rec"))
	assert.Nil(t, r.Get("missing"))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&recorder{name: "rec"}))
	require.Error(t, r.Register(&recorder{name: "rec"}))
}

func TestEmitDispatchesAndSwallowsErrors(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{name: "rec"}
	g := &grantOnly{}
	require.NoError(t, r.Register(g))
	require.NoError(t, r.Register(rec))

	ctx := context.Background()
	r.EmitGrant(ctx, "k", "gamer", true)
	r.EmitGrant(ctx, "k", "gamer", false)
	r.EmitRestore(ctx, "k", entitlement.EmptyResult(), SourceNone)

	assert.Equal(t, 2, g.calls)
	assert.Equal(t, []string{"grant:k:gamer", "grant-noop:k:gamer", "restore:k:none"}, rec.Events())
}

func TestSlowHookTimesOut(t *testing.T) {
	r := NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slowShutdown{}))

	start := time.Now()
	r.EmitShutdown(context.Background())
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
