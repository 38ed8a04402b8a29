package entitle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/gateway/gatewaytest"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/store/memory"
)

const testSecret = "whsec_fake"

var testCatalog = []pack.ID{"date", "gamer", "party"}

func testResolver(t *testing.T, catalog ...pack.ID) *pack.Resolver {
	t.Helper()
	if len(catalog) == 0 {
		catalog = testCatalog
	}
	prices := map[pack.ID]string{
		"date":            "price_date",
		"gamer":           "price_gamer",
		"party":           "price_party",
		pack.Bundle:       "price_bundle",
		pack.Subscription: "price_sub",
	}
	for p := range prices {
		if p.IsReserved() {
			continue
		}
		known := false
		for _, c := range catalog {
			known = known || c == p
		}
		if !known {
			delete(prices, p)
		}
	}
	r, err := pack.NewResolver(catalog, prices)
	require.NoError(t, err)
	return r
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	engine *Engine
	store  *memory.Store
	gw     *gatewaytest.Fake
	clock  *testClock
	hooks  *hookRecorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		gw:    gatewaytest.New(testSecret),
		clock: newTestClock(),
		hooks: &hookRecorder{},
	}
	base := []Option{
		WithLogger(discardLogger()),
		WithGateway(h.gw),
		WithClock(h.clock.Now),
		WithPlugin(h.hooks),
	}
	h.engine = New(h.store, testResolver(t), append(base, opts...)...)
	return h
}

func (h *harness) record(t *testing.T, key string) *entitlement.Record {
	t.Helper()
	r, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	return r
}

// hookRecorder captures restore sources and grant calls.
type hookRecorder struct {
	mu       sync.Mutex
	sources  []plugin.RestoreSource
	grants   int
	rejected int
	gwErrors int
}

func (r *hookRecorder) Name() string { return "test-recorder" }

func (r *hookRecorder) OnRestore(_ context.Context, _ string, _ entitlement.Result, src plugin.RestoreSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, src)
	return nil
}

func (r *hookRecorder) OnGrant(context.Context, string, pack.ID, bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants++
	return nil
}

func (r *hookRecorder) OnWebhookRejected(context.Context, error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
	return nil
}

func (r *hookRecorder) OnGatewayError(context.Context, string, error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gwErrors++
	return nil
}

func (r *hookRecorder) lastSource() plugin.RestoreSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sources) == 0 {
		return ""
	}
	return r.sources[len(r.sources)-1]
}

// failingStore wraps a memory store and fails the selected operations.
type failingStore struct {
	*memory.Store
	failLoad, failSave, failGet bool
	// honorCtx makes Save fail on a done context, like the SQL backends.
	honorCtx bool
}

var errDisk = errors.New("disk on fire")

func (s *failingStore) Load(ctx context.Context) (map[string]*entitlement.Record, error) {
	if s.failLoad {
		return nil, errDisk
	}
	return s.Store.Load(ctx)
}

func (s *failingStore) Save(ctx context.Context, r map[string]*entitlement.Record) error {
	if s.failSave {
		return errDisk
	}
	if s.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	return s.Store.Save(ctx, r)
}

func (s *failingStore) Get(ctx context.Context, key string) (*entitlement.Record, error) {
	if s.failGet {
		return nil, errDisk
	}
	return s.Store.Get(ctx, key)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
