package entitle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/store/file"
	"github.com/xraph/entitle/store/memory"
)

type lifecyclePlugin struct {
	mu             sync.Mutex
	inits, downs   int
	engineSeenType bool
}

func (p *lifecyclePlugin) Name() string { return "lifecycle" }

func (p *lifecyclePlugin) OnInit(_ context.Context, engine any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inits++
	_, p.engineSeenType = engine.(*Engine)
	return nil
}

func (p *lifecyclePlugin) OnShutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downs++
	return nil
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	lp := &lifecyclePlugin{}
	e := New(memory.New(), testResolver(t),
		WithLogger(discardLogger()),
		WithPlugin(lp),
		WithCacheSweepInterval(5*time.Millisecond),
	)
	require.NoError(t, e.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())

	assert.Equal(t, 1, lp.inits)
	assert.True(t, lp.engineSeenType)
	assert.Equal(t, 1, lp.downs)
}

func TestStartMigratesStore(t *testing.T) {
	path := t.TempDir() + "/nested/entitlements.json"
	s := file.New(path)
	e := New(s, testResolver(t), WithLogger(discardLogger()))
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	assert.FileExists(t, path)
}

func TestHealth(t *testing.T) {
	s := memory.New()
	e := New(s, testResolver(t), WithLogger(discardLogger()))
	assert.NoError(t, e.Health(context.Background()))

	require.NoError(t, s.Close())
	err := e.Health(context.Background())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestLoadRecordsFailsSoft(t *testing.T) {
	s := &failingStore{Store: memory.New(), failLoad: true}
	e := New(s, testResolver(t), WithLogger(discardLogger()))

	records := e.LoadRecords(context.Background())
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestSaveRecordsMerges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Grant(ctx, "ck_1", "gamer")
	require.NoError(t, err)

	stamp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err = h.engine.SaveRecords(ctx, map[string]*entitlement.Record{
		"ck_1": {Packs: []pack.ID{"date"}},
		"ck_2": {SubscriptionActive: true, LastUpdated: stamp},
		"":     {Packs: []pack.ID{"party"}},
		"ck_3": nil,
	})
	require.NoError(t, err)

	all := h.engine.LoadRecords(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, []pack.ID{"date", "gamer"}, all["ck_1"].Packs)
	assert.Equal(t, h.clock.Now(), all["ck_1"].LastUpdated)
	assert.True(t, all["ck_2"].SubscriptionActive)
	assert.Equal(t, stamp, all["ck_2"].LastUpdated)
}

func TestSaveRecordsJoinsErrors(t *testing.T) {
	s := &failingStore{Store: memory.New(), failSave: true}
	e := New(s, testResolver(t), WithLogger(discardLogger()))

	err := e.SaveRecords(context.Background(), map[string]*entitlement.Record{
		"ck_1": {Packs: []pack.ID{"date"}},
		"ck_2": {Packs: []pack.ID{"gamer"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.True(t, errors.Is(err, errDisk))
}

func TestKeyLockReleasesEntries(t *testing.T) {
	l := newKeyLock()
	unlockA := l.Lock("a")
	unlockB := l.Lock("b")
	assert.Equal(t, 2, l.size())

	acquired := make(chan struct{})
	go func() {
		unlock := l.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
	unlockB()
	assert.Equal(t, 0, l.size())
}
