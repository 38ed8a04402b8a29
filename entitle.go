package entitle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	memorycache "github.com/xraph/entitle/cache/memory"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/gateway"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/plugin"
)

// Defaults applied by New.
const (
	DefaultCacheTTL           = 5 * time.Minute
	DefaultGatewayTimeout     = 10 * time.Second
	DefaultPageSize           = 100
	DefaultCacheSweepInterval = time.Minute
)

// Engine grants, verifies, and reconciles pack ownership.
type Engine struct {
	store    entitlement.Store
	cache    entitlement.Cache
	resolver *pack.Resolver
	gateway  gateway.Gateway
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	locks  *keyLock
	flight singleflight.Group

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Configuration
	cacheTTL           time.Duration
	gatewayTimeout     time.Duration
	pageSize           int
	cacheSweepInterval time.Duration
	autoMigrate        bool
	successURL         string
	cancelURL          string
}

// New creates an engine over store s. A nil resolver means an empty
// catalog with no prices. Without WithCache an in-memory cache is used.
func New(s entitlement.Store, resolver *pack.Resolver, opts ...Option) *Engine {
	if resolver == nil {
		resolver, _ = pack.NewResolver(nil, nil) //nolint:errcheck // an empty table is always valid
	}
	e := &Engine{
		store:              s,
		resolver:           resolver,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		now:                time.Now,
		locks:              newKeyLock(),
		stopChan:           make(chan struct{}),
		cacheTTL:           DefaultCacheTTL,
		gatewayTimeout:     DefaultGatewayTimeout,
		pageSize:           DefaultPageSize,
		cacheSweepInterval: DefaultCacheSweepInterval,
		autoMigrate:        true,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.cache == nil {
		e.cache = memorycache.New(memorycache.WithClock(e.now))
	}
	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithGateway sets the payment gateway. Without one, webhooks and checkout
// fail with ErrConfiguration and restore never queries history.
func WithGateway(g gateway.Gateway) Option {
	return func(e *Engine) { e.gateway = g }
}

// WithCache replaces the default in-memory cache.
func WithCache(c entitlement.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithClock sets the time source for lastUpdated and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCacheTTL sets how long reconciliation results are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// WithGatewayTimeout bounds every outbound gateway call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.gatewayTimeout = d
		}
	}
}

// WithPageSize sets how many transactions a restore inspects.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithCacheSweepInterval sets how often expired cache entries are dropped.
func WithCacheSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cacheSweepInterval = d
		}
	}
}

// WithAutoMigrate controls whether Start migrates the store. On by default.
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) { e.autoMigrate = enabled }
}

// WithCheckoutURLs sets the redirect targets for hosted checkout.
func WithCheckoutURLs(success, cancel string) Option {
	return func(e *Engine) {
		e.successURL = success
		e.cancelURL = cancel
	}
}

// Start migrates the store when it supports it, initializes plugins, and
// starts the cache sweep worker.
func (e *Engine) Start(ctx context.Context) error {
	if m, ok := e.store.(interface{ Migrate(context.Context) error }); ok && e.autoMigrate {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: migrate: %w", ErrPersistence, err)
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.cacheSweepWorker()

	e.logger.Info("entitle started",
		"catalog_size", len(e.resolver.Catalog()),
		"gateway", e.gateway != nil,
		"cache_ttl", e.cacheTTL,
		"gateway_timeout", e.gatewayTimeout,
	)
	return nil
}

// Stop shuts down background workers and plugins. It does not close the
// store; its owner does.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		close(e.stopChan)
		e.wg.Wait()
		e.plugins.EmitShutdown(context.Background())
	})
	return nil
}

// Health reports whether the store is reachable.
func (e *Engine) Health(ctx context.Context) error {
	if p, ok := e.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}
	return nil
}

// Resolver returns the pack identity resolver.
func (e *Engine) Resolver() *pack.Resolver { return e.resolver }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// LoadRecords returns the full record mapping. A failing backend is logged
// and treated as empty.
func (e *Engine) LoadRecords(ctx context.Context) map[string]*entitlement.Record {
	records, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Error("entitlement store load failed, treating as empty", "error", err)
		return map[string]*entitlement.Record{}
	}
	if records == nil {
		records = map[string]*entitlement.Record{}
	}
	return records
}

// SaveRecords merges records into the store, each key under its lock, and
// drops any cached result for those keys. Records already held are unioned
// with the supplied ones.
func (e *Engine) SaveRecords(ctx context.Context, records map[string]*entitlement.Record) error {
	var errs []error
	for key, r := range records {
		if key == "" || r == nil {
			continue
		}
		if _, err := e.mergeRecord(ctx, key, r); err != nil {
			errs = append(errs, err)
			continue
		}
		e.invalidate(ctx, key)
	}
	return errors.Join(errs...)
}

// mergeRecord unions r into the stored record for key and persists the
// result. The stored lastUpdated is kept when r carries none.
func (e *Engine) mergeRecord(ctx context.Context, key string, r *entitlement.Record) (*entitlement.Record, error) {
	unlock := e.locks.Lock(key)
	defer unlock()

	merged, err := e.getForUpdate(ctx, key)
	if err != nil {
		return nil, err
	}
	merged.Merge(r)
	if !r.LastUpdated.IsZero() {
		merged.LastUpdated = r.LastUpdated
	}
	if err := e.saveRecord(ctx, key, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// getForUpdate returns the stored record for key, or a new one. Backend
// errors are returned so a transient read failure never turns into an
// overwrite with less data.
func (e *Engine) getForUpdate(ctx context.Context, key string) (*entitlement.Record, error) {
	r, err := e.store.Get(ctx, key)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, entitlement.ErrNotFound):
		return &entitlement.Record{}, nil
	default:
		return nil, fmt.Errorf("%w: get %s: %w", ErrPersistence, key, err)
	}
}

func (e *Engine) saveRecord(ctx context.Context, key string, r *entitlement.Record) error {
	if err := e.store.Save(ctx, map[string]*entitlement.Record{key: r}); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrPersistence, key, err)
	}
	return nil
}

func (e *Engine) invalidate(ctx context.Context, key string) {
	if err := e.cache.Invalidate(ctx, key); err != nil {
		e.logger.Warn("cache invalidate failed", "client_key", key, "error", err)
	}
}

func (e *Engine) setCached(ctx context.Context, key string, res entitlement.Result) {
	if err := e.cache.SetCached(ctx, key, res, e.cacheTTL); err != nil {
		e.logger.Warn("cache write failed", "client_key", key, "error", err)
	}
}

// cacheSweepWorker drops expired cache entries until Stop.
func (e *Engine) cacheSweepWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			n, err := e.cache.Sweep(context.Background())
			if err != nil {
				e.logger.Warn("cache sweep failed", "error", err)
				continue
			}
			if n > 0 {
				e.logger.Debug("swept expired cache entries", "count", n)
			}
		}
	}
}

// gatewayContext bounds an outbound call. It is detached from ctx
// cancellation so a result shared between callers is not cut short by one
// of them going away.
func (e *Engine) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.gatewayTimeout)
}

func (e *Engine) gatewayFailed(ctx context.Context, op string, err error) {
	e.logger.Warn("gateway call failed", "op", op, "error", err)
	e.plugins.EmitGatewayError(ctx, op, fmt.Errorf("%w: %w", ErrGateway, err))
}
