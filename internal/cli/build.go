package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/entitle"
	memorycache "github.com/xraph/entitle/cache/memory"
	rediscache "github.com/xraph/entitle/cache/redis"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/gateway"
	stripegw "github.com/xraph/entitle/gateway/stripe"
	"github.com/xraph/entitle/observability"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/store/file"
	"github.com/xraph/entitle/store/memory"
	"github.com/xraph/entitle/store/mongo"
	"github.com/xraph/entitle/store/postgres"
	"github.com/xraph/entitle/store/sqlite"
)

// NewLogger builds the process logger from cfg.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenStore connects the configured record backend.
func OpenStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "file":
		return file.New(cfg.Path), nil
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "postgres":
		return postgres.Connect(ctx, cfg.DSN, cfg.Schema)
	case "mongo":
		return mongo.Connect(ctx, cfg.URI, cfg.Database)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", entitle.ErrConfiguration, cfg.Driver)
	}
}

// NewCache builds the configured restore cache.
func NewCache(cfg CacheConfig) (entitlement.Cache, error) {
	switch cfg.Driver {
	case "memory":
		return memorycache.New(memorycache.WithMaxEntries(cfg.MaxEntries)), nil
	case "redis":
		if len(cfg.Addrs) == 0 {
			return nil, fmt.Errorf("%w: cache.addrs is required for redis", entitle.ErrConfiguration)
		}
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return rediscache.New(rdb, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: unknown cache driver %q", entitle.ErrConfiguration, cfg.Driver)
	}
}

// NewGateway builds the configured payment gateway. It returns nil when
// none is configured.
func NewGateway(cfg GatewayConfig) (gateway.Gateway, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "stripe":
		return stripegw.New(stripegw.Config{
			SecretKey:     cfg.SecretKey,
			WebhookSecret: cfg.WebhookSecret,
			SuccessURL:    cfg.SuccessURL,
			CancelURL:     cfg.CancelURL,
		})
	default:
		return nil, fmt.Errorf("%w: unknown gateway driver %q", entitle.ErrConfiguration, cfg.Driver)
	}
}

// Runtime is everything a command needs, plus the teardown for it.
type Runtime struct {
	engine *entitle.Engine
	store  store.Store
	logger *slog.Logger
}

func (r *Runtime) Close() {
	_ = r.engine.Stop() //nolint:errcheck // Stop never fails
	if err := r.store.Close(); err != nil {
		r.logger.Warn("store close failed", "error", err)
	}
}

// NewRuntime wires the store, cache, gateway and engine from cfg and
// starts the engine. metrics may be nil.
func NewRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, metrics observability.MetricFactory) (*Runtime, error) {
	resolver, err := cfg.Catalog.Resolver()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entitle.ErrConfiguration, err)
	}

	s, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	cache, err := NewCache(cfg.Cache)
	if err != nil {
		_ = s.Close() //nolint:errcheck // already failing
		return nil, err
	}
	gw, err := NewGateway(cfg.Gateway)
	if err != nil {
		_ = s.Close() //nolint:errcheck // already failing
		return nil, err
	}

	opts := []entitle.Option{
		entitle.WithLogger(logger),
		entitle.WithCache(cache),
		entitle.WithCacheTTL(cfg.Engine.CacheTTL),
		entitle.WithGatewayTimeout(cfg.Engine.GatewayTimeout),
		entitle.WithPageSize(cfg.Engine.PageSize),
		entitle.WithCacheSweepInterval(cfg.Engine.CacheSweepInterval),
		entitle.WithCheckoutURLs(cfg.Gateway.SuccessURL, cfg.Gateway.CancelURL),
	}
	if gw != nil {
		opts = append(opts, entitle.WithGateway(gw))
	}
	if metrics != nil {
		opts = append(opts, entitle.WithPlugin(observability.NewMetricsExtension(metrics)))
	}

	eng := entitle.New(s, resolver, opts...)
	if err := eng.Start(ctx); err != nil {
		_ = s.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return &Runtime{engine: eng, store: s, logger: logger}, nil
}
