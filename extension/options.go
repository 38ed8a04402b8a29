package extension

import (
	"time"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/gateway"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/store"
)

// Option configures the entitle Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithCache replaces the engine's in-memory result cache.
func WithCache(c entitlement.Cache) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithCache(c))
	}
}

// WithGateway sets the payment gateway.
func WithGateway(g gateway.Gateway) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithGateway(g))
	}
}

// WithResolver sets the pack resolver, overriding Config.Catalog.
func WithResolver(r *pack.Resolver) Option {
	return func(e *Extension) {
		e.resolver = r
	}
}

// WithEngineOption passes an entitle.Option through to the underlying engine.
func WithEngineOption(opt entitle.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an entitle plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for the HTTP handler.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithCacheTTL sets how long reconciliation results are cached.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.CacheTTL = d }
}

// WithGatewayTimeout bounds outbound gateway calls.
func WithGatewayTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.GatewayTimeout = d }
}

// WithCheckoutURLs sets the hosted checkout redirect targets.
func WithCheckoutURLs(success, cancel string) Option {
	return func(e *Extension) {
		e.config.SuccessURL = success
		e.config.CancelURL = cancel
	}
}
