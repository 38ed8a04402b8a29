// Package extension provides the Forge extension adapter for entitle.
//
// It implements the forge.Extension interface to integrate the entitlement
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.entitle" or "entitle" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/entitle"
	entitlegin "github.com/xraph/entitle/adapters/gin"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "entitle"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Pack entitlements with payment gateway reconciliation"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the entitlement engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *entitle.Engine
	store      store.Store
	resolver   *pack.Resolver
	engineOpts []entitle.Option
}

// New creates a new entitle Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *entitle.Engine { return e.engine }

// Handler returns the HTTP routes for the engine, mounted under BasePath.
func (e *Extension) Handler() http.Handler {
	return entitlegin.NewRouter(e.engine, entitlegin.Config{BasePath: e.config.BasePath})
}

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.buildEngine(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*entitle.Engine, error) {
		return e.engine, nil
	})
}

// buildEngine builds the engine from the resolved config.
func (e *Extension) buildEngine() error {
	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	if e.resolver == nil {
		r, err := e.config.Catalog.Resolver()
		if err != nil {
			return fmt.Errorf("entitle: catalog: %w", err)
		}
		e.resolver = r
	}

	e.engine = entitle.New(e.store, e.resolver, e.buildEngineOpts()...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("entitle: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("entitle: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs entitle.Option values from the resolved config.
// Pass-through options come last so they win.
func (e *Extension) buildEngineOpts() []entitle.Option {
	opts := make([]entitle.Option, 0, len(e.engineOpts)+6)

	opts = append(opts,
		entitle.WithAutoMigrate(!e.config.DisableMigrate),
		entitle.WithCacheTTL(e.config.CacheTTL),
		entitle.WithGatewayTimeout(e.config.GatewayTimeout),
		entitle.WithPageSize(e.config.PageSize),
		entitle.WithCacheSweepInterval(e.config.CacheSweepInterval),
	)
	if e.config.SuccessURL != "" || e.config.CancelURL != "" {
		opts = append(opts, entitle.WithCheckoutURLs(e.config.SuccessURL, e.config.CancelURL))
	}

	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("entitle: configuration is required but not found in config files; " +
				"ensure 'extensions.entitle' or 'entitle' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("entitle: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("cache_ttl", e.config.CacheTTL),
		forge.F("gateway_timeout", e.config.GatewayTimeout),
		forge.F("page_size", e.config.PageSize),
		forge.F("catalog_size", len(e.config.Catalog.Packs)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.entitle", "entitle"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = defaults.GatewayTimeout
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaults.PageSize
	}
	if cfg.CacheSweepInterval == 0 {
		cfg.CacheSweepInterval = defaults.CacheSweepInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.SuccessURL == "" {
		yamlConfig.SuccessURL = programmaticConfig.SuccessURL
	}
	if yamlConfig.CancelURL == "" {
		yamlConfig.CancelURL = programmaticConfig.CancelURL
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.CacheTTL == 0 {
		yamlConfig.CacheTTL = programmaticConfig.CacheTTL
	}
	if yamlConfig.GatewayTimeout == 0 {
		yamlConfig.GatewayTimeout = programmaticConfig.GatewayTimeout
	}
	if yamlConfig.PageSize == 0 {
		yamlConfig.PageSize = programmaticConfig.PageSize
	}
	if yamlConfig.CacheSweepInterval == 0 {
		yamlConfig.CacheSweepInterval = programmaticConfig.CacheSweepInterval
	}

	// Catalog: a YAML catalog replaces the programmatic one wholesale.
	if len(yamlConfig.Catalog.Packs) == 0 && len(yamlConfig.Catalog.Prices) == 0 {
		yamlConfig.Catalog = programmaticConfig.Catalog
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
