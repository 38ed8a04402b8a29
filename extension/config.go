package extension

import (
	"time"

	"github.com/xraph/entitle/pack"
)

// Config holds the entitle extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.entitle" or "entitle" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for the HTTP handler (default: "/entitle").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// CacheTTL is how long reconciliation results are cached (default: 5m).
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// GatewayTimeout bounds every outbound gateway call (default: 10s).
	GatewayTimeout time.Duration `json:"gateway_timeout" mapstructure:"gateway_timeout" yaml:"gateway_timeout"`

	// PageSize is how many recent transactions a restore inspects (default: 100).
	PageSize int `json:"page_size" mapstructure:"page_size" yaml:"page_size"`

	// CacheSweepInterval is how often expired cache entries are dropped
	// (default: 1m).
	CacheSweepInterval time.Duration `json:"cache_sweep_interval" mapstructure:"cache_sweep_interval" yaml:"cache_sweep_interval"`

	// SuccessURL and CancelURL are the hosted checkout redirect targets.
	SuccessURL string `json:"success_url" mapstructure:"success_url" yaml:"success_url"`
	CancelURL  string `json:"cancel_url" mapstructure:"cancel_url" yaml:"cancel_url"`

	// Catalog lists the individual packs and the gateway price of each pack.
	// Ignored when a resolver is supplied with WithResolver.
	Catalog pack.Config `json:"catalog" mapstructure:"catalog" yaml:"catalog"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:           "/entitle",
		CacheTTL:           5 * time.Minute,
		GatewayTimeout:     10 * time.Second,
		PageSize:           100,
		CacheSweepInterval: time.Minute,
	}
}
