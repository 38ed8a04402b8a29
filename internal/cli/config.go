package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/entitle/pack"
)

// EnvPrefix namespaces environment overrides: ENTITLE_STORE_DRIVER etc.
const EnvPrefix = "ENTITLE"

// DefaultConfigFile is read when --config is not given and it exists.
const DefaultConfigFile = "entitle.yaml"

// Config is the binary's configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Engine  EngineConfig  `mapstructure:"engine"`

	// Catalog is inline; CatalogFile, when set, replaces it.
	Catalog     pack.Config `mapstructure:"catalog"`
	CatalogFile string      `mapstructure:"catalog_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	BasePath        string        `mapstructure:"base_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the record backend. Driver is one of memory, file,
// sqlite, postgres or mongo.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Schema   string `mapstructure:"schema"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// CacheConfig selects the restore cache. Driver is memory or redis.
type CacheConfig struct {
	Driver     string   `mapstructure:"driver"`
	MaxEntries int      `mapstructure:"max_entries"`
	Addrs      []string `mapstructure:"addrs"`
	Password   string   `mapstructure:"password"`
	DB         int      `mapstructure:"db"`
	KeyPrefix  string   `mapstructure:"key_prefix"`
}

// GatewayConfig selects the payment gateway. Driver is stripe or empty.
type GatewayConfig struct {
	Driver        string `mapstructure:"driver"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
}

type EngineConfig struct {
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	GatewayTimeout     time.Duration `mapstructure:"gateway_timeout"`
	PageSize           int           `mapstructure:"page_size"`
	CacheSweepInterval time.Duration `mapstructure:"cache_sweep_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.base_path", "/entitle")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "entitlements.json")
	v.SetDefault("store.schema", "public")
	v.SetDefault("store.database", "entitle")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.key_prefix", "entitle:restore:")
	v.SetDefault("engine.cache_ttl", 5*time.Minute)
	v.SetDefault("engine.gateway_timeout", 10*time.Second)
	v.SetDefault("engine.page_size", 100)
	v.SetDefault("engine.cache_sweep_interval", time.Minute)

	// Bind the env-only keys so AutomaticEnv sees them during Unmarshal.
	for _, key := range []string{
		"store.dsn", "store.uri", "cache.addrs", "cache.password", "cache.db",
		"gateway.driver", "gateway.secret_key", "gateway.webhook_secret",
		"gateway.success_url", "gateway.cancel_url", "catalog_file",
	} {
		_ = v.BindEnv(key) //nolint:errcheck // key is never empty
	}
}

// LoadConfig reads path (or DefaultConfigFile when path is empty and the
// file exists), then applies ENTITLE_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.CatalogFile != "" {
		f, err := os.Open(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only
		cat, err := pack.ParseConfig(f)
		if err != nil {
			return nil, err
		}
		cfg.Catalog = cat
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "file", "sqlite", "postgres", "mongo":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.driver: unknown driver %q", c.Cache.Driver))
	}
	switch c.Gateway.Driver {
	case "", "none", "stripe":
	default:
		errs = append(errs, fmt.Errorf("gateway.driver: unknown driver %q", c.Gateway.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
