// Package entitlegin mounts the entitlement engine on a gin router: the
// gateway webhook, restore, checkout, client key issuance, and health.
package entitlegin

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/gateway"
	"github.com/xraph/entitle/pack"
)

// Defaults for Config.
const (
	DefaultBasePath        = "/entitle"
	DefaultSignatureHeader = "Stripe-Signature"
	DefaultClientKeyHeader = "X-Client-Key"
	DefaultMaxBodyBytes    = 1 << 20
)

// Engine is the subset of *entitle.Engine the handlers call.
type Engine interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Restore(ctx context.Context, clientKey string) entitlement.Result
	CreateCheckout(ctx context.Context, clientKey string, packID pack.ID) (*gateway.CheckoutSession, error)
	Health(ctx context.Context) error
}

// Config controls routing and header names. Zero fields take the defaults.
type Config struct {
	BasePath        string
	SignatureHeader string
	ClientKeyHeader string
	MaxBodyBytes    int64
	Logger          *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
	if c.SignatureHeader == "" {
		c.SignatureHeader = DefaultSignatureHeader
	}
	if c.ClientKeyHeader == "" {
		c.ClientKeyHeader = DefaultClientKeyHeader
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Register mounts every route under cfg.BasePath.
func Register(r gin.IRouter, eng Engine, cfg Config) {
	cfg = cfg.withDefaults()

	g := r.Group(cfg.BasePath)
	g.POST("/webhook", HandleWebhookPOST(eng, cfg))
	g.GET("/restore", HandleRestoreGET(eng, cfg))
	g.POST("/checkout", HandleCheckoutPOST(eng, cfg))
	g.POST("/client-keys", HandleClientKeysPOST())
	g.GET("/health", HandleHealthGET(eng))
}

// NewRouter returns a gin engine with recovery and the entitlement routes.
func NewRouter(eng Engine, cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	Register(r, eng, cfg)
	return r
}
