package entitlegin

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/pack"
)

// compile-time interface check
var _ Engine = (*entitle.Engine)(nil)

// HandleWebhookPOST verifies and applies one gateway event. The body is
// passed through byte for byte; signatures cover the raw payload.
func HandleWebhookPOST(eng Engine, cfg Config) gin.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxBodyBytes))
		if err != nil {
			badRequest(c, "unreadable_body")
			return
		}
		// An absent signature is left to the engine so a missing gateway
		// is reported before authenticity.
		sig := c.GetHeader(cfg.SignatureHeader)
		if err := eng.HandleWebhook(c.Request.Context(), payload, sig); err != nil {
			switch {
			case entitle.IsAuthenticity(err):
				badRequest(c, "invalid_signature")
			case entitle.IsConfiguration(err):
				cfg.Logger.Error("webhook received without a gateway", "error", err)
				unavailable(c, "gateway_not_configured")
			default:
				cfg.Logger.Error("webhook failed", "error", err)
				serverErr(c, "webhook_failed")
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

// HandleRestoreGET returns what the calling client owns. It never fails;
// a missing key yields the empty result.
func HandleRestoreGET(eng Engine, cfg Config) gin.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.ClientKeyHeader))
		c.JSON(http.StatusOK, eng.Restore(c.Request.Context(), key))
	}
}

type checkoutRequest struct {
	PackID string `json:"packId"`
}

// HandleCheckoutPOST opens a hosted checkout for the requested pack.
func HandleCheckoutPOST(eng Engine, cfg Config) gin.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.ClientKeyHeader))
		if key == "" {
			badRequest(c, "missing_client_key")
			return
		}
		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid_request")
			return
		}

		sess, err := eng.CreateCheckout(c.Request.Context(), key, pack.ID(req.PackID))
		if err != nil {
			switch {
			case errors.Is(err, entitle.ErrInvalidInput):
				badRequest(c, "invalid_pack")
			case entitle.IsConfiguration(err):
				badRequest(c, "pack_not_purchasable")
			case errors.Is(err, entitle.ErrGateway):
				cfg.Logger.Warn("checkout creation failed", "client_key", key, "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_unavailable"})
			default:
				serverErr(c, "checkout_failed")
			}
			return
		}
		c.JSON(http.StatusOK, sess)
	}
}

// HandleClientKeysPOST issues a fresh server-generated client key.
func HandleClientKeysPOST() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"clientKey": entitle.NewClientKey()})
	}
}

// HandleHealthGET reports store reachability.
func HandleHealthGET(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := eng.Health(c.Request.Context()); err != nil {
			unavailable(c, "store_unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func badRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func unavailable(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": code})
}

func serverErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}
