package entitle

import (
	"context"
	"fmt"

	"github.com/xraph/entitle/gateway"
	"github.com/xraph/entitle/pack"
)

// HandleWebhook authenticates and applies one gateway event. payload must
// be the exact bytes received.
//
// Only ErrConfiguration (no gateway) and ErrAuthenticity (verification
// failed, nothing mutated) are returned. Every authenticated event is
// acknowledged with nil, including ones that could not be applied; those
// are logged.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if e.gateway == nil {
		return fmt.Errorf("%w: no payment gateway", ErrConfiguration)
	}

	evt, err := e.gateway.VerifyEvent(payload, signature)
	if err != nil {
		e.logger.Warn("webhook rejected", "error", err)
		e.plugins.EmitWebhookRejected(ctx, err)
		return fmt.Errorf("%w: %w", ErrAuthenticity, err)
	}
	e.plugins.EmitWebhookReceived(ctx, evt.ID, evt.RawType)

	switch evt.Type {
	case gateway.EventPurchaseCompleted:
		e.handlePurchaseCompleted(ctx, evt)
	case gateway.EventSubscriptionInvoicePaid:
		e.handleSubscriptionInvoicePaid(ctx, evt)
	default:
		e.logger.Debug("webhook event ignored", "event_id", evt.ID, "event_type", evt.RawType)
	}
	return nil
}

func (e *Engine) handlePurchaseCompleted(ctx context.Context, evt *gateway.Event) {
	tx := evt.Transaction
	if tx == nil {
		e.logger.Warn("purchase event without transaction", "event_id", evt.ID)
		return
	}
	key := tx.ClientKey()
	if key == "" {
		e.logger.Warn("purchase event without client key", "event_id", evt.ID, "transaction_id", tx.ID)
		return
	}

	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()

	p, ok, err := e.transactionPack(gctx, tx)
	if err != nil {
		// Already reported as a gateway error.
		return
	}
	if !ok {
		e.logger.Warn("purchase event pack unresolved",
			"event_id", evt.ID, "transaction_id", tx.ID, "client_key", key)
		return
	}

	// Grant logs its own failures; the event is still acknowledged.
	_, _ = e.Grant(ctx, key, p) //nolint:errcheck // logged inside Grant
}

func (e *Engine) handleSubscriptionInvoicePaid(ctx context.Context, evt *gateway.Event) {
	if evt.SubscriptionID == "" {
		e.logger.Warn("invoice event without subscription", "event_id", evt.ID)
		return
	}

	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()

	sub, err := e.gateway.GetSubscription(gctx, evt.SubscriptionID)
	if err != nil {
		e.gatewayFailed(ctx, "get_subscription", err)
		return
	}
	key := sub.Metadata[gateway.MetadataClientKey]
	if key == "" {
		e.logger.Warn("subscription without client key",
			"event_id", evt.ID, "subscription_id", sub.ID)
		return
	}

	_, _ = e.Grant(ctx, key, pack.Subscription) //nolint:errcheck // logged inside Grant
}
