package entitle

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/entitle/gateway"
	"github.com/xraph/entitle/pack"
)

// CreateCheckout opens a hosted checkout for packID on behalf of clientKey.
// The session carries the key and pack both as metadata and as the client
// reference so webhooks and restores can attribute the purchase.
func (e *Engine) CreateCheckout(ctx context.Context, clientKey string, packID pack.ID) (*gateway.CheckoutSession, error) {
	if strings.TrimSpace(clientKey) == "" {
		return nil, fmt.Errorf("%w: client key is required", ErrInvalidInput)
	}
	p := pack.Normalize(packID.String())
	if p == "" {
		return nil, fmt.Errorf("%w: pack id is required", ErrInvalidInput)
	}
	if e.gateway == nil {
		return nil, fmt.Errorf("%w: no payment gateway", ErrConfiguration)
	}
	price, ok := e.resolver.PackIDToPrice(p)
	if !ok {
		return nil, fmt.Errorf("%w: no price for pack %q", ErrConfiguration, p)
	}

	mode := gateway.ModePayment
	if p == pack.Subscription {
		mode = gateway.ModeSubscription
	}

	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()

	sess, err := e.gateway.CreateCheckoutSession(gctx, gateway.CheckoutRequest{
		PriceID:           price,
		Mode:              mode,
		ClientReferenceID: clientKey,
		Metadata: map[string]string{
			gateway.MetadataClientKey: clientKey,
			gateway.MetadataPackID:    p.String(),
		},
		SuccessURL: e.successURL,
		CancelURL:  e.cancelURL,
	})
	if err != nil {
		e.gatewayFailed(ctx, "create_checkout", err)
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	e.plugins.EmitCheckoutCreated(ctx, clientKey, p, sess.ID)
	return sess, nil
}
