// Package stripegw adapts Stripe Checkout to gateway.Gateway.
//
// Checkout sessions are the transactions, checkout.session.completed is the
// purchase-completed event, and invoice.paid or invoice.payment_succeeded
// for a subscription is the subscription-invoice-paid event.
package stripegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/xraph/entitle/gateway"
)

// Stripe event names the adapter classifies.
const (
	eventCheckoutCompleted       = "checkout.session.completed"
	eventInvoicePaid             = "invoice.paid"
	eventInvoicePaymentSucceeded = "invoice.payment_succeeded"
)

// maxPageSize is Stripe's list limit.
const maxPageSize = 100

// compile-time interface check
var _ gateway.Gateway = (*Gateway)(nil)

// Config holds Stripe credentials and checkout URLs.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string

	// SignatureTolerance bounds the age of webhook timestamps. Zero means
	// webhook.DefaultTolerance.
	SignatureTolerance time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBackends overrides the Stripe HTTP backends, for tests and proxies.
func WithBackends(b *stripe.Backends) Option {
	return func(g *Gateway) { g.backends = b }
}

// Gateway implements gateway.Gateway on the Stripe API.
type Gateway struct {
	cfg      Config
	backends *stripe.Backends
	api      *client.API
}

// New returns a Stripe gateway. SecretKey is required.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripegw: secret key is required")
	}
	if cfg.SignatureTolerance <= 0 {
		cfg.SignatureTolerance = webhook.DefaultTolerance
	}
	g := &Gateway{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	g.api = client.New(cfg.SecretKey, g.backends)
	return g, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(checkoutMode(req.Mode))),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(firstNonEmpty(req.SuccessURL, g.cfg.SuccessURL)),
		CancelURL:  stripe.String(firstNonEmpty(req.CancelURL, g.cfg.CancelURL)),
	}
	params.Context = ctx
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Mode == gateway.ModeSubscription {
		// Invoices only carry the subscription, so its metadata must hold
		// the client key too.
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: copyMetadata(req.Metadata),
		}
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripegw: create checkout session: %w", err)
	}
	return &gateway.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) ListCompletedTransactions(ctx context.Context, limit int) ([]gateway.Transaction, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true
	params.Status = stripe.String(string(stripe.CheckoutSessionStatusComplete))
	params.AddExpand("data.line_items")

	var out []gateway.Transaction
	it := g.api.CheckoutSessions.List(params)
	for it.Next() {
		s := it.CheckoutSession()
		if s.Status != stripe.CheckoutSessionStatusComplete {
			continue
		}
		out = append(out, toTransaction(s))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripegw: list checkout sessions: %w", err)
	}
	return out, nil
}

func (g *Gateway) ListLineItems(ctx context.Context, transactionID string) ([]gateway.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(transactionID)}
	params.Context = ctx

	var out []gateway.LineItem
	it := g.api.CheckoutSessions.ListLineItems(params)
	for it.Next() {
		out = append(out, toLineItem(it.LineItem()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripegw: list line items for %s: %w", transactionID, err)
	}
	return out, nil
}

func (g *Gateway) GetSubscription(ctx context.Context, id string) (*gateway.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripegw: get subscription %s: %w", id, err)
	}
	return &gateway.Subscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: copyMetadata(sub.Metadata),
	}, nil
}

// VerifyEvent checks the Stripe-Signature header value and classifies the
// event. API version mismatches are tolerated since only a few stable fields
// are read.
func (g *Gateway) VerifyEvent(payload []byte, signature string) (*gateway.Event, error) {
	if g.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", gateway.ErrInvalidSignature)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                g.cfg.SignatureTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}

	out := &gateway.Event{ID: evt.ID, RawType: string(evt.Type), Type: gateway.EventOther}
	if evt.Data == nil {
		return out, nil
	}

	switch string(evt.Type) {
	case eventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("stripegw: decode checkout session: %w", err)
		}
		tx := toTransaction(&s)
		out.Type = gateway.EventPurchaseCompleted
		out.Transaction = &tx
	case eventInvoicePaid, eventInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("stripegw: decode invoice: %w", err)
		}
		if inv.Subscription != nil && inv.Subscription.ID != "" {
			out.Type = gateway.EventSubscriptionInvoicePaid
			out.SubscriptionID = inv.Subscription.ID
		}
	}
	return out, nil
}

func toTransaction(s *stripe.CheckoutSession) gateway.Transaction {
	tx := gateway.Transaction{
		ID:                s.ID,
		ClientReferenceID: s.ClientReferenceID,
		Metadata:          copyMetadata(s.Metadata),
		CreatedAt:         time.Unix(s.Created, 0).UTC(),
	}
	if s.Subscription != nil {
		tx.SubscriptionID = s.Subscription.ID
	}
	if s.LineItems != nil {
		tx.LineItemsExpanded = true
		for _, li := range s.LineItems.Data {
			tx.LineItems = append(tx.LineItems, toLineItem(li))
		}
	}
	return tx
}

func toLineItem(li *stripe.LineItem) gateway.LineItem {
	out := gateway.LineItem{Quantity: li.Quantity}
	if li.Price != nil {
		out.PriceID = li.Price.ID
	}
	return out
}

func checkoutMode(m gateway.Mode) stripe.CheckoutSessionMode {
	if m == gateway.ModeSubscription {
		return stripe.CheckoutSessionModeSubscription
	}
	return stripe.CheckoutSessionModePayment
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
