// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/entitle/gateway"
)

// compile-time interface check
var _ gateway.Gateway = (*Fake)(nil)

// ErrUnavailable is a ready-made gateway failure.
var ErrUnavailable = errors.New("gatewaytest: unavailable")

// Fake records calls and serves canned data. The zero value is not usable;
// call New.
type Fake struct {
	secret []byte

	mu            sync.Mutex
	transactions  []gateway.Transaction
	lineItems     map[string][]gateway.LineItem
	subscriptions map[string]*gateway.Subscription
	sessions      []gateway.CheckoutRequest

	listErr     error
	lineItemErr error
	subErr      error
	checkoutErr error
	delay       time.Duration

	calls map[string]int
}

// New returns a fake whose events are signed with secret.
func New(secret string) *Fake {
	return &Fake{
		secret:        []byte(secret),
		lineItems:     make(map[string][]gateway.LineItem),
		subscriptions: make(map[string]*gateway.Subscription),
		calls:         make(map[string]int),
	}
}

// AddTransaction appends a completed transaction.
func (f *Fake) AddTransaction(tx gateway.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions = append(f.transactions, tx)
}

// SetLineItems sets what ListLineItems returns for txID.
func (f *Fake) SetLineItems(txID string, items ...gateway.LineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lineItems[txID] = items
}

// AddSubscription registers a subscription for GetSubscription.
func (f *Fake) AddSubscription(sub gateway.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[sub.ID] = &sub
}

// FailList makes ListCompletedTransactions return err.
func (f *Fake) FailList(err error) { f.set(func() { f.listErr = err }) }

// FailLineItems makes ListLineItems return err.
func (f *Fake) FailLineItems(err error) { f.set(func() { f.lineItemErr = err }) }

// FailSubscription makes GetSubscription return err.
func (f *Fake) FailSubscription(err error) { f.set(func() { f.subErr = err }) }

// FailCheckout makes CreateCheckoutSession return err.
func (f *Fake) FailCheckout(err error) { f.set(func() { f.checkoutErr = err }) }

// SetDelay makes every context-aware call wait d or until ctx is done.
func (f *Fake) SetDelay(d time.Duration) { f.set(func() { f.delay = d }) }

// Calls returns how many times method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Sessions returns every checkout request received.
func (f *Fake) Sessions() []gateway.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.CheckoutRequest(nil), f.sessions...)
}

func (f *Fake) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	err := f.enter(ctx, "CreateCheckoutSession", func() error { return f.checkoutErr })
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, req)
	id := fmt.Sprintf("cs_test_%d", len(f.sessions))
	return &gateway.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (f *Fake) ListCompletedTransactions(ctx context.Context, limit int) ([]gateway.Transaction, error) {
	if err := f.enter(ctx, "ListCompletedTransactions", func() error { return f.listErr }); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]gateway.Transaction, 0, len(f.transactions))
	for i := len(f.transactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, f.transactions[i])
	}
	return out, nil
}

func (f *Fake) ListLineItems(ctx context.Context, transactionID string) ([]gateway.LineItem, error) {
	if err := f.enter(ctx, "ListLineItems", func() error { return f.lineItemErr }); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.LineItem(nil), f.lineItems[transactionID]...), nil
}

func (f *Fake) GetSubscription(ctx context.Context, id string) (*gateway.Subscription, error) {
	if err := f.enter(ctx, "GetSubscription", func() error { return f.subErr }); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("gatewaytest: no subscription %q", id)
	}
	c := *sub
	return &c, nil
}

// VerifyEvent checks signature against Sign(payload) and decodes payload
// as produced by the Event helpers.
func (f *Fake) VerifyEvent(payload []byte, signature string) (*gateway.Event, error) {
	f.mu.Lock()
	f.calls["VerifyEvent"]++
	f.mu.Unlock()

	if !hmac.Equal([]byte(f.Sign(payload)), []byte(signature)) {
		return nil, gateway.ErrInvalidSignature
	}
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("gatewaytest: decode event: %w", err)
	}
	return &gateway.Event{
		ID:             w.ID,
		Type:           w.Type,
		RawType:        string(w.Type),
		Transaction:    w.Transaction,
		SubscriptionID: w.SubscriptionID,
	}, nil
}

// Sign returns the signature VerifyEvent accepts for payload.
func (f *Fake) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, f.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type wireEvent struct {
	ID             string               `json:"id"`
	Type           gateway.EventType    `json:"type"`
	Transaction    *gateway.Transaction `json:"transaction,omitempty"`
	SubscriptionID string               `json:"subscriptionId,omitempty"`
}

// PurchaseCompleted encodes a purchase-completed event payload.
func PurchaseCompleted(eventID string, tx gateway.Transaction) []byte {
	return mustEncode(wireEvent{ID: eventID, Type: gateway.EventPurchaseCompleted, Transaction: &tx})
}

// SubscriptionInvoicePaid encodes a subscription-invoice-paid payload.
func SubscriptionInvoicePaid(eventID, subscriptionID string) []byte {
	return mustEncode(wireEvent{ID: eventID, Type: gateway.EventSubscriptionInvoicePaid, SubscriptionID: subscriptionID})
}

// Other encodes an event the engine ignores.
func Other(eventID string) []byte {
	return mustEncode(wireEvent{ID: eventID, Type: gateway.EventOther})
}

func mustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (f *Fake) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *Fake) enter(ctx context.Context, method string, errFn func() error) error {
	f.mu.Lock()
	f.calls[method]++
	delay := f.delay
	err := errFn()
	f.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
