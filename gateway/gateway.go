// Package gateway defines the payment gateway contract the engine relies on
// and the gateway-neutral shapes that cross it.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Metadata keys written on checkout and read back on webhook and restore.
const (
	MetadataClientKey = "client_key"
	MetadataPackID    = "pack_id"
)

// ErrInvalidSignature is returned by VerifyEvent for payloads that fail
// authentication.
var ErrInvalidSignature = errors.New("gateway: invalid signature")

// Gateway is the subset of a payment provider the engine uses.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// ListCompletedTransactions returns up to limit completed transactions,
	// newest first, with line items attached when the provider allows it.
	ListCompletedTransactions(ctx context.Context, limit int) ([]Transaction, error)
	ListLineItems(ctx context.Context, transactionID string) ([]LineItem, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)

	// VerifyEvent authenticates payload against signature and classifies it.
	// It must see the exact bytes received.
	VerifyEvent(payload []byte, signature string) (*Event, error)
}

// Mode selects one-time or recurring checkout.
type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// CheckoutRequest describes a hosted checkout to create.
type CheckoutRequest struct {
	PriceID           string
	Mode              Mode
	ClientReferenceID string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
}

// CheckoutSession is a created hosted checkout.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// LineItem is one purchased price within a transaction.
type LineItem struct {
	PriceID  string
	Quantity int64
}

// Transaction is a completed purchase.
type Transaction struct {
	ID                string
	ClientReferenceID string
	Metadata          map[string]string
	LineItems         []LineItem

	// LineItemsExpanded reports whether LineItems is authoritative. When
	// false the items must be fetched with ListLineItems.
	LineItemsExpanded bool
	SubscriptionID    string
	CreatedAt         time.Time
}

// ClientKey returns the client key recorded on the transaction: metadata
// first, then the client reference.
func (t *Transaction) ClientKey() string {
	if k := t.Metadata[MetadataClientKey]; k != "" {
		return k
	}
	return t.ClientReferenceID
}

// Subscription is a recurring billing agreement.
type Subscription struct {
	ID       string
	Status   string
	Metadata map[string]string
}

// EventType classifies verified events.
type EventType string

const (
	EventPurchaseCompleted       EventType = "purchase_completed"
	EventSubscriptionInvoicePaid EventType = "subscription_invoice_paid"
	EventOther                   EventType = "other"
)

// Event is a verified, classified webhook event.
type Event struct {
	ID   string
	Type EventType

	// RawType is the provider's own event name.
	RawType string

	// Transaction is set for EventPurchaseCompleted.
	Transaction *Transaction

	// SubscriptionID is set for EventSubscriptionInvoicePaid.
	SubscriptionID string
}
