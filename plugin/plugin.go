// Package plugin provides lifecycle hooks for the entitlement engine.
// A plugin implements Plugin plus any subset of the hook interfaces below;
// the registry discovers which at registration time.
package plugin

import (
	"context"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// RestoreSource names where a restore result came from.
type RestoreSource string

const (
	SourceStore   RestoreSource = "store"
	SourceCache   RestoreSource = "cache"
	SourceGateway RestoreSource = "gateway"
	SourceNone    RestoreSource = "none"
)

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnGrant is called after a grant was persisted. changed is false when the
// client already held what was granted.
type OnGrant interface {
	Plugin
	OnGrant(ctx context.Context, clientKey string, packID pack.ID, changed bool) error
}

// OnRestore is called after every restore that had a client key.
type OnRestore interface {
	Plugin
	OnRestore(ctx context.Context, clientKey string, result entitlement.Result, source RestoreSource) error
}

// ──────────────────────────────────────────────────
// Gateway hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived is called for every authenticated event.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, eventID, eventType string) error
}

// OnWebhookRejected is called when an event fails verification.
type OnWebhookRejected interface {
	Plugin
	OnWebhookRejected(ctx context.Context, err error) error
}

// OnGatewayError is called when a gateway call fails on a path that
// absorbs the error.
type OnGatewayError interface {
	Plugin
	OnGatewayError(ctx context.Context, op string, err error) error
}

// OnCheckoutCreated is called after a checkout session was created.
type OnCheckoutCreated interface {
	Plugin
	OnCheckoutCreated(ctx context.Context, clientKey string, packID pack.ID, sessionID string) error
}
