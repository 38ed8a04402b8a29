package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit            []OnInit
	onShutdown        []OnShutdown
	onGrant           []OnGrant
	onRestore         []OnRestore
	onWebhookReceived []OnWebhookReceived
	onWebhookRejected []OnWebhookRejected
	onGatewayError    []OnGatewayError
	onCheckoutCreated []OnCheckoutCreated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnGrant); ok {
		r.onGrant = append(r.onGrant, v)
	}
	if v, ok := p.(OnRestore); ok {
		r.onRestore = append(r.onRestore, v)
	}
	if v, ok := p.(OnWebhookReceived); ok {
		r.onWebhookReceived = append(r.onWebhookReceived, v)
	}
	if v, ok := p.(OnWebhookRejected); ok {
		r.onWebhookRejected = append(r.onWebhookRejected, v)
	}
	if v, ok := p.(OnGatewayError); ok {
		r.onGatewayError = append(r.onGatewayError, v)
	}
	if v, ok := p.(OnCheckoutCreated); ok {
		r.onCheckoutCreated = append(r.onCheckoutCreated, v)
	}

	r.logger.Debug("plugin registered", "plugin", p.Name())
	return nil
}

// Get returns the plugin registered under name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p.Name(), func() error { return p.OnInit(ctx, engine) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p.Name(), func() error { return p.OnShutdown(ctx) })
	}
}

// EmitGrant calls OnGrant for all plugins that implement it.
func (r *Registry) EmitGrant(ctx context.Context, clientKey string, packID pack.ID, changed bool) {
	r.mu.RLock()
	plugins := r.onGrant
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnGrant", p.Name(), func() error { return p.OnGrant(ctx, clientKey, packID, changed) })
	}
}

// EmitRestore calls OnRestore for all plugins that implement it.
func (r *Registry) EmitRestore(ctx context.Context, clientKey string, result entitlement.Result, source RestoreSource) {
	r.mu.RLock()
	plugins := r.onRestore
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnRestore", p.Name(), func() error { return p.OnRestore(ctx, clientKey, result, source) })
	}
}

// EmitWebhookReceived calls OnWebhookReceived for all plugins that implement it.
func (r *Registry) EmitWebhookReceived(ctx context.Context, eventID, eventType string) {
	r.mu.RLock()
	plugins := r.onWebhookReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnWebhookReceived", p.Name(), func() error { return p.OnWebhookReceived(ctx, eventID, eventType) })
	}
}

// EmitWebhookRejected calls OnWebhookRejected for all plugins that implement it.
func (r *Registry) EmitWebhookRejected(ctx context.Context, err error) {
	r.mu.RLock()
	plugins := r.onWebhookRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnWebhookRejected", p.Name(), func() error { return p.OnWebhookRejected(ctx, err) })
	}
}

// EmitGatewayError calls OnGatewayError for all plugins that implement it.
func (r *Registry) EmitGatewayError(ctx context.Context, op string, err error) {
	r.mu.RLock()
	plugins := r.onGatewayError
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnGatewayError", p.Name(), func() error { return p.OnGatewayError(ctx, op, err) })
	}
}

// EmitCheckoutCreated calls OnCheckoutCreated for all plugins that implement it.
func (r *Registry) EmitCheckoutCreated(ctx context.Context, clientKey string, packID pack.ID, sessionID string) {
	r.mu.RLock()
	plugins := r.onCheckoutCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnCheckoutCreated", p.Name(), func() error { return p.OnCheckoutCreated(ctx, clientKey, packID, sessionID) })
	}
}

func (r *Registry) dispatch(ctx context.Context, hook, pluginName string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout. A hook that
// overruns is abandoned, not cancelled.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
