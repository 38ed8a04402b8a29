// Package observability provides a metrics plugin for the entitlement
// engine that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/pack"
	"github.com/xraph/entitle/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnGrant           = (*MetricsExtension)(nil)
	_ plugin.OnRestore         = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived = (*MetricsExtension)(nil)
	_ plugin.OnWebhookRejected = (*MetricsExtension)(nil)
	_ plugin.OnGatewayError    = (*MetricsExtension)(nil)
	_ plugin.OnCheckoutCreated = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide metrics. Register it as a plugin.
type MetricsExtension struct {
	// Grant metrics
	GrantApplied Counter
	GrantNoop    Counter

	// Restore metrics
	RestoreFromStore   Counter
	RestoreFromCache   Counter
	RestoreFromGateway Counter
	RestoreEmpty       Counter
	RestorePackCount   Histogram

	// Gateway metrics
	WebhookReceived Counter
	WebhookRejected Counter
	GatewayErrors   Counter
	CheckoutCreated Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided factory.
// PrometheusFactory is the stock factory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		GrantApplied: factory.Counter("entitle.grant.applied"),
		GrantNoop:    factory.Counter("entitle.grant.noop"),

		RestoreFromStore:   factory.Counter("entitle.restore.store"),
		RestoreFromCache:   factory.Counter("entitle.restore.cache"),
		RestoreFromGateway: factory.Counter("entitle.restore.gateway"),
		RestoreEmpty:       factory.Counter("entitle.restore.empty"),
		RestorePackCount:   factory.Histogram("entitle.restore.packs"),

		WebhookReceived: factory.Counter("entitle.webhook.received"),
		WebhookRejected: factory.Counter("entitle.webhook.rejected"),
		GatewayErrors:   factory.Counter("entitle.gateway.errors"),
		CheckoutCreated: factory.Counter("entitle.checkout.created"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnGrant implements plugin.OnGrant.
func (m *MetricsExtension) OnGrant(_ context.Context, _ string, _ pack.ID, changed bool) error {
	if changed {
		m.GrantApplied.Inc()
	} else {
		m.GrantNoop.Inc()
	}
	return nil
}

// OnRestore implements plugin.OnRestore.
func (m *MetricsExtension) OnRestore(_ context.Context, _ string, result entitlement.Result, source plugin.RestoreSource) error {
	switch source {
	case plugin.SourceStore:
		m.RestoreFromStore.Inc()
	case plugin.SourceCache:
		m.RestoreFromCache.Inc()
	case plugin.SourceGateway:
		m.RestoreFromGateway.Inc()
	}
	if result.IsEmpty() {
		m.RestoreEmpty.Inc()
	}
	m.RestorePackCount.Observe(float64(len(result.Packs)))
	return nil
}

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(_ context.Context, _, _ string) error {
	m.WebhookReceived.Inc()
	return nil
}

// OnWebhookRejected implements plugin.OnWebhookRejected.
func (m *MetricsExtension) OnWebhookRejected(_ context.Context, _ error) error {
	m.WebhookRejected.Inc()
	return nil
}

// OnGatewayError implements plugin.OnGatewayError.
func (m *MetricsExtension) OnGatewayError(_ context.Context, _ string, _ error) error {
	m.GatewayErrors.Inc()
	return nil
}

// OnCheckoutCreated implements plugin.OnCheckoutCreated.
func (m *MetricsExtension) OnCheckoutCreated(_ context.Context, _ string, _ pack.ID, _ string) error {
	m.CheckoutCreated.Inc()
	return nil
}
