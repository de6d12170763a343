package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics counts inbound webhook deliveries by outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook deliveries by provider, event type and outcome.",
	}, []string{"provider", "type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe records one delivery.
func (m *WebhookMetrics) Observe(provider, eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(labelOrUnknown(provider), labelOrUnknown(eventType), labelOrUnknown(outcome)).Inc()
}

// IdentityMetrics counts identity-provider propagation failures.
type IdentityMetrics struct {
	failures *prometheus.CounterVec
}

func NewIdentityMetrics(reg prometheus.Registerer) *IdentityMetrics {
	if reg == nil {
		return &IdentityMetrics{}
	}
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_sync_failures_total",
		Help: "Failed identity provider calls by operation.",
	}, []string{"operation"})
	reg.MustRegister(failures)
	return &IdentityMetrics{failures: failures}
}

func (m *IdentityMetrics) IncFailure(operation string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(labelOrUnknown(operation)).Inc()
}
