package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox delivery outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics counts outbox deliveries by topic and outcome.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox counters; a nil registerer is a no-op.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox rows processed by the publisher.",
		}, []string{"topic", "outcome"}),
	}
	reg.MustRegister(m.deliveries)
	return m
}

// ObserveDelivery records one processed row.
func (m *OutboxMetrics) ObserveDelivery(topic, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(topic), outcome).Inc()
}
