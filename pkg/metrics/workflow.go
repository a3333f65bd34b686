package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics tracks stage transitions and vendor handoffs.
type WorkflowMetrics struct {
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	handoff     *prometheus.HistogramVec
	ledger      *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow collectors. A nil registerer
// yields a no-op recorder.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	m := &WorkflowMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "transitions_total",
			Help:      "Committed stage transitions.",
		}, []string{"action", "from", "to"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stage",
			Name:      "transition_errors_total",
			Help:      "Stage commands refused, by error code.",
		}, []string{"action", "code"}),
		handoff: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outsourcing",
			Name:      "handoff_duration_seconds",
			Help:      "Latency of challan issuance during vendor handoff.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"direction", "outcome"}),
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rejections",
			Name:      "units_logged_total",
			Help:      "Rejected units attributed to a cause.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.transitions, m.rejected, m.handoff, m.ledger)
	return m
}

func (m *WorkflowMetrics) ObserveTransition(action, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(action), normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *WorkflowMetrics) ObserveRefusal(action, code string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(action), normalizeLabel(code)).Inc()
}

func (m *WorkflowMetrics) ObserveHandoff(direction string, d time.Duration, err error) {
	if m == nil || m.handoff == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.handoff.WithLabelValues(normalizeLabel(direction), outcome).Observe(d.Seconds())
}

func (m *WorkflowMetrics) AddRejectedUnits(stage string, qty int) {
	if m == nil || m.ledger == nil || qty <= 0 {
		return
	}
	m.ledger.WithLabelValues(normalizeLabel(stage)).Add(float64(qty))
}
