package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loomline"

// Cron run results.
const (
	cronSucceeded = "success"
	cronFailed    = "failure"
)

// CronJobMetrics records scheduled job runs. The zero value and a nil
// pointer discard everything.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	findings *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: "cron", Name: name, Help: help}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time of one cron job run.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		runs:     prometheus.NewCounterVec(opts("job_runs_total", "Cron job runs by result."), []string{"job", "result"}),
		findings: prometheus.NewCounterVec(opts("job_findings_total", "Items a cron job flagged or cleaned up."), []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs, m.findings)
	return m
}

func (c *CronJobMetrics) enabled() bool {
	return c != nil && c.runs != nil
}

func (c *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if c.enabled() {
		c.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
	}
}

func (c *CronJobMetrics) IncSuccess(job string) { c.countRun(job, cronSucceeded) }

func (c *CronJobMetrics) IncFailure(job string) { c.countRun(job, cronFailed) }

func (c *CronJobMetrics) countRun(job, result string) {
	if c.enabled() {
		c.runs.WithLabelValues(normalizeLabel(job), result).Inc()
	}
}

// AddFindings ignores n <= 0.
func (c *CronJobMetrics) AddFindings(job string, n int) {
	if c.enabled() && n > 0 {
		c.findings.WithLabelValues(normalizeLabel(job)).Add(float64(n))
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
