package jobs

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the processor's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	processed    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Jobs whose handler returned successfully.",
		}, []string{"type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Handler failures, including ones that were retried.",
		}, []string{"type"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_dead_lettered_total",
			Help: "Jobs moved to the dead set.",
		}, []string{"type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobs_handler_duration_seconds",
			Help:    "Handler latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.processed, m.failed, m.deadLettered, m.duration)
	}
	return m
}

func (m *Metrics) observe(jobType string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(jobType).Observe(seconds)
	if err != nil {
		m.failed.WithLabelValues(jobType).Inc()
		return
	}
	m.processed.WithLabelValues(jobType).Inc()
}

func (m *Metrics) deadLetter(jobType string) {
	if m == nil {
		return
	}
	m.deadLettered.WithLabelValues(jobType).Inc()
}
