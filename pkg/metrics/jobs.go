package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records scheduled maintenance runs.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewJobMetrics registers the maintenance job metrics. A nil registerer
// yields a no-op recorder.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_maintenance_job_runs_total",
			Help: "Maintenance job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_maintenance_job_duration_seconds",
			Help:    "Duration of maintenance jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration)
	return m
}

// Run records one finished job run.
func (m *JobMetrics) Run(job, outcome string, took time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(took.Seconds())
}
