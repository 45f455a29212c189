package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReviewMetrics records what reviewers and background publishers do.
type ReviewMetrics struct {
	cacheLookups       *prometheus.CounterVec
	completions        *prometheus.CounterVec
	completionDuration prometheus.Histogram
	submissions        *prometheus.CounterVec
	documentLoads      *prometheus.CounterVec
	uploads            *prometheus.CounterVec
	published          *prometheus.CounterVec
}

// NewReviewMetrics registers the review metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewReviewMetrics(reg prometheus.Registerer) *ReviewMetrics {
	if reg == nil {
		return &ReviewMetrics{}
	}
	m := &ReviewMetrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_cache_lookups_total",
			Help: "Cache lookups by cache name and result (hit, miss, error).",
		}, []string{"cache", "result"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_summary_completions_total",
			Help: "Mismatch summary completions by outcome.",
		}, []string{"outcome"}),
		completionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "review_summary_completion_seconds",
			Help:    "Latency of the completion service.",
			Buckets: prometheus.DefBuckets,
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_submissions_total",
			Help: "Review submissions by source and outcome.",
		}, []string{"source", "outcome"}),
		documentLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_document_loads_total",
			Help: "Document viewer loads by outcome.",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_document_uploads_total",
			Help: "Staged document uploads by outcome.",
		}, []string{"outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_outbox_published_total",
			Help: "Outbox rows handled by the publisher, by topic and outcome.",
		}, []string{"topic", "outcome"}),
	}
	reg.MustRegister(m.cacheLookups, m.completions, m.completionDuration, m.submissions, m.documentLoads, m.uploads, m.published)
	return m
}

func (m *ReviewMetrics) CacheLookup(cache, result string) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	m.cacheLookups.WithLabelValues(normalizeLabel(cache), normalizeLabel(result)).Inc()
}

// ObserveCompletion records one completion call and its latency.
func (m *ReviewMetrics) ObserveCompletion(outcome string, took time.Duration) {
	if m == nil || m.completions == nil {
		return
	}
	m.completions.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.completionDuration.Observe(took.Seconds())
}

func (m *ReviewMetrics) Submission(source, outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (m *ReviewMetrics) DocumentLoad(outcome string) {
	if m == nil || m.documentLoads == nil {
		return
	}
	m.documentLoads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ReviewMetrics) Upload(outcome string) {
	if m == nil || m.uploads == nil {
		return
	}
	m.uploads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *ReviewMetrics) Published(topic, outcome string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(topic), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
