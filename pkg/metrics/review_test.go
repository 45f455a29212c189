package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestReviewMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReviewMetrics(reg)

	m.CacheLookup("queue", "hit")
	m.CacheLookup("queue", "hit")
	m.Submission("extracted", "success")
	m.ObserveCompletion("ok", 150*time.Millisecond)
	m.DocumentLoad("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "review_cache_lookups_total", "result", "hit"); err != nil {
		t.Fatalf("fetch cache lookups: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 cache hits, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "review_submissions_total", "source", "extracted"); err != nil {
		t.Fatalf("fetch submissions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 submission, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "review_document_loads_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch document loads: %v", err)
	} else if got != 1 {
		t.Fatalf("expected empty label normalized to unknown, got %f", got)
	}

	mf := findMetricFamily(mfs, "review_summary_completion_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() <= 0 {
		t.Fatalf("expected completion latency to be observed")
	}
}

func TestNilReviewMetricsIsNoop(t *testing.T) {
	var m *ReviewMetrics
	m.CacheLookup("queue", "miss")
	m.Submission("transactional", "failure")
	NewReviewMetrics(nil).Published("topic", "ok")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.Run("outbox-retention", "success", time.Second)
	m.Run("outbox-retention", "failure", time.Second)
	m.Run("outbox-retention", "success", time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "review_maintenance_job_runs_total", "outcome", "success"); err != nil {
		t.Fatalf("fetch job runs: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 successful runs, got %f", got)
	}

	var nilMetrics *JobMetrics
	nilMetrics.Run("noop", "success", 0)
}
