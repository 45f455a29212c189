package maintenance

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "maintenance-test", Output: io.Discard})
}

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestRunOnceRunsEveryJobEvenOnFailure(t *testing.T) {
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	after := &countingJob{name: "after"}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(ok, failing, after),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = svc.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "job failing: boom") {
		t.Fatalf("expected the failing job reported, got %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 || after.runs != 1 {
		t.Fatalf("unexpected runs ok=%d failing=%d after=%d", ok.runs, failing.runs, after.runs)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("expected lock released once, held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "job"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "job"}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Registry: NewRegistry(job), Lock: &fakeLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the startup cycle to run once, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected missing lock error")
	}
}

func TestRegistryIgnoresNilAndCopies(t *testing.T) {
	a := &countingJob{name: "a"}
	registry := NewRegistry(a, nil)
	jobs := registry.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("internal slice leaked")
	}
}

func TestRunOnceStopsBetweenJobsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &cancellingJob{cancel: cancel}
	second := &countingJob{name: "second"}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Registry: NewRegistry(first, second), Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := svc.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if second.runs != 0 {
		t.Fatal("jobs after cancellation must not run")
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released after cancellation, releases=%d", lock.releases)
	}
}

type cancellingJob struct {
	cancel context.CancelFunc
}

func (j *cancellingJob) Name() string { return "cancelling" }

func (j *cancellingJob) Run(context.Context) error {
	j.cancel()
	return nil
}
