package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.Lock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "maintenance lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	return svc, nil
}

// Run starts with an immediate cycle, then one per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "maintenance.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job when the cluster lock is free. A failing job does
// not stop the ones after it; all failures come back joined.
func (s *Service) RunOnce(ctx context.Context) (err error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire maintenance lock: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "maintenance.skipped_lock_held")
		return nil
	}
	defer func() {
		// Release even when ctx was cancelled mid-cycle.
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			err = multierr.Append(err, fmt.Errorf("release maintenance lock: %w", relErr))
		}
	}()

	for i, job := range s.registry.Jobs() {
		if i > 0 && ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		if jobErr := s.runJob(ctx, job); jobErr != nil {
			err = multierr.Append(err, fmt.Errorf("job %s: %w", job.Name(), jobErr))
		}
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.Run(job.Name(), outcome, took)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"outcome":     outcome,
		"duration_ms": took.Milliseconds(),
	}), "maintenance.job_finished")
	return err
}
