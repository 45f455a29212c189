package maintenance

import (
	"context"
	"fmt"

	"github.com/angelmondragon/invoice-review/internal/reconciliation"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// QueueWarmJob drops the cached reconciliation queues and reloads the
// Pending Review queue, so results reconciled by the upstream pipeline show
// up without waiting for the cache TTL.
type QueueWarmJob struct {
	logg  *logger.Logger
	queue reconciliation.Service
}

func NewQueueWarmJob(logg *logger.Logger, queue reconciliation.Service) (*QueueWarmJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if queue == nil {
		return nil, fmt.Errorf("reconciliation service required")
	}
	return &QueueWarmJob{logg: logg, queue: queue}, nil
}

func (j *QueueWarmJob) Name() string { return "queue-warm" }

func (j *QueueWarmJob) Run(ctx context.Context) error {
	if err := j.queue.Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate queue cache: %w", err)
	}
	queue, err := j.queue.Queue(ctx, string(enums.ReviewStatusPending))
	if err != nil {
		return fmt.Errorf("reload pending queue: %w", err)
	}
	if queue.Warning != "" {
		return fmt.Errorf("reload pending queue: %s", queue.Warning)
	}
	j.logg.Info(j.logg.WithField(ctx, "pending_invoices", len(queue.InvoiceIDs)), "pending queue warmed")
	return nil
}
