package maintenance

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-review/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Outbox    outboxPruner
	Retention time.Duration
	// ParkedAttempts is the attempt count at which the publisher stops
	// retrying a row; parked rows past the cutoff are pruned too.
	ParkedAttempts int
	Clock          func() time.Time
}

// OutboxRetentionJob prunes delivered and parked outbox rows.
type OutboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	outbox    outboxPruner
	retention time.Duration
	parked    int
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionParams) (*OutboxRetentionJob, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.ParkedAttempts <= 0:
		return nil, fmt.Errorf("parked attempt count must be positive")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &OutboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		outbox:    params.Outbox,
		retention: retention,
		parked:    params.ParkedAttempts,
		now:       now,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.outbox.DeletePublishedBefore(tx, cutoff, j.parked)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox retention cleanup complete")
	return nil
}
