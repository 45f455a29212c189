package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond

	reasonNonRetryable = "non_retryable"
	reasonMaxAttempts  = "max_attempts"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForUpdate(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminal(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.ReviewMetrics
}

// Service drains outbox_events into Pub/Sub. Each row ends a pass delivered,
// scheduled for retry, or parked at the attempt ceiling.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	metrics          *metrics.ReviewMetrics
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

type deliveryOutcome int

const (
	outcomeDelivered deliveryOutcome = iota
	outcomeRetry
	outcomeParked
)

type batchTally struct {
	delivered int
	retried   int
	parked    int
}

func (t *batchTally) add(outcome deliveryOutcome) {
	switch outcome {
	case outcomeDelivered:
		t.delivered++
	case outcomeRetry:
		t.retried++
	case outcomeParked:
		t.parked++
	}
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "config required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	case params.PubSub == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pubsub client required")
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox repository required")
	case params.Registry == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event registry required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		client := params.PubSub
		factory = func(topic string) publisher {
			return wrapPublisher(client.Publisher(topic))
		}
	}

	opts := params.Config.Outbox
	svc := &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		metrics:          params.Metrics,
		publisherFactory: factory,
		batchSize:        opts.BatchSize,
		maxAttempts:      opts.MaxAttempts,
		pollInterval:     time.Duration(opts.PollIntervalMS) * time.Millisecond,
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = defaultPollInterval
	}
	return svc, nil
}

// Run polls until ctx is cancelled. Full batches are followed immediately by
// the next fetch; an empty fetch waits one poll interval, and a failed batch
// backs off exponentially up to maxIdleBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable")
		}
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case processed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}

		if err := sleepCtx(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

// processBatch locks up to batchSize pending rows and settles each of them in
// the same transaction. It reports whether any row was fetched.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var tally batchTally
	fetched := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForUpdate(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch pending outbox rows: %w", err)
		}
		fetched = len(events)
		for _, event := range events {
			outcome, err := s.deliver(ctx, tx, event)
			if err != nil {
				return err
			}
			tally.add(outcome)
		}
		return nil
	})
	if fetched > 0 {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"fetched":   fetched,
			"delivered": tally.delivered,
			"retried":   tally.retried,
			"parked":    tally.parked,
		}), "outbox batch settled")
	}
	return fetched > 0, err
}

// deliver publishes one row and records the result on it. The returned error
// is reserved for bookkeeping failures, which abort the batch transaction.
func (s *Service) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (deliveryOutcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeParked, s.park(ctx, tx, event, "", reasonNonRetryable, err)
	}
	topic := resolved.Descriptor.Topic

	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublished(tx, event.ID); err != nil {
			return outcomeDelivered, fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		s.metrics.Published(topic, "ok")
		s.logg.Info(s.eventContext(ctx, event, topic), "outbox event published")
		return outcomeDelivered, nil
	}

	if registry.IsNonRetryable(pubErr) {
		return outcomeParked, s.park(ctx, tx, event, topic, reasonNonRetryable, pubErr)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return outcomeParked, s.park(ctx, tx, event, topic, reasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, pubErr))
	}

	ctx = s.logg.WithField(s.eventContext(ctx, event, topic), "error", pubErr.Error())
	s.logg.Warn(ctx, "outbox publish failed, will retry")
	s.metrics.Published(topic, "retry")
	if err := s.repo.MarkFailed(tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark %s failed: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, topic, reason string, cause error) error {
	ctx = s.logg.WithFields(s.eventContext(ctx, event, topic), map[string]any{
		"park_reason": reason,
		"error":       cause.Error(),
	})
	s.logg.Warn(ctx, "outbox event parked")
	s.metrics.Published(topic, reason)
	if err := s.repo.MarkTerminal(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes lets subscribers filter without decoding the payload.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	attrs := map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID,
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	switch event.AggregateType {
	case enums.AggregateInvoice:
		attrs["invoice_id"] = event.AggregateID
	case enums.AggregateDocument:
		attrs["file_name"] = event.AggregateID
	}
	if envelope.Actor != nil && envelope.Actor.Reviewer != "" {
		attrs["reviewer"] = envelope.Actor.Reviewer
	}
	return attrs
}

func (s *Service) eventContext(ctx context.Context, event models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return s.logg.WithFields(ctx, fields)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	inner *gcppubsub.Publisher
}

func wrapPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{inner: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.inner.Publish(ctx, msg)
}
