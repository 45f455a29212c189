package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	var err error
	if !e.EventType.IsValid() {
		err = multierr.Append(err, fmt.Errorf("unknown event type %q", e.EventType))
	}
	if !e.AggregateType.IsValid() {
		err = multierr.Append(err, fmt.Errorf("unknown aggregate type %q", e.AggregateType))
	}
	if strings.TrimSpace(e.AggregateID) == "" {
		err = multierr.Append(err, errors.New("aggregate id required"))
	}
	if e.Data == nil {
		err = multierr.Append(err, errors.New("event data required"))
	}
	return err
}

func (e DomainEvent) envelope() (PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    e.Version,
		EventID:    uuid.NewString(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = envelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}

// Emitter queues events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit writes the event row with tx, so it commits or rolls back together
// with the domain change that caused it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return fmt.Errorf("invalid outbox event: %w", err)
	}
	env, err := event.envelope()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	})
	s.logg.Debug(ctx, "outbox.queued")
	return nil
}
