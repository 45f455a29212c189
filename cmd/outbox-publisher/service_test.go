package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/outbox/payloads"
	"github.com/angelmondragon/invoice-review/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventInvoiceReviewed,
				AggregateType: enums.AggregateInvoice,
				AggregateID:   "INV-" + uuid.NewString()[:8],
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventInvoiceReviewed,
				AggregateType: enums.AggregateInvoice,
				AggregateID:   "INV-" + uuid.NewString()[:8],
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "reviews-topic",
			AggregateType: enums.AggregateInvoice,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.InvoiceReviewedEvent{},
	}
	eventRegistry := &fakeRegistry{resolved: resolved}
	service := newTestService(t, repo, pub, eventRegistry, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestPublishResolvedSetsMessageAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventDocumentUploaded,
		AggregateType: enums.AggregateDocument,
		AggregateID:   "invoice_42.pdf",
		Payload:       mustEnvelopePayload(t, "uploaded"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "documents-topic",
			AggregateType: enums.AggregateDocument,
		},
		Payload: &payloads.DocumentUploadedEvent{},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, nil)
	service.publisherFactory = func(topic string) publisher {
		if topic != "documents-topic" {
			t.Fatalf("unexpected topic %q", topic)
		}
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["aggregate_id"] != "invoice_42.pdf" || attrs["event_type"] != "document_uploaded" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if attrs["file_name"] != "invoice_42.pdf" {
		t.Fatalf("expected file_name attribute, got %v", attrs)
	}
	if !bytes.Equal(pub.messages[0].Data, event.Payload) {
		t.Fatalf("message data should be the stored envelope")
	}
	if len(repo.published) != 1 {
		t.Fatalf("expected published row recorded once, got %d", len(repo.published))
	}
}

func TestServiceProcessBatchParksNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoiceReviewed,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   "INV-" + uuid.NewString()[:8],
		Payload:       mustEnvelopePayload(t, "nonretryable"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	registry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakePublisher{}, registry, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row parked as terminal, got %v", repo.terminal)
	}
	if repo.terminalAttempts != 5 {
		t.Fatalf("expected terminal attempts 5, got %d", repo.terminalAttempts)
	}
	if len(repo.published) != 0 || len(repo.failed) != 0 {
		t.Fatalf("terminal row must not be marked published or failed")
	}
}

func TestServiceProcessBatchParksOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoiceReviewed,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   "INV-" + uuid.NewString()[:8],
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
		},
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "reviews-topic",
			AggregateType: enums.AggregateInvoice,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    event.ID.String(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.InvoiceReviewedEvent{},
	}
	registry := &fakeRegistry{resolved: resolved}
	service := newTestService(t, repo, pub, registry, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row parked after max attempts, got %v", repo.terminal)
	}
	if repo.terminalAttempts != 2 {
		t.Fatalf("expected terminal attempts 2, got %d", repo.terminalAttempts)
	}
}

func TestMessageAttributesCarryInvoiceAndReviewer(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoiceReviewed,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   "INV-1001",
	}
	attrs := messageAttributes(event, outbox.PayloadEnvelope{
		EventID: "evt-1",
		Actor:   &outbox.ActorRef{Reviewer: "alice"},
	})
	if attrs["invoice_id"] != "INV-1001" {
		t.Fatalf("expected invoice_id attribute, got %v", attrs)
	}
	if attrs["reviewer"] != "alice" || attrs["event_id"] != "evt-1" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["file_name"]; ok {
		t.Fatalf("invoice events must not carry file_name")
	}
}

func TestBatchTallyCountsOutcomes(t *testing.T) {
	var tally batchTally
	for _, outcome := range []deliveryOutcome{outcomeDelivered, outcomeRetry, outcomeDelivered, outcomeParked} {
		tally.add(outcome)
	}
	if tally.delivered != 2 || tally.retried != 1 || tally.parked != 1 {
		t.Fatalf("unexpected tally %+v", tally)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
}

func (f *fakeRepo) FetchUnpublishedForUpdate(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminal(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}
