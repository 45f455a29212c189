package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	payloadBytes := mustMarshal(t, payloads.InvoiceReviewedEvent{
		InvoiceID:  "INV-100",
		Source:     enums.SourceExtracted,
		ReviewedBy: "alice",
		ItemCount:  3,
	})

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoiceReviewed,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   "INV-100",
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "reviews-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.InvoiceReviewedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.InvoiceID != "INV-100" || payload.ItemCount != 3 || payload.Source != enums.SourceExtracted {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryRoutesDocumentsTopic(t *testing.T) {
	reg := newTestEventRegistry(t)
	event := models.OutboxEvent{
		EventType:     enums.EventDocumentUploaded,
		AggregateType: enums.AggregateDocument,
		AggregateID:   "invoice_42.pdf",
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.DocumentUploadedEvent{FileName: "invoice_42.pdf"})),
	}
	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "documents-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}

	topics := reg.Topics()
	if len(topics) != 2 || topics[0] != "documents-topic" || topics[1] != "reviews-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestEventRegistryRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     "order_created",
			AggregateType: enums.AggregateInvoice,
			AggregateID:   "INV-1",
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventInvoiceReviewed,
			AggregateType: enums.AggregateDocument,
			AggregateID:   "INV-1",
			Payload:       mustEnvelope(t, []byte(`{"invoice_id":"INV-1"}`)),
		},
		"missing aggregate": {
			EventType:     enums.EventInvoiceReviewed,
			AggregateType: enums.AggregateInvoice,
			Payload:       mustEnvelope(t, []byte(`{"invoice_id":"INV-1"}`)),
		},
		"null payload": {
			EventType:     enums.EventInvoiceReviewed,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   "INV-1",
			Payload:       mustEnvelope(t, []byte("null")),
		},
	}

	for name, event := range cases {
		_, err := reg.Resolve(event)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !IsNonRetryable(err) {
			t.Fatalf("%s: expected non-retryable error, got %T", name, err)
		}
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{DocumentsTopic: "docs"}); err == nil || !strings.Contains(err.Error(), "reviews") {
		t.Fatalf("expected missing reviews topic error, got %v", err)
	}
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil || !strings.Contains(err.Error(), "documents, reviews") {
		t.Fatalf("expected both topics reported, got %v", err)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		DocumentsTopic: "documents-topic",
		ReviewsTopic:   "reviews-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func TestIsNonRetryableSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("publish: %w", NewNonRetryableError(errors.New("bad payload")))
	if !IsNonRetryable(wrapped) {
		t.Fatal("expected wrapped non-retryable error to be detected")
	}
	if IsNonRetryable(errors.New("deadline exceeded")) {
		t.Fatal("plain errors are retryable")
	}
}
