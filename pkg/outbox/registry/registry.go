// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/outbox/payloads"
)

// EventDescriptor is the route for one event type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a row whose envelope and payload decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	documents := strings.TrimSpace(cfg.DocumentsTopic)
	reviews := strings.TrimSpace(cfg.ReviewsTopic)
	var missing []string
	if documents == "" {
		missing = append(missing, "documents")
	}
	if reviews == "" {
		missing = append(missing, "reviews")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pubsub topics required: %s", strings.Join(missing, ", "))
	}

	routes := []EventDescriptor{
		{
			EventType:      enums.EventDocumentUploaded,
			AggregateType:  enums.AggregateDocument,
			Topic:          documents,
			PayloadFactory: func() any { return &payloads.DocumentUploadedEvent{} },
		},
		{
			EventType:      enums.EventInvoiceReviewed,
			AggregateType:  enums.AggregateInvoice,
			Topic:          reviews,
			PayloadFactory: func() any { return &payloads.InvoiceReviewedEvent{} },
		},
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, route := range routes {
		reg.entries[route.EventType] = route
	}
	return reg, nil
}

// Topics returns the distinct routed topics in sorted order.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, len(r.entries))
	for _, desc := range r.entries {
		topics = append(topics, desc.Topic)
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is non-retryable: the row content will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.route(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) route(event models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return desc, fmt.Errorf("unsupported event type %q", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return desc, fmt.Errorf("%s expects aggregate %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case strings.TrimSpace(event.AggregateID) == "":
		return desc, errors.New("missing aggregate_id")
	}
	return desc, nil
}
