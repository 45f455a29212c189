package enums

import "fmt"

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateInvoice  OutboxAggregateType = "invoice"
	AggregateDocument OutboxAggregateType = "document"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateInvoice, AggregateDocument:
		return true
	}
	return false
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	// EventDocumentUploaded fires once an upload lands in the staging bucket.
	EventDocumentUploaded OutboxEventType = "document_uploaded"
	// EventInvoiceReviewed fires when a reviewer confirms the gold copy.
	EventInvoiceReviewed OutboxEventType = "invoice_reviewed"
)

func (e OutboxEventType) IsValid() bool {
	switch e {
	case EventDocumentUploaded, EventInvoiceReviewed:
		return true
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
