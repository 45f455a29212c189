package payloads

import (
	"time"

	"github.com/angelmondragon/invoice-review/pkg/enums"
)

// DocumentUploadedEvent tells the extraction pipeline a new document is staged.
type DocumentUploadedEvent struct {
	FileName    string    `json:"file_name"`
	ObjectPath  string    `json:"object_path"`
	Bucket      string    `json:"bucket"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// InvoiceReviewedEvent is emitted when a reviewer confirms the gold copy of an invoice.
type InvoiceReviewedEvent struct {
	InvoiceID              string                 `json:"invoice_id"`
	Source                 enums.SubmissionSource `json:"source"`
	ReviewedBy             string                 `json:"reviewed_by"`
	ReviewedAt             time.Time              `json:"reviewed_at"`
	ItemCount              int                    `json:"item_count"`
	Total                  string                 `json:"total,omitempty"`
	CorrectedInvoiceNumber string                 `json:"corrected_invoice_number,omitempty"`
}
