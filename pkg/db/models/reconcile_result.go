package models

import (
	"time"

	"github.com/angelmondragon/invoice-review/pkg/enums"
)

// ReconcileResult is one row of the automated matcher's output. Items and totals
// results share the same columns and live in separate tables.
type ReconcileResult struct {
	InvoiceID              string             `gorm:"column:invoice_id;not null" json:"invoice_id"`
	ReviewStatus           enums.ReviewStatus `gorm:"column:review_status;not null" json:"review_status"`
	MismatchDetails        *string            `gorm:"column:item_mismatch_details" json:"item_mismatch_details"`
	LastReconciledAt       *time.Time         `gorm:"column:last_reconciled_timestamp" json:"last_reconciled_timestamp"`
	ReviewedBy             *string            `gorm:"column:reviewed_by" json:"reviewed_by"`
	ReviewedAt             *time.Time         `gorm:"column:reviewed_timestamp" json:"reviewed_timestamp"`
	Notes                  *string            `gorm:"column:notes" json:"notes"`
	CorrectedInvoiceNumber *string            `gorm:"column:corrected_invoice_number" json:"corrected_invoice_number"`
}

const (
	ReconcileItemsTable  = "reconcile_results_items"
	ReconcileTotalsTable = "reconcile_results_totals"
)
