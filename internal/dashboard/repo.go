package dashboard

import (
	"context"

	"github.com/angelmondragon/invoice-review/internal/repo"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Aggregates is the raw result of the metrics query.
type Aggregates struct {
	TotalInvoiceCount          int64               `gorm:"column:total_invoice_count"`
	GrandTotalAmount           decimal.NullDecimal `gorm:"column:grand_total_amount"`
	ReconciledInvoiceCount     int64               `gorm:"column:reconciled_invoice_count"`
	TotalReconciledAmount      decimal.NullDecimal `gorm:"column:total_reconciled_amount"`
	AutoReconciledInvoiceCount int64               `gorm:"column:auto_reconciled_invoice_count"`
}

// Repository runs the reconciliation metrics aggregate.
type Repository interface {
	Aggregates(ctx context.Context) (*Aggregates, error)
}

type repositoryImpl struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

const aggregatesSQL = `
SELECT
  COUNT(DISTINCT tt.invoice_id) AS total_invoice_count,
  SUM(tt.total) AS grand_total_amount,
  COUNT(DISTINCT CASE
    WHEN EXISTS (SELECT 1 FROM gold_invoice_totals git WHERE git.invoice_id = tt.invoice_id)
     AND EXISTS (SELECT 1 FROM gold_invoice_items gii WHERE gii.invoice_id = tt.invoice_id)
    THEN tt.invoice_id
  END) AS reconciled_invoice_count,
  COUNT(DISTINCT CASE
    WHEN EXISTS (SELECT 1 FROM gold_invoice_totals git WHERE git.invoice_id = tt.invoice_id AND git.reviewed_by = @auto)
     AND EXISTS (SELECT 1 FROM gold_invoice_items gii WHERE gii.invoice_id = tt.invoice_id AND gii.reviewed_by = @auto)
    THEN tt.invoice_id
  END) AS auto_reconciled_invoice_count,
  SUM(CASE
    WHEN EXISTS (SELECT 1 FROM gold_invoice_totals git WHERE git.invoice_id = tt.invoice_id)
     AND EXISTS (SELECT 1 FROM gold_invoice_items gii WHERE gii.invoice_id = tt.invoice_id)
    THEN tt.total
    ELSE 0
  END) AS total_reconciled_amount
FROM transact_totals tt`

func (r *repositoryImpl) Aggregates(ctx context.Context) (*Aggregates, error) {
	var row Aggregates
	err := r.DB(ctx).Raw(aggregatesSQL, map[string]any{"auto": enums.AutoReconciledReviewer}).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
