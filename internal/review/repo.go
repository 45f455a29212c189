package review

import (
	"context"
	"time"

	"github.com/angelmondragon/invoice-review/internal/repo"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewUpdate is written onto every reconciliation row of a reviewed invoice.
type ReviewUpdate struct {
	ReviewedBy             string
	ReviewedAt             time.Time
	Notes                  string
	CorrectedInvoiceNumber string
}

// Repository writes the gold tables and review status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ReplaceGoldItems(ctx context.Context, invoiceID string, items []models.GoldItem) error
	UpsertGoldTotals(ctx context.Context, totals models.GoldTotals) error
	MarkReviewed(ctx context.Context, invoiceID string, update ReviewUpdate) (int64, error)
	GoldItems(ctx context.Context, invoiceID string) ([]models.GoldItem, error)
	GoldTotals(ctx context.Context, invoiceID string) (*models.GoldTotals, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a gold repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{Base: r.Base.WithTx(tx)}
}

// ReplaceGoldItems deletes the invoice's gold items and inserts items.
func (r *repositoryImpl) ReplaceGoldItems(ctx context.Context, invoiceID string, items []models.GoldItem) error {
	if err := r.DB(ctx).Where("invoice_id = ?", invoiceID).Delete(&models.GoldItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&items).Error
}

// UpsertGoldTotals inserts the invoice's gold totals row or overwrites the existing one.
func (r *repositoryImpl) UpsertGoldTotals(ctx context.Context, totals models.GoldTotals) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"invoice_date", "subtotal", "tax", "total", "reviewed_by", "reviewed_timestamp", "notes",
		}),
	}).Create(&totals).Error
}

// MarkReviewed flips every reconciliation row of the invoice, in both result
// tables, to Reviewed and returns the number of rows touched.
func (r *repositoryImpl) MarkReviewed(ctx context.Context, invoiceID string, update ReviewUpdate) (int64, error) {
	values := map[string]any{
		"review_status":      enums.ReviewStatusReviewed,
		"reviewed_by":        update.ReviewedBy,
		"reviewed_timestamp": update.ReviewedAt,
		"notes":              update.Notes,
	}
	if update.CorrectedInvoiceNumber != "" {
		values["corrected_invoice_number"] = update.CorrectedInvoiceNumber
	}
	var touched int64
	for _, table := range []string{models.ReconcileItemsTable, models.ReconcileTotalsTable} {
		res := r.Table(ctx, table).Where("invoice_id = ?", invoiceID).Updates(values)
		if res.Error != nil {
			return touched, res.Error
		}
		touched += res.RowsAffected
	}
	return touched, nil
}

func (r *repositoryImpl) GoldItems(ctx context.Context, invoiceID string) ([]models.GoldItem, error) {
	var rows []models.GoldItem
	err := r.DB(ctx).Where("invoice_id = ?", invoiceID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// GoldTotals returns nil when the invoice has no gold totals row.
func (r *repositoryImpl) GoldTotals(ctx context.Context, invoiceID string) (*models.GoldTotals, error) {
	var rows []models.GoldTotals
	if err := r.DB(ctx).Where("invoice_id = ?", invoiceID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
