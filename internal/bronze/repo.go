package bronze

import (
	"context"

	"github.com/angelmondragon/invoice-review/internal/repo"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"gorm.io/gorm"
)

// Repository reads the raw bronze tables for a single invoice.
type Repository interface {
	TransactItems(ctx context.Context, invoiceID string) ([]models.LineItem, error)
	TransactTotals(ctx context.Context, invoiceID string) ([]models.Totals, error)
	DocAIItems(ctx context.Context, invoiceID string) ([]models.LineItem, error)
	DocAITotals(ctx context.Context, invoiceID string) ([]models.DocAITotals, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a bronze repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) TransactItems(ctx context.Context, invoiceID string) ([]models.LineItem, error) {
	return r.items(ctx, models.TransactItem{}.TableName(), invoiceID)
}

func (r *repositoryImpl) DocAIItems(ctx context.Context, invoiceID string) ([]models.LineItem, error) {
	return r.items(ctx, models.DocAIItem{}.TableName(), invoiceID)
}

func (r *repositoryImpl) TransactTotals(ctx context.Context, invoiceID string) ([]models.Totals, error) {
	var rows []models.Totals
	err := r.Table(ctx, models.TransactTotals{}.TableName()).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) DocAITotals(ctx context.Context, invoiceID string) ([]models.DocAITotals, error) {
	var rows []models.DocAITotals
	err := r.DB(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) items(ctx context.Context, table, invoiceID string) ([]models.LineItem, error) {
	var rows []models.LineItem
	err := r.Table(ctx, table).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
