package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/invoice-review/internal/repo"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"gorm.io/gorm"
)

// QueueEntry is one distinct (invoice, status, reconciled-at) tuple across both result tables.
type QueueEntry struct {
	InvoiceID        string             `gorm:"column:invoice_id" json:"invoice_id"`
	ReviewStatus     enums.ReviewStatus `gorm:"column:review_status" json:"review_status"`
	LastReconciledAt *time.Time         `gorm:"column:last_reconciled_timestamp" json:"last_reconciled_timestamp"`
}

// Repository reads the automated matcher's output.
type Repository interface {
	QueueEntries(ctx context.Context, filter string) ([]QueueEntry, error)
	Results(ctx context.Context, table, filter string) ([]models.ReconcileResult, error)
	MismatchDetails(ctx context.Context, table, invoiceID string) (string, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a reconciliation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

// QueueEntries returns the union of distinct queue tuples from both result
// tables, most recently reconciled first.
func (r *repositoryImpl) QueueEntries(ctx context.Context, filter string) ([]QueueEntry, error) {
	var merged []QueueEntry
	for _, table := range []string{models.ReconcileItemsTable, models.ReconcileTotalsTable} {
		var rows []QueueEntry
		query := r.Table(ctx, table).Distinct("invoice_id", "review_status", "last_reconciled_timestamp")
		if filter != enums.ReviewFilterAll {
			query = query.Where("review_status = ?", filter)
		}
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", table, err)
		}
		merged = append(merged, rows...)
	}
	return unionEntries(merged), nil
}

func unionEntries(entries []QueueEntry) []QueueEntry {
	type key struct {
		invoiceID string
		status    enums.ReviewStatus
		at        int64
		hasAt     bool
	}
	seen := make(map[key]struct{}, len(entries))
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		k := key{invoiceID: entry.InvoiceID, status: entry.ReviewStatus}
		if entry.LastReconciledAt != nil {
			k.at, k.hasAt = entry.LastReconciledAt.UnixNano(), true
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastReconciledAt, out[j].LastReconciledAt
		switch {
		case a == nil && b == nil:
			return out[i].InvoiceID < out[j].InvoiceID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		}
		return out[i].InvoiceID < out[j].InvoiceID
	})
	return out
}

func (r *repositoryImpl) Results(ctx context.Context, table, filter string) ([]models.ReconcileResult, error) {
	var rows []models.ReconcileResult
	query := r.Table(ctx, table)
	if filter != enums.ReviewFilterAll {
		query = query.Where("review_status = ?", filter)
	}
	err := query.Order("last_reconciled_timestamp DESC").Order("invoice_id ASC").Find(&rows).Error
	return rows, err
}

// MismatchDetails returns the mismatch text of the first result row for the invoice, or "".
func (r *repositoryImpl) MismatchDetails(ctx context.Context, table, invoiceID string) (string, error) {
	var rows []models.ReconcileResult
	err := r.Table(ctx, table).
		Where("invoice_id = ?", invoiceID).
		Order("last_reconciled_timestamp DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0].MismatchDetails == nil {
		return "", nil
	}
	return *rows[0].MismatchDetails, nil
}
