package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-review/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForUpdate locks a batch of pending rows so concurrent
// publishers skip them. Must run inside a transaction.
func (r *Repository) FetchUnpublishedForUpdate(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := tx.Raw(`
SELECT * FROM outbox_events
WHERE published_at IS NULL AND attempt_count < ?
ORDER BY created_at ASC, id ASC
LIMIT ?
FOR UPDATE SKIP LOCKED`, maxAttempts, limit).Scan(&rows).Error
	return rows, err
}

// FetchUnpublished returns pending rows without locking.
func (r *Repository) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminal parks a row that will never publish: attempt_count is raised to
// terminalAttempts so the fetch queries skip it, and the reason is kept in last_error.
func (r *Repository) MarkTerminal(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    "terminal: " + err.Error(),
			"attempt_count": terminalAttempts,
		}).Error
}

// DeletePublishedBefore removes rows published before cutoff, and rows parked
// with at least minAttemptCount attempts that were created before cutoff.
func (r *Repository) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Or("published_at IS NULL AND attempt_count >= ? AND created_at < ?", minAttemptCount, cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
