package ingestion

import (
	"context"

	"github.com/angelmondragon/invoice-review/internal/repo"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository records documents written to the staging area.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertStagedDocument(ctx context.Context, doc models.StagedDocument) error
	StagedDocument(ctx context.Context, fileName string) (*models.StagedDocument, error)
}

type repositoryImpl struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{Base: r.Base.WithTx(tx)}
}

// UpsertStagedDocument inserts the row or overwrites the one with the same file name.
func (r *repositoryImpl) UpsertStagedDocument(ctx context.Context, doc models.StagedDocument) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"object_path", "content_type", "size_bytes", "uploaded_by", "uploaded_at"}),
	}).Create(&doc).Error
}

func (r *repositoryImpl) StagedDocument(ctx context.Context, fileName string) (*models.StagedDocument, error) {
	var rows []models.StagedDocument
	if err := r.DB(ctx).Where("file_name = ?", fileName).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
