package models

import "time"

// StagedDocument records an invoice document written to the staging area.
type StagedDocument struct {
	FileName    string    `gorm:"column:file_name;primaryKey" json:"file_name"`
	ObjectPath  string    `gorm:"column:object_path;not null" json:"object_path"`
	ContentType string    `gorm:"column:content_type;not null" json:"content_type"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null" json:"size_bytes"`
	UploadedBy  string    `gorm:"column:uploaded_by;not null" json:"uploaded_by"`
	UploadedAt  time.Time `gorm:"column:uploaded_at;not null" json:"uploaded_at"`
}

func (StagedDocument) TableName() string { return "staged_documents" }
