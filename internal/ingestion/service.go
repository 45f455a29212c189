package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/outbox/payloads"
	"github.com/angelmondragon/invoice-review/pkg/storage/gcs"
	"gorm.io/gorm"
)

// ObjectStore writes documents to the staging area.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (*gcs.ObjectInfo, error)
	SignedReadURL(objectPath string, expiry time.Duration) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// FileResult reports the outcome for one uploaded file.
type FileResult struct {
	FileName    string `json:"file_name"`
	ObjectPath  string `json:"object_path,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	SignedURL   string `json:"signed_url,omitempty"`
	Uploaded    bool   `json:"uploaded"`
	Error       string `json:"error,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

type Service interface {
	Upload(ctx context.Context, uploadedBy string, files []File) ([]FileResult, error)
}

type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Store       ObjectStore
	Outbox      outbox.Emitter
	Bucket      string
	StagePrefix string
	URLExpiry   time.Duration
	MaxBytes    int64
	Logger      *logger.Logger
	Metrics     *metrics.ReviewMetrics
	Clock       func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	store       ObjectStore
	outbox      outbox.Emitter
	bucket      string
	stagePrefix string
	urlExpiry   time.Duration
	maxBytes    int64
	logg        *logger.Logger
	metrics     *metrics.ReviewMetrics
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "staged document repository required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Store == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "object store required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	case params.MaxBytes <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max upload size must be positive")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		store:       params.Store,
		outbox:      params.Outbox,
		bucket:      params.Bucket,
		stagePrefix: params.StagePrefix,
		urlExpiry:   params.URLExpiry,
		maxBytes:    params.MaxBytes,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// Upload stages each file independently; a failed file does not stop the rest.
func (s *service) Upload(ctx context.Context, uploadedBy string, files []File) ([]FileResult, error) {
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one file is required")
	}
	results := make([]FileResult, 0, len(files))
	for _, file := range files {
		result := s.uploadOne(ctx, uploadedBy, file)
		outcome := "ok"
		if !result.Uploaded {
			outcome = "error"
		}
		s.metrics.Upload(outcome)
		results = append(results, result)
	}
	return results, nil
}

func (s *service) uploadOne(ctx context.Context, uploadedBy string, file File) FileResult {
	result := FileResult{FileName: file.Name, SizeBytes: int64(len(file.Data))}

	name, err := CleanFileName(file.Name)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.FileName = name
	ctx = s.logg.WithField(ctx, "file_name", name)

	if len(file.Data) == 0 {
		result.Error = "file is empty"
		return result
	}
	if int64(len(file.Data)) > s.maxBytes {
		result.Error = fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes/(1<<20))
		return result
	}
	contentType, err := DetectContentType(name, file.Data)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ContentType = contentType

	objectPath := gcs.ObjectPath(s.stagePrefix, name)
	info, err := s.store.Upload(ctx, objectPath, contentType, file.Data)
	if err != nil {
		s.logg.Error(ctx, "staging upload failed", err)
		result.Error = fmt.Sprintf("Error uploading %s: %v", name, err)
		return result
	}
	result.ObjectPath = info.Path
	bucket := info.Bucket
	if bucket == "" {
		bucket = s.bucket
	}

	uploadedAt := s.now()
	doc := models.StagedDocument{
		FileName:    name,
		ObjectPath:  info.Path,
		ContentType: contentType,
		SizeBytes:   int64(len(file.Data)),
		UploadedBy:  uploadedBy,
		UploadedAt:  uploadedAt,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpsertStagedDocument(ctx, doc); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDocumentUploaded,
			AggregateType: enums.AggregateDocument,
			AggregateID:   name,
			Actor:         &outbox.ActorRef{Reviewer: uploadedBy},
			OccurredAt:    uploadedAt,
			Data: payloads.DocumentUploadedEvent{
				FileName:    name,
				ObjectPath:  info.Path,
				Bucket:      bucket,
				ContentType: contentType,
				SizeBytes:   doc.SizeBytes,
				UploadedAt:  uploadedAt,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "recording staged document failed", err)
		result.Error = fmt.Sprintf("Uploaded %s but could not record it for cataloging: %v", name, err)
		return result
	}
	result.Uploaded = true

	signed, err := s.store.SignedReadURL(info.Path, s.urlExpiry)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "signed url generation failed")
		result.Warning = "Could not generate a download link."
	} else {
		result.SignedURL = signed
	}
	s.logg.Info(s.logg.WithField(ctx, "object_path", info.Path), "document staged")
	return result
}
