package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/invoice-review/api/middleware"
	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/internal/ingestion"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

const (
	uploadFormField = "files"
	multipartMemory = 32 << 20
)

type uploadResponse struct {
	Files []ingestion.FileResult `json:"files"`
}

// UploadDocuments stages every file in the multipart "files" field. The whole
// request body is capped at maxBytes; per-file limits belong to the ingestion
// service.
func UploadDocuments(svc ingestion.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ingestion service unavailable"))
			return
		}

		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "upload exceeds the request size limit"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		headers := r.MultipartForm.File[uploadFormField]
		if len(headers) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "at least one file is required").
				WithDetails(map[string]string{uploadFormField: "is required"}))
			return
		}

		files := make([]ingestion.File, 0, len(headers))
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read uploaded file"))
				return
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read uploaded file"))
				return
			}
			files = append(files, ingestion.File{Name: header.Filename, Data: data})
		}

		results, err := svc.Upload(r.Context(), middleware.ReviewerFromContext(r.Context()), files)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, uploadResponse{Files: results})
	}
}
