package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/internal/bronze"
	"github.com/angelmondragon/invoice-review/internal/viewer"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// LoadInvoiceDocument resolves the invoice's extracted file name and opens it
// in the session's viewer.
func LoadInvoiceDocument(records bronze.Service, svc viewer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if records == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document viewer unavailable"))
			return
		}
		sessionID, err := requireSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := invoiceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := records.Read(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Load(r.Context(), sessionID, record.FileName)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type viewStep func(ctx context.Context, sessionID string) (*viewer.View, error)

func viewerStep(svc viewer.Service, logg *logger.Logger, pick func(viewer.Service) viewStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document viewer unavailable"))
			return
		}
		sessionID, err := requireSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := pick(svc)(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ViewerState returns the session's current document and page.
func ViewerState(svc viewer.Service, logg *logger.Logger) http.HandlerFunc {
	return viewerStep(svc, logg, func(s viewer.Service) viewStep { return s.State })
}

// ViewerPrev moves one page back; a no-op on the first page.
func ViewerPrev(svc viewer.Service, logg *logger.Logger) http.HandlerFunc {
	return viewerStep(svc, logg, func(s viewer.Service) viewStep { return s.Prev })
}

// ViewerNext moves one page forward; a no-op on the last page.
func ViewerNext(svc viewer.Service, logg *logger.Logger) http.HandlerFunc {
	return viewerStep(svc, logg, func(s viewer.Service) viewStep { return s.Next })
}

// ViewerPage renders the current page as PNG. A clamped page index is
// reported in the X-Viewer-Warning header.
func ViewerPage(svc viewer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "document viewer unavailable"))
			return
		}
		sessionID, err := requireSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Render(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if page.Warning != "" {
			w.Header().Set("X-Viewer-Warning", page.Warning)
		}
		w.Header().Set("X-Viewer-Page", strconv.Itoa(page.Document.Page))
		w.Header().Set("X-Viewer-Page-Count", strconv.Itoa(page.Document.PageCount))
		responses.WritePNG(w, page.PNG)
	}
}
