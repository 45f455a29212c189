package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/invoice-review/api/middleware"
	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/api/validators"
	"github.com/angelmondragon/invoice-review/internal/review"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

func invoiceIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "invoiceId"))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required").
			WithDetails(map[string]string{"invoiceId": "is required"})
	}
	return id, nil
}

// InvoiceSurface returns the review surface for one invoice and makes it the
// session's selected invoice.
func InvoiceSurface(svc review.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
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

		surface, err := svc.Surface(r.Context(), sessionID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, surface)
	}
}

// SaveInvoiceDraft replaces the session's editable transactional grid.
func SaveInvoiceDraft(svc review.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
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

		var input review.DraftInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.SaveDraft(r.Context(), sessionID, invoiceID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

// SubmitInvoiceReview confirms the chosen source as the gold copy.
func SubmitInvoiceReview(svc review.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review service unavailable"))
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

		var req review.SubmitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req.Notes = validators.SanitizeString(req.Notes, 2000)
		req.CorrectedInvoiceNumber = validators.SanitizeString(req.CorrectedInvoiceNumber, 64)

		reviewer := review.Reviewer{
			Name:      middleware.ReviewerFromContext(r.Context()),
			Role:      middleware.RoleFromContext(r.Context()),
			SessionID: sessionID,
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithInvoiceID(ctx, invoiceID)
		}
		result, err := svc.Submit(ctx, reviewer, invoiceID, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
