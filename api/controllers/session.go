package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/invoice-review/api/middleware"
	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/internal/reviewsession"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// SessionLoader reads a reviewer session.
type SessionLoader interface {
	Load(ctx context.Context, sessionID string) (*reviewsession.State, error)
}

type sessionResponse struct {
	Reviewer           string                      `json:"reviewer"`
	Role               string                      `json:"role"`
	SessionID          string                      `json:"session_id"`
	ProcessedInvoiceID string                      `json:"processed_invoice_id"`
	SummaryCached      bool                        `json:"summary_cached"`
	Document           reviewsession.DocumentState `json:"document"`
	DraftInvoiceID     string                      `json:"draft_invoice_id,omitempty"`
}

// SessionInfo returns the acting reviewer and a summary of their session state.
func SessionInfo(sessions SessionLoader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session store unavailable"))
			return
		}
		sessionID, err := requireSession(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := sessions.Load(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review session"))
			return
		}

		resp := sessionResponse{
			Reviewer:           middleware.ReviewerFromContext(r.Context()),
			Role:               middleware.RoleFromContext(r.Context()),
			SessionID:          sessionID,
			ProcessedInvoiceID: state.ProcessedInvoiceID,
			SummaryCached:      state.CachedSummary != nil,
			Document:           state.Document,
		}
		if state.Draft != nil {
			resp.DraftInvoiceID = state.Draft.InvoiceID
		}
		responses.WriteSuccess(w, resp)
	}
}

func requireSession(r *http.Request) (string, error) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "review session missing")
	}
	return sessionID, nil
}
