package controllers

import (
	"net/http"

	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/api/validators"
	"github.com/angelmondragon/invoice-review/internal/summarizer"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// InvoiceSummary returns the session's memoized mismatch summary;
// ?refresh=true forces a new one.
func InvoiceSummary(svc summarizer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "summarizer unavailable"))
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
		refresh, err := validators.ParseQueryBool(r, "refresh", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summarize(r.Context(), sessionID, invoiceID, refresh)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
