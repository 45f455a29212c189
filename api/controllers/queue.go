package controllers

import (
	"net/http"

	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/api/validators"
	"github.com/angelmondragon/invoice-review/internal/reconciliation"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// ReconciliationQueue lists invoices for ?status= (default Pending Review).
func ReconciliationQueue(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		status := validators.QueryString(r, "status", string(enums.ReviewStatusPending))
		queue, err := svc.Queue(r.Context(), status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, queue)
	}
}
