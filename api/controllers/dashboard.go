package controllers

import (
	"errors"
	"net/http"

	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/internal/dashboard"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

type dashboardResponse struct {
	Available bool               `json:"available"`
	Message   string             `json:"message,omitempty"`
	Metrics   *dashboard.Metrics `json:"metrics,omitempty"`
}

// DashboardMetrics returns the reconciliation KPIs. A warehouse failure still
// answers 200 with available=false so the page renders.
func DashboardMetrics(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		m, err := svc.Metrics(r.Context())
		if errors.Is(err, dashboard.ErrMetricsUnavailable) {
			responses.WriteSuccess(w, dashboardResponse{Message: dashboard.UnavailableMessage})
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dashboardResponse{Available: true, Metrics: m})
	}
}
