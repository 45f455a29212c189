package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/invoice-review/api/controllers"
	"github.com/angelmondragon/invoice-review/api/middleware"
	"github.com/angelmondragon/invoice-review/internal/bronze"
	"github.com/angelmondragon/invoice-review/internal/dashboard"
	"github.com/angelmondragon/invoice-review/internal/ingestion"
	"github.com/angelmondragon/invoice-review/internal/reconciliation"
	"github.com/angelmondragon/invoice-review/internal/review"
	"github.com/angelmondragon/invoice-review/internal/summarizer"
	"github.com/angelmondragon/invoice-review/internal/viewer"
	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// uploadBatchFiles bounds one multipart request to this many max-size files.
const uploadBatchFiles = 10

// Dependencies are the services and probes the API routes call into.
type Dependencies struct {
	Health         map[string]controllers.Pinger
	Sessions       controllers.SessionLoader
	Ingestion      ingestion.Service
	Reconciliation reconciliation.Service
	Bronze         bronze.Service
	Summarizer     summarizer.Service
	Viewer         viewer.Service
	Review         review.Service
	Dashboard      dashboard.Service
	// Metrics serves /metrics; defaults to the global Prometheus registry.
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	writers := middleware.RequireRole(logg, string(enums.RoleReviewer), string(enums.RoleSupervisor))
	uploadLimit := int64(cfg.Review.MaxUploadMB) << 20 * uploadBatchFiles

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/session", controllers.SessionInfo(deps.Sessions, logg))
		r.Post("/documents", controllers.UploadDocuments(deps.Ingestion, uploadLimit, logg))
		r.Get("/reconciliation/queue", controllers.ReconciliationQueue(deps.Reconciliation, logg))
		r.Get("/dashboard/metrics", controllers.DashboardMetrics(deps.Dashboard, logg))

		r.Route("/invoices/{invoiceId}", func(r chi.Router) {
			r.Get("/", controllers.InvoiceSurface(deps.Review, logg))
			r.Get("/summary", controllers.InvoiceSummary(deps.Summarizer, logg))
			r.Post("/document", controllers.LoadInvoiceDocument(deps.Bronze, deps.Viewer, logg))
			r.With(writers).Put("/draft", controllers.SaveInvoiceDraft(deps.Review, logg))
			r.With(writers).Post("/review", controllers.SubmitInvoiceReview(deps.Review, logg))
		})

		r.Route("/viewer", func(r chi.Router) {
			r.Get("/", controllers.ViewerState(deps.Viewer, logg))
			r.Get("/page.png", controllers.ViewerPage(deps.Viewer, logg))
			r.Post("/prev", controllers.ViewerPrev(deps.Viewer, logg))
			r.Post("/next", controllers.ViewerNext(deps.Viewer, logg))
		})
	})

	return r
}
