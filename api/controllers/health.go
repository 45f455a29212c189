package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/invoice-review/api/responses"
	"github.com/angelmondragon/invoice-review/pkg/config"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

// Pinger is any dependency with a reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readinessTimeout = 3 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Invoice-Review-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and reports 503 with the failing
// names when any is unreachable. Nil pingers are skipped.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Invoice-Review-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		failed := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
