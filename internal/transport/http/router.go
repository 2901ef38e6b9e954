// Package httptransport assembles the public router: the shared middleware
// chain, per-module handler mounts, health probes, and the Prometheus
// scrape endpoint. Handlers stay thin and delegate to domain services;
// route-group auth lives with each handler, not here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soulbind/pkg/platform/httputil"
	"soulbind/pkg/platform/middleware/device"
	"soulbind/pkg/platform/middleware/httplog"
	"soulbind/pkg/platform/middleware/metadata"
	"soulbind/pkg/platform/middleware/recovery"
	request "soulbind/pkg/platform/middleware/request"
	"soulbind/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes on the router.
type Registrar interface {
	Register(r chi.Router)
}

// ReadyCheck reports whether one dependency can serve traffic.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewRouter builds the process router. The shared chain covers request ID,
// access logging, panic recovery, client metadata, device labels, and the
// request-scoped clock; recovery sits inside the access log so panicked
// requests still produce a request line.
func NewRouter(logger *slog.Logger, checks []ReadyCheck, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Middleware)
	r.Use(httplog.Middleware(logger))
	r.Use(recovery.Middleware(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(logger, checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz runs every dependency check; any failure flips the probe
// to 503 with the failing dependencies named.
func handleReadyz(logger *slog.Logger, checks []ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		failed := map[string]string{}
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				failed[check.Name] = err.Error()
				logger.WarnContext(ctx, "readiness check failed",
					"dependency", check.Name,
					"error", err.Error(),
				)
			}
		}
		if len(failed) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"failed": failed,
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
