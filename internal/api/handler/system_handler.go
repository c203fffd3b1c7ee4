package handler

import (
	"context"
	"net/http"
	"time"

	"contest_judge/internal/common"
	"contest_judge/internal/platform/observability"

	"github.com/go-chi/chi/v5"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type SystemHandler struct {
	checks  map[string]Check
	metrics *observability.Registry
}

func NewSystemHandler(checks map[string]Check, metrics *observability.Registry) *SystemHandler {
	if metrics == nil {
		metrics = observability.Default
	}
	return &SystemHandler{checks: checks, metrics: metrics}
}

func (h *SystemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/metrics", h.renderMetrics)
}

func (h *SystemHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	common.RespondWithJSON(w, code, map[string]interface{}{"status": http.StatusText(code), "checks": status})
}

func (h *SystemHandler) renderMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.metrics.RenderPrometheus()))
}
