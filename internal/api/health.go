package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nkarpov/solvd/internal/store"
)

const readyCheckTimeout = 5 * time.Second

// EngineChecker reports inference engine reachability.
type EngineChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	repo   store.Repository
	engine EngineChecker
}

// NewHealthHandler creates a health handler. engine may be nil, in which case
// readiness only covers the store.
func NewHealthHandler(repo store.Repository, engine EngineChecker) *HealthHandler {
	return &HealthHandler{repo: repo, engine: engine}
}

// RegisterHealth registers the health check routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
}

// Health is the liveness probe: the process is up.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready checks the store and the inference engine. The engine being down
// degrades readiness but the check names the failing component so a local
// client can distinguish "start the engine" from "broken install".
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	components := map[string]string{"store": "ok", "engine": "ok"}
	healthy := true

	if err := h.repo.Ping(ctx); err != nil {
		components["store"] = err.Error()
		healthy = false
	}

	if h.engine == nil {
		components["engine"] = "not configured"
	} else if err := h.engine.Health(ctx); err != nil {
		components["engine"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	JSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": components,
	})
}
