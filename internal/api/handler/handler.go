// Package handler provides HTTP handlers for all API endpoints.
// Handlers read through the engine's store directly — no service layer.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/cyclewatch/internal/api/respond"
	"github.com/albapepper/cyclewatch/internal/config"
	"github.com/albapepper/cyclewatch/internal/engine"
	"github.com/albapepper/cyclewatch/internal/store"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	engine *engine.Engine
	store  store.Store
	cfg    *config.Config
}

// New creates a Handler with shared dependencies.
func New(eng *engine.Engine, cfg *config.Config) *Handler {
	return &Handler{
		engine: eng,
		store:  eng.Store(),
		cfg:    cfg,
	}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Cyclewatch API",
		"version": "1.0.0",
		"status":  "running",
		"store":   h.cfg.StoreBackend,
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckStore verifies store connectivity.
func (h *Handler) HealthCheckStore(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"store":     "disconnected",
			"error":     "Store connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"store":     "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RunTick triggers one detection pass and returns its summary.
// The same store-level claims guard it against racing the poll loop.
func (h *Handler) RunTick(w http.ResponseWriter, r *http.Request) {
	result := h.engine.Tick(r.Context())
	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	respond.WriteJSONObject(w, status, result)
}

// GetGameProgress returns all tracked player progress for a game.
func (h *Handler) GetGameProgress(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	progress, err := h.store.ListProgress(r.Context(), gameID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list progress")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"game_id":  gameID,
		"progress": progress,
	})
}

// GetGameClaims returns the alert claims recorded for a game.
func (h *Handler) GetGameClaims(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	claims, err := h.store.ListClaims(r.Context(), gameID)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list claims")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"game_id": gameID,
		"claims":  claims,
	})
}
