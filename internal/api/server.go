// Package api exposes the operational HTTP surface: health probes,
// Prometheus metrics, a manual tick trigger, and read-only views over
// the tracked game state. Detection itself runs in the poll loop; the
// API only observes and pokes it.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"

	"github.com/albapepper/cyclewatch/internal/api/handler"
	"github.com/albapepper/cyclewatch/internal/config"
	"github.com/albapepper/cyclewatch/internal/engine"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(eng *engine.Engine, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type"},
		ExposedHeaders:   []string{"X-Process-Time"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// --- Handler dependencies ---
	h := handler.New(eng, cfg)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/store", h.HealthCheckStore)
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Manual detection pass (same pipeline the poller runs)
		r.Post("/tick", h.RunTick)

		// Tracked game state
		r.Get("/games/{gameID}/progress", h.GetGameProgress)
		r.Get("/games/{gameID}/claims", h.GetGameClaims)
	})

	return r
}
