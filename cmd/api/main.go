// Command api is the Cyclewatch server: it polls live game feeds,
// detects in-progress achievements, and serves the operational API.
//
// Usage:
//
//	cyclewatch-api
//	API_PORT=8080 STORE_BACKEND=redis cyclewatch-api
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/cyclewatch/internal/achieve"
	"github.com/albapepper/cyclewatch/internal/api"
	"github.com/albapepper/cyclewatch/internal/config"
	"github.com/albapepper/cyclewatch/internal/engine"
	"github.com/albapepper/cyclewatch/internal/highlight"
	"github.com/albapepper/cyclewatch/internal/mlb"
	"github.com/albapepper/cyclewatch/internal/notify"
	"github.com/albapepper/cyclewatch/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to the store backend
	logger.Info("Connecting to store...", "backend", cfg.StoreBackend)
	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// MLB stats client doubles as snapshot source and highlight resolver
	client := mlb.NewClient(cfg.MLBBaseURL, cfg.MLBRateLimit,
		cfg.HighlightRetryMax, cfg.HighlightRetryWait, logger)

	gate := highlight.NewGate(client, highlight.Config{
		MinCaptivatingScore: cfg.MinCaptivatingScore,
		FavoritePlayerIDs:   cfg.FavoritePlayerIDs,
		StalePlayAge:        cfg.StalePlayAge,
	}, logger)

	notifier := notify.NewSlackSender(cfg.SlackWebhookURL, logger)

	eng := engine.New(client, st, gate, notifier, achieve.Thresholds{
		CycleMinAtBats:     cfg.CycleMinAtBats,
		NoHitterNearOuts:   cfg.NoHitterNearOuts,
		ShutoutNearOuts:    cfg.ShutoutNearOuts,
		RequireSolePitcher: cfg.RequireSolePitcher,
	}, cfg.StoreTimeout, logger)

	// Start poll + eviction loops
	go eng.StartPolling(ctx, engine.PollerConfig{
		PollInterval:  cfg.PollInterval,
		EvictInterval: cfg.EvictGrace / 2,
		EvictGrace:    cfg.EvictGrace,
	})

	// Create router
	router := api.NewRouter(eng, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Cyclewatch API",
			"addr", addr,
			"environment", cfg.Environment,
			"poll_interval", cfg.PollInterval)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
