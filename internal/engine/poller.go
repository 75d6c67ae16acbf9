package engine

import (
	"context"
	"time"

	"github.com/albapepper/cyclewatch/internal/store"
)

// PollerConfig controls the background loops. Zero duration disables a loop.
type PollerConfig struct {
	PollInterval  time.Duration // Snapshot fetch + detection pass
	EvictInterval time.Duration // Finished-game state removal sweep
	EvictGrace    time.Duration // How long finished games linger before eviction
}

// StartPolling runs the tick and eviction loops until ctx is cancelled.
// Intended to be called with `go`. An immediate first tick fires before
// the ticker cadence takes over so a restart does not wait a full
// interval to resume coverage.
func (e *Engine) StartPolling(ctx context.Context, cfg PollerConfig) {
	e.logger.Info("Poller started",
		"poll", cfg.PollInterval,
		"evict", cfg.EvictInterval,
		"evict_grace", cfg.EvictGrace)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.PollInterval > 0 {
		e.Tick(ctx)
		t := time.NewTicker(cfg.PollInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { e.Tick(ctx) })
	}

	if cfg.EvictInterval > 0 {
		t := time.NewTicker(cfg.EvictInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { e.evictFinished(ctx, cfg.EvictGrace) })
	}

	<-ctx.Done()
	e.logger.Info("Poller stopped")
}

func (e *Engine) evictFinished(ctx context.Context, grace time.Duration) {
	sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	removed, err := e.store.EvictFinished(sctx, grace)
	if err != nil {
		e.logger.Error("eviction sweep failed", "error", err)
		return
	}
	if removed > 0 {
		e.logger.Info("evicted finished games", "count", removed)
	}
}

// Store exposes the engine's store for read-only API handlers.
func (e *Engine) Store() store.Store {
	return e.store
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}
