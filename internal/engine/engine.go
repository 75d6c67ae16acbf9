// Package engine orchestrates one poll tick: snapshots in, alerts out.
//
// Pipeline per game: tracker applies the snapshot → evaluator derives
// signals from the changed progress → deduplicator claims each signal →
// for newly claimed signals, the highlight gate resolves a video link →
// the assembler builds the payload → the notifier delivers it.
//
// Every step is tick-scoped; a failure aborts the affected game only
// and the next tick resumes from the stored sequence cursor.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/cyclewatch/internal/achieve"
	"github.com/albapepper/cyclewatch/internal/alert"
	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/highlight"
	"github.com/albapepper/cyclewatch/internal/metrics"
	"github.com/albapepper/cyclewatch/internal/notify"
	"github.com/albapepper/cyclewatch/internal/store"
	"github.com/albapepper/cyclewatch/internal/tracker"
)

// Engine wires the detection pipeline together.
type Engine struct {
	source       feed.Source
	store        store.Store
	tracker      *tracker.Tracker
	dedupe       *alert.Deduplicator
	highlights   *highlight.Gate
	notifier     notify.Notifier
	thresholds   achieve.Thresholds
	storeTimeout time.Duration
	logger       *slog.Logger
}

// New creates an Engine.
func New(
	source feed.Source,
	st store.Store,
	highlights *highlight.Gate,
	notifier notify.Notifier,
	thresholds achieve.Thresholds,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		source:       source,
		store:        st,
		tracker:      tracker.New(st, logger),
		dedupe:       alert.NewDeduplicator(st),
		highlights:   highlights,
		notifier:     notifier,
		thresholds:   thresholds,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// TickResult summarizes one poll tick.
type TickResult struct {
	RunID    string
	Games    int
	Applied  int
	Signals  int
	Alerts   int
	Errors   []string
	Duration time.Duration
}

// Summary returns a human-readable summary.
func (r *TickResult) Summary() string {
	return fmt.Sprintf("run=%s games=%d applied=%d signals=%d alerts=%d errors=%d dur=%s",
		r.RunID, r.Games, r.Applied, r.Signals, r.Alerts, len(r.Errors),
		r.Duration.Round(time.Millisecond))
}

// Tick runs one full poll pass. Safe to call concurrently: state-changing
// decisions go through the store's atomic conditional writes, so
// overlapping ticks for the same game cannot double-apply or double-alert.
func (e *Engine) Tick(ctx context.Context) TickResult {
	start := time.Now()
	metrics.TicksTotal.Inc()
	result := TickResult{RunID: uuid.NewString()}
	logger := e.logger.With("run_id", result.RunID)

	snaps, err := e.source.LiveSnapshots(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("fetch snapshots: %s", err))
		result.Duration = time.Since(start)
		logger.Error("tick aborted", "error", err)
		return result
	}

	for _, snap := range snaps {
		result.Games++
		applied, signals, alerts, err := e.processGame(ctx, logger, snap)
		result.Signals += signals
		result.Alerts += alerts
		if applied {
			result.Applied++
		}
		if err != nil {
			metrics.GameErrors.Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("game %s: %s", snap.GameID, err))
			logger.Warn("game tick aborted", "game_id", snap.GameID, "error", err)
		}
	}

	result.Duration = time.Since(start)
	metrics.TickDuration.Observe(result.Duration.Seconds())
	logger.Info("tick complete", "summary", result.Summary())
	return result
}

// processGame runs the pipeline for a single game snapshot.
func (e *Engine) processGame(ctx context.Context, logger *slog.Logger, snap feed.Snapshot) (applied bool, signals, alerts int, err error) {
	if snap.Status == feed.StatusScheduled {
		return false, 0, 0, nil
	}

	// A final game first sighted after the fact is stale news: only
	// finish out games we were already tracking.
	if snap.Status == feed.StatusFinal {
		sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		_, err := e.store.GetGame(sctx, snap.GameID)
		cancel()
		if errors.Is(err, store.ErrNotFound) {
			return false, 0, 0, nil
		}
		if err != nil {
			return false, 0, 0, fmt.Errorf("check game: %w", err)
		}
	}

	tctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	changed, game, err := e.tracker.Update(tctx, snap)
	cancel()
	if errors.Is(err, tracker.ErrSequenceRegression) {
		logger.Warn("sequence regression, snapshot skipped", "game_id", snap.GameID, "error", err)
		return false, 0, 0, nil
	}
	if err != nil {
		return false, 0, 0, err
	}
	if len(changed) == 0 {
		return false, 0, 0, nil
	}

	gameFinal := game.Status == feed.StatusFinal
	for _, progress := range changed {
		for _, sig := range achieve.Evaluate(progress, gameFinal, e.thresholds) {
			signals++

			cctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
			claimed, err := e.dedupe.TryClaim(cctx, sig)
			cancel()
			if err != nil {
				return true, signals, alerts, err
			}
			if !claimed {
				continue
			}

			// The highlight lookup is a best-effort network call and
			// runs outside the store timeout.
			play := triggeringPlay(snap, progress)
			url := e.highlights.Resolve(ctx, snap.GameID, progress.PlayerID, play)

			a := alert.Assemble(sig, progress, game, url)
			if err := e.notifier.Send(ctx, a); err != nil {
				// The claim is burned either way; delivery retries are
				// the channel's responsibility.
				logger.Error("alert delivery failed",
					"game_id", a.GameID, "player_id", a.PlayerID, "kind", a.Kind, "error", err)
				continue
			}
			metrics.AlertsSent.WithLabelValues(string(sig.Kind)).Inc()
			alerts++
		}
	}
	return true, signals, alerts, nil
}

// triggeringPlay picks the most recent play attributable to the player:
// the latest hit for a batter, the latest play faced for a pitcher.
func triggeringPlay(snap feed.Snapshot, p store.PlayerProgress) feed.Play {
	for i := len(snap.Plays) - 1; i >= 0; i-- {
		play := snap.Plays[i]
		switch p.Role {
		case feed.RoleBatter:
			if play.BatterID == p.PlayerID && play.Outcome != feed.OutcomeOther {
				return play
			}
		case feed.RolePitcher:
			if play.PitcherID == p.PlayerID {
				return play
			}
		}
	}
	return feed.Play{}
}
