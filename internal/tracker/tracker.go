// Package tracker applies normalized snapshots to the durable store,
// maintaining per-player cumulative progress. Application is idempotent
// by snapshot sequence number: re-processing a snapshot is a no-op, and
// a sequence regression is rejected as a feed anomaly.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/metrics"
	"github.com/albapepper/cyclewatch/internal/store"
)

// ErrSequenceRegression is returned when a snapshot carries a sequence
// number lower than one already applied for the game. The tick is
// skipped for that game; the snapshot is never applied out of order.
var ErrSequenceRegression = errors.New("tracker: snapshot sequence regression")

// Tracker folds snapshots into PlayerProgress records.
type Tracker struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Tracker.
func New(st store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: st, logger: logger}
}

// Update applies one snapshot. It returns the progress records that
// changed this tick together with the updated game record. A snapshot
// whose sequence equals the stored cursor is a benign no-op (retried
// poll); a lower sequence returns ErrSequenceRegression.
func (t *Tracker) Update(ctx context.Context, snap feed.Snapshot) ([]store.PlayerProgress, store.GameRecord, error) {
	game, err := t.store.GetGame(ctx, snap.GameID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, store.GameRecord{}, fmt.Errorf("load game %s: %w", snap.GameID, err)
	}
	known := err == nil

	if known && snap.Sequence == game.LastSequence {
		return nil, game, nil
	}
	if known && snap.Sequence < game.LastSequence {
		metrics.SequenceAnomalies.Inc()
		return nil, game, fmt.Errorf("%w: game %s has %d, snapshot %d",
			ErrSequenceRegression, snap.GameID, game.LastSequence, snap.Sequence)
	}

	prior, err := t.store.ListProgress(ctx, snap.GameID)
	if err != nil {
		return nil, store.GameRecord{}, fmt.Errorf("load progress %s: %w", snap.GameID, err)
	}
	priorByPlayer := make(map[string]store.PlayerProgress, len(prior))
	for _, p := range prior {
		priorByPlayer[string(p.Role)+"/"+p.PlayerID] = p
	}

	// The flip to final often arrives with a box score identical to the
	// last live snapshot. That flip is itself what arms the completed
	// pitching signals, so pitcher records count as changed on it even
	// when no stat moved.
	becameFinal := known && game.Status != feed.StatusFinal && snap.Status == feed.StatusFinal

	changed := t.merge(ctx, snap, priorByPlayer, becameFinal)

	updated := store.GameRecord{
		GameID:        snap.GameID,
		Status:        snap.Status,
		InningOrdinal: snap.InningOrdinal,
		HomeTeam:      snap.HomeTeam,
		AwayTeam:      snap.AwayTeam,
		LastSequence:  snap.Sequence,
	}

	applied, err := t.store.ApplyTick(ctx, updated, changed)
	if err != nil {
		return nil, store.GameRecord{}, fmt.Errorf("apply tick %s: %w", snap.GameID, err)
	}
	if !applied {
		// A concurrent tick advanced the cursor first; nothing to do.
		return nil, updated, nil
	}
	metrics.SnapshotsApplied.Inc()
	return changed, updated, nil
}

// merge folds the snapshot's box lines and plays into the prior progress
// records, enforcing monotonicity. Violations freeze the record and are
// excluded from the returned set.
func (t *Tracker) merge(ctx context.Context, snap feed.Snapshot, prior map[string]store.PlayerProgress, becameFinal bool) []store.PlayerProgress {
	// Hit-type sets come from the play list, not box totals.
	hitsByBatter := make(map[string][]feed.Outcome)
	for _, play := range snap.Plays {
		switch play.Outcome {
		case feed.OutcomeSingle, feed.OutcomeDouble, feed.OutcomeTriple, feed.OutcomeHomeRun:
			hitsByBatter[play.BatterID] = append(hitsByBatter[play.BatterID], play.Outcome)
		}
	}

	var changed []store.PlayerProgress
	for _, line := range snap.Players {
		prev, existed := prior[string(line.Role)+"/"+line.PlayerID]
		if existed && prev.Frozen {
			continue
		}

		next := prev
		if !existed {
			next = store.PlayerProgress{
				GameID:   snap.GameID,
				PlayerID: line.PlayerID,
				Role:     line.Role,
			}
		}
		next.Name = line.Name
		next.Team = line.Team

		switch line.Role {
		case feed.RoleBatter:
			if line.Batting == nil {
				continue
			}
			if existed && line.Batting.AtBats < prev.AtBats {
				t.freeze(ctx, snap.GameID, line.PlayerID, line.Role,
					"at-bat count decreased", prev.AtBats, line.Batting.AtBats)
				continue
			}
			next.AtBats = line.Batting.AtBats
			next.Hits = line.Batting.Hits
			for _, h := range hitsByBatter[line.PlayerID] {
				next.AddHit(h)
			}
		case feed.RolePitcher:
			if line.Pitching == nil {
				continue
			}
			outs := OutsFromInnings(line.Pitching.InningsPitched)
			if line.Pitching.OutsRecorded > outs {
				outs = line.Pitching.OutsRecorded
			}
			if existed && outs < prev.OutsRecorded {
				t.freeze(ctx, snap.GameID, line.PlayerID, line.Role,
					"outs recorded decreased", prev.OutsRecorded, outs)
				continue
			}
			next.OutsRecorded = outs
			next.HitsAllowed = line.Pitching.HitsAllowed
			next.RunsAllowed = line.Pitching.RunsAllowed
			next.PitchesThrown = line.Pitching.PitchesThrown
			next.InningsPitched = line.Pitching.InningsPitched
			next.SolePitcher = line.Pitching.SolePitcher
		default:
			continue
		}

		if !existed || progressDiffers(prev, next) ||
			(becameFinal && line.Role == feed.RolePitcher) {
			changed = append(changed, next)
		}
	}
	return changed
}

// freeze marks a record fatal-for-this-game after upstream data
// regressed. The anomaly is operator-visible; a silently shrinking stat
// line must never turn into a false achievement signal.
func (t *Tracker) freeze(ctx context.Context, gameID, playerID string, role feed.Role, what string, prev, next int) {
	metrics.InvariantViolations.Inc()
	t.logger.Error("invariant violation, freezing progress record",
		"game_id", gameID, "player_id", playerID,
		"violation", what, "old", prev, "new", next)
	if err := t.store.FreezeProgress(ctx, gameID, playerID, role); err != nil && !errors.Is(err, store.ErrNotFound) {
		t.logger.Error("freeze failed", "game_id", gameID, "player_id", playerID, "error", err)
	}
}

func progressDiffers(a, b store.PlayerProgress) bool {
	if a.AtBats != b.AtBats || a.Hits != b.Hits ||
		a.OutsRecorded != b.OutsRecorded || a.HitsAllowed != b.HitsAllowed ||
		a.RunsAllowed != b.RunsAllowed || a.PitchesThrown != b.PitchesThrown ||
		a.InningsPitched != b.InningsPitched || a.SolePitcher != b.SolePitcher ||
		a.Name != b.Name || a.Team != b.Team {
		return true
	}
	if len(a.HitTypes) != len(b.HitTypes) {
		return true
	}
	for i := range a.HitTypes {
		if a.HitTypes[i] != b.HitTypes[i] {
			return true
		}
	}
	return false
}

// OutsFromInnings converts the provider's innings-pitched notation
// ("7.1" = 7 innings plus 1 out) into a total out count.
func OutsFromInnings(ip string) int {
	if ip == "" {
		return 0
	}
	whole, frac, _ := strings.Cut(ip, ".")
	innings, err := strconv.Atoi(whole)
	if err != nil {
		return 0
	}
	outs := innings * 3
	if frac != "" {
		if extra, err := strconv.Atoi(frac); err == nil && extra >= 0 && extra <= 2 {
			outs += extra
		}
	}
	return outs
}
