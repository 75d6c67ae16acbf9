// Package alert turns claimed achievement signals into outbound alert
// payloads. The deduplicator is the exactly-once gate: a (game, player,
// kind) tuple is alerted at most once for the lifetime of the game, even
// across overlapping ticks and process restarts.
package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/albapepper/cyclewatch/internal/achieve"
	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/metrics"
	"github.com/albapepper/cyclewatch/internal/store"
)

// Alert is the payload handed to the notification channel.
type Alert struct {
	GameID       string       `json:"game_id"`
	PlayerID     string       `json:"player_id"`
	Kind         achieve.Kind `json:"kind"`
	Message      string       `json:"message"`
	HighlightURL string       `json:"highlight_url,omitempty"`
}

// Deduplicator claims signals against the store. Claims are permanent:
// once an achievement has been alerted it is never re-alerted, even if
// later state corrections would retract it. Documented limitation, not
// a bug to work around.
type Deduplicator struct {
	store store.Store
}

// NewDeduplicator creates a Deduplicator over the given store.
func NewDeduplicator(st store.Store) *Deduplicator {
	return &Deduplicator{store: st}
}

// TryClaim returns true for exactly one caller per (game, player, kind)
// tuple. The underlying store operation is an atomic set-if-absent.
func (d *Deduplicator) TryClaim(ctx context.Context, sig achieve.Signal) (bool, error) {
	claimed, err := d.store.TryClaim(ctx, sig.GameID, sig.PlayerID, string(sig.Kind))
	if err != nil {
		return false, fmt.Errorf("claim %s/%s/%s: %w", sig.GameID, sig.PlayerID, sig.Kind, err)
	}
	if claimed {
		metrics.ClaimsWon.WithLabelValues(string(sig.Kind)).Inc()
	}
	return claimed, nil
}

// --------------------------------------------------------------------------
// Assembler
// --------------------------------------------------------------------------

// hitAbbrev maps hit outcomes to scoreboard shorthand.
var hitAbbrev = map[feed.Outcome]string{
	feed.OutcomeSingle:  "1B",
	feed.OutcomeDouble:  "2B",
	feed.OutcomeTriple:  "3B",
	feed.OutcomeHomeRun: "HR",
}

// Assemble composes the alert payload for a claimed signal. Pure and
// deterministic for identical inputs; delivery is the notifier's concern.
// highlightURL may be empty — the alert goes out without a link.
func Assemble(sig achieve.Signal, p store.PlayerProgress, game store.GameRecord, highlightURL string) Alert {
	return Alert{
		GameID:       sig.GameID,
		PlayerID:     sig.PlayerID,
		Kind:         sig.Kind,
		Message:      message(sig.Kind, p, game),
		HighlightURL: highlightURL,
	}
}

func message(kind achieve.Kind, p store.PlayerProgress, game store.GameRecord) string {
	who := fmt.Sprintf("%s (%s)", p.Name, p.Team)
	switch kind {
	case achieve.KindCycleNear:
		return fmt.Sprintf("CYCLE ALERT: %s %d-%d with %s in the %s inning",
			who, p.Hits, p.AtBats, hitList(p.HitTypes), game.InningOrdinal)
	case achieve.KindCycleComplete:
		return fmt.Sprintf("CYCLE ALERT: %s %d-%d has hit for the cycle!",
			who, p.Hits, p.AtBats)
	case achieve.KindNoHitterNear:
		return fmt.Sprintf("NO-HITTER ALERT: %s has thrown %d pitches over %s hitless innings",
			who, p.PitchesThrown, p.InningsPitched)
	case achieve.KindNoHitterComplete:
		return fmt.Sprintf("NO-HITTER ALERT: %s has completed a no-hitter!", who)
	case achieve.KindShutoutNear:
		return fmt.Sprintf("CGSO ALERT: %s has thrown %d pitches over %s scoreless innings",
			who, p.PitchesThrown, p.InningsPitched)
	case achieve.KindShutoutComplete:
		return fmt.Sprintf("CGSO ALERT: %s has completed a shutout!", who)
	default:
		return fmt.Sprintf("ALERT: %s (%s)", who, kind)
	}
}

func hitList(hits []feed.Outcome) string {
	abbrevs := make([]string, 0, len(hits))
	for _, h := range hits {
		abbrevs = append(abbrevs, hitAbbrev[h])
	}
	return strings.Join(abbrevs, ", ")
}
