// Package achieve maps tracked player progress to achievement signals.
// Evaluate is a pure function of its inputs — no store access, no clock —
// so every rule is directly unit-testable.
package achieve

import (
	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/store"
)

// Kind identifies one achievement signal.
type Kind string

const (
	KindCycleNear        Kind = "cycle-near"
	KindCycleComplete    Kind = "cycle-complete"
	KindNoHitterNear     Kind = "no-hitter-near"
	KindNoHitterComplete Kind = "no-hitter-complete"
	KindShutoutNear      Kind = "shutout-near"
	KindShutoutComplete  Kind = "shutout-complete"
)

// Signal is a derived near- or completed-achievement event. Ephemeral:
// recomputed every tick, never persisted. Proximity is the distance to
// completion (missing hit types, or outs remaining).
type Signal struct {
	GameID    string
	PlayerID  string
	Kind      Kind
	Proximity int
}

// Thresholds configures the "near" rules.
type Thresholds struct {
	// CycleMinAtBats gates near-cycle signals to avoid noise early in
	// a game.
	CycleMinAtBats int

	// NoHitterNearOuts and ShutoutNearOuts are the minimum outs
	// recorded before a pitching near signal fires.
	NoHitterNearOuts int
	ShutoutNearOuts  int

	// RequireSolePitcher disqualifies combined efforts: the same
	// pitcher must record every out for no-hitter and shutout signals.
	RequireSolePitcher bool
}

const gameOuts = 27

// Evaluate returns the achievement signals implied by one player's
// progress. gameFinal reports whether the game has reached a terminal
// status. A complete signal supersedes the near signal of the same kind;
// signals of different kinds may coexist.
func Evaluate(p store.PlayerProgress, gameFinal bool, th Thresholds) []Signal {
	if p.Frozen {
		return nil
	}

	var signals []Signal
	switch p.Role {
	case feed.RoleBatter:
		signals = appendCycle(signals, p, th)
	case feed.RolePitcher:
		signals = appendNoHitter(signals, p, gameFinal, th)
		signals = appendShutout(signals, p, gameFinal, th)
	}
	return signals
}

func appendCycle(signals []Signal, p store.PlayerProgress, th Thresholds) []Signal {
	missing := p.MissingHitTypes()
	switch {
	case len(missing) == 0:
		signals = append(signals, Signal{
			GameID:   p.GameID,
			PlayerID: p.PlayerID,
			Kind:     KindCycleComplete,
		})
	case len(missing) == 1 && p.AtBats >= th.CycleMinAtBats:
		signals = append(signals, Signal{
			GameID:    p.GameID,
			PlayerID:  p.PlayerID,
			Kind:      KindCycleNear,
			Proximity: 1,
		})
	}
	return signals
}

func appendNoHitter(signals []Signal, p store.PlayerProgress, gameFinal bool, th Thresholds) []Signal {
	if p.HitsAllowed != 0 {
		return signals
	}
	if th.RequireSolePitcher && !p.SolePitcher {
		return signals
	}
	switch {
	// Relaxing the sole-pitcher policy widens the near signals only; a
	// completed game still has to be this pitcher's outs end to end.
	case gameFinal && (p.SolePitcher || p.OutsRecorded >= gameOuts):
		signals = append(signals, Signal{
			GameID:   p.GameID,
			PlayerID: p.PlayerID,
			Kind:     KindNoHitterComplete,
		})
	case !gameFinal && p.OutsRecorded >= th.NoHitterNearOuts:
		signals = append(signals, Signal{
			GameID:    p.GameID,
			PlayerID:  p.PlayerID,
			Kind:      KindNoHitterNear,
			Proximity: remainingOuts(p.OutsRecorded),
		})
	}
	return signals
}

func appendShutout(signals []Signal, p store.PlayerProgress, gameFinal bool, th Thresholds) []Signal {
	if p.RunsAllowed != 0 {
		return signals
	}
	if th.RequireSolePitcher && !p.SolePitcher {
		return signals
	}
	switch {
	case gameFinal && (p.SolePitcher || p.OutsRecorded >= gameOuts):
		signals = append(signals, Signal{
			GameID:   p.GameID,
			PlayerID: p.PlayerID,
			Kind:     KindShutoutComplete,
		})
	case !gameFinal && p.OutsRecorded >= th.ShutoutNearOuts:
		signals = append(signals, Signal{
			GameID:    p.GameID,
			PlayerID:  p.PlayerID,
			Kind:      KindShutoutNear,
			Proximity: remainingOuts(p.OutsRecorded),
		})
	}
	return signals
}

func remainingOuts(outs int) int {
	if outs >= gameOuts {
		return 0
	}
	return gameOuts - outs
}
