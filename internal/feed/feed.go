// Package feed defines the normalized snapshot shapes the core consumes.
// Normalization from raw provider payloads is the provider's concern
// (see internal/mlb) — the tracker and everything downstream only ever
// see these types.
package feed

import (
	"context"
	"time"
)

// GameStatus is the abstract game state reported by the provider.
type GameStatus string

const (
	StatusScheduled GameStatus = "scheduled"
	StatusLive      GameStatus = "live"
	StatusFinal     GameStatus = "final"
)

// Role distinguishes the two tracked player roles within a game.
type Role string

const (
	RoleBatter  Role = "batter"
	RolePitcher Role = "pitcher"
)

// Outcome is a normalized plate-appearance result.
type Outcome string

const (
	OutcomeSingle  Outcome = "single"
	OutcomeDouble  Outcome = "double"
	OutcomeTriple  Outcome = "triple"
	OutcomeHomeRun Outcome = "home run"
	OutcomeOther   Outcome = "other"
)

// BattingLine is a batter's cumulative in-game totals.
type BattingLine struct {
	Hits     int
	AtBats   int
	HomeRuns int
}

// PitchingLine is a pitcher's cumulative in-game totals.
// SolePitcher is true while the player has recorded every out for
// their team this game.
type PitchingLine struct {
	OutsRecorded   int
	HitsAllowed    int
	RunsAllowed    int
	PitchesThrown  int
	InningsPitched string // provider format, e.g. "7.1"
	SolePitcher    bool
}

// PlayerLine is one player's normalized box-score entry for a snapshot.
// Exactly one of Batting/Pitching is set depending on Role.
type PlayerLine struct {
	PlayerID string
	Name     string
	Team     string
	Role     Role
	Batting  *BattingLine
	Pitching *PitchingLine
}

// Play is a single normalized play. CaptivatingScore is the provider's
// notability heuristic used to gate highlight lookups.
type Play struct {
	PlayID           string
	BatterID         string
	PitcherID        string
	Outcome          Outcome
	CaptivatingScore int
	EndTime          time.Time
}

// Snapshot is one game's normalized state for a single poll tick.
// Plays are ordered least to most recent. Sequence increases strictly
// with feed progress; the tracker uses it for idempotent application.
type Snapshot struct {
	GameID        string
	Sequence      int64
	Status        GameStatus
	InningOrdinal string
	HomeTeam      string
	AwayTeam      string
	Players       []PlayerLine
	Plays         []Play
}

// Source produces one snapshot per in-progress game per poll. The
// sequence is lazy and restartable: a failed poll is simply retried on
// the next tick with no state carried between calls.
type Source interface {
	LiveSnapshots(ctx context.Context) ([]Snapshot, error)
}
