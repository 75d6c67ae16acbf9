// Package store provides the durable game-state store: per-game records,
// per-player progress, and write-once alert claims. Correctness under
// overlapping ticks and process restarts comes from the store, not from
// in-process memory — every "has this been processed/alerted" decision is
// an atomic conditional write against a backend.
//
// Backends: Postgres (production), Redis, in-memory (tests and local dev).
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/cyclewatch/internal/config"
	"github.com/albapepper/cyclewatch/internal/feed"
)

// ErrNotFound is returned when a game or progress record does not exist.
var ErrNotFound = errors.New("store: not found")

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// GameRecord identifies one live game and carries the idempotence cursor.
// LastSequence only ever advances; ApplyTick enforces that atomically.
type GameRecord struct {
	GameID        string            `json:"game_id"`
	Status        feed.GameStatus   `json:"status"`
	InningOrdinal string            `json:"inning_ordinal"`
	HomeTeam      string            `json:"home_team"`
	AwayTeam      string            `json:"away_team"`
	LastSequence  int64             `json:"last_sequence"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// PlayerProgress is one player's cumulative in-game progress for one role.
// Batter fields and pitcher fields are populated according to Role.
// HitTypes and OutsRecorded are monotonically non-decreasing for the
// lifetime of the game; a violation freezes the record.
type PlayerProgress struct {
	GameID   string    `json:"game_id"`
	PlayerID string    `json:"player_id"`
	Name     string    `json:"name"`
	Team     string    `json:"team"`
	Role     feed.Role `json:"role"`

	// Batter
	HitTypes []feed.Outcome `json:"hit_types,omitempty"`
	AtBats   int            `json:"at_bats"`
	Hits     int            `json:"hits"`

	// Pitcher
	OutsRecorded   int    `json:"outs_recorded"`
	HitsAllowed    int    `json:"hits_allowed"`
	RunsAllowed    int    `json:"runs_allowed"`
	PitchesThrown  int    `json:"pitches_thrown"`
	InningsPitched string `json:"innings_pitched,omitempty"`
	SolePitcher    bool   `json:"sole_pitcher"`

	Frozen    bool      `json:"frozen"`
	UpdatedAt time.Time `json:"updated_at"`
}

// hitOrder is the canonical ordering for hit-type sets.
var hitOrder = []feed.Outcome{
	feed.OutcomeSingle,
	feed.OutcomeDouble,
	feed.OutcomeTriple,
	feed.OutcomeHomeRun,
}

// HasHit reports whether the hit-type set contains the given outcome.
func (p *PlayerProgress) HasHit(o feed.Outcome) bool {
	for _, h := range p.HitTypes {
		if h == o {
			return true
		}
	}
	return false
}

// AddHit inserts an outcome into the hit-type set, keeping canonical
// order. Returns true if the set grew.
func (p *PlayerProgress) AddHit(o feed.Outcome) bool {
	if p.HasHit(o) {
		return false
	}
	merged := make([]feed.Outcome, 0, len(p.HitTypes)+1)
	for _, h := range hitOrder {
		if h == o || p.HasHit(h) {
			merged = append(merged, h)
		}
	}
	p.HitTypes = merged
	return true
}

// MissingHitTypes returns the hit types still needed for the cycle,
// in canonical order.
func (p *PlayerProgress) MissingHitTypes() []feed.Outcome {
	var missing []feed.Outcome
	for _, h := range hitOrder {
		if !p.HasHit(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// --------------------------------------------------------------------------
// Store interface
// --------------------------------------------------------------------------

// Store is the durable persistence contract for the detection engine.
// All methods honor ctx deadlines; callers wrap operations in the
// configured store timeout so a stuck backend aborts the tick for one
// game rather than blocking the whole process.
type Store interface {
	// GetGame returns the record for a game or ErrNotFound.
	GetGame(ctx context.Context, gameID string) (GameRecord, error)

	// ApplyTick atomically advances the game's sequence cursor and writes
	// the updated progress records. The write happens only when
	// game.LastSequence is strictly greater than the stored cursor;
	// otherwise nothing changes and applied is false. Frozen progress
	// records are never overwritten.
	ApplyTick(ctx context.Context, game GameRecord, progress []PlayerProgress) (applied bool, err error)

	// GetProgress returns one player's progress for a role, or
	// ErrNotFound. Progress is keyed (game, player, role) — a two-way
	// player carries independent batting and pitching records.
	GetProgress(ctx context.Context, gameID, playerID string, role feed.Role) (PlayerProgress, error)

	// ListProgress returns all progress records for a game.
	ListProgress(ctx context.Context, gameID string) ([]PlayerProgress, error)

	// FreezeProgress marks a progress record frozen after an invariant
	// violation. Frozen records reject all further progress writes.
	FreezeProgress(ctx context.Context, gameID, playerID string, role feed.Role) error

	// TryClaim atomically records that an alert for (game, player, kind)
	// has been sent. Exactly one caller ever receives true per tuple;
	// there is no un-claim.
	TryClaim(ctx context.Context, gameID, playerID, kind string) (bool, error)

	// ListClaims returns the claimed (playerID, kind) pairs for a game.
	ListClaims(ctx context.Context, gameID string) ([]Claim, error)

	// EvictFinished removes state for games that reached a terminal
	// status more than grace ago. Returns the number of games evicted.
	EvictFinished(ctx context.Context, grace time.Duration) (int, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// Claim is a claimed (player, kind) tuple for a game.
type Claim struct {
	GameID   string    `json:"game_id"`
	PlayerID string    `json:"player_id"`
	Kind     string    `json:"kind"`
	Claimed  time.Time `json:"claimed_at"`
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// New creates a Store for the configured backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return NewMemory(), nil
	case config.StorePostgres:
		return NewPostgres(ctx, cfg)
	case config.StoreRedis:
		return NewRedis(cfg), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
