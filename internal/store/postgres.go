package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/cyclewatch/internal/config"
	"github.com/albapepper/cyclewatch/internal/feed"
)

// Postgres is the pgxpool-backed Store. Sequence advancement and claim
// creation are single conditional statements, so overlapping ticks and
// interrupted processes can never half-apply a tick.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates and validates a Postgres store, ensuring the schema
// exists and registering prepared statements on every new connection.
func NewPostgres(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (s *Postgres) HealthCheck(ctx context.Context) error {
	var n int
	return s.pool.QueryRow(ctx, "health_check").Scan(&n)
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS games (
	game_id        TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	inning_ordinal TEXT NOT NULL DEFAULT '',
	home_team      TEXT NOT NULL DEFAULT '',
	away_team      TEXT NOT NULL DEFAULT '',
	last_sequence  BIGINT NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS player_progress (
	game_id         TEXT NOT NULL,
	player_id       TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	team            TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	hit_types       JSONB NOT NULL DEFAULT '[]',
	at_bats         INT NOT NULL DEFAULT 0,
	hits            INT NOT NULL DEFAULT 0,
	outs_recorded   INT NOT NULL DEFAULT 0,
	hits_allowed    INT NOT NULL DEFAULT 0,
	runs_allowed    INT NOT NULL DEFAULT 0,
	pitches_thrown  INT NOT NULL DEFAULT 0,
	innings_pitched TEXT NOT NULL DEFAULT '',
	sole_pitcher    BOOLEAN NOT NULL DEFAULT FALSE,
	frozen          BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (game_id, player_id, role)
);

CREATE TABLE IF NOT EXISTS alert_claims (
	game_id    TEXT NOT NULL,
	player_id  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	claimed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (game_id, player_id, kind)
);
`

// registerPreparedStatements registers all read-path statements.
// Prepared statements eliminate parse overhead on every poll tick.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Games
		"get_game": `SELECT game_id, status, inning_ordinal, home_team, away_team, last_sequence, updated_at
			FROM games WHERE game_id = $1`,

		// Progress
		"get_progress": `SELECT game_id, player_id, name, team, role, hit_types, at_bats, hits,
			outs_recorded, hits_allowed, runs_allowed, pitches_thrown, innings_pitched,
			sole_pitcher, frozen, updated_at
			FROM player_progress WHERE game_id = $1 AND player_id = $2 AND role = $3`,
		"list_progress": `SELECT game_id, player_id, name, team, role, hit_types, at_bats, hits,
			outs_recorded, hits_allowed, runs_allowed, pitches_thrown, innings_pitched,
			sole_pitcher, frozen, updated_at
			FROM player_progress WHERE game_id = $1`,

		// Claims
		"try_claim": `INSERT INTO alert_claims (game_id, player_id, kind)
			VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		"list_claims": `SELECT game_id, player_id, kind, claimed_at
			FROM alert_claims WHERE game_id = $1 ORDER BY claimed_at`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Store implementation
// --------------------------------------------------------------------------

func (s *Postgres) GetGame(ctx context.Context, gameID string) (GameRecord, error) {
	var g GameRecord
	err := s.pool.QueryRow(ctx, "get_game", gameID).Scan(
		&g.GameID, &g.Status, &g.InningOrdinal, &g.HomeTeam, &g.AwayTeam,
		&g.LastSequence, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

func (s *Postgres) ApplyTick(ctx context.Context, game GameRecord, progress []PlayerProgress) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin apply tick: %w", err)
	}
	defer tx.Rollback(ctx)

	// Advance the cursor only if the snapshot is strictly newer. The
	// conditional update is the idempotence gate for the whole tick.
	tag, err := tx.Exec(ctx, `
		INSERT INTO games (game_id, status, inning_ordinal, home_team, away_team, last_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (game_id) DO UPDATE
		SET status = EXCLUDED.status,
		    inning_ordinal = EXCLUDED.inning_ordinal,
		    home_team = EXCLUDED.home_team,
		    away_team = EXCLUDED.away_team,
		    last_sequence = EXCLUDED.last_sequence,
		    updated_at = NOW()
		WHERE games.last_sequence < EXCLUDED.last_sequence`,
		game.GameID, game.Status, game.InningOrdinal, game.HomeTeam, game.AwayTeam, game.LastSequence,
	)
	if err != nil {
		return false, fmt.Errorf("advance game cursor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, p := range progress {
		hitTypes, err := json.Marshal(p.HitTypes)
		if err != nil {
			return false, fmt.Errorf("marshal hit types: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO player_progress (game_id, player_id, name, team, role, hit_types,
				at_bats, hits, outs_recorded, hits_allowed, runs_allowed, pitches_thrown,
				innings_pitched, sole_pitcher, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
			ON CONFLICT (game_id, player_id, role) DO UPDATE
			SET name = EXCLUDED.name,
			    team = EXCLUDED.team,
			    hit_types = EXCLUDED.hit_types,
			    at_bats = EXCLUDED.at_bats,
			    hits = EXCLUDED.hits,
			    outs_recorded = EXCLUDED.outs_recorded,
			    hits_allowed = EXCLUDED.hits_allowed,
			    runs_allowed = EXCLUDED.runs_allowed,
			    pitches_thrown = EXCLUDED.pitches_thrown,
			    innings_pitched = EXCLUDED.innings_pitched,
			    sole_pitcher = EXCLUDED.sole_pitcher,
			    updated_at = NOW()
			WHERE player_progress.frozen = FALSE`,
			p.GameID, p.PlayerID, p.Name, p.Team, p.Role, hitTypes,
			p.AtBats, p.Hits, p.OutsRecorded, p.HitsAllowed, p.RunsAllowed,
			p.PitchesThrown, p.InningsPitched, p.SolePitcher,
		)
		if err != nil {
			return false, fmt.Errorf("upsert progress %s/%s: %w", p.GameID, p.PlayerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit apply tick: %w", err)
	}
	return true, nil
}

func (s *Postgres) GetProgress(ctx context.Context, gameID, playerID string, role feed.Role) (PlayerProgress, error) {
	p, err := scanProgress(s.pool.QueryRow(ctx, "get_progress", gameID, playerID, role))
	if errors.Is(err, pgx.ErrNoRows) {
		return PlayerProgress{}, ErrNotFound
	}
	if err != nil {
		return PlayerProgress{}, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

func (s *Postgres) ListProgress(ctx context.Context, gameID string) ([]PlayerProgress, error) {
	rows, err := s.pool.Query(ctx, "list_progress", gameID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []PlayerProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) FreezeProgress(ctx context.Context, gameID, playerID string, role feed.Role) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE player_progress SET frozen = TRUE, updated_at = NOW()
		WHERE game_id = $1 AND player_id = $2 AND role = $3`, gameID, playerID, role)
	if err != nil {
		return fmt.Errorf("freeze progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) TryClaim(ctx context.Context, gameID, playerID, kind string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "try_claim", gameID, playerID, kind)
	if err != nil {
		return false, fmt.Errorf("try claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) ListClaims(ctx context.Context, gameID string) ([]Claim, error) {
	rows, err := s.pool.Query(ctx, "list_claims", gameID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []Claim
	for rows.Next() {
		var c Claim
		if err := rows.Scan(&c.GameID, &c.PlayerID, &c.Kind, &c.Claimed); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) EvictFinished(ctx context.Context, grace time.Duration) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin evict: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		DELETE FROM games
		WHERE status = $1 AND updated_at < NOW() - $2::interval
		RETURNING game_id`,
		feed.StatusFinal, fmt.Sprintf("%d seconds", int(grace.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("evict games: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan evicted game: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx, `DELETE FROM player_progress WHERE game_id = $1`, id); err != nil {
			return 0, fmt.Errorf("evict progress: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM alert_claims WHERE game_id = $1`, id); err != nil {
			return 0, fmt.Errorf("evict claims: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit evict: %w", err)
	}
	return len(ids), nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// scanProgress reads one player_progress row.
func scanProgress(row pgx.Row) (PlayerProgress, error) {
	var p PlayerProgress
	var hitTypes []byte
	err := row.Scan(
		&p.GameID, &p.PlayerID, &p.Name, &p.Team, &p.Role, &hitTypes,
		&p.AtBats, &p.Hits, &p.OutsRecorded, &p.HitsAllowed, &p.RunsAllowed,
		&p.PitchesThrown, &p.InningsPitched, &p.SolePitcher, &p.Frozen, &p.UpdatedAt,
	)
	if err != nil {
		return PlayerProgress{}, err
	}
	if len(hitTypes) > 0 {
		if err := json.Unmarshal(hitTypes, &p.HitTypes); err != nil {
			return PlayerProgress{}, fmt.Errorf("unmarshal hit types: %w", err)
		}
	}
	return p, nil
}
