package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/albapepper/cyclewatch/internal/config"
	"github.com/albapepper/cyclewatch/internal/feed"
)

// Redis is a go-redis backed Store. The sequence gate and progress writes
// run in a single Lua script so overlapping ticks cannot interleave;
// claims are plain SETNX.
type Redis struct {
	rdb *goredis.Client
}

// NewRedis creates a Redis store. Connectivity is verified lazily on
// first use; a down Redis aborts the affected tick, not the process.
func NewRedis(cfg *config.Config) *Redis {
	return &Redis{
		rdb: goredis.NewClient(&goredis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}),
	}
}

// applyTickScript gates on the stored sequence, then writes the game
// record and every non-frozen progress record. KEYS[1] is the game key,
// KEYS[2:] are progress keys; ARGV[1] is the new sequence, ARGV[2] the
// game JSON, ARGV[3:] the progress JSON values.
var applyTickScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local g = cjson.decode(cur)
	if tonumber(ARGV[1]) <= tonumber(g['last_sequence']) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[2])
for i = 2, #KEYS do
	local prev = redis.call('GET', KEYS[i])
	local skip = false
	if prev then
		local p = cjson.decode(prev)
		if p['frozen'] then
			skip = true
		end
	end
	if not skip then
		redis.call('SET', KEYS[i], ARGV[i+1])
	end
end
return 1
`)

// freezeScript flips the frozen flag in place.
var freezeScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
	return 0
end
local p = cjson.decode(cur)
p['frozen'] = true
redis.call('SET', KEYS[1], cjson.encode(p))
return 1
`)

func (s *Redis) GetGame(ctx context.Context, gameID string) (GameRecord, error) {
	data, err := s.rdb.Get(ctx, gameKey(gameID)).Result()
	if errors.Is(err, goredis.Nil) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("get game: %w", err)
	}
	var g GameRecord
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return GameRecord{}, fmt.Errorf("decode game: %w", err)
	}
	return g, nil
}

func (s *Redis) ApplyTick(ctx context.Context, game GameRecord, progress []PlayerProgress) (bool, error) {
	game.UpdatedAt = time.Now().UTC()
	gameJSON, err := json.Marshal(game)
	if err != nil {
		return false, fmt.Errorf("encode game: %w", err)
	}

	keys := []string{gameKey(game.GameID)}
	args := []interface{}{game.LastSequence, string(gameJSON)}
	for _, p := range progress {
		p.UpdatedAt = game.UpdatedAt
		data, err := json.Marshal(p)
		if err != nil {
			return false, fmt.Errorf("encode progress: %w", err)
		}
		keys = append(keys, progressKey(p.GameID, p.PlayerID, string(p.Role)))
		args = append(args, string(data))
	}

	n, err := applyTickScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("apply tick: %w", err)
	}
	return n == 1, nil
}

func (s *Redis) GetProgress(ctx context.Context, gameID, playerID string, role feed.Role) (PlayerProgress, error) {
	data, err := s.rdb.Get(ctx, progressKey(gameID, playerID, string(role))).Result()
	if errors.Is(err, goredis.Nil) {
		return PlayerProgress{}, ErrNotFound
	}
	if err != nil {
		return PlayerProgress{}, fmt.Errorf("get progress: %w", err)
	}
	var p PlayerProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return PlayerProgress{}, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}

func (s *Redis) ListProgress(ctx context.Context, gameID string) ([]PlayerProgress, error) {
	keys, err := s.scanKeys(ctx, "progress:"+gameID+":*")
	if err != nil {
		return nil, err
	}
	var out []PlayerProgress
	for _, key := range keys {
		data, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var p PlayerProgress
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Redis) FreezeProgress(ctx context.Context, gameID, playerID string, role feed.Role) error {
	n, err := freezeScript.Run(ctx, s.rdb, []string{progressKey(gameID, playerID, string(role))}).Int()
	if err != nil {
		return fmt.Errorf("freeze progress: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) TryClaim(ctx context.Context, gameID, playerID, kind string) (bool, error) {
	claimed, err := s.rdb.SetNX(ctx, claimKey(gameID, playerID, kind),
		time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("try claim: %w", err)
	}
	return claimed, nil
}

func (s *Redis) ListClaims(ctx context.Context, gameID string) ([]Claim, error) {
	keys, err := s.scanKeys(ctx, claimPrefix(gameID)+"*")
	if err != nil {
		return nil, err
	}
	var out []Claim
	for _, key := range keys {
		c, ok := parseClaimKey(key)
		if !ok {
			continue
		}
		if data, err := s.rdb.Get(ctx, key).Result(); err == nil {
			if at, perr := time.Parse(time.RFC3339, data); perr == nil {
				c.Claimed = at
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Redis) EvictFinished(ctx context.Context, grace time.Duration) (int, error) {
	gameKeys, err := s.scanKeys(ctx, "game:*")
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-grace)
	evicted := 0
	for _, key := range gameKeys {
		data, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return evicted, fmt.Errorf("get %s: %w", key, err)
		}
		var g GameRecord
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return evicted, fmt.Errorf("decode %s: %w", key, err)
		}
		if g.Status != feed.StatusFinal || g.UpdatedAt.After(cutoff) {
			continue
		}

		doomed := []string{key}
		progKeys, err := s.scanKeys(ctx, "progress:"+g.GameID+":*")
		if err != nil {
			return evicted, err
		}
		claimKeys, err := s.scanKeys(ctx, claimPrefix(g.GameID)+"*")
		if err != nil {
			return evicted, err
		}
		doomed = append(doomed, progKeys...)
		doomed = append(doomed, claimKeys...)
		if err := s.rdb.Del(ctx, doomed...).Err(); err != nil {
			return evicted, fmt.Errorf("evict %s: %w", g.GameID, err)
		}
		evicted++
	}
	return evicted, nil
}

func (s *Redis) HealthCheck(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}

func (s *Redis) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
