package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/albapepper/cyclewatch/internal/feed"
)

// Memory is a mutex-guarded in-memory Store. Used by tests and local
// development; it provides the same atomicity guarantees as the durable
// backends but does not survive restarts.
type Memory struct {
	mu       sync.Mutex
	games    map[string]GameRecord
	progress map[string]map[string]PlayerProgress // gameID → role/playerID → progress
	claims   map[string]time.Time                 // gameID/playerID/kind → claimed at
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games:    make(map[string]GameRecord),
		progress: make(map[string]map[string]PlayerProgress),
		claims:   make(map[string]time.Time),
	}
}

func (m *Memory) GetGame(ctx context.Context, gameID string) (GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return GameRecord{}, ErrNotFound
	}
	return g, nil
}

func (m *Memory) ApplyTick(ctx context.Context, game GameRecord, progress []PlayerProgress) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.games[game.GameID]; ok && game.LastSequence <= prev.LastSequence {
		return false, nil
	}
	game.UpdatedAt = time.Now().UTC()
	m.games[game.GameID] = game

	byPlayer, ok := m.progress[game.GameID]
	if !ok {
		byPlayer = make(map[string]PlayerProgress)
		m.progress[game.GameID] = byPlayer
	}
	for _, p := range progress {
		key := string(p.Role) + "/" + p.PlayerID
		if prev, ok := byPlayer[key]; ok && prev.Frozen {
			continue
		}
		p.UpdatedAt = game.UpdatedAt
		byPlayer[key] = p
	}
	return true, nil
}

func (m *Memory) GetProgress(ctx context.Context, gameID, playerID string, role feed.Role) (PlayerProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[gameID][string(role)+"/"+playerID]
	if !ok {
		return PlayerProgress{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListProgress(ctx context.Context, gameID string) ([]PlayerProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PlayerProgress
	for _, p := range m.progress[gameID] {
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) FreezeProgress(ctx context.Context, gameID, playerID string, role feed.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(role) + "/" + playerID
	p, ok := m.progress[gameID][key]
	if !ok {
		return ErrNotFound
	}
	p.Frozen = true
	m.progress[gameID][key] = p
	return nil
}

func (m *Memory) TryClaim(ctx context.Context, gameID, playerID, kind string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := claimKey(gameID, playerID, kind)
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = time.Now().UTC()
	return true, nil
}

func (m *Memory) ListClaims(ctx context.Context, gameID string) ([]Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Claim
	prefix := claimPrefix(gameID)
	for key, at := range m.claims {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if c, ok := parseClaimKey(key); ok {
			c.Claimed = at
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) EvictFinished(ctx context.Context, grace time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-grace)
	evicted := 0
	for id, g := range m.games {
		if g.Status != feed.StatusFinal || g.UpdatedAt.After(cutoff) {
			continue
		}
		delete(m.games, id)
		delete(m.progress, id)
		prefix := claimPrefix(id)
		for key := range m.claims {
			if strings.HasPrefix(key, prefix) {
				delete(m.claims, key)
			}
		}
		evicted++
	}
	return evicted, nil
}

func (m *Memory) HealthCheck(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
