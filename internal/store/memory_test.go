package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/albapepper/cyclewatch/internal/feed"
)

func liveGame(id string, seq int64) GameRecord {
	return GameRecord{
		GameID:        id,
		Status:        feed.StatusLive,
		InningOrdinal: "7th",
		HomeTeam:      "Mariners",
		AwayTeam:      "Athletics",
		LastSequence:  seq,
	}
}

func TestMemoryApplyTickSequenceGate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	applied, err := m.ApplyTick(ctx, liveGame("g1", 10), nil)
	if err != nil || !applied {
		t.Fatalf("ApplyTick(seq=10) = %v, %v; want applied", applied, err)
	}

	// Same sequence is a no-op.
	applied, err = m.ApplyTick(ctx, liveGame("g1", 10), nil)
	if err != nil || applied {
		t.Fatalf("ApplyTick(seq=10 again) = %v, %v; want not applied", applied, err)
	}

	// Lower sequence is a no-op.
	applied, err = m.ApplyTick(ctx, liveGame("g1", 9), nil)
	if err != nil || applied {
		t.Fatalf("ApplyTick(seq=9) = %v, %v; want not applied", applied, err)
	}

	// Higher sequence advances.
	applied, err = m.ApplyTick(ctx, liveGame("g1", 11), nil)
	if err != nil || !applied {
		t.Fatalf("ApplyTick(seq=11) = %v, %v; want applied", applied, err)
	}

	g, err := m.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if g.LastSequence != 11 {
		t.Errorf("LastSequence = %d, want 11", g.LastSequence)
	}
}

func TestMemoryApplyTickSkipsFrozenProgress(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := PlayerProgress{GameID: "g1", PlayerID: "p1", Role: feed.RoleBatter, AtBats: 2}
	if _, err := m.ApplyTick(ctx, liveGame("g1", 1), []PlayerProgress{p}); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}
	if err := m.FreezeProgress(ctx, "g1", "p1", feed.RoleBatter); err != nil {
		t.Fatalf("FreezeProgress: %v", err)
	}

	p.AtBats = 4
	if _, err := m.ApplyTick(ctx, liveGame("g1", 2), []PlayerProgress{p}); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}

	got, err := m.GetProgress(ctx, "g1", "p1", feed.RoleBatter)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if !got.Frozen {
		t.Error("progress record lost its frozen flag")
	}
	if got.AtBats != 2 {
		t.Errorf("frozen record was overwritten: AtBats = %d, want 2", got.AtBats)
	}
}

func TestMemoryProgressKeyedByRole(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	records := []PlayerProgress{
		{GameID: "g1", PlayerID: "p1", Role: feed.RoleBatter, AtBats: 3},
		{GameID: "g1", PlayerID: "p1", Role: feed.RolePitcher, OutsRecorded: 12},
	}
	if _, err := m.ApplyTick(ctx, liveGame("g1", 1), records); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}

	b, err := m.GetProgress(ctx, "g1", "p1", feed.RoleBatter)
	if err != nil || b.AtBats != 3 {
		t.Fatalf("batter progress = %+v, %v", b, err)
	}
	p, err := m.GetProgress(ctx, "g1", "p1", feed.RolePitcher)
	if err != nil || p.OutsRecorded != 12 {
		t.Fatalf("pitcher progress = %+v, %v", p, err)
	}

	all, err := m.ListProgress(ctx, "g1")
	if err != nil {
		t.Fatalf("ListProgress: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListProgress returned %d records, want 2", len(all))
	}
}

func TestMemoryTryClaimExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.TryClaim(ctx, "g1", "p1", "cycle-complete")
			if err != nil {
				t.Errorf("TryClaim: %v", err)
				return
			}
			if ok {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("claim won by %d callers, want exactly 1", won)
	}

	claims, err := m.ListClaims(ctx, "g1")
	if err != nil {
		t.Fatalf("ListClaims: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("ListClaims returned %d claims, want 1", len(claims))
	}
	c := claims[0]
	if c.GameID != "g1" || c.PlayerID != "p1" || c.Kind != "cycle-complete" {
		t.Errorf("claim = %+v", c)
	}
	if c.Claimed.IsZero() {
		t.Error("claim timestamp is zero")
	}
}

func TestMemoryClaimsIndependentPerKind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, kind := range []string{"cycle-near", "cycle-complete"} {
		ok, err := m.TryClaim(ctx, "g1", "p1", kind)
		if err != nil || !ok {
			t.Fatalf("TryClaim(%s) = %v, %v; want won", kind, ok, err)
		}
	}
	ok, err := m.TryClaim(ctx, "g1", "p2", "cycle-near")
	if err != nil || !ok {
		t.Fatalf("TryClaim(other player) = %v, %v; want won", ok, err)
	}
}

func TestMemoryEvictFinished(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	final := liveGame("done", 5)
	final.Status = feed.StatusFinal
	if _, err := m.ApplyTick(ctx, final, []PlayerProgress{
		{GameID: "done", PlayerID: "p1", Role: feed.RoleBatter},
	}); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}
	if _, err := m.ApplyTick(ctx, liveGame("running", 5), nil); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}
	if _, err := m.TryClaim(ctx, "done", "p1", "cycle-complete"); err != nil {
		t.Fatalf("TryClaim: %v", err)
	}

	// A long grace keeps everything.
	n, err := m.EvictFinished(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("EvictFinished(1h) = %d, %v; want 0", n, err)
	}

	// Zero grace removes the finished game and all its state.
	n, err = m.EvictFinished(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("EvictFinished(0) = %d, %v; want 1", n, err)
	}
	if _, err := m.GetGame(ctx, "done"); err != ErrNotFound {
		t.Errorf("GetGame(done) err = %v, want ErrNotFound", err)
	}
	if _, err := m.GetGame(ctx, "running"); err != nil {
		t.Errorf("GetGame(running) err = %v, want nil", err)
	}
	claims, err := m.ListClaims(ctx, "done")
	if err != nil {
		t.Fatalf("ListClaims: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("claims survived eviction: %+v", claims)
	}
}
