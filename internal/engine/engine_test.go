package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/albapepper/cyclewatch/internal/achieve"
	"github.com/albapepper/cyclewatch/internal/alert"
	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/highlight"
	"github.com/albapepper/cyclewatch/internal/store"
)

type fakeSource struct {
	mu    sync.Mutex
	snaps []feed.Snapshot
	err   error
}

func (f *fakeSource) set(snaps ...feed.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = snaps
}

func (f *fakeSource) LiveSnapshots(ctx context.Context) ([]feed.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps, f.err
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (c *captureNotifier) Send(ctx context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureNotifier) sent() []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Alert(nil), c.alerts...)
}

type fixedResolver struct{ url string }

func (r fixedResolver) Find(ctx context.Context, gameID, playerID string, play feed.Play) (string, error) {
	return r.url, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(src feed.Source, st store.Store, resolver highlight.Resolver, n *captureNotifier) *Engine {
	gate := highlight.NewGate(resolver, highlight.Config{MinCaptivatingScore: 75}, testLogger())
	return New(src, st, gate, n, achieve.Thresholds{
		CycleMinAtBats:     3,
		NoHitterNearOuts:   21,
		ShutoutNearOuts:    21,
		RequireSolePitcher: true,
	}, time.Second, testLogger())
}

func batterSnap(seq int64, status feed.GameStatus, hitTypes []feed.Outcome, atBats int) feed.Snapshot {
	plays := make([]feed.Play, 0, len(hitTypes))
	for i, h := range hitTypes {
		plays = append(plays, feed.Play{
			PlayID:           "play-" + string(rune('a'+i)),
			BatterID:         "p1",
			Outcome:          h,
			CaptivatingScore: 90,
			EndTime:          time.Now(),
		})
	}
	return feed.Snapshot{
		GameID:        "g1",
		Sequence:      seq,
		Status:        status,
		InningOrdinal: "8th",
		HomeTeam:      "Mariners",
		AwayTeam:      "Athletics",
		Players: []feed.PlayerLine{{
			PlayerID: "p1",
			Name:     "Mitch Haniger",
			Team:     "Mariners",
			Role:     feed.RoleBatter,
			Batting:  &feed.BattingLine{Hits: len(hitTypes), AtBats: atBats},
		}},
		Plays: plays,
	}
}

func pitcherSnap(seq int64, status feed.GameStatus, innings string, hitsAllowed, runsAllowed int) feed.Snapshot {
	return feed.Snapshot{
		GameID:        "g1",
		Sequence:      seq,
		Status:        status,
		InningOrdinal: "9th",
		HomeTeam:      "Mariners",
		AwayTeam:      "Athletics",
		Players: []feed.PlayerLine{{
			PlayerID: "p9",
			Name:     "James Paxton",
			Team:     "Mariners",
			Role:     feed.RolePitcher,
			Pitching: &feed.PitchingLine{
				InningsPitched: innings,
				HitsAllowed:    hitsAllowed,
				RunsAllowed:    runsAllowed,
				PitchesThrown:  90,
				SolePitcher:    true,
			},
		}},
	}
}

func kindsOf(alerts []alert.Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, string(a.Kind))
	}
	return out
}

func TestTickCycleScenario(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	eng := newTestEngine(src, store.NewMemory(), fixedResolver{url: "https://example.com/clip"}, notifier)

	three := []feed.Outcome{feed.OutcomeSingle, feed.OutcomeDouble, feed.OutcomeTriple}

	// Two hit types: nothing fires.
	src.set(batterSnap(1, feed.StatusLive, three[:2], 2))
	if r := eng.Tick(ctx); len(r.Errors) != 0 {
		t.Fatalf("tick errors: %v", r.Errors)
	}

	// Third distinct type at the at-bat threshold: near fires once.
	src.set(batterSnap(2, feed.StatusLive, three, 3))
	eng.Tick(ctx)

	// Replay of the same state: no duplicate.
	src.set(batterSnap(3, feed.StatusLive, three, 3))
	eng.Tick(ctx)

	// Fourth type: cycle complete.
	src.set(batterSnap(4, feed.StatusLive, append(three, feed.OutcomeHomeRun), 4))
	eng.Tick(ctx)

	got := kindsOf(notifier.sent())
	want := []string{"cycle-near", "cycle-complete"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("alerts = %v, want %v", got, want)
	}

	for _, a := range notifier.sent() {
		if a.HighlightURL != "https://example.com/clip" {
			t.Errorf("alert %s missing highlight URL: %+v", a.Kind, a)
		}
		if !strings.Contains(a.Message, "Mitch Haniger (Mariners)") {
			t.Errorf("alert message %q missing player identity", a.Message)
		}
	}
}

func TestTickShutoutLostLate(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	eng := newTestEngine(src, store.NewMemory(), fixedResolver{}, notifier)

	// Seven hitless, scoreless innings: both near alerts.
	src.set(pitcherSnap(1, feed.StatusLive, "7.0", 0, 0))
	eng.Tick(ctx)

	// A hit and a run with two outs to go: nothing more fires.
	src.set(pitcherSnap(2, feed.StatusLive, "8.2", 1, 1))
	eng.Tick(ctx)

	// Game ends; progress no longer qualifies for either completion.
	src.set(pitcherSnap(3, feed.StatusFinal, "9.0", 1, 1))
	eng.Tick(ctx)

	got := kindsOf(notifier.sent())
	want := []string{"no-hitter-near", "shutout-near"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("alerts = %v, want %v", got, want)
	}
}

func TestTickCompletedNoHitter(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	eng := newTestEngine(src, store.NewMemory(), fixedResolver{}, notifier)

	src.set(pitcherSnap(1, feed.StatusLive, "8.0", 0, 0))
	eng.Tick(ctx)
	src.set(pitcherSnap(2, feed.StatusFinal, "9.0", 0, 0))
	eng.Tick(ctx)

	got := kindsOf(notifier.sent())
	want := []string{"no-hitter-near", "shutout-near", "no-hitter-complete", "shutout-complete"}
	if len(got) != len(want) {
		t.Fatalf("alerts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alerts = %v, want %v", got, want)
		}
	}
}

func TestTickFinalFlipWithUnchangedBoxCompletes(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	eng := newTestEngine(src, store.NewMemory(), fixedResolver{}, notifier)

	// The last out arrives in a live snapshot; the next poll flips the
	// status to final with the box score untouched. The flip alone has
	// to produce the completed alerts.
	src.set(pitcherSnap(1, feed.StatusLive, "9.0", 0, 0))
	eng.Tick(ctx)
	src.set(pitcherSnap(2, feed.StatusFinal, "9.0", 0, 0))
	eng.Tick(ctx)

	got := kindsOf(notifier.sent())
	want := []string{"no-hitter-near", "shutout-near", "no-hitter-complete", "shutout-complete"}
	if len(got) != len(want) {
		t.Fatalf("alerts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alerts = %v, want %v", got, want)
		}
	}
}

func TestTickSkipsUntrackedFinalGame(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	st := store.NewMemory()
	eng := newTestEngine(src, st, fixedResolver{}, notifier)

	// First sighting of the game is already final: no cold-start alerts.
	src.set(pitcherSnap(10, feed.StatusFinal, "9.0", 0, 0))
	r := eng.Tick(ctx)
	if len(r.Errors) != 0 {
		t.Fatalf("tick errors: %v", r.Errors)
	}
	if len(notifier.sent()) != 0 {
		t.Errorf("alerts = %v, want none for untracked final game", kindsOf(notifier.sent()))
	}
	if _, err := st.GetGame(ctx, "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("untracked final game was stored: err = %v", err)
	}
}

func TestTickSkipsScheduledGames(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	st := store.NewMemory()
	eng := newTestEngine(src, st, fixedResolver{}, notifier)

	src.set(batterSnap(1, feed.StatusScheduled, nil, 0))
	eng.Tick(ctx)
	if _, err := st.GetGame(ctx, "g1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("scheduled game was stored: err = %v", err)
	}
}

func TestTickAlertsWithoutHighlight(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	eng := newTestEngine(src, store.NewMemory(), fixedResolver{url: ""}, notifier)

	three := []feed.Outcome{feed.OutcomeSingle, feed.OutcomeDouble, feed.OutcomeTriple}
	src.set(batterSnap(1, feed.StatusLive, append(three, feed.OutcomeHomeRun), 4))
	eng.Tick(ctx)

	sent := notifier.sent()
	if len(sent) != 1 {
		t.Fatalf("alerts = %v, want one", kindsOf(sent))
	}
	if sent[0].HighlightURL != "" {
		t.Errorf("HighlightURL = %q, want empty", sent[0].HighlightURL)
	}
	if sent[0].Kind != achieve.KindCycleComplete {
		t.Errorf("Kind = %s, want cycle-complete", sent[0].Kind)
	}
}

func TestTickSequenceRegressionIsIsolated(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{}
	eng := newTestEngine(src, store.NewMemory(), fixedResolver{}, notifier)

	src.set(pitcherSnap(10, feed.StatusLive, "7.0", 0, 0))
	eng.Tick(ctx)

	// Regressed sequence: skipped without error, no extra alerts.
	src.set(pitcherSnap(9, feed.StatusLive, "7.0", 0, 0))
	r := eng.Tick(ctx)
	if len(r.Errors) != 0 {
		t.Fatalf("tick errors: %v", r.Errors)
	}
	if got := len(notifier.sent()); got != 2 {
		t.Errorf("alerts = %v, want the two near alerts only", kindsOf(notifier.sent()))
	}
}

func TestTickFetchFailureReported(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: errors.New("schedule endpoint down")}
	notifier := &captureNotifier{}
	eng := newTestEngine(src, store.NewMemory(), fixedResolver{}, notifier)

	r := eng.Tick(ctx)
	if len(r.Errors) != 1 {
		t.Fatalf("Errors = %v, want one fetch error", r.Errors)
	}
	if r.Games != 0 {
		t.Errorf("Games = %d, want 0", r.Games)
	}
}

func TestTickDeliveryFailureBurnsClaim(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	notifier := &captureNotifier{err: errors.New("webhook 500")}
	st := store.NewMemory()
	eng := newTestEngine(src, st, fixedResolver{}, notifier)

	three := []feed.Outcome{feed.OutcomeSingle, feed.OutcomeDouble, feed.OutcomeTriple}
	src.set(batterSnap(1, feed.StatusLive, append(three, feed.OutcomeHomeRun), 4))
	r := eng.Tick(ctx)
	if len(r.Errors) != 0 {
		t.Fatalf("tick errors: %v", r.Errors)
	}
	if r.Alerts != 0 {
		t.Errorf("Alerts = %d, want 0 after delivery failure", r.Alerts)
	}

	claims, err := st.ListClaims(ctx, "g1")
	if err != nil {
		t.Fatalf("ListClaims: %v", err)
	}
	if len(claims) != 1 {
		t.Errorf("claims = %+v, want the burned claim recorded", claims)
	}
}
