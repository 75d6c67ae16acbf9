package achieve

import (
	"testing"

	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/store"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		CycleMinAtBats:     3,
		NoHitterNearOuts:   21,
		ShutoutNearOuts:    21,
		RequireSolePitcher: true,
	}
}

func batter(hits []feed.Outcome, atBats int) store.PlayerProgress {
	return store.PlayerProgress{
		GameID:   "g1",
		PlayerID: "p1",
		Role:     feed.RoleBatter,
		HitTypes: hits,
		AtBats:   atBats,
		Hits:     len(hits),
	}
}

func pitcher(outs, hitsAllowed, runsAllowed int, sole bool) store.PlayerProgress {
	return store.PlayerProgress{
		GameID:       "g1",
		PlayerID:     "p1",
		Role:         feed.RolePitcher,
		OutsRecorded: outs,
		HitsAllowed:  hitsAllowed,
		RunsAllowed:  runsAllowed,
		SolePitcher:  sole,
	}
}

func kinds(signals []Signal) []Kind {
	out := make([]Kind, 0, len(signals))
	for _, s := range signals {
		out = append(out, s.Kind)
	}
	return out
}

func TestEvaluateCycle(t *testing.T) {
	three := []feed.Outcome{feed.OutcomeSingle, feed.OutcomeDouble, feed.OutcomeTriple}
	four := append(three, feed.OutcomeHomeRun)

	tests := []struct {
		name string
		p    store.PlayerProgress
		want []Kind
	}{
		{"no hits", batter(nil, 2), nil},
		{"two hit types", batter(three[:2], 3), nil},
		{"three types at minimum at-bats", batter(three, 3), []Kind{KindCycleNear}},
		{"three types below minimum at-bats", batter(three, 2), nil},
		{"complete cycle", batter(four, 4), []Kind{KindCycleComplete}},
		{"complete before minimum at-bats still fires", batter(four, 2), []Kind{KindCycleComplete}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(Evaluate(tt.p, false, defaultThresholds()))
			if len(got) != len(tt.want) {
				t.Fatalf("Evaluate() kinds = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Evaluate() kinds = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestEvaluateCycleNearProximity(t *testing.T) {
	p := batter([]feed.Outcome{feed.OutcomeSingle, feed.OutcomeDouble, feed.OutcomeTriple}, 3)
	signals := Evaluate(p, false, defaultThresholds())
	if len(signals) != 1 {
		t.Fatalf("Evaluate() = %v, want one signal", signals)
	}
	if signals[0].Proximity != 1 {
		t.Errorf("Proximity = %d, want 1", signals[0].Proximity)
	}
}

func TestEvaluatePitching(t *testing.T) {
	tests := []struct {
		name      string
		p         store.PlayerProgress
		gameFinal bool
		want      []Kind
	}{
		{"early hitless outing", pitcher(15, 0, 0, true), false, nil},
		{"no-hitter and shutout near at threshold", pitcher(21, 0, 0, true), false, []Kind{KindNoHitterNear, KindShutoutNear}},
		{"one out short of threshold", pitcher(20, 0, 0, true), false, nil},
		{"shutout near only after a hit", pitcher(21, 1, 0, true), false, []Kind{KindShutoutNear}},
		{"no signals after a run", pitcher(21, 1, 1, true), false, nil},
		{"run without a hit keeps no-hitter alive", pitcher(21, 0, 1, true), false, []Kind{KindNoHitterNear}},
		{"completed no-hitter and shutout", pitcher(27, 0, 0, true), true, []Kind{KindNoHitterComplete, KindShutoutComplete}},
		{"relief appearance disqualified", pitcher(21, 0, 0, false), false, nil},
		{"combined final disqualified", pitcher(27, 0, 0, false), true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kinds(Evaluate(tt.p, tt.gameFinal, defaultThresholds()))
			if len(got) != len(tt.want) {
				t.Fatalf("Evaluate() kinds = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Evaluate() kinds = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestEvaluateCombinedEffortsAllowed(t *testing.T) {
	th := defaultThresholds()
	th.RequireSolePitcher = false

	got := kinds(Evaluate(pitcher(21, 0, 0, false), false, th))
	want := []Kind{KindNoHitterNear, KindShutoutNear}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Evaluate() kinds = %v, want %v", got, want)
	}

	got = kinds(Evaluate(pitcher(27, 0, 0, false), true, th))
	want = []Kind{KindNoHitterComplete, KindShutoutComplete}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Evaluate() final kinds = %v, want %v", got, want)
	}

	// A hitless reliever did not pitch the whole game: the relaxed
	// policy must not hand out a completed signal for a partial outing.
	if got := kinds(Evaluate(pitcher(6, 0, 0, false), true, th)); len(got) != 0 {
		t.Errorf("Evaluate(reliever, final) kinds = %v, want none", got)
	}
	if got := kinds(Evaluate(pitcher(21, 0, 0, false), true, th)); len(got) != 0 {
		t.Errorf("Evaluate(long reliever, final) kinds = %v, want none", got)
	}
}

func TestEvaluateNearProximityCountsRemainingOuts(t *testing.T) {
	signals := Evaluate(pitcher(24, 0, 0, true), false, defaultThresholds())
	if len(signals) != 2 {
		t.Fatalf("Evaluate() = %v, want two signals", signals)
	}
	for _, s := range signals {
		if s.Proximity != 3 {
			t.Errorf("Proximity for %s = %d, want 3", s.Kind, s.Proximity)
		}
	}
}

func TestEvaluateFrozenRecordIsSilent(t *testing.T) {
	p := pitcher(27, 0, 0, true)
	p.Frozen = true
	if got := Evaluate(p, true, defaultThresholds()); got != nil {
		t.Errorf("Evaluate(frozen) = %v, want nil", got)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	p := batter([]feed.Outcome{feed.OutcomeSingle, feed.OutcomeDouble, feed.OutcomeTriple}, 4)
	first := Evaluate(p, false, defaultThresholds())
	for i := 0; i < 10; i++ {
		again := Evaluate(p, false, defaultThresholds())
		if len(again) != len(first) || again[0] != first[0] {
			t.Fatalf("Evaluate() not deterministic: %v vs %v", again, first)
		}
	}
}
