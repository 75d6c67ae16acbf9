package mlb

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/albapepper/cyclewatch/internal/feed"
)

// Normalize converts a raw live-feed document into the normalized
// snapshot shape the core consumes. The feed's metaData.timeStamp
// ("20180413_141500") doubles as the snapshot sequence number: it is
// strictly increasing as the feed progresses.
func Normalize(gameID string, data gjson.Result) feed.Snapshot {
	snap := feed.Snapshot{
		GameID:        gameID,
		Sequence:      sequenceFromTimestamp(data.Get("metaData.timeStamp").String()),
		Status:        normalizeStatus(data.Get("gameData.status.abstractGameState").String()),
		InningOrdinal: data.Get("liveData.linescore.currentInningOrdinal").String(),
	}

	box := data.Get("liveData.boxscore.teams")
	snap.AwayTeam = box.Get("away.team.name").String()
	snap.HomeTeam = box.Get("home.team.name").String()

	snap.Players = append(snap.Players, normalizeTeam(box.Get("away"), snap.AwayTeam)...)
	snap.Players = append(snap.Players, normalizeTeam(box.Get("home"), snap.HomeTeam)...)

	// Plays are ordered least to most recent.
	data.Get("liveData.plays.allPlays").ForEach(func(_, play gjson.Result) bool {
		snap.Plays = append(snap.Plays, normalizePlay(play))
		return true
	})

	// Fall back to play count when the feed omits the timestamp; still
	// monotone within a game.
	if snap.Sequence == 0 {
		snap.Sequence = int64(len(snap.Plays))
	}
	return snap
}

func normalizeStatus(state string) feed.GameStatus {
	switch strings.ToLower(state) {
	case "live":
		return feed.StatusLive
	case "final":
		return feed.StatusFinal
	default:
		return feed.StatusScheduled
	}
}

// sequenceFromTimestamp parses "20180413_141500" into 20180413141500.
func sequenceFromTimestamp(ts string) int64 {
	digits := strings.ReplaceAll(ts, "_", "")
	var seq int64
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0
		}
		seq = seq*10 + int64(r-'0')
	}
	return seq
}

// normalizeTeam extracts batter and pitcher lines from one side's box
// score. A player appearing in both roles yields two lines.
func normalizeTeam(team gjson.Result, teamName string) []feed.PlayerLine {
	var lines []feed.PlayerLine
	var pitchers []feed.PlayerLine

	team.Get("players").ForEach(func(_, player gjson.Result) bool {
		id := player.Get("person.id").String()
		name := player.Get("person.fullName").String()
		if id == "" {
			return true
		}

		batting := player.Get("stats.batting")
		if batting.Exists() && batting.Get("atBats").Int() > 0 {
			lines = append(lines, feed.PlayerLine{
				PlayerID: id,
				Name:     name,
				Team:     teamName,
				Role:     feed.RoleBatter,
				Batting: &feed.BattingLine{
					Hits:     int(batting.Get("hits").Int()),
					AtBats:   int(batting.Get("atBats").Int()),
					HomeRuns: int(batting.Get("homeRuns").Int()),
				},
			})
		}

		pitching := player.Get("stats.pitching")
		if pitching.Exists() && hasPitched(pitching) {
			pitchers = append(pitchers, feed.PlayerLine{
				PlayerID: id,
				Name:     name,
				Team:     teamName,
				Role:     feed.RolePitcher,
				Pitching: &feed.PitchingLine{
					HitsAllowed:    int(pitching.Get("hits").Int()),
					RunsAllowed:    int(pitching.Get("runs").Int()),
					PitchesThrown:  int(pitching.Get("pitchesThrown").Int()),
					InningsPitched: pitching.Get("inningsPitched").String(),
				},
			})
		}
		return true
	})

	// A pitcher is the sole pitcher of record while no teammate has
	// taken the mound.
	sole := len(pitchers) == 1
	for i := range pitchers {
		pitchers[i].Pitching.SolePitcher = sole
		lines = append(lines, pitchers[i])
	}
	return lines
}

func hasPitched(pitching gjson.Result) bool {
	if pitching.Get("pitchesThrown").Int() > 0 {
		return true
	}
	ip := pitching.Get("inningsPitched").String()
	return ip != "" && ip != "0.0"
}

// normalizePlay extracts one play. The play identifier comes from the
// last play event carrying one, matching the content API's sv_id keying.
func normalizePlay(play gjson.Result) feed.Play {
	p := feed.Play{
		BatterID:         play.Get("matchup.batter.id").String(),
		PitcherID:        play.Get("matchup.pitcher.id").String(),
		Outcome:          normalizeOutcome(play.Get("result.event").String()),
		CaptivatingScore: int(play.Get("about.captivatingIndex").Int()),
	}

	events := play.Get("playEvents").Array()
	for i := len(events) - 1; i >= 0; i-- {
		if id := events[i].Get("playId").String(); id != "" {
			p.PlayID = id
			break
		}
	}

	if end := play.Get("about.endTime").String(); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			p.EndTime = t
		}
	}
	return p
}

func normalizeOutcome(event string) feed.Outcome {
	switch strings.ToLower(event) {
	case "single":
		return feed.OutcomeSingle
	case "double":
		return feed.OutcomeDouble
	case "triple":
		return feed.OutcomeTriple
	case "home run":
		return feed.OutcomeHomeRun
	default:
		return feed.OutcomeOther
	}
}
