package mlb

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/albapepper/cyclewatch/internal/feed"
)

// Find implements highlight.Resolver against the game content endpoint.
// Highlights are matched by sv_id (the play identifier) first, then by
// the alerted player's player_id. The last playback entry is the
// highest quality rendition.
func (c *Client) Find(ctx context.Context, gameID, playerID string, play feed.Play) (string, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/v1/game/%s/content", gameID))
	if err != nil {
		return "", fmt.Errorf("game content %s: %w", gameID, err)
	}

	// Items are ordered most to least recent.
	items := data.Get("highlights.live.items")
	if !items.Exists() {
		items = data.Get("highlights.highlights.items")
	}

	var byPlayer string
	var found string
	items.ForEach(func(_, item gjson.Result) bool {
		matchedPlay, matchedPlayer := matchKeywords(item, playerID, play.PlayID)
		switch {
		case matchedPlay:
			found = lastPlayback(item)
			return found == ""
		case matchedPlayer && byPlayer == "":
			byPlayer = lastPlayback(item)
		}
		return true
	})

	if found != "" {
		return found, nil
	}
	return byPlayer, nil
}

// matchKeywords inspects a highlight's keyword list for the play's
// sv_id or the alerted player's player_id.
func matchKeywords(item gjson.Result, playerID, playID string) (matchedPlay, matchedPlayer bool) {
	item.Get("keywordsAll").ForEach(func(_, kw gjson.Result) bool {
		value := kw.Get("value").String()
		switch kw.Get("type").String() {
		case "sv_id":
			if value != "" && value == playID {
				matchedPlay = true
			}
		case "player_id":
			if value != "" && value == playerID {
				matchedPlayer = true
			}
		}
		return true
	})
	return matchedPlay, matchedPlayer
}

func lastPlayback(item gjson.Result) string {
	playbacks := item.Get("playbacks").Array()
	for i := len(playbacks) - 1; i >= 0; i-- {
		if url := playbacks[i].Get("url").String(); url != "" {
			return url
		}
	}
	return ""
}
