// Package mlb implements the feed.Source and highlight.Resolver contracts
// against the MLB Stats API.
//
// Schedule and live-feed endpoints use cursor-free GETs; rate limiting is
// handled via a token bucket limiter, transient failures via bounded
// retries.
package mlb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/albapepper/cyclewatch/internal/feed"
)

// scheduleLocation is the schedule's reference timezone. Late games roll
// past midnight Eastern, so every poll covers yesterday and today.
const scheduleLocation = "America/New_York"

// Client is the MLB Stats API client.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient creates an MLB client with rate limiting and bounded retries.
func NewClient(baseURL string, requestsPerMinute, retryMax int, retryWait time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWait
	client.RetryWaitMax = 10 * retryWait
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
		now:     time.Now,
	}
}

// get performs a rate-limited GET and returns the parsed body.
func (c *Client) get(ctx context.Context, path string) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("MLB %s returned %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response body: %w", err)
	}
	return gjson.ParseBytes(body), nil
}

// LiveSnapshots returns one normalized snapshot per in-progress (or just
// finished) game across yesterday's and today's schedule.
func (c *Client) LiveSnapshots(ctx context.Context) ([]feed.Snapshot, error) {
	gameIDs, err := c.gameIDs(ctx)
	if err != nil {
		return nil, err
	}

	var snaps []feed.Snapshot
	for _, id := range gameIDs {
		snap, err := c.GameSnapshot(ctx, id)
		if err != nil {
			// One game's feed failing must not starve the rest.
			c.logger.Warn("skipping game feed", "game_id", id, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// gameIDs collects live and final game keys from the schedule window.
func (c *Client) gameIDs(ctx context.Context) ([]string, error) {
	loc, err := time.LoadLocation(scheduleLocation)
	if err != nil {
		return nil, fmt.Errorf("load location: %w", err)
	}
	today := c.now().In(loc)
	dates := []string{
		today.AddDate(0, 0, -1).Format("2006-01-02"),
		today.Format("2006-01-02"),
	}

	seen := make(map[string]bool)
	var ids []string
	for _, date := range dates {
		c.logger.Info("getting game keys", "date", date)
		data, err := c.get(ctx, "/api/v1/schedule?sportId=1&date="+date)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", date, err)
		}

		// The dates array can be empty or contain multiple dates.
		data.Get("dates").ForEach(func(_, d gjson.Result) bool {
			if d.Get("date").String() != date {
				return true
			}
			d.Get("games").ForEach(func(_, g gjson.Result) bool {
				id := g.Get("gamePk").String()
				state := strings.ToLower(g.Get("status.abstractGameState").String())
				if state == "preview" {
					c.logger.Info("skipping game", "game_id", id, "state", state)
					return true
				}
				if g.Get("seriesDescription").String() == "Spring Training" {
					return true
				}
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
				return true
			})
			return true
		})
	}
	return ids, nil
}

// GameSnapshot fetches and normalizes one game's live feed.
func (c *Client) GameSnapshot(ctx context.Context, gameID string) (feed.Snapshot, error) {
	data, err := c.get(ctx, fmt.Sprintf("/api/v1.1/game/%s/feed/live", gameID))
	if err != nil {
		return feed.Snapshot{}, err
	}
	return Normalize(gameID, data), nil
}
