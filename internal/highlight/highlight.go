// Package highlight resolves a best-effort video link for a triggering
// play. Lookups run only after an alert claim succeeds and only for
// plays worth watching; failures never block the alert.
package highlight

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/metrics"
)

// Resolver finds a video URL for a play. playerID is the alerted
// player, who is not the play's batter for pitching achievements.
// Implementations bound their own retries; an empty URL with nil error
// means "no highlight found".
type Resolver interface {
	Find(ctx context.Context, gameID, playerID string, play feed.Play) (string, error)
}

// Config controls the lookup gate.
type Config struct {
	// MinCaptivatingScore is the minimum play score worth a lookup.
	MinCaptivatingScore int

	// FavoritePlayerIDs bypass the captivating gate.
	FavoritePlayerIDs []string

	// StalePlayAge suppresses lookups for plays that ended too long
	// ago — the content API has usually rotated them out.
	StalePlayAge time.Duration
}

// Gate wraps a Resolver with the captivating-score, favorite-player and
// staleness policies. Resolve is strictly best-effort: any failure or
// gate rejection yields an empty URL and the alert proceeds without it.
type Gate struct {
	resolver  Resolver
	cfg       Config
	favorites map[string]bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewGate creates a Gate. resolver may be nil, in which case every
// lookup is skipped.
func NewGate(resolver Resolver, cfg Config, logger *slog.Logger) *Gate {
	favorites := make(map[string]bool, len(cfg.FavoritePlayerIDs))
	for _, id := range cfg.FavoritePlayerIDs {
		favorites[id] = true
	}
	return &Gate{
		resolver:  resolver,
		cfg:       cfg,
		favorites: favorites,
		logger:    logger,
		now:       time.Now,
	}
}

// Resolve returns a highlight URL for the play, or "" when the play is
// not worth a lookup or the lookup failed.
func (g *Gate) Resolve(ctx context.Context, gameID, playerID string, play feed.Play) string {
	if g.resolver == nil || play.PlayID == "" {
		metrics.HighlightLookups.WithLabelValues("skipped").Inc()
		return ""
	}
	if !g.favorites[playerID] && play.CaptivatingScore < g.cfg.MinCaptivatingScore {
		metrics.HighlightLookups.WithLabelValues("skipped").Inc()
		return ""
	}
	if g.cfg.StalePlayAge > 0 && !play.EndTime.IsZero() &&
		g.now().Sub(play.EndTime) > g.cfg.StalePlayAge {
		metrics.HighlightLookups.WithLabelValues("skipped").Inc()
		return ""
	}

	url, err := g.resolver.Find(ctx, gameID, playerID, play)
	if err != nil {
		g.logger.Warn("highlight lookup failed",
			"game_id", gameID, "play_id", play.PlayID, "error", err)
		metrics.HighlightLookups.WithLabelValues("miss").Inc()
		return ""
	}
	if url == "" {
		metrics.HighlightLookups.WithLabelValues("miss").Inc()
		return ""
	}
	metrics.HighlightLookups.WithLabelValues("hit").Inc()
	return url
}
