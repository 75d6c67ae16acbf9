// Command watch is the Cyclewatch operations CLI.
//
// Usage:
//
//	cyclewatch tick
//	cyclewatch tick --dry-run
//	cyclewatch claims --game 529572
//	cyclewatch progress --game 529572
//	cyclewatch evict --grace 6h
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/cyclewatch/internal/achieve"
	"github.com/albapepper/cyclewatch/internal/config"
	"github.com/albapepper/cyclewatch/internal/engine"
	"github.com/albapepper/cyclewatch/internal/feed"
	"github.com/albapepper/cyclewatch/internal/highlight"
	"github.com/albapepper/cyclewatch/internal/mlb"
	"github.com/albapepper/cyclewatch/internal/notify"
	"github.com/albapepper/cyclewatch/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "cyclewatch",
		Short: "Cyclewatch operations CLI",
	}

	root.AddCommand(tickCmd())
	root.AddCommand(claimsCmd())
	root.AddCommand(progressCmd())
	root.AddCommand(evictCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// tick command
// --------------------------------------------------------------------------

func tickCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one detection pass against the live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				client := mlb.NewClient(cfg.MLBBaseURL, cfg.MLBRateLimit,
					cfg.HighlightRetryMax, cfg.HighlightRetryWait, logger)
				gate := highlight.NewGate(client, highlight.Config{
					MinCaptivatingScore: cfg.MinCaptivatingScore,
					FavoritePlayerIDs:   cfg.FavoritePlayerIDs,
					StalePlayAge:        cfg.StalePlayAge,
				}, logger)

				// Dry runs log instead of posting to the webhook
				webhook := cfg.SlackWebhookURL
				if dryRun {
					webhook = ""
				}
				notifier := notify.NewSlackSender(webhook, logger)

				eng := engine.New(client, st, gate, notifier, achieve.Thresholds{
					CycleMinAtBats:     cfg.CycleMinAtBats,
					NoHitterNearOuts:   cfg.NoHitterNearOuts,
					ShutoutNearOuts:    cfg.ShutoutNearOuts,
					RequireSolePitcher: cfg.RequireSolePitcher,
				}, cfg.StoreTimeout, logger)

				start := time.Now()
				result := eng.Tick(ctx)
				logger.Info("Tick finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("tick error", "error", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log alerts instead of posting them")
	return cmd
}

// --------------------------------------------------------------------------
// claims command
// --------------------------------------------------------------------------

func claimsCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "List recorded alert claims for a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			if gameID == "" {
				return fmt.Errorf("--game is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				claims, err := st.ListClaims(ctx, gameID)
				if err != nil {
					return err
				}
				if len(claims) == 0 {
					fmt.Println("no claims")
					return nil
				}
				for _, c := range claims {
					fmt.Printf("%s\tplayer=%s\tkind=%s\tclaimed=%s\n",
						c.GameID, c.PlayerID, c.Kind, c.Claimed.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "Game ID")
	return cmd
}

// --------------------------------------------------------------------------
// progress command
// --------------------------------------------------------------------------

func progressCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "List tracked player progress for a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			if gameID == "" {
				return fmt.Errorf("--game is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				records, err := st.ListProgress(ctx, gameID)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("no progress records")
					return nil
				}
				for _, p := range records {
					switch p.Role {
					case feed.RolePitcher:
						fmt.Printf("%s\t%s\touts=%d hits_allowed=%d runs_allowed=%d frozen=%t\n",
							p.Role, p.PlayerID, p.OutsRecorded, p.HitsAllowed, p.RunsAllowed, p.Frozen)
					default:
						fmt.Printf("%s\t%s\thits=%v %d-%d frozen=%t\n",
							p.Role, p.PlayerID, p.HitTypes, p.Hits, p.AtBats, p.Frozen)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "Game ID")
	return cmd
}

// --------------------------------------------------------------------------
// evict command
// --------------------------------------------------------------------------

func evictCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Remove state for games finished longer than the grace period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, st store.Store) error {
				g := grace
				if g == 0 {
					g = cfg.EvictGrace
				}
				removed, err := st.EvictFinished(ctx, g)
				if err != nil {
					return err
				}
				logger.Info("Eviction finished", "grace", g, "removed", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 0, "Grace period (default EVICT_GRACE)")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run handles config loading, store connection, and context cancellation.
func run(fn func(ctx context.Context, cfg *config.Config, st store.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer st.Close()

	return fn(ctx, cfg, st)
}
