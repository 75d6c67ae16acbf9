// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/watch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Store backends
// --------------------------------------------------------------------------

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Store
	StoreBackend   string // memory, postgres, redis
	DatabaseURL    string
	RedisAddr      string
	RedisDB        int
	StoreTimeout   time.Duration
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production

	// CORS
	CORSAllowOrigins []string

	// Polling
	PollInterval time.Duration
	MLBBaseURL   string
	MLBRateLimit int // requests per minute

	// Achievement thresholds
	CycleMinAtBats     int
	NoHitterNearOuts   int
	ShutoutNearOuts    int
	RequireSolePitcher bool

	// Highlights
	MinCaptivatingScore int
	FavoritePlayerIDs   []string
	StalePlayAge        time.Duration
	HighlightRetryMax   int
	HighlightRetryWait  time.Duration

	// Notification channel
	SlackWebhookURL string

	// Eviction
	EvictGrace time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		StoreBackend:   envOr("STORE_BACKEND", StoreMemory),
		DatabaseURL:    envOr("DATABASE_URL", ""),
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
		RedisDB:        envInt("REDIS_DB", 0),
		StoreTimeout:   envDuration("STORE_TIMEOUT", 3*time.Second),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),

		PollInterval: envDuration("POLL_INTERVAL", time.Minute),
		MLBBaseURL:   envOr("MLB_STATS_ORIGIN", "https://statsapi.mlb.com"),
		MLBRateLimit: envInt("MLB_RATE_LIMIT_PER_MINUTE", 60),

		CycleMinAtBats:     envInt("CYCLE_MIN_AT_BATS", 3),
		NoHitterNearOuts:   envInt("NOHITTER_NEAR_OUTS", 21),
		ShutoutNearOuts:    envInt("SHUTOUT_NEAR_OUTS", 21),
		RequireSolePitcher: envBool("REQUIRE_SOLE_PITCHER", true),

		MinCaptivatingScore: envInt("MIN_CAPTIVATING_SCORE", 75),
		FavoritePlayerIDs:   envList("FAVORITE_PLAYER_IDS", nil),
		StalePlayAge:        envDuration("STALE_PLAY_AGE", 30*time.Minute),
		HighlightRetryMax:   envInt("HIGHLIGHT_RETRY_MAX", 3),
		HighlightRetryWait:  envDuration("HIGHLIGHT_RETRY_WAIT", time.Second),

		SlackWebhookURL: envOr("SLACK_WEBHOOK_URL", ""),

		EvictGrace: envDuration("EVICT_GRACE", 6*time.Hour),
	}

	if cfg.StoreBackend == StorePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=postgres")
	}

	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
