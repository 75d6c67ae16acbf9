package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.PollInterval)
	}
	if cfg.CycleMinAtBats != 3 || cfg.NoHitterNearOuts != 21 || cfg.ShutoutNearOuts != 21 {
		t.Errorf("thresholds = %d/%d/%d", cfg.CycleMinAtBats, cfg.NoHitterNearOuts, cfg.ShutoutNearOuts)
	}
	if !cfg.RequireSolePitcher {
		t.Error("RequireSolePitcher default = false, want true")
	}
	if cfg.MinCaptivatingScore != 75 {
		t.Errorf("MinCaptivatingScore = %d, want 75", cfg.MinCaptivatingScore)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", StoreRedis)
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("REQUIRE_SOLE_PITCHER", "false")
	t.Setenv("FAVORITE_PLAYER_IDS", "545361, 433587")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != StoreRedis {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.RequireSolePitcher {
		t.Error("RequireSolePitcher = true, want false")
	}
	if len(cfg.FavoritePlayerIDs) != 2 || cfg.FavoritePlayerIDs[1] != "433587" {
		t.Errorf("FavoritePlayerIDs = %v", cfg.FavoritePlayerIDs)
	}
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", StorePostgres)
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil error, want DATABASE_URL requirement")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/cyclewatch")
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
