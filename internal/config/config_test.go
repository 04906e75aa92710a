package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Game.EventCap != 100 {
		t.Fatalf("expected default event cap, got %d", cfg.Game.EventCap)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "server:\n  port: \"9090\"\ngame:\n  timer_seconds: 30\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Game.TimerSeconds != 30 {
		t.Fatalf("expected overridden timer, got %d", cfg.Game.TimerSeconds)
	}
	// Untouched sections keep their defaults.
	if cfg.Game.AutoProgressPercent != 90 {
		t.Fatalf("expected default auto progress, got %d", cfg.Game.AutoProgressPercent)
	}
}

func TestAPIKeyEnvOverride(t *testing.T) {
	t.Setenv("AI_API_KEY", "env-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.APIKey != "env-key" {
		t.Fatalf("expected env key, got %q", cfg.AI.APIKey)
	}
}

func TestTTLDuration(t *testing.T) {
	if d := TTLDuration("5m", time.Minute); d != 5*time.Minute {
		t.Fatalf("expected 5m, got %v", d)
	}
	if d := TTLDuration("", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback, got %v", d)
	}
	if d := TTLDuration("junk", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback on junk, got %v", d)
	}
}
