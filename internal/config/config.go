package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Game struct {
		TimerSeconds        int    `yaml:"timer_seconds"`
		AutoProgressPercent int    `yaml:"auto_progress_percent"`
		EventCap            int    `yaml:"event_cap"`
	} `yaml:"game"`
	AI struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"ai"`
	Theme struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"theme"`
}

// Load reads YAML config from path. A missing file yields defaults so the
// server runs with zero setup.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if key := os.Getenv("AI_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Game.TimerSeconds = 15
	cfg.Game.AutoProgressPercent = 90
	cfg.Game.EventCap = 100
	cfg.AI.BaseURL = "https://api.openai.com/v1"
	cfg.AI.Model = "gpt-4o-mini"
	cfg.AI.Timeout = "30s"
	cfg.AI.APIKey = os.Getenv("AI_API_KEY")
	cfg.Theme.CacheTTL = "10m"
	return cfg
}

// TTLDuration parses a duration string or returns the fallback if empty
// or malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
