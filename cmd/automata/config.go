package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the automata daemon configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	PollInterval  string `json:"poll_interval"`  // Go duration string
	ActionTimeout string `json:"action_timeout"` // Go duration string
	ParallelLimit int64  `json:"parallel_limit"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        "file:" + filepath.Join(automataDir(), "automata.db"),
		LogLevel:      "info",
		PollInterval:  "60s",
		ActionTimeout: "30s",
		ParallelLimit: 8,
	}
}

func automataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".automata"
	}
	return filepath.Join(home, ".automata")
}

func settingsPath() string {
	return filepath.Join(automataDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("AUTOMATA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AUTOMATA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AUTOMATA_POLL_INTERVAL"); v != "" {
		cfg.PollInterval = v
	}
	if v := os.Getenv("AUTOMATA_ACTION_TIMEOUT"); v != "" {
		cfg.ActionTimeout = v
	}
	if v := os.Getenv("AUTOMATA_PARALLEL_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ParallelLimit = n
		}
	}

	return cfg
}

func (c Config) pollInterval() time.Duration {
	if d, err := time.ParseDuration(c.PollInterval); err == nil && d > 0 {
		return d
	}
	return 60 * time.Second
}

func (c Config) actionTimeout() time.Duration {
	if d, err := time.ParseDuration(c.ActionTimeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}
