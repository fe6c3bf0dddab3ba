// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	// DBPath is the SQLite database file; empty means ~/.prodtrack/prodtrack.db.
	DBPath string `env:"PRODTRACK_DB"`
	// ListenAddr is the websocket bridge bind address.
	ListenAddr string `env:"PRODTRACK_ADDR" envDefault:"127.0.0.1:12345"`
	// LockTTL is the edit-lock expiry.
	LockTTL time.Duration `env:"PRODTRACK_LOCK_TTL" envDefault:"5m"`
}

// Load reads configuration from the environment, filling defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".prodtrack", "prodtrack.db")
	}
	return cfg, nil
}
