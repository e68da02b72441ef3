package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentdeck.yaml"
	}
	return filepath.Join(home, ".config", "agentdeck", "config.yaml")
}

// DefaultCachePath returns the per-user transcript cache location.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentdeck.db"
	}
	return filepath.Join(home, ".local", "share", "agentdeck", "transcripts.db")
}

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Gateway defaults
	cfg.Gateway.BaseURL = "http://localhost:8080"
	cfg.Gateway.WSPath = "/ws"
	cfg.Gateway.Timeout = 15

	// Realtime defaults
	cfg.Realtime.BaseDelayMS = 1000
	cfg.Realtime.MaxDelayMS = 30000
	cfg.Realtime.HandshakeTimeout = 10

	// Cache defaults
	cfg.Cache.Enabled = true
	cfg.Cache.Path = DefaultCachePath()

	// Dev gateway defaults
	cfg.Server.Port = 8080
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.Token = "dev-token"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 50
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 14

	// Metrics defaults
	cfg.Metrics.Enabled = false
	cfg.Metrics.ListenAddr = "localhost:9464"

	// UI defaults
	cfg.UI.Markdown = true
	cfg.UI.TranscriptLimit = 200

	return cfg
}
