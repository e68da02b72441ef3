package config

import (
	"context"
	"strings"
)

// Package config provides configuration management for agentdeck.
//
// Configuration sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (AGENTDECK_* prefix)
//   3. YAML config file (default: ~/.config/agentdeck/config.yaml)
//   4. Built-in defaults (lowest priority)

// Config contains all configuration fields.
type Config struct {
	// Gateway is the chat gateway the client talks to.
	Gateway struct {
		// BaseURL is the HTTP base of the gateway REST API (e.g. http://localhost:8080).
		BaseURL string
		// WSPath is the websocket endpoint path on the gateway.
		WSPath string
		// Timeout is the REST request timeout in seconds.
		Timeout int
	}

	// Auth holds the gateway credential. Password is only ever read from the
	// AGENTDECK_PASSWORD environment variable, never from the config file.
	Auth struct {
		Email    string
		Password string
		// Token is a pre-issued credential that skips the login call.
		Token string
	}

	// Realtime tunes the websocket reconnect behaviour.
	Realtime struct {
		// BaseDelayMS is the first retry delay in milliseconds.
		BaseDelayMS int
		// MaxDelayMS caps the exponential retry delay.
		MaxDelayMS int
		// HandshakeTimeout is the dial timeout in seconds.
		HandshakeTimeout int
	}

	// Cache configures the local transcript cache.
	Cache struct {
		Enabled bool
		// Path to the SQLite file. Empty means a per-user default under the
		// home directory.
		Path string
	}

	// Server configures the built-in development gateway (agentdeck gateway).
	Server struct {
		Port int
		// AllowedOrigins is a list of origins permitted to call the REST API.
		// Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
		// Token the dev gateway accepts. Empty disables the auth check.
		Token string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
		// File enables rotating file output when non-empty.
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	// Metrics exposes Prometheus metrics when enabled.
	Metrics struct {
		Enabled    bool
		ListenAddr string
	}

	// UI tunes the terminal client.
	UI struct {
		// Markdown renders assistant replies as markdown when true.
		Markdown bool
		// TranscriptLimit caps how many cached messages are restored on open.
		TranscriptLimit int
	}
}

// WSURL derives the websocket URL from the gateway base URL.
func (c *Config) WSURL() string {
	base := strings.TrimSuffix(c.Gateway.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.Gateway.WSPath
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default
// config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath())
}
