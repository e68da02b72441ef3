package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("AGENTDECK")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional: defaults plus env vars are a complete
	// configuration.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No file, use defaults.
		} else if os.IsNotExist(err) {
			// Same, reported through the os layer.
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update.
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Gateway defaults
	m.viper.SetDefault("gateway.base_url", defaults.Gateway.BaseURL)
	m.viper.SetDefault("gateway.ws_path", defaults.Gateway.WSPath)
	m.viper.SetDefault("gateway.timeout", defaults.Gateway.Timeout)

	// Auth defaults
	m.viper.SetDefault("auth.email", "")
	m.viper.SetDefault("auth.token", "")

	// Realtime defaults
	m.viper.SetDefault("realtime.base_delay_ms", defaults.Realtime.BaseDelayMS)
	m.viper.SetDefault("realtime.max_delay_ms", defaults.Realtime.MaxDelayMS)
	m.viper.SetDefault("realtime.handshake_timeout", defaults.Realtime.HandshakeTimeout)

	// Cache defaults
	m.viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	m.viper.SetDefault("cache.path", defaults.Cache.Path)

	// Dev gateway defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.token", defaults.Server.Token)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)

	// Metrics defaults
	m.viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	m.viper.SetDefault("metrics.listen_addr", defaults.Metrics.ListenAddr)

	// UI defaults
	m.viper.SetDefault("ui.markdown", defaults.UI.Markdown)
	m.viper.SetDefault("ui.transcript_limit", defaults.UI.TranscriptLimit)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Gateway
	cfg.Gateway.BaseURL = m.viper.GetString("gateway.base_url")
	cfg.Gateway.WSPath = m.viper.GetString("gateway.ws_path")
	cfg.Gateway.Timeout = m.viper.GetInt("gateway.timeout")

	// Auth
	cfg.Auth.Email = m.viper.GetString("auth.email")
	cfg.Auth.Token = m.viper.GetString("auth.token")

	// Realtime
	cfg.Realtime.BaseDelayMS = m.viper.GetInt("realtime.base_delay_ms")
	cfg.Realtime.MaxDelayMS = m.viper.GetInt("realtime.max_delay_ms")
	cfg.Realtime.HandshakeTimeout = m.viper.GetInt("realtime.handshake_timeout")

	// Cache
	cfg.Cache.Enabled = m.viper.GetBool("cache.enabled")
	cfg.Cache.Path = m.viper.GetString("cache.path")

	// Dev gateway
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.Token = m.viper.GetString("server.token")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	// Metrics
	cfg.Metrics.Enabled = m.viper.GetBool("metrics.enabled")
	cfg.Metrics.ListenAddr = m.viper.GetString("metrics.listen_addr")

	// UI
	cfg.UI.Markdown = m.viper.GetBool("ui.markdown")
	cfg.UI.TranscriptLimit = m.viper.GetInt("ui.transcript_limit")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperConfigManager) applyEnvOverrides() {
	// Password comes from the environment only, never from the file.
	if pw := os.Getenv("AGENTDECK_PASSWORD"); pw != "" {
		m.config.Auth.Password = pw
	}

	// A pre-issued token wins over the stored one.
	if token := os.Getenv("AGENTDECK_TOKEN"); token != "" {
		m.config.Auth.Token = token
	}

	// Gateway base URL from environment.
	if base := os.Getenv("AGENTDECK_GATEWAY_URL"); base != "" {
		m.config.Gateway.BaseURL = base
	}
}
