package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Gateway
	if c.Gateway.BaseURL == "" {
		errs = append(errs, &ValidationError{
			Field:   "gateway.base_url",
			Message: "gateway base URL is required",
		})
	} else {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil {
			errs = append(errs, &ValidationError{
				Field:   "gateway.base_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, &ValidationError{
				Field:   "gateway.base_url",
				Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme),
			})
		} else if u.Host == "" {
			errs = append(errs, &ValidationError{
				Field:   "gateway.base_url",
				Message: "host cannot be empty",
			})
		}
	}

	if c.Gateway.WSPath == "" || !strings.HasPrefix(c.Gateway.WSPath, "/") {
		errs = append(errs, &ValidationError{
			Field:   "gateway.ws_path",
			Message: fmt.Sprintf("ws path must start with /, got %q", c.Gateway.WSPath),
		})
	}

	if c.Gateway.Timeout < 1 {
		errs = append(errs, &ValidationError{
			Field:   "gateway.timeout",
			Message: fmt.Sprintf("timeout must be at least 1 second, got %d", c.Gateway.Timeout),
		})
	}

	// Realtime
	if c.Realtime.BaseDelayMS < 1 {
		errs = append(errs, &ValidationError{
			Field:   "realtime.base_delay_ms",
			Message: fmt.Sprintf("base delay must be positive, got %d", c.Realtime.BaseDelayMS),
		})
	}
	if c.Realtime.MaxDelayMS < c.Realtime.BaseDelayMS {
		errs = append(errs, &ValidationError{
			Field:   "realtime.max_delay_ms",
			Message: fmt.Sprintf("max delay %d must be at least base delay %d", c.Realtime.MaxDelayMS, c.Realtime.BaseDelayMS),
		})
	}
	if c.Realtime.HandshakeTimeout < 1 {
		errs = append(errs, &ValidationError{
			Field:   "realtime.handshake_timeout",
			Message: fmt.Sprintf("handshake timeout must be at least 1 second, got %d", c.Realtime.HandshakeTimeout),
		})
	}

	// Cache
	if c.Cache.Enabled && c.Cache.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "cache.path",
			Message: "cache path is required when the cache is enabled",
		})
	}

	// Dev gateway
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	// Logging
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be json or text", c.Logging.Format),
		})
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.listen_addr",
			Message: "listen address is required when metrics are enabled",
		})
	}

	// UI
	if c.UI.TranscriptLimit < 0 {
		errs = append(errs, &ValidationError{
			Field:   "ui.transcript_limit",
			Message: fmt.Sprintf("transcript limit cannot be negative, got %d", c.UI.TranscriptLimit),
		})
	}

	return errs
}
