package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateStream(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateIngest(); err != nil {
		return err
	}

	if err := c.validateMetrics(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateStream() error {
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream.endpoint is required")
	}
	u, err := url.Parse(c.Stream.Endpoint)
	if err != nil {
		return fmt.Errorf("stream.endpoint is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream.endpoint must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("stream.endpoint must include a host")
	}

	if c.Stream.IdleTimeout < 0 || c.Stream.ReadTimeout < 0 || c.Stream.HandshakeTimeout < 0 {
		return fmt.Errorf("stream timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverBolt, DriverSQLite, c.Storage.Driver)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.RateLimitPause <= 0 {
		return fmt.Errorf("ingest.rate_limit_pause must be positive, got %s", c.Ingest.RateLimitPause)
	}
	if c.Ingest.DialRetryDelay < 0 {
		return fmt.Errorf("ingest.dial_retry_delay must not be negative")
	}
	if c.Ingest.ErrorLog == "" {
		return fmt.Errorf("ingest.error_log is required")
	}
	if c.Ingest.CoordinatesLog == "" {
		return fmt.Errorf("ingest.coordinates_log is required")
	}
	if c.Ingest.MaxSeenKeys < 0 {
		return fmt.Errorf("ingest.max_seen_keys must not be negative")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Addr != "" && c.Metrics.CollectInterval <= 0 {
		return fmt.Errorf("metrics.collect_interval must be positive when metrics.addr is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
