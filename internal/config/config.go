// Package config loads tweetcastr settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	Stream  StreamConfig  `koanf:"stream"`
	Storage StorageConfig `koanf:"storage"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
	Tracing TracingConfig `koanf:"tracing"`
}

// StreamConfig describes the remote filtered feed.
type StreamConfig struct {
	Endpoint         string        `koanf:"endpoint"`
	BearerToken      string        `koanf:"bearer_token"`
	Languages        []string      `koanf:"languages"`
	Compress         bool          `koanf:"compress"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	IdleTimeout      time.Duration `koanf:"idle_timeout"`
	ReadTimeout      time.Duration `koanf:"read_timeout"`
}

// Storage drivers.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// StorageConfig selects the document store holding destination collections.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// IngestConfig controls session side effects and reconnect pacing.
type IngestConfig struct {
	RateLimitPause time.Duration `koanf:"rate_limit_pause"`
	DialRetryDelay time.Duration `koanf:"dial_retry_delay"`
	ErrorLog       string        `koanf:"error_log"`
	CoordinatesLog string        `koanf:"coordinates_log"`

	// Audit enables the per-collection text log. AuditLog defaults to
	// "<collection>.txt" when empty.
	Audit    bool   `koanf:"audit"`
	AuditLog string `koanf:"audit_log"`

	StopWords   []string `koanf:"stop_words"`
	MaxSeenKeys int      `koanf:"max_seen_keys"`
}

// AuditLogPath returns the audit file for collection.
func (c IngestConfig) AuditLogPath(collection string) string {
	if c.AuditLog != "" {
		return c.AuditLog
	}
	return collection + ".txt"
}

// LoggingConfig mirrors the LOG_LEVEL and LOG_FORMAT switches.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr            string        `koanf:"addr"`
	CollectInterval time.Duration `koanf:"collect_interval"`
}

// TracingConfig enables OTLP export of store and subscription spans.
type TracingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
}

func defaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			Endpoint:         "wss://stream.twitter.com/1.1/statuses/filter.json",
			Languages:        []string{"en"},
			HandshakeTimeout: 10 * time.Second,
			IdleTimeout:      30 * time.Second,
			ReadTimeout:      90 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverBolt,
			Path:   "tweetcastr.db",
		},
		Ingest: IngestConfig{
			RateLimitPause: 15 * time.Minute,
			DialRetryDelay: 5 * time.Second,
			ErrorLog:       "logfile.log",
			CoordinatesLog: "coordinates.txt",
			StopWords:      []string{"rt", "via"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			CollectInterval: 15 * time.Second,
		},
		Tracing: TracingConfig{
			Endpoint: "localhost:4318",
		},
	}
}
