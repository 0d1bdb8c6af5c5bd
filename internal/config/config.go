// Package config defines service configuration and its loading layers.
//
// Conventions:
//   - Provide New(ctx) to build a Config with defaults.
//   - Durations are stored as integer keys with a unit suffix and exposed
//     through accessor methods.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver is memory, sqlite or mysql.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN is a file path for sqlite and a DSN for mysql.
	StoreDSN string `koanf:"store_dsn"`
	// SeedFile is an optional YAML seed loaded at startup.
	SeedFile string `koanf:"seed_file"`

	KGEndpoint  string `koanf:"kg_endpoint"`
	KGUserAgent string `koanf:"kg_user_agent"`
	KGTimeoutMS int    `koanf:"kg_timeout_ms"`

	GatewayMinIntervalMS      int `koanf:"gateway_min_interval_ms"`
	GatewayCacheTTLS          int `koanf:"gateway_cache_ttl_s"`
	GatewayDefaultRetryAfterS int `koanf:"gateway_default_retry_after_s"`
	GatewayQueueSize          int `koanf:"gateway_queue_size"`

	// SpecialCasesFile adds per-category transform tables over the built-in ones.
	SpecialCasesFile string `koanf:"special_cases_file"`

	SessionTTLS int `koanf:"session_ttl_s"`
	SessionMax  int `koanf:"session_max"`

	// CronSecret guards the daily selection task. Empty disables the task.
	CronSecret string `koanf:"cron_secret"`

	TallyRetryAttempts int `koanf:"tally_retry_attempts"`
	TallyRetryDelayMS  int `koanf:"tally_retry_delay_ms"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		StoreDriver:               "memory",
		KGEndpoint:                "https://query.wikidata.org/sparql",
		KGUserAgent:               "enigma-game/1.0 (https://github.com/bpbrianpark/enigma-game)",
		KGTimeoutMS:               10_000,
		GatewayMinIntervalMS:      1_000,
		GatewayCacheTTLS:          300,
		GatewayDefaultRetryAfterS: 60,
		GatewayQueueSize:          256,
		SessionTTLS:               1_800,
		SessionMax:                10_000,
		TallyRetryAttempts:        3,
		TallyRetryDelayMS:         200,
	}
}

// KGTimeout is the per-request knowledge graph timeout.
func (c *Config) KGTimeout() time.Duration { return ms(c.KGTimeoutMS) }

// GatewayMinInterval is the spacing between outbound requests.
func (c *Config) GatewayMinInterval() time.Duration { return ms(c.GatewayMinIntervalMS) }

// GatewayCacheTTL is how long query results are reused.
func (c *Config) GatewayCacheTTL() time.Duration { return secs(c.GatewayCacheTTLS) }

// GatewayDefaultRetryAfter is the backoff used when a 429 carries no window.
func (c *Config) GatewayDefaultRetryAfter() time.Duration { return secs(c.GatewayDefaultRetryAfterS) }

// SessionTTL is the idle lifetime of a game session.
func (c *Config) SessionTTL() time.Duration { return secs(c.SessionTTLS) }

// TallyRetryDelay is the base delay between tally write attempts.
func (c *Config) TallyRetryDelay() time.Duration { return ms(c.TallyRetryDelayMS) }

func ms(n int) time.Duration   { return time.Duration(n) * time.Millisecond }
func secs(n int) time.Duration { return time.Duration(n) * time.Second }
