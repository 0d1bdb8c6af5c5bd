package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENIGMA_"

var (
	// ErrLoadConfig wraps failures reading the config file or the environment.
	ErrLoadConfig = errors.New("load config failed")
	// ErrInvalidConfig wraps decode and Validate failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if ENIGMA_CONFIG is set
//  3. env (prefix ENIGMA_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// ENIGMA_GATEWAY_QUEUE_SIZE -> gateway_queue_size. Underscores are kept
	// so the flat keys match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case !oneOf(strings.ToLower(c.LogLevel), "debug", "info", "warn", "warning", "error"):
		return invalid("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	case !oneOf(c.LogFormat, "text", "json"):
		return invalid("log_format %q is not text or json", c.LogFormat)
	case !oneOf(c.StoreDriver, "memory", "sqlite", "mysql"):
		return invalid("store_driver %q is not memory, sqlite or mysql", c.StoreDriver)
	case c.StoreDriver == "mysql" && c.StoreDSN == "":
		return invalid("store_dsn is required for mysql")
	case c.KGEndpoint == "":
		return invalid("kg_endpoint must not be empty")
	case c.KGTimeoutMS <= 0:
		return invalid("kg_timeout_ms must be positive")
	case c.GatewayMinIntervalMS < 0:
		return invalid("gateway_min_interval_ms must not be negative")
	case c.GatewayCacheTTLS <= 0:
		return invalid("gateway_cache_ttl_s must be positive")
	case c.GatewayDefaultRetryAfterS <= 0:
		return invalid("gateway_default_retry_after_s must be positive")
	case c.GatewayQueueSize <= 0:
		return invalid("gateway_queue_size must be positive")
	case c.SessionTTLS <= 0:
		return invalid("session_ttl_s must be positive")
	case c.SessionMax <= 0:
		return invalid("session_max must be positive")
	case c.TallyRetryAttempts <= 0:
		return invalid("tally_retry_attempts must be positive")
	case c.TallyRetryDelayMS < 0:
		return invalid("tally_retry_delay_ms must not be negative")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
