package gateway

import (
	"context"
	"time"

	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

type settings struct {
	minInterval time.Duration
	timeout     time.Duration
	cacheTTL    time.Duration
	queueSize   int
	retryAfter  time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	logger      logger.Logger
}

// Option applies a configuration option to the Gateway.
type Option func(*settings)

// WithMinInterval sets the minimum spacing between outbound requests.
// Zero disables pacing.
func WithMinInterval(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.minInterval = d
		}
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCacheTTL sets how long successful results are reused.
func WithCacheTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithQueueSize bounds the number of requests waiting for dispatch.
func WithQueueSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithDefaultRetryAfter sets the backoff applied when the upstream signals
// a rate limit without a usable window.
func WithDefaultRetryAfter(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.retryAfter = d
		}
	}
}

// WithClock replaces the time source and the sleep function. Both must be
// consistent with each other.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
