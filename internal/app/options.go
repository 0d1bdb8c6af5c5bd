package service

import (
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/specialcase"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 200 * time.Millisecond
)

// Option applies a configuration option to the Service.
type Option func(*settings)

type settings struct {
	logger        logger.Logger
	now           func() time.Time
	specialCases  map[string]specialcase.Table
	sessionTTL    time.Duration
	maxSessions   int
	retryAttempts uint
	retryDelay    time.Duration
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for every time-dependent component.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSpecialCases adds per-category transform tables.
func WithSpecialCases(tables map[string]specialcase.Table) Option {
	return func(s *settings) {
		s.specialCases = tables
	}
}

// WithSessionTTL sets how long an idle session survives.
func WithSessionTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithRetry bounds the retries used for tally writes and rate-limited refreshes.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(s *settings) {
		if attempts > 0 {
			s.retryAttempts = uint(attempts)
		}
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}
