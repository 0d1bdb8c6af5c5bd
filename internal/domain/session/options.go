package session

import (
	"time"

	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithTTL sets how long an idle session is kept. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl >= 0 {
			m.ttl = ttl
		}
	}
}

// WithMaxSessions caps the number of live sessions. Zero means no cap.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxSessions = n
		}
	}
}

// WithSweepInterval sets how often idle sessions are evicted.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithClock sets the clock used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}
