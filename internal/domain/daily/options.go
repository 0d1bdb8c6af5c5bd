package daily

import (
	"time"

	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithClock sets the clock used to compute the UTC day.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.log = l
		}
	}
}
