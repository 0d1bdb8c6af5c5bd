package synth

import "github.com/bpbrianpark/enigma-game/pkg/logger"

// Option applies a configuration option to the Synthesizer.
type Option func(*Synthesizer)

// WithMaxLengthDelta sets the row length gate.
func WithMaxLengthDelta(delta int) Option {
	return func(s *Synthesizer) {
		if delta >= 0 {
			s.maxDelta = delta
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.log = l
		}
	}
}
