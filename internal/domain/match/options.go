package match

import (
	"time"

	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTransformer sets the special-case transformer applied before normalization.
func WithTransformer(t Transformer) Option {
	return func(e *Engine) {
		if t != nil {
			e.transformer = t
		}
	}
}

// WithSynthesizer enables the dynamic stage.
func WithSynthesizer(s Synthesizer) Option {
	return func(e *Engine) {
		e.synth = s
	}
}

// WithFuzzyThreshold sets the highest accepted normalized edit distance.
func WithFuzzyThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold >= 0 && threshold <= 1 {
			e.matcher.Threshold = threshold
		}
	}
}

// WithMaxLengthDelta sets the fuzzy length gate.
func WithMaxLengthDelta(delta int) Option {
	return func(e *Engine) {
		if delta >= 0 {
			e.matcher.MaxLengthDelta = delta
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock sets the clock used to timestamp attempts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
