package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

type settings struct {
	now          func() time.Time
	newID        func() string
	logger       logger.Logger
	maxOpenConns int
}

func defaultSettings() *settings {
	return &settings{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithClock sets the time source for created and updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the generator for new record ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *settings) {
		if newID != nil {
			s.newID = newID
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

// WithMaxOpenConns bounds the SQL connection pool. Ignored by the memory store.
func WithMaxOpenConns(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

func (s *settings) log(name string) logger.Logger {
	if s.logger != nil {
		return s.logger.Named(name)
	}
	return logger.Get().Named(name)
}
