// Package daily picks the category that backs the daily game for each UTC day.
package daily

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

const (
	day        = 24 * time.Hour
	seedLayout = "2006-01-02"
)

// Store is the slice of the record store the selector needs.
type Store interface {
	// FindDailyPlayedBetween returns a daily category with playedOn in [from, to)
	// or an error matching model.ErrNotFound.
	FindDailyPlayedBetween(ctx context.Context, from, to time.Time) (*model.Category, error)
	// ListDailyEligibleCategories returns daily categories ordered by id ascending.
	ListDailyEligibleCategories(ctx context.Context, onlyUnselected bool) ([]model.Category, error)
	ResetDailySelection(ctx context.Context) error
	// ClaimDailyCategory marks id selected and played on day, but only while no
	// daily category has been played on that day. It reports whether it won.
	ClaimDailyCategory(ctx context.Context, id string, day time.Time) (bool, error)
}

// Selector is the date-seeded daily category picker.
type Selector struct {
	store Store
	now   func() time.Time
	log   logger.Logger
}

// New creates a selector over store.
func New(store Store, opts ...Option) *Selector {
	s := &Selector{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("daily")
	}
	return s
}

// Today returns the slug already played today, selecting one when none was.
func (s *Selector) Today(ctx context.Context) (string, error) {
	today := s.todayUTC()
	slug, ok, err := s.playedOn(ctx, today)
	if err != nil {
		return "", err
	}
	if ok {
		return slug, nil
	}
	return s.Select(ctx)
}

// Select picks today's category. Repeated calls on the same UTC day return the same slug.
func (s *Selector) Select(ctx context.Context) (string, error) {
	today := s.todayUTC()

	slug, ok, err := s.playedOn(ctx, today)
	if err != nil {
		return "", err
	}
	if ok {
		metrics.RecordDailySelection("existing")
		return slug, nil
	}

	pool, err := s.store.ListDailyEligibleCategories(ctx, true)
	if err != nil {
		return "", fmt.Errorf("list unselected daily categories: %w", err)
	}
	if len(pool) == 0 {
		if err := s.store.ResetDailySelection(ctx); err != nil {
			return "", fmt.Errorf("reset daily selection: %w", err)
		}
		metrics.RecordDailySelection("reset")
		s.log.Info(ctx, "daily pool exhausted, starting a new cycle")

		pool, err = s.store.ListDailyEligibleCategories(ctx, false)
		if err != nil {
			return "", fmt.Errorf("list daily categories: %w", err)
		}
	}
	if len(pool) == 0 {
		return "", ErrNoDailyCategories
	}

	seed := today.Format(seedLayout)
	pick := pool[HashString(seed)%len(pool)]

	won, err := s.store.ClaimDailyCategory(ctx, pick.ID, today)
	if err != nil {
		return "", fmt.Errorf("claim daily category %s: %w", pick.Slug, err)
	}
	if won {
		metrics.RecordDailySelection("claimed")
		s.log.Info(ctx, "daily category selected",
			logger.String("slug", pick.Slug),
			logger.String("day", seed),
			logger.Int("pool", len(pool)))
		return pick.Slug, nil
	}

	// Another caller claimed the day first.
	metrics.RecordDailySelection("lost")
	slug, ok, err = s.playedOn(ctx, today)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrClaimLost
	}
	return slug, nil
}

func (s *Selector) playedOn(ctx context.Context, from time.Time) (string, bool, error) {
	cat, err := s.store.FindDailyPlayedBetween(ctx, from, from.Add(day))
	if errors.Is(err, model.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find today's daily category: %w", err)
	}
	return cat.Slug, true, nil
}

func (s *Selector) todayUTC() time.Time {
	n := s.now().UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}
