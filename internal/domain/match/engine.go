// Package match resolves a player's guess against a category's known entries.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/index"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/normalize"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// MaxGuessRunes bounds the accepted guess length.
const MaxGuessRunes = 200

// Transformer rewrites a guess before matching.
type Transformer interface {
	Transform(slug, guess string) string
}

// Synthesizer performs the live lookup for dynamic categories. A nil entry
// with a nil error is a miss.
type Synthesizer interface {
	Synthesize(ctx context.Context, cat *model.Category, guess string, idx *index.Index) (*model.Entry, error)
}

type identity struct{}

func (identity) Transform(_, guess string) string { return guess }

// Engine runs the five resolution stages in order and stops at the first hit.
type Engine struct {
	transformer Transformer
	synth       Synthesizer
	matcher     Matcher
	log         logger.Logger
	now         func() time.Time
}

// New creates an engine. Without a synthesizer the dynamic stage is skipped.
func New(opts ...Option) *Engine {
	e := &Engine{
		transformer: identity{},
		matcher:     Matcher{Threshold: DefaultFuzzyThreshold, MaxLengthDelta: DefaultMaxLengthDelta},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("match")
	}
	return e
}

// Resolve matches guess against idx. A miss is an attempt with an empty
// stage and a nil entry; it is not an error. When the live lookup was rate
// limited the attempt carries RateLimited and RetryAfter.
func (e *Engine) Resolve(ctx context.Context, cat *model.Category, guess string, idx *index.Index) (model.GuessAttempt, error) {
	attempt := model.GuessAttempt{Raw: guess, At: e.now()}
	if cat == nil {
		return attempt, fmt.Errorf("resolve: nil category: %w", model.ErrInvalidInput)
	}
	trimmed := strings.TrimSpace(guess)
	if trimmed == "" || normalize.RuneLen(trimmed) > MaxGuessRunes {
		return attempt, fmt.Errorf("resolve %q: %w", cat.Slug, model.ErrInvalidInput)
	}
	if idx == nil {
		idx = index.New(nil, nil)
	}

	attempt.Transformed = e.transformer.Transform(cat.Slug, trimmed)
	attempt.Norm = normalize.Key(attempt.Transformed)
	if attempt.Norm == "" {
		return attempt, fmt.Errorf("resolve %q: %w", cat.Slug, model.ErrInvalidInput)
	}

	if entry, ok := idx.Lookup(attempt.Norm); ok {
		return hit(attempt, model.StageExact, entry), nil
	}
	if entry, _, ok := e.matcher.Best(attempt.Norm, idx.EntryCandidates()); ok {
		return hit(attempt, model.StageFuzzy, entry), nil
	}
	if entry, ok := idx.LookupAlias(attempt.Norm); ok {
		return hit(attempt, model.StageAlias, entry), nil
	}
	if entry, _, ok := e.matcher.Best(attempt.Norm, idx.AliasCandidates()); ok {
		return hit(attempt, model.StageAliasFuzzy, entry), nil
	}

	if e.synth == nil || !cat.CanSynthesize() {
		return attempt, nil
	}
	entry, err := e.synth.Synthesize(ctx, cat, attempt.Transformed, idx)
	if err != nil {
		if d, ok := model.RetryAfter(err); ok {
			attempt.RateLimited = true
			attempt.RetryAfter = d
			e.log.Info(ctx, "live lookup rate limited",
				logger.String("category", cat.Slug),
				logger.Duration("retry_after", d))
			return attempt, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return attempt, fmt.Errorf("resolve %q: %w", cat.Slug, err)
		}
		e.log.Warn(ctx, "live lookup failed",
			logger.String("category", cat.Slug),
			logger.Error(err))
		return attempt, nil
	}
	if entry == nil {
		return attempt, nil
	}
	return hit(attempt, model.StageDynamic, entry), nil
}

// ResolveEntries builds a throwaway index from entries and aliases and resolves against it.
func (e *Engine) ResolveEntries(ctx context.Context, cat *model.Category, guess string, entries []model.Entry, aliases []model.Alias) (model.GuessAttempt, error) {
	return e.Resolve(ctx, cat, guess, index.New(entries, aliases))
}

func hit(attempt model.GuessAttempt, stage model.Stage, entry *model.Entry) model.GuessAttempt {
	matched := *entry
	attempt.Stage = stage
	attempt.Entry = &matched
	return attempt
}
