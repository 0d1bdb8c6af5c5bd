// Package synth turns live knowledge graph rows into persisted entries and aliases.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bpbrianpark/enigma-game/internal/domain/index"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/normalize"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

// DefaultMaxLengthDelta is the row length gate.
const DefaultMaxLengthDelta = 2

// Querier runs a knowledge graph query.
type Querier interface {
	Query(ctx context.Context, query string) ([]model.Row, error)
}

// Store persists synthesized records. CreateOrUpdateEntry must be an upsert
// keyed on (CategoryID, URL) and CreateAlias must be idempotent on (EntryID, Norm).
type Store interface {
	CreateOrUpdateEntry(ctx context.Context, e model.Entry) (*model.Entry, error)
	CreateAlias(ctx context.Context, a model.Alias) (*model.Alias, error)
}

// Synthesizer performs live lookups for dynamic categories.
type Synthesizer struct {
	gateway  Querier
	store    Store
	maxDelta int
	log      logger.Logger
}

// New creates a synthesizer over a gateway and a store.
func New(gateway Querier, store Store, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		gateway:  gateway,
		store:    store,
		maxDelta: DefaultMaxLengthDelta,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("synth")
	}
	return s
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
)

// BuildQuery substitutes guess, escaped for a SPARQL string literal, at every placeholder.
func BuildQuery(template, guess string) string {
	return strings.ReplaceAll(template, model.SearchTermPlaceholder, literalEscaper.Replace(guess))
}

// Synthesize asks the knowledge graph whether guess names a member of cat.
// The first row whose label or alias normalizes to the guess is materialized
// and merged into idx. A nil entry with a nil error is a miss. Only rate
// limiting and caller cancellation are returned as errors.
func (s *Synthesizer) Synthesize(ctx context.Context, cat *model.Category, guess string, idx *index.Index) (*model.Entry, error) {
	if !cat.CanSynthesize() || idx == nil {
		return nil, nil
	}
	normGuess := normalize.Key(guess)
	if normGuess == "" {
		return nil, nil
	}

	rows, err := s.gateway.Query(ctx, BuildQuery(cat.UpdateQueryTemplate, strings.TrimSpace(guess)))
	if err != nil {
		return nil, s.queryFailed(ctx, cat, err)
	}
	if len(rows) == 0 {
		metrics.RecordSynthFailure("no_rows")
		return nil, nil
	}

	for _, row := range rows {
		normLabel := normalize.Key(row.Label)
		normAlias := normalize.Key(row.Alias)

		labelFits := normalize.LengthDelta(normLabel, normGuess) <= s.maxDelta
		aliasFits := normAlias != "" && normalize.LengthDelta(normAlias, normGuess) <= s.maxDelta
		if !labelFits && !aliasFits {
			continue
		}

		var viaAlias bool
		switch {
		case normGuess == normLabel:
		case normAlias != "" && normGuess == normAlias:
			viaAlias = true
		default:
			continue
		}

		entry, err := s.materialize(ctx, cat, row, normLabel, normAlias, viaAlias, idx)
		if err != nil {
			s.log.Error(ctx, "failed to persist live match",
				logger.String("category", cat.Slug),
				logger.String("url", row.URL),
				logger.Error(err))
			metrics.RecordSynthFailure("storage")
			metrics.RecordErrorByComponent("synth", "storage")
			return nil, nil
		}
		return entry, nil
	}

	metrics.RecordSynthFailure("no_match")
	return nil, nil
}

func (s *Synthesizer) queryFailed(ctx context.Context, cat *model.Category, err error) error {
	switch {
	case errors.Is(err, model.ErrRateLimited):
		metrics.RecordSynthFailure("rate_limited")
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, model.ErrTimeout):
		metrics.RecordSynthFailure("timeout")
	default:
		metrics.RecordSynthFailure("upstream")
	}
	s.log.Warn(ctx, "live lookup failed",
		logger.String("category", cat.Slug),
		logger.Error(err))
	return nil
}

func (s *Synthesizer) materialize(ctx context.Context, cat *model.Category, row model.Row, normLabel, normAlias string, viaAlias bool, idx *index.Index) (*model.Entry, error) {
	if existing, ok := idx.ByURL(row.URL); ok {
		if viaAlias {
			if err := s.addAlias(ctx, cat, existing, row.Alias, normAlias, idx); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	stored, err := s.store.CreateOrUpdateEntry(ctx, model.Entry{
		CategoryID: cat.ID,
		Label:      row.Label,
		Norm:       normLabel,
		URL:        row.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("create entry %s: %w", row.URL, err)
	}
	entry := idx.AddEntry(*stored)
	metrics.RecordSynthEntryCreated()
	s.log.Info(ctx, "entry synthesized",
		logger.String("category", cat.Slug),
		logger.String("label", entry.Label),
		logger.String("url", entry.URL))

	if viaAlias {
		if err := s.addAlias(ctx, cat, entry, row.Alias, normAlias, idx); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (s *Synthesizer) addAlias(ctx context.Context, cat *model.Category, owner *model.Entry, label, norm string, idx *index.Index) error {
	alias, err := s.store.CreateAlias(ctx, model.Alias{
		EntryID:    owner.ID,
		CategoryID: cat.ID,
		Label:      label,
		Norm:       norm,
	})
	if err != nil {
		return fmt.Errorf("create alias %q for %s: %w", label, owner.URL, err)
	}
	idx.AddAlias(*alias)
	metrics.RecordSynthAliasCreated()
	return nil
}
