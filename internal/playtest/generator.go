package playtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/bpbrianpark/enigma-game/internal/domain/types"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// Share of correct guesses written in a different letter case.
const recaseRatio = 0.25

// GeneratePlans builds one guess plan per player from the category's known
// entries. Correct guesses use an entry label or one of its aliases; misses
// are random tokens no entry can match. The same seed yields the same plans.
func GeneratePlans(ctx context.Context, cfg *Config, entries []types.Entry) ([]Plan, error) {
	if len(entries) == 0 && cfg.MissRatio < 1 {
		return nil, fmt.Errorf("category %q has no entries to guess", cfg.Slug)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	plans := make([]Plan, cfg.Players)
	for p := range plans {
		guesses := make([]string, cfg.Guesses)
		for g := range guesses {
			if len(entries) == 0 || rng.Float64() < cfg.MissRatio {
				guesses[g] = missGuess()
				continue
			}
			guesses[g] = correctGuess(rng, entries[rng.IntN(len(entries))])
		}
		plans[p] = Plan{Player: p, Guesses: guesses}
	}

	logger.Get().Info(ctx, "generated guess plans",
		logger.Int("players", cfg.Players),
		logger.Int("guessesPerPlayer", cfg.Guesses),
		logger.Any("seed", seed))
	return plans, nil
}

func correctGuess(rng *rand.Rand, e types.Entry) string {
	guess := e.Label
	if n := len(e.Aliases); n > 0 && rng.IntN(2) == 0 {
		guess = e.Aliases[rng.IntN(n)].Label
	}
	if rng.Float64() < recaseRatio {
		guess = strings.ToUpper(guess)
	}
	return guess
}

func missGuess() string {
	return "qx " + strings.ReplaceAll(uuid.NewString(), "-", " ")
}
