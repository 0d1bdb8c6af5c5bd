package match

import (
	"github.com/agnivade/levenshtein"

	"github.com/bpbrianpark/enigma-game/internal/domain/index"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/normalize"
)

const (
	// DefaultFuzzyThreshold is the highest accepted normalized edit distance.
	DefaultFuzzyThreshold = 0.2
	// DefaultMaxLengthDelta is the largest accepted difference in rune length.
	DefaultMaxLengthDelta = 2
)

// Score returns the Levenshtein distance between a and b divided by the rune
// length of the longer string. Identical strings score 0, disjoint ones 1.
func Score(a, b string) float64 {
	longest := max(normalize.RuneLen(a), normalize.RuneLen(b))
	if longest == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}

// Matcher gates fuzzy candidates on score and length.
type Matcher struct {
	Threshold      float64
	MaxLengthDelta int
}

// Accepts reports whether candidate is close enough to key, returning its score.
func (m Matcher) Accepts(key, candidate string) (float64, bool) {
	if normalize.LengthDelta(key, candidate) > m.MaxLengthDelta {
		return 0, false
	}
	s := Score(key, candidate)
	return s, s <= m.Threshold
}

// Best returns the lowest scoring accepted candidate. Ties keep the earliest candidate.
func (m Matcher) Best(key string, candidates []index.Candidate) (*model.Entry, float64, bool) {
	var (
		best      *model.Entry
		bestScore float64
	)
	for _, c := range candidates {
		s, ok := m.Accepts(key, c.Key)
		if !ok {
			continue
		}
		if best == nil || s < bestScore {
			best, bestScore = c.Entry, s
		}
	}
	return best, bestScore, best != nil
}
