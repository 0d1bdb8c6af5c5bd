package model

import "time"

// Stage names the resolution step that produced a match.
type Stage string

const (
	StageNone       Stage = ""
	StageExact      Stage = "exact"
	StageFuzzy      Stage = "fuzzy"
	StageAlias      Stage = "alias"
	StageAliasFuzzy Stage = "alias_fuzzy"
	StageDynamic    Stage = "dynamic"
)

// GuessAttempt is the ephemeral record of one resolved guess. It is never persisted.
type GuessAttempt struct {
	Raw         string
	Transformed string
	Norm        string
	Stage       Stage
	Entry       *Entry
	RateLimited bool
	RetryAfter  time.Duration
	At          time.Time
}

// Matched reports whether the attempt resolved to an entry.
func (g GuessAttempt) Matched() bool {
	return g.Entry != nil
}
