package playtest

import "time"

// Config holds configuration for a play test run.
type Config struct {
	Slug       string        // Category to play
	Players    int           // Concurrent sessions
	Guesses    int           // Guesses per player
	Workers    int           // Concurrent guess submitters
	MissRatio  float64       // Share of guesses that match nothing
	Seed       uint64        // Seed for the guess generator; 0 picks one
	Timeout    time.Duration // Per-request timeout
	Tally      bool          // Tally each player's found entries at the end
	Verbose    bool          // Log every guess
	ReportEach time.Duration // Progress report interval
}

// Plan is the sequence of guesses one player will submit.
type Plan struct {
	Player  int
	Guesses []string
}

// Stats holds play test statistics.
type Stats struct {
	Players     int
	Submitted   int
	Correct     int
	Duplicate   int
	Missed      int
	RateLimited int
	Failed      int
	Verified    int
	Tallied     int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
