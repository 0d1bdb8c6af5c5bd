package playtest

import "time"

// Defaults applied by Run when a Config field is zero.
const (
	DefaultPlayers    = 10
	DefaultGuesses    = 20
	DefaultWorkers    = 8
	DefaultMissRatio  = 0.2
	DefaultTimeout    = 30 * time.Second
	DefaultReportEach = time.Second
)

// WorkerChannelMultiplier sizes the job channel relative to the worker count.
const WorkerChannelMultiplier = 2

// Guess outcomes as counted by the runner.
const (
	outcomeCorrect     = "correct"
	outcomeDuplicate   = "duplicate"
	outcomeMissed      = "missed"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"
)
