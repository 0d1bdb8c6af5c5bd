package playtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/types"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// PercentageMultiplier turns a ratio into a percentage.
const PercentageMultiplier = 100

// player is the client-side record of one session.
type player struct {
	plan      Plan
	sessionID string

	mu       sync.Mutex
	found    map[string]types.Entry
	recorded int
}

type job struct {
	p     *player
	guess string
}

// Run plays cfg.Players concurrent sessions against the server behind c,
// then checks every session snapshot against what the players saw.
func Run(ctx context.Context, c *Client, cfg *Config) (*Stats, error) {
	applyDefaults(cfg)
	stats := &Stats{StartTime: time.Now(), Players: cfg.Players}

	log := logger.Get()
	log.Info(ctx, "starting play test",
		logger.String("slug", cfg.Slug),
		logger.Int("players", cfg.Players),
		logger.Int("guesses", cfg.Guesses),
		logger.Int("workers", cfg.Workers))

	if err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	entries, err := c.Entries(ctx, cfg.Slug)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	plans, err := GeneratePlans(ctx, cfg, entries)
	if err != nil {
		return nil, fmt.Errorf("guess generation failed: %w", err)
	}

	players, err := startSessions(ctx, c, cfg, plans)
	if err != nil {
		return nil, fmt.Errorf("start sessions: %w", err)
	}

	submitGuesses(ctx, c, cfg, players, stats)

	if err := verifySessions(ctx, c, players, stats); err != nil {
		return stats, fmt.Errorf("session verification failed: %w", err)
	}

	if cfg.Tally {
		if err := tallyPlayers(ctx, c, cfg.Slug, players, stats); err != nil {
			return stats, fmt.Errorf("tally failed: %w", err)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Players <= 0 {
		cfg.Players = DefaultPlayers
	}
	if cfg.Guesses <= 0 {
		cfg.Guesses = DefaultGuesses
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MissRatio < 0 || cfg.MissRatio > 1 {
		cfg.MissRatio = DefaultMissRatio
	}
	if cfg.ReportEach <= 0 {
		cfg.ReportEach = DefaultReportEach
	}
}

func startSessions(ctx context.Context, c *Client, cfg *Config, plans []Plan) ([]*player, error) {
	players := make([]*player, len(plans))
	for i, plan := range plans {
		start, err := c.StartSession(ctx, cfg.Slug)
		if err != nil {
			return nil, fmt.Errorf("player %d: %w", i, err)
		}
		players[i] = &player{plan: plan, sessionID: start.SessionID, found: make(map[string]types.Entry)}
	}
	return players, nil
}

// submitGuesses fans every planned guess out over a worker pool.
func submitGuesses(ctx context.Context, c *Client, cfg *Config, players []*player, stats *Stats) {
	log := logger.Get()

	var submitted, correct, duplicate, missed, limited, failed int64
	total := 0
	for _, p := range players {
		total += len(p.plan.Guesses)
	}

	jobs := make(chan job, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	var lastReport atomic.Int64
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				outcome := submitSingleGuess(ctx, c, j)
				atomic.AddInt64(&submitted, 1)
				switch outcome {
				case outcomeCorrect:
					atomic.AddInt64(&correct, 1)
				case outcomeDuplicate:
					atomic.AddInt64(&duplicate, 1)
				case outcomeMissed:
					atomic.AddInt64(&missed, 1)
				case outcomeRateLimited:
					atomic.AddInt64(&limited, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				if cfg.Verbose {
					log.Debug(ctx, "guess", logger.Int("player", j.p.plan.Player), logger.String("guess", j.guess), logger.String("outcome", outcome))
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(cfg.ReportEach) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int("submitted", int(atomic.LoadInt64(&submitted))),
						logger.Int("total", total))
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range players {
			for _, g := range p.plan.Guesses {
				select {
				case <-ctx.Done():
					return
				case jobs <- job{p: p, guess: g}:
				}
			}
		}
	}()

	wg.Wait()

	stats.Submitted = int(submitted)
	stats.Correct = int(correct)
	stats.Duplicate = int(duplicate)
	stats.Missed = int(missed)
	stats.RateLimited = int(limited)
	stats.Failed = int(failed)

	log.Info(ctx, "guess submission completed",
		logger.Int("correct", stats.Correct),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("missed", stats.Missed),
		logger.Int("rateLimited", stats.RateLimited),
		logger.Int("failed", stats.Failed))
}

// submitSingleGuess submits one guess and records what the player saw.
func submitSingleGuess(ctx context.Context, c *Client, j job) string {
	res, err := c.Guess(ctx, j.p.sessionID, j.guess)
	if err != nil {
		return outcomeFailed
	}
	if res.RateLimited {
		return outcomeRateLimited
	}

	j.p.mu.Lock()
	defer j.p.mu.Unlock()
	j.p.recorded++
	switch {
	case res.Duplicate:
		return outcomeDuplicate
	case res.Correct && res.Entry != nil:
		j.p.found[res.Entry.ID] = *res.Entry
		return outcomeCorrect
	default:
		return outcomeMissed
	}
}

func tallyPlayers(ctx context.Context, c *Client, slug string, players []*player, stats *Stats) error {
	for _, p := range players {
		items := make([]types.TallyItem, 0, len(p.found))
		for _, e := range p.found {
			items = append(items, types.TallyItem{URL: e.URL, Label: e.Label, Norm: e.Norm})
		}
		res, err := c.Tally(ctx, slug, items)
		if err != nil {
			return fmt.Errorf("player %d: %w", p.plan.Player, err)
		}
		stats.Tallied += res.Updated
	}
	return nil
}

// displayFinalStats logs the final play test statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var hitRate, guessesPerSecond float64
	if stats.Submitted > 0 {
		hitRate = float64(stats.Correct+stats.Duplicate) / float64(stats.Submitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		guessesPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("players", stats.Players),
		logger.Int("submitted", stats.Submitted),
		logger.Int("correct", stats.Correct),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("missed", stats.Missed),
		logger.Int("rateLimited", stats.RateLimited),
		logger.Int("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Int("tallied", stats.Tallied),
		logger.Duration("duration", stats.Duration),
		logger.Float64("hitRate", hitRate),
		logger.Float64("guessesPerSecond", guessesPerSecond))
}
