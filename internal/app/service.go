// Package service wires the store, the query gateway and the domain
// components into the operations the HTTP API and the CLI call.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/bpbrianpark/enigma-game/internal/adapters/gateway"
	"github.com/bpbrianpark/enigma-game/internal/adapters/repository"
	"github.com/bpbrianpark/enigma-game/internal/domain/daily"
	"github.com/bpbrianpark/enigma-game/internal/domain/dedupe"
	"github.com/bpbrianpark/enigma-game/internal/domain/match"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/normalize"
	"github.com/bpbrianpark/enigma-game/internal/domain/session"
	"github.com/bpbrianpark/enigma-game/internal/domain/specialcase"
	"github.com/bpbrianpark/enigma-game/internal/domain/synth"
	"github.com/bpbrianpark/enigma-game/internal/domain/types"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

// Gateway is the rate-limited knowledge graph path.
type Gateway interface {
	Query(ctx context.Context, query string) ([]model.Row, error)
	Stats(ctx context.Context) gateway.Stats
}

// Stats is the service view served at /stats.
type Stats struct {
	Started  bool          `json:"started"`
	Sessions int           `json:"sessions"`
	Gateway  gateway.Stats `json:"gateway"`
}

// Service implements the API dependencies for the game.
type Service struct {
	mu      sync.RWMutex
	started bool

	store    repository.Store
	gateway  Gateway
	engine   *match.Engine
	selector *daily.Selector
	sessions *session.Manager

	retryAttempts uint
	retryDelay    time.Duration
	now           func() time.Time
	logger        logger.Logger
}

// New constructs a Service over a store and a gateway.
func New(store repository.Store, gw Gateway, opts ...Option) *Service {
	st := &settings{
		now:           time.Now,
		sessionTTL:    session.DefaultTTL,
		maxSessions:   session.DefaultMaxSessions,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.logger == nil {
		st.logger = logger.Get().Named("service")
	}

	transformer := specialcase.New(specialcase.WithTables(st.specialCases))
	return &Service{
		store:   store,
		gateway: gw,
		engine: match.New(
			match.WithTransformer(transformer),
			match.WithSynthesizer(synth.New(gw, store)),
			match.WithClock(st.now),
		),
		selector: daily.New(store, daily.WithClock(st.now)),
		sessions: session.NewManager(
			session.WithTTL(st.sessionTTL),
			session.WithMaxSessions(st.maxSessions),
			session.WithClock(st.now),
		),
		retryAttempts: st.retryAttempts,
		retryDelay:    st.retryDelay,
		now:           st.now,
		logger:        st.logger,
	}
}

// Start runs the session sweeper. The store and gateway are owned by the caller.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.sessions.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "game service started")
	return nil
}

// Stop halts background work.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.sessions.Stop()
	s.started = false
	s.logger.Info(context.Background(), "game service stopped")
}

func (s *Service) category(ctx context.Context, slug string) (*model.Category, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("category slug is required: %w", model.ErrInvalidInput)
	}
	c, err := s.store.FindCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("find category %q: %w", slug, err)
	}
	return c, nil
}

// ListCategories returns every category ordered by slug.
func (s *Service) ListCategories(ctx context.Context) ([]types.Category, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]types.Category, 0, len(cats))
	for _, c := range cats {
		out = append(out, types.FromCategory(c))
	}
	return out, nil
}

// Category returns one category.
func (s *Service) Category(ctx context.Context, slug string) (types.Category, error) {
	c, err := s.category(ctx, slug)
	if err != nil {
		return types.Category{}, err
	}
	return types.FromCategory(*c), nil
}

// Entries returns the category's entries in creation order with their aliases.
func (s *Service) Entries(ctx context.Context, slug string) ([]types.Entry, error) {
	c, err := s.category(ctx, slug)
	if err != nil {
		return nil, err
	}
	entries, aliases, err := s.known(ctx, c)
	if err != nil {
		return nil, err
	}
	grouped := types.GroupAliases(aliases)
	out := make([]types.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.FromEntry(e, grouped[e.ID]))
	}
	return out, nil
}

func (s *Service) known(ctx context.Context, c *model.Category) ([]model.Entry, []model.Alias, error) {
	entries, err := s.store.ListEntriesForCategory(ctx, c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list entries %q: %w", c.Slug, err)
	}
	aliases, err := s.store.ListAliasesForCategory(ctx, c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list aliases %q: %w", c.Slug, err)
	}
	return entries, aliases, nil
}

// CreateAlias adds an accepted spelling to an entry of the category.
func (s *Service) CreateAlias(ctx context.Context, slug, entryID, label string) (types.Alias, error) {
	c, err := s.category(ctx, slug)
	if err != nil {
		return types.Alias{}, err
	}
	entries, err := s.store.ListEntriesForCategory(ctx, c.ID)
	if err != nil {
		return types.Alias{}, fmt.Errorf("list entries %q: %w", c.Slug, err)
	}
	owned := false
	for _, e := range entries {
		if e.ID == entryID {
			owned = true
			break
		}
	}
	if !owned {
		return types.Alias{}, fmt.Errorf("entry %q in %q: %w", entryID, c.Slug, repository.ErrEntryNotFound)
	}

	a, err := s.store.CreateAlias(ctx, model.Alias{EntryID: entryID, CategoryID: c.ID, Label: strings.TrimSpace(label)})
	if err != nil {
		return types.Alias{}, fmt.Errorf("create alias: %w", err)
	}
	s.logger.Info(ctx, "alias created",
		logger.String("category", c.Slug),
		logger.String("entry", entryID),
		logger.String("norm", a.Norm))
	return types.Alias{Label: a.Label, Norm: a.Norm}, nil
}

// Query runs a raw knowledge graph query through the gateway.
func (s *Service) Query(ctx context.Context, query string) ([]model.Row, error) {
	return s.gateway.Query(ctx, query)
}

// queryRetrying retries only while the gateway reports a rate limit. The
// gateway holds later requests until the window passes.
func (s *Service) queryRetrying(ctx context.Context, query string) ([]model.Row, error) {
	var last error
	rows, err := retry.DoWithData(
		func() ([]model.Row, error) {
			rows, err := s.gateway.Query(ctx, query)
			last = err
			return rows, err
		},
		retry.Context(ctx),
		retry.Attempts(s.retryAttempts),
		retry.Delay(s.retryDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, model.ErrRateLimited) }),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug(ctx, "retrying rate limited query", logger.Int("attempt", int(n)+1), logger.Error(err))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if last == nil {
			last = err
		}
		return nil, last
	}
	return rows, nil
}

type refreshGroup struct {
	label   string
	url     string
	aliases []string
	seen    map[string]bool
}

// groupRows folds rows by url in first-seen order. Alternate labels that
// normalize to the canonical label are dropped.
func groupRows(rows []model.Row) []*refreshGroup {
	byURL := make(map[string]*refreshGroup)
	var order []*refreshGroup
	for _, r := range rows {
		if r.URL == "" || strings.TrimSpace(r.Label) == "" {
			continue
		}
		g, ok := byURL[r.URL]
		if !ok {
			g = &refreshGroup{label: strings.TrimSpace(r.Label), url: r.URL, seen: map[string]bool{normalize.Key(r.Label): true}}
			byURL[r.URL] = g
			order = append(order, g)
		}
		alias := strings.TrimSpace(r.Alias)
		if alias == "" {
			continue
		}
		norm := normalize.Key(alias)
		if norm == "" || g.seen[norm] {
			continue
		}
		g.seen[norm] = true
		g.aliases = append(g.aliases, alias)
	}
	return order
}

// Refresh re-runs the category's listing query and upserts what it returns.
// It never deletes.
func (s *Service) Refresh(ctx context.Context, slug string) (types.RefreshResult, error) {
	c, err := s.category(ctx, slug)
	if err != nil {
		return types.RefreshResult{}, err
	}
	res := types.RefreshResult{Slug: c.Slug}
	if strings.TrimSpace(c.Query) == "" {
		return res, fmt.Errorf("category %q has no listing query: %w", c.Slug, model.ErrInvalidInput)
	}

	rows, err := s.queryRetrying(ctx, c.Query)
	if err != nil {
		return res, fmt.Errorf("refresh %q: %w", c.Slug, err)
	}
	res.Rows = len(rows)

	for _, g := range groupRows(rows) {
		e, err := s.store.CreateOrUpdateEntry(ctx, model.Entry{CategoryID: c.ID, Label: g.label, URL: g.url})
		if err != nil {
			return res, fmt.Errorf("refresh %q entry %s: %w", c.Slug, g.url, err)
		}
		res.Entries++
		for _, label := range g.aliases {
			if _, err := s.store.CreateAlias(ctx, model.Alias{EntryID: e.ID, CategoryID: c.ID, Label: label}); err != nil {
				return res, fmt.Errorf("refresh %q alias %q: %w", c.Slug, label, err)
			}
			res.Aliases++
		}
	}

	metrics.RecordRefreshEntries(res.Entries)
	s.logger.Info(ctx, "category refreshed",
		logger.String("category", c.Slug),
		logger.Int("rows", res.Rows),
		logger.Int("entries", res.Entries),
		logger.Int("aliases", res.Aliases))
	return res, nil
}

// Tally increments the found count of each distinct entry in items.
func (s *Service) Tally(ctx context.Context, slug string, items []types.TallyItem) (types.TallyResult, error) {
	var res types.TallyResult
	c, err := s.category(ctx, slug)
	if err != nil {
		return res, err
	}

	seen := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
	for _, it := range items {
		if strings.TrimSpace(it.URL) == "" || strings.TrimSpace(it.Label) == "" {
			res.Skipped++
			continue
		}
		if seen.SeenAndRecord(ctx, it.Key()) {
			res.Duplicates++
			continue
		}
		e := model.Entry{CategoryID: c.ID, Label: strings.TrimSpace(it.Label), Norm: it.Norm, URL: it.URL}
		if err := s.increment(ctx, e); err != nil {
			metrics.RecordTallyEntries(res.Updated)
			return res, fmt.Errorf("tally %q %s: %w", c.Slug, it.URL, err)
		}
		res.Updated++
	}

	metrics.RecordTallyEntries(res.Updated)
	s.logger.Debug(ctx, "tally recorded",
		logger.String("category", c.Slug),
		logger.Int("updated", res.Updated),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("skipped", res.Skipped))
	return res, nil
}

func (s *Service) increment(ctx context.Context, e model.Entry) error {
	var last error
	_, err := retry.DoWithData(
		func() (*model.Entry, error) {
			out, err := s.store.IncrementEntry(ctx, e, 1)
			last = err
			return out, err
		},
		retry.Context(ctx),
		retry.Attempts(s.retryAttempts),
		retry.Delay(s.retryDelay),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, model.ErrInvalidInput) }),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn(ctx, "retrying tally write", logger.Int("attempt", int(n)+1), logger.Error(err))
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if last == nil {
			last = err
		}
		return last
	}
	return nil
}

// Daily returns today's daily slug, selecting one when none was picked yet.
func (s *Service) Daily(ctx context.Context) (string, error) {
	return s.selector.Today(ctx)
}

// SelectDaily runs the scheduled selection. It is idempotent within a UTC day.
func (s *Service) SelectDaily(ctx context.Context) (string, error) {
	return s.selector.Select(ctx)
}

// StartSession begins a game over a category's current entries.
func (s *Service) StartSession(ctx context.Context, slug string) (types.SessionStart, error) {
	c, err := s.category(ctx, slug)
	if err != nil {
		return types.SessionStart{}, err
	}
	entries, aliases, err := s.known(ctx, c)
	if err != nil {
		return types.SessionStart{}, err
	}
	sess := s.sessions.Create(*c, entries, aliases)
	s.logger.Debug(ctx, "session started",
		logger.String("session", sess.ID),
		logger.String("category", c.Slug),
		logger.Int("entries", len(entries)))
	return types.SessionStart{
		SessionID: sess.ID,
		Category:  types.FromCategory(*c),
		Total:     sess.Index().Len(),
	}, nil
}

// Guess resolves one guess inside a session. A rate limited live lookup is
// reported to the caller and not recorded as a miss.
func (s *Service) Guess(ctx context.Context, sessionID, guess string) (types.GuessResult, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return types.GuessResult{}, err
	}

	start := s.now()
	attempt, err := s.engine.Resolve(ctx, &sess.Category, guess, sess.Index())
	metrics.RecordResolveLatency(float64(s.now().Sub(start).Milliseconds()))
	if err != nil {
		return types.GuessResult{}, err
	}

	if attempt.RateLimited {
		metrics.RecordGuessRateLimited()
		view := sess.Snapshot()
		return types.GuessResult{
			RateLimited: true,
			RetryAfterS: int(math.Ceil(attempt.RetryAfter.Seconds())),
			Found:       len(view.Found),
			Total:       view.Total,
		}, nil
	}

	out := sess.Record(ctx, attempt)
	stage := string(attempt.Stage)
	if stage == "" {
		stage = "miss"
	}
	metrics.RecordGuess(stage)

	res := types.GuessResult{
		Correct:   out.Correct,
		Duplicate: out.Duplicate,
		Stage:     string(attempt.Stage),
		Found:     out.Found,
		Total:     out.Total,
	}
	if attempt.Entry != nil {
		e := types.FromEntry(*attempt.Entry, nil)
		res.Entry = &e
	}
	return res, nil
}

// Session returns a snapshot of a live session.
func (s *Service) Session(_ context.Context, sessionID string) (types.Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return types.Session{}, err
	}
	v := sess.Snapshot()
	found := make([]types.Entry, 0, len(v.Found))
	for _, e := range v.Found {
		found = append(found, types.FromEntry(e, nil))
	}
	misses := v.Misses
	if misses == nil {
		misses = []string{}
	}
	return types.Session{
		ID:        v.ID,
		Category:  types.FromCategory(v.Category),
		Found:     found,
		Misses:    misses,
		Attempts:  v.Attempts,
		Total:     v.Total,
		CreatedAt: v.CreatedAt,
		LastSeen:  v.LastSeen,
	}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	return Stats{
		Started:  started,
		Sessions: s.sessions.Len(),
		Gateway:  s.gateway.Stats(ctx),
	}
}
