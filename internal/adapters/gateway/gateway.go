// Package gateway serializes, paces and caches every outbound knowledge
// graph query. A single dispatcher sends at most one request at a time,
// spaces consecutive requests by a minimum interval and honors the
// upstream backoff window after a 429.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"

	"github.com/bpbrianpark/enigma-game/internal/adapters/mq/queue"
	"github.com/bpbrianpark/enigma-game/internal/adapters/mq/worker"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

// Default gateway configuration.
const (
	DefaultMinInterval = time.Second
	DefaultTimeout     = 10 * time.Second
	DefaultCacheTTL    = 5 * time.Minute
	DefaultQueueSize   = 256
	DefaultRetryAfter  = 60 * time.Second
)

// Executor performs a single outbound query.
type Executor interface {
	Execute(ctx context.Context, query string) ([]model.Row, error)
}

type result struct {
	rows []model.Row
	err  error
}

type request struct {
	ctx      context.Context
	query    string
	timeout  time.Duration
	enqueued time.Time
	reply    chan result
}

// Gateway is safe for concurrent use.
type Gateway struct {
	exec   Executor
	cache  *sfcache.TieredCache[string, []model.Row]
	queue  *queue.InMemoryQueue[*request]
	worker *worker.Worker[*request]
	logger logger.Logger

	minInterval time.Duration
	timeout     time.Duration
	cacheTTL    time.Duration
	retryAfter  time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	// Only the dispatcher goroutine writes these.
	rateLimitUntil atomic.Int64
	lastRequest    atomic.Int64
	inFlight       atomic.Bool

	hits       atomic.Int64
	misses     atomic.Int64
	dispatched atomic.Int64

	flightsMu sync.Mutex
	flights   map[string]*flight

	stopped   chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a gateway in front of exec. Call Start before issuing queries.
func New(exec Executor, opts ...Option) (*Gateway, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: nil executor", model.ErrInvalidInput)
	}
	s := &settings{
		minInterval: DefaultMinInterval,
		timeout:     DefaultTimeout,
		cacheTTL:    DefaultCacheTTL,
		queueSize:   DefaultQueueSize,
		retryAfter:  DefaultRetryAfter,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	cache, err := sfcache.NewTiered[string, []model.Row](null.New[string, []model.Row](), sfcache.TTL(s.cacheTTL))
	if err != nil {
		return nil, fmt.Errorf("create gateway cache: %w", err)
	}

	g := &Gateway{
		exec:        exec,
		cache:       cache,
		queue:       queue.NewInMemoryQueue[*request](queue.WithCapacity(s.queueSize)),
		logger:      s.logger.Named("gateway"),
		minInterval: s.minInterval,
		timeout:     s.timeout,
		cacheTTL:    s.cacheTTL,
		retryAfter:  s.retryAfter,
		now:         s.now,
		sleep:       s.sleep,
		flights:     make(map[string]*flight),
		stopped:     make(chan struct{}),
	}
	g.worker = worker.New[*request](g.queue, g.handle, worker.WithName("gateway-dispatcher"), worker.WithLogger(s.logger))
	return g, nil
}

// Start launches the dispatcher. It returns immediately.
func (g *Gateway) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		go g.worker.Run(ctx)
		g.logger.Info(ctx, "gateway started",
			logger.Duration("min_interval", g.minInterval),
			logger.Duration("cache_ttl", g.cacheTTL),
		)
	})
}

// Stop closes the queue and waits for the request in flight. Callers still
// waiting receive ErrStopped.
func (g *Gateway) Stop(ctx context.Context) error {
	var err error
	g.stopOnce.Do(func() {
		close(g.stopped)
		_ = g.queue.Close()
		err = g.worker.Shutdown(ctx)
	})
	return err
}

// Query runs q with the default timeout. Identical queries within the cache
// TTL are answered from cache and concurrent identical misses share one
// outbound request.
func (g *Gateway) Query(ctx context.Context, q string) ([]model.Row, error) {
	return g.QueryWithTimeout(ctx, q, g.timeout)
}

// QueryWithTimeout runs q and gives up after timeout or when ctx ends,
// whichever comes first. A caller leaving never fails the others sharing
// its request; the request itself is abandoned once every caller has left.
func (g *Gateway) QueryWithTimeout(ctx context.Context, q string, timeout time.Duration) ([]model.Row, error) {
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", model.ErrInvalidInput)
	}
	if timeout <= 0 {
		timeout = g.timeout
	}
	if rows, ok, err := g.cache.Get(ctx, q); err == nil && ok {
		g.hits.Add(1)
		metrics.RecordGatewayCacheHit()
		return rows, nil
	}

	f := g.join(ctx, q)
	defer g.leave(q, f)

	done := make(chan result, 1)
	go func() {
		rows, err := g.load(f.ctx, q, timeout)
		done <- result{rows: rows, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.rows, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.RecordGatewayRequest("timeout")
			return nil, fmt.Errorf("%w: %w", model.ErrTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	case <-timer.C:
		metrics.RecordGatewayRequest("timeout")
		return nil, fmt.Errorf("%w: query exceeded %s", model.ErrTimeout, timeout)
	}
}

// flight is the shared context of every caller waiting on one query.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (g *Gateway) join(ctx context.Context, q string) *flight {
	g.flightsMu.Lock()
	defer g.flightsMu.Unlock()
	f, ok := g.flights[q]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		g.flights[q] = f
	}
	f.waiters++
	return f
}

func (g *Gateway) leave(q string, f *flight) {
	g.flightsMu.Lock()
	defer g.flightsMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if g.flights[q] == f {
		delete(g.flights, q)
	}
}

// maxLoadAttempts bounds retries after merging into a load whose callers all
// left just before this one joined.
const maxLoadAttempts = 3

func (g *Gateway) load(ctx context.Context, q string, timeout time.Duration) ([]model.Row, error) {
	var (
		rows []model.Row
		err  error
	)
	for range maxLoadAttempts {
		fetched := false
		rows, err = g.cache.GetSet(ctx, q, func(lctx context.Context) ([]model.Row, error) {
			fetched = true
			return g.dispatch(lctx, q, timeout)
		}, g.cacheTTL)
		if fetched {
			g.misses.Add(1)
			metrics.RecordGatewayCacheMiss()
		} else if err == nil {
			g.hits.Add(1)
			metrics.RecordGatewayCacheHit()
		}
		if !errors.Is(err, context.Canceled) || ctx.Err() != nil {
			break
		}
	}
	return rows, err
}

func (g *Gateway) dispatch(ctx context.Context, q string, timeout time.Duration) ([]model.Row, error) {
	req := &request{
		ctx:      ctx,
		query:    q,
		timeout:  timeout,
		enqueued: g.now(),
		reply:    make(chan result, 1),
	}
	if !g.queue.Enqueue(ctx, req) {
		if g.queue.IsClosed() {
			return nil, ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics.RecordGatewayRequest("queue_full")
		return nil, ErrQueueFull
	}

	select {
	case res := <-req.reply:
		return res.rows, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.stopped:
		return nil, ErrStopped
	}
}

// handle runs on the dispatcher goroutine only. Failures go back to the
// caller through the reply channel.
func (g *Gateway) handle(wctx context.Context, req *request) error {
	metrics.RecordQueueWaitLatency(float64(g.now().Sub(req.enqueued).Milliseconds()))

	// Wait for the backoff window and the pacing interval, giving up early
	// if either the caller or the dispatcher goes away.
	pctx, cancel := context.WithCancel(req.ctx)
	stop := context.AfterFunc(wctx, cancel)
	err := g.pace(pctx)
	stop()
	cancel()
	if err != nil || req.ctx.Err() != nil {
		metrics.RecordGatewayRequest("dropped")
		req.reply <- result{err: contextErr(req.ctx, wctx)}
		return nil
	}

	rows, err := g.execute(req)
	req.reply <- result{rows: rows, err: err}

	// Keep the successor spaced even when it was queued before this finished.
	if g.queue.Len(wctx) > 0 {
		_ = g.sleep(wctx, g.minInterval)
	}
	return nil
}

func (g *Gateway) pace(ctx context.Context) error {
	now := g.now()
	if until := g.rateLimitUntil.Load(); until > 0 {
		if wait := time.Unix(0, until).Sub(now); wait > 0 {
			g.logger.Debug(ctx, "waiting for backoff window", logger.Duration("wait", wait))
			if err := g.sleep(ctx, wait); err != nil {
				return err
			}
			now = g.now()
		}
	}
	if last := g.lastRequest.Load(); last > 0 {
		if wait := time.Unix(0, last).Add(g.minInterval).Sub(now); wait > 0 {
			if err := g.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Gateway) execute(req *request) ([]model.Row, error) {
	ctx, cancel := context.WithTimeout(req.ctx, req.timeout)
	defer cancel()

	start := g.now()
	g.lastRequest.Store(start.UnixNano())
	g.inFlight.Store(true)
	g.dispatched.Add(1)

	rows, err := g.exec.Execute(ctx, req.query)

	g.inFlight.Store(false)
	metrics.RecordGatewayLatency(float64(g.now().Sub(start).Milliseconds()))

	if err == nil {
		metrics.RecordGatewayRequest("ok")
		return rows, nil
	}

	var rl *model.RateLimitedError
	switch {
	case errors.As(err, &rl) || errors.Is(err, model.ErrRateLimited):
		// The executor resolves a missing header; an explicit zero is kept and
		// pacing still spaces the next request.
		wait := g.retryAfter
		if rl != nil && rl.RetryAfter >= 0 {
			wait = rl.RetryAfter
		}
		until := g.now().Add(wait)
		g.rateLimitUntil.Store(until.UnixNano())
		metrics.UpdateGatewayRateLimitedUntil(until)
		metrics.RecordGatewayRequest("rate_limited")
		g.logger.Warn(req.ctx, "upstream rate limited",
			logger.Duration("retry_after", wait),
		)
		return nil, &model.RateLimitedError{RetryAfter: wait}
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && req.ctx.Err() == nil:
		metrics.RecordGatewayRequest("timeout")
		return nil, fmt.Errorf("%w: query exceeded %s", model.ErrTimeout, req.timeout)
	case errors.Is(err, model.ErrTimeout):
		metrics.RecordGatewayRequest("timeout")
		return nil, err
	case req.ctx.Err() != nil:
		metrics.RecordGatewayRequest("cancelled")
		return nil, req.ctx.Err()
	default:
		metrics.RecordGatewayRequest("upstream_error")
		metrics.RecordErrorByComponent("gateway", "upstream_error")
		g.logger.Error(req.ctx, "upstream query failed", logger.Error(err))
		return nil, err
	}
}

func contextErr(req, wctx context.Context) error {
	if err := req.Err(); err != nil {
		return err
	}
	if wctx.Err() != nil {
		return ErrStopped
	}
	return context.Canceled
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
