package gateway

import (
	"context"
	"time"
)

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	QueueLength      int       `json:"queue_length"`
	InFlight         bool      `json:"in_flight"`
	RateLimited      bool      `json:"rate_limited"`
	RateLimitedUntil time.Time `json:"rate_limited_until,omitempty"`
	LastRequest      time.Time `json:"last_request,omitempty"`
	Dispatched       int64     `json:"dispatched"`
	CacheHits        int64     `json:"cache_hits"`
	CacheMisses      int64     `json:"cache_misses"`
}

// Stats reports queue depth, backoff state and cache counters.
func (g *Gateway) Stats(ctx context.Context) Stats {
	st := Stats{
		QueueLength: g.queue.Len(ctx),
		InFlight:    g.inFlight.Load(),
		Dispatched:  g.dispatched.Load(),
		CacheHits:   g.hits.Load(),
		CacheMisses: g.misses.Load(),
	}
	if until := g.rateLimitUntil.Load(); until > 0 {
		st.RateLimitedUntil = time.Unix(0, until)
		st.RateLimited = st.RateLimitedUntil.After(g.now())
	}
	if last := g.lastRequest.Load(); last > 0 {
		st.LastRequest = time.Unix(0, last)
	}
	return st
}
