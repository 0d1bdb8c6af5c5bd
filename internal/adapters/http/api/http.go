// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	service "github.com/bpbrianpark/enigma-game/internal/app"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/types"
)

// CategoryDependencies covers category reads and maintenance.
type CategoryDependencies interface {
	ListCategories(ctx context.Context) ([]types.Category, error)
	Category(ctx context.Context, slug string) (types.Category, error)
	Entries(ctx context.Context, slug string) ([]types.Entry, error)
	CreateAlias(ctx context.Context, slug, entryID, label string) (types.Alias, error)
	Refresh(ctx context.Context, slug string) (types.RefreshResult, error)
	Tally(ctx context.Context, slug string, items []types.TallyItem) (types.TallyResult, error)
}

// QueryDependencies runs raw knowledge graph queries.
type QueryDependencies interface {
	Query(ctx context.Context, query string) ([]model.Row, error)
}

// DailyDependencies covers the daily category.
type DailyDependencies interface {
	Daily(ctx context.Context) (string, error)
	SelectDaily(ctx context.Context) (string, error)
}

// SessionDependencies covers game sessions.
type SessionDependencies interface {
	StartSession(ctx context.Context, slug string) (types.SessionStart, error)
	Guess(ctx context.Context, sessionID, guess string) (types.GuessResult, error)
	Session(ctx context.Context, sessionID string) (types.Session, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CategoryDependencies
	QueryDependencies
	DailyDependencies
	SessionDependencies
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) service.Stats
}

// Option configures the Server.
type Option func(*Server)

// WithCronSecret sets the bearer token required by scheduled tasks.
func WithCronSecret(secret string) Option {
	return func(s *Server) {
		s.dailyHandler.cronSecret = secret
	}
}

// WithClock replaces time.Now in responses that carry a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.dailyHandler.now = now
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	categoryHandler *CategoryHandler
	queryHandler    *QueryHandler
	dailyHandler    *DailyHandler
	sessionHandler  *SessionHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		categoryHandler: NewCategoryHandler(deps),
		queryHandler:    NewQueryHandler(deps),
		dailyHandler:    NewDailyHandler(deps),
		sessionHandler:  NewSessionHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /api/categories", MetricsMiddleware(s.categoryHandler.HandleList, "categories"))
	mux.HandleFunc("GET /api/categories/{slug}", MetricsMiddleware(s.categoryHandler.HandleGet, "category"))
	mux.HandleFunc("GET /api/categories/{slug}/entries", MetricsMiddleware(s.categoryHandler.HandleEntries, "entries"))
	mux.HandleFunc("POST /api/categories/{slug}/aliases", MetricsMiddleware(s.categoryHandler.HandleCreateAlias, "aliases"))
	mux.HandleFunc("POST /api/categories/refresh", MetricsMiddleware(s.categoryHandler.HandleRefresh, "refresh"))
	mux.HandleFunc("POST /api/entries/tally", MetricsMiddleware(s.categoryHandler.HandleTally, "tally"))

	mux.HandleFunc("POST /api/query", MetricsMiddleware(s.queryHandler.HandleQuery, "query"))

	mux.HandleFunc("GET /api/daily", MetricsMiddleware(s.dailyHandler.HandleDaily, "daily"))
	mux.HandleFunc("GET /api/tasks/select-daily-category", MetricsMiddleware(s.dailyHandler.HandleSelectTask, "select_daily"))

	mux.HandleFunc("POST /api/sessions", MetricsMiddleware(s.sessionHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /api/sessions/{id}", MetricsMiddleware(s.sessionHandler.HandleGet, "session"))
	mux.HandleFunc("POST /api/sessions/{id}/guesses", MetricsMiddleware(s.sessionHandler.HandleGuess, "guesses"))
}
