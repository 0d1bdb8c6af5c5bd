package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

const (
	DefaultTTL           = 30 * time.Minute
	DefaultMaxSessions   = 10000
	defaultSweepInterval = time.Minute
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = fmt.Errorf("session %w", model.ErrNotFound)

// Manager owns the live sessions and evicts idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl           time.Duration
	maxSessions   int
	sweepInterval time.Duration
	now           func() time.Time
	log           logger.Logger

	lifeMu  sync.Mutex
	running bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewManager creates a session manager. Call Start to run the idle sweeper.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:      make(map[string]*Session),
		ttl:           DefaultTTL,
		maxSessions:   DefaultMaxSessions,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Get().Named("session")
	}
	return m
}

// Create starts a session over a category and its known entries. When the
// manager is full the least recently used session is evicted.
func (m *Manager) Create(cat model.Category, entries []model.Entry, aliases []model.Alias) *Session {
	now := m.now()
	s := newSession(uuid.NewString(), cat, entries, aliases, now)

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.evictLRULocked()
	}
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.UpdateSessionsActive(n)
	return s
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := m.now()
	if m.expired(s, now) {
		m.Delete(id)
		return nil, ErrSessionNotFound
	}
	s.touch(now)
	return s, nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.UpdateSessionsActive(n)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	var removed int
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.UpdateSessionsActive(n)
	return removed
}

// Start runs the idle sweeper until ctx is done or Stop is called. Calls
// after the first, and any call after Stop, do nothing.
func (m *Manager) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.stopped {
		m.log.Warn(ctx, "session manager already stopped; sweeper not started")
		return
	}
	if m.running {
		return
	}
	m.running = true
	go m.sweepLoop(ctx)
}

// Stop halts the sweeper and waits for it to exit. It is safe to call more
// than once and on a manager that was never started.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.stop)
	}
	running := m.running
	m.lifeMu.Unlock()
	if running {
		<-m.done
	}
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				m.log.Warn(ctx, "session sweeper stopped", logger.Error(ctx.Err()))
			}
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				m.log.Debug(ctx, "idle sessions evicted", logger.Int("count", removed))
			}
		}
	}
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.idleSince()) > m.ttl
}

// evictLRULocked drops the least recently used session. Must be called with m.mu held.
func (m *Manager) evictLRULocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, s := range m.sessions {
		seen := s.idleSince()
		if oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = id, seen
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
	}
}
