// Package session holds in-memory game sessions: the category being played,
// its lookup index, and what the player has found and missed so far.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/dedupe"
	"github.com/bpbrianpark/enigma-game/internal/domain/index"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

// Session is one player's run through a category. The index may grow while
// the session is live; the found set never shrinks.
type Session struct {
	ID       string
	Category model.Category

	idx   *index.Index
	found dedupe.Deduper

	mu        sync.Mutex
	entries   []model.Entry
	misses    []string
	attempts  int
	createdAt time.Time
	lastSeen  time.Time
}

// Outcome is the result of recording one resolved guess.
type Outcome struct {
	Attempt   model.GuessAttempt
	Correct   bool
	Duplicate bool
	Found     int
	Total     int
}

// View is a point-in-time copy of the session's progress.
type View struct {
	ID        string
	Category  model.Category
	Found     []model.Entry
	Misses    []string
	Attempts  int
	Total     int
	CreatedAt time.Time
	LastSeen  time.Time
}

func newSession(id string, cat model.Category, entries []model.Entry, aliases []model.Alias, now time.Time) *Session {
	return &Session{
		ID:        id,
		Category:  cat,
		idx:       index.New(entries, aliases),
		found:     dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0)),
		createdAt: now,
		lastSeen:  now,
	}
}

// Index returns the session's lookup index. It is safe for concurrent use.
func (s *Session) Index() *index.Index {
	return s.idx
}

// Record folds a resolved attempt into the session. A correct guess for an
// entry already found is reported as a duplicate and not counted again.
func (s *Session) Record(ctx context.Context, attempt model.GuessAttempt) Outcome {
	out := Outcome{Attempt: attempt}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++

	if attempt.Entry == nil {
		s.misses = append(s.misses, attempt.Raw)
	} else {
		out.Correct = true
		if s.found.SeenAndRecord(ctx, foundKey(attempt.Entry)) {
			out.Duplicate = true
		} else {
			s.entries = append(s.entries, *attempt.Entry)
		}
	}
	out.Found = len(s.entries)
	out.Total = s.idx.Len()
	return out
}

// Snapshot returns a copy of the session's progress.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:        s.ID,
		Category:  s.Category,
		Found:     append([]model.Entry(nil), s.entries...),
		Misses:    append([]string(nil), s.misses...),
		Attempts:  s.attempts,
		Total:     s.idx.Len(),
		CreatedAt: s.createdAt,
		LastSeen:  s.lastSeen,
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func foundKey(e *model.Entry) string {
	if e.URL != "" {
		return e.URL
	}
	return e.ID
}
