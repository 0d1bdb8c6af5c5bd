package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

// MemStore is a mutex-guarded in-memory Store.
type MemStore struct {
	mu sync.RWMutex

	categories map[string]*model.Category // by id
	slugs      map[string]string          // slug -> id
	entries    map[string]*model.Entry    // by id
	byURL      map[string]string          // categoryID|url -> entry id
	entryOrder map[string][]string        // categoryID -> entry ids in creation order
	aliases    map[string]*model.Alias    // by id
	byNorm     map[string]string          // entryID|norm -> alias id
	aliasOrder map[string][]string        // categoryID -> alias ids

	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	return &MemStore{
		categories: make(map[string]*model.Category),
		slugs:      make(map[string]string),
		entries:    make(map[string]*model.Entry),
		byURL:      make(map[string]string),
		entryOrder: make(map[string][]string),
		aliases:    make(map[string]*model.Alias),
		byNorm:     make(map[string]string),
		aliasOrder: make(map[string][]string),
		now:        s.now,
		newID:      s.newID,
		logger:     s.log("memstore"),
	}
}

func compositeKey(a, b string) string { return a + "\x00" + b }

func copyCategory(c *model.Category) *model.Category {
	out := *c
	if c.PlayedOn != nil {
		p := *c.PlayedOn
		out.PlayedOn = &p
	}
	out.Tags = append([]string(nil), c.Tags...)
	return &out
}

func copyEntry(e *model.Entry) *model.Entry {
	out := *e
	return &out
}

// FindCategoryBySlug implements Store.
func (m *MemStore) FindCategoryBySlug(_ context.Context, slug string) (*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slugs[slug]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return copyCategory(m.categories[id]), nil
}

// ListCategories implements Store.
func (m *MemStore) ListCategories(_ context.Context) ([]model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, *copyCategory(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// UpsertCategory implements Store.
func (m *MemStore) UpsertCategory(_ context.Context, c model.Category) (*model.Category, error) {
	if strings.TrimSpace(c.Slug) == "" {
		return nil, invalid("category slug is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.slugs[c.Slug]; ok {
		cur := m.categories[id]
		cur.Name = c.Name
		cur.Query = c.Query
		cur.UpdateQueryTemplate = c.UpdateQueryTemplate
		cur.IsDynamic = c.IsDynamic
		cur.IsDaily = c.IsDaily
		cur.Tags = append([]string(nil), c.Tags...)
		return copyCategory(cur), nil
	}

	if c.ID == "" {
		c.ID = m.newID()
	}
	stored := copyCategory(&c)
	m.categories[stored.ID] = stored
	m.slugs[stored.Slug] = stored.ID
	return copyCategory(stored), nil
}

// FindEntryByURL implements Store.
func (m *MemStore) FindEntryByURL(_ context.Context, categoryID, url string) (*model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byURL[compositeKey(categoryID, url)]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return copyEntry(m.entries[id]), nil
}

// CreateOrUpdateEntry implements Store.
func (m *MemStore) CreateOrUpdateEntry(_ context.Context, e model.Entry) (*model.Entry, error) {
	if err := validateEntry(&e); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyEntry(m.upsertLocked(e, 0)), nil
}

// IncrementEntry implements Store.
func (m *MemStore) IncrementEntry(_ context.Context, e model.Entry, delta int) (*model.Entry, error) {
	if err := validateEntry(&e); err != nil {
		return nil, err
	}
	e.Count = 0
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyEntry(m.upsertLocked(e, delta)), nil
}

func (m *MemStore) upsertLocked(e model.Entry, delta int) *model.Entry {
	now := m.now()
	key := compositeKey(e.CategoryID, e.URL)
	if id, ok := m.byURL[key]; ok {
		cur := m.entries[id]
		if delta == 0 {
			cur.Label = e.Label
			cur.Norm = e.Norm
		}
		cur.Count += delta
		cur.UpdatedAt = now
		return cur
	}

	if e.ID == "" {
		e.ID = m.newID()
	}
	e.Count += delta
	e.CreatedAt = now
	e.UpdatedAt = now
	stored := copyEntry(&e)
	m.entries[stored.ID] = stored
	m.byURL[key] = stored.ID
	m.entryOrder[stored.CategoryID] = append(m.entryOrder[stored.CategoryID], stored.ID)
	return stored
}

// CreateAlias implements Store.
func (m *MemStore) CreateAlias(_ context.Context, a model.Alias) (*model.Alias, error) {
	if err := validateAlias(&a); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := compositeKey(a.EntryID, a.Norm)
	if id, ok := m.byNorm[key]; ok {
		out := *m.aliases[id]
		return &out, nil
	}
	if a.ID == "" {
		a.ID = m.newID()
	}
	stored := a
	m.aliases[stored.ID] = &stored
	m.byNorm[key] = stored.ID
	m.aliasOrder[stored.CategoryID] = append(m.aliasOrder[stored.CategoryID], stored.ID)
	out := stored
	return &out, nil
}

// ListEntriesForCategory implements Store.
func (m *MemStore) ListEntriesForCategory(_ context.Context, categoryID string) ([]model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.entryOrder[categoryID]
	out := make([]model.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.entries[id])
	}
	return out, nil
}

// ListAliasesForCategory implements Store.
func (m *MemStore) ListAliasesForCategory(_ context.Context, categoryID string) ([]model.Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.aliasOrder[categoryID]
	out := make([]model.Alias, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.aliases[id])
	}
	return out, nil
}

// UpdateCategoryDailyState implements Store.
func (m *MemStore) UpdateCategoryDailyState(_ context.Context, id string, hasBeenSelected bool, playedOn *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return ErrCategoryNotFound
	}
	c.HasBeenSelected = hasBeenSelected
	if playedOn == nil {
		c.PlayedOn = nil
	} else {
		p := *playedOn
		c.PlayedOn = &p
	}
	return nil
}

// ListDailyEligibleCategories implements Store.
func (m *MemStore) ListDailyEligibleCategories(_ context.Context, onlyUnselected bool) ([]model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Category
	for _, c := range m.categories {
		if !c.IsDaily || (onlyUnselected && c.HasBeenSelected) {
			continue
		}
		out = append(out, *copyCategory(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindDailyPlayedBetween implements Store.
func (m *MemStore) FindDailyPlayedBetween(_ context.Context, from, to time.Time) (*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.playedBetweenLocked(from, to); c != nil {
		return copyCategory(c), nil
	}
	return nil, ErrCategoryNotFound
}

func (m *MemStore) playedBetweenLocked(from, to time.Time) *model.Category {
	var found *model.Category
	for _, c := range m.categories {
		if !c.IsDaily || !c.PlayedWithin(from, to) {
			continue
		}
		if found == nil || c.ID < found.ID {
			found = c
		}
	}
	return found
}

// ResetDailySelection implements Store.
func (m *MemStore) ResetDailySelection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.categories {
		if c.IsDaily && c.HasBeenSelected {
			c.HasBeenSelected = false
			n++
		}
	}
	m.logger.Debug(ctx, "daily selection reset", logger.Int("categories", n))
	return nil
}

// ClaimDailyCategory implements Store.
func (m *MemStore) ClaimDailyCategory(_ context.Context, id string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok || !c.IsDaily {
		return false, nil
	}
	if m.playedBetweenLocked(day, day.Add(24*time.Hour)) != nil {
		return false, nil
	}
	played := day
	c.HasBeenSelected = true
	c.PlayedOn = &played
	return true, nil
}

// Close implements Store.
func (m *MemStore) Close() error { return nil }
