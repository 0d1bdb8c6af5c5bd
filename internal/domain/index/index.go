// Package index holds the in-memory lookups a game session resolves guesses against.
package index

import (
	"sync"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/normalize"
)

// Candidate is a fuzzy-match key and the entry it resolves to.
type Candidate struct {
	Key   string
	Entry *model.Entry
}

// Index maps norm keys to entries, and alias norms to their owning entries.
// Both an entry's stored norm and a freshly computed norm of its label are
// indexed so that stale stored norms still match.
type Index struct {
	mu sync.RWMutex

	byNorm      map[string]*model.Entry
	byAliasNorm map[string]*model.Entry
	byURL       map[string]*model.Entry
	byID        map[string]*model.Entry

	entries   []*model.Entry
	entryKeys []Candidate // insertion order, for deterministic fuzzy ties
	aliasKeys []Candidate
	aliasSeen map[string]struct{} // entryID + "\x00" + norm
}

// New builds an index from known entries and aliases. Aliases whose entry is
// unknown are ignored.
func New(entries []model.Entry, aliases []model.Alias) *Index {
	idx := &Index{
		byNorm:      make(map[string]*model.Entry, len(entries)*2),
		byAliasNorm: make(map[string]*model.Entry, len(aliases)),
		byURL:       make(map[string]*model.Entry, len(entries)),
		byID:        make(map[string]*model.Entry, len(entries)),
		aliasSeen:   make(map[string]struct{}, len(aliases)),
	}
	for i := range entries {
		idx.addEntryLocked(entries[i])
	}
	for _, a := range aliases {
		idx.addAliasLocked(a)
	}
	return idx
}

// AddEntry merges an entry. An entry whose URL is already indexed is returned
// as the canonical instance instead.
func (i *Index) AddEntry(e model.Entry) *model.Entry {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.addEntryLocked(e)
}

// AddAlias merges an alias. It returns false when the owning entry is unknown.
func (i *Index) AddAlias(a model.Alias) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.addAliasLocked(a)
}

func (i *Index) addEntryLocked(entry model.Entry) *model.Entry {
	if entry.URL != "" {
		if existing, ok := i.byURL[entry.URL]; ok {
			return existing
		}
	}
	e := &entry
	i.entries = append(i.entries, e)
	labelKey := normalize.Key(e.Label)
	if e.Norm != "" {
		i.putNorm(e.Norm, e)
	}
	i.putNorm(labelKey, e)
	if e.URL != "" {
		i.byURL[e.URL] = e
	}
	if e.ID != "" {
		i.byID[e.ID] = e
	}
	if labelKey != "" {
		i.entryKeys = append(i.entryKeys, Candidate{Key: labelKey, Entry: e})
	}
	if e.Norm != "" && e.Norm != labelKey {
		i.entryKeys = append(i.entryKeys, Candidate{Key: e.Norm, Entry: e})
	}
	return e
}

// putNorm keeps the first entry that claimed a norm.
func (i *Index) putNorm(key string, e *model.Entry) {
	if key == "" {
		return
	}
	if _, taken := i.byNorm[key]; !taken {
		i.byNorm[key] = e
	}
}

func (i *Index) addAliasLocked(a model.Alias) bool {
	owner, ok := i.byID[a.EntryID]
	if !ok {
		return false
	}
	key := a.Norm
	if key == "" {
		key = normalize.Key(a.Label)
	}
	if key == "" {
		return false
	}
	seen := a.EntryID + "\x00" + key
	if _, dup := i.aliasSeen[seen]; dup {
		return true
	}
	i.aliasSeen[seen] = struct{}{}
	if _, taken := i.byAliasNorm[key]; !taken {
		i.byAliasNorm[key] = owner
	}
	i.aliasKeys = append(i.aliasKeys, Candidate{Key: key, Entry: owner})
	return true
}

// Lookup returns the entry indexed under an exact norm key.
func (i *Index) Lookup(key string) (*model.Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.byNorm[key]
	return e, ok
}

// LookupAlias returns the entry owning an alias with the exact norm key.
func (i *Index) LookupAlias(key string) (*model.Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.byAliasNorm[key]
	return e, ok
}

// ByURL returns the entry with the given external identifier.
func (i *Index) ByURL(url string) (*model.Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.byURL[url]
	return e, ok
}

// EntryCandidates returns a snapshot of the fuzzy keys for entries.
func (i *Index) EntryCandidates() []Candidate {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Candidate(nil), i.entryKeys...)
}

// AliasCandidates returns a snapshot of the fuzzy keys for aliases.
func (i *Index) AliasCandidates() []Candidate {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Candidate(nil), i.aliasKeys...)
}

// Len returns the number of distinct entries.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Entries returns a snapshot of the indexed entries in insertion order.
func (i *Index) Entries() []model.Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]model.Entry, len(i.entries))
	for n, e := range i.entries {
		out[n] = *e
	}
	return out
}

// ByID returns the entry with the given storage id.
func (i *Index) ByID(id string) (*model.Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.byID[id]
	return e, ok
}
