// Package types contains the view shapes shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

// Category is the public view of a category.
type Category struct {
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	IsDynamic bool       `json:"is_dynamic"`
	IsDaily   bool       `json:"is_daily"`
	PlayedOn  *time.Time `json:"played_on,omitempty"`
	Tags      []string   `json:"tags"`
}

// Alias is an alternate accepted spelling of an entry.
type Alias struct {
	Label string `json:"label"`
	Norm  string `json:"norm"`
}

// Entry is an entry with its aliases.
type Entry struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Norm    string  `json:"norm"`
	URL     string  `json:"url"`
	Count   int     `json:"count"`
	Aliases []Alias `json:"aliases"`
}

// TallyItem is one found entry reported at the end of a game.
type TallyItem struct {
	URL   string `json:"url"`
	Label string `json:"label"`
	Norm  string `json:"norm"`
}

// Key identifies the item for deduplication: url, then norm, then label.
func (t TallyItem) Key() string {
	switch {
	case t.URL != "":
		return t.URL
	case t.Norm != "":
		return t.Norm
	default:
		return t.Label
	}
}

// TallyResult counts what a tally did.
type TallyResult struct {
	Updated    int `json:"updated"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// RefreshResult counts what a refresh wrote.
type RefreshResult struct {
	Slug    string `json:"slug"`
	Rows    int    `json:"rows"`
	Entries int    `json:"entries"`
	Aliases int    `json:"aliases"`
}

// SessionStart is returned when a session is created.
type SessionStart struct {
	SessionID string   `json:"session_id"`
	Category  Category `json:"category"`
	Total     int      `json:"total"`
}

// GuessResult is the outcome of one guess.
type GuessResult struct {
	Correct     bool   `json:"correct"`
	Duplicate   bool   `json:"duplicate"`
	Stage       string `json:"stage,omitempty"`
	Entry       *Entry `json:"entry,omitempty"`
	RateLimited bool   `json:"rate_limited"`
	RetryAfterS int    `json:"retry_after_s,omitempty"`
	Found       int    `json:"found"`
	Total       int    `json:"total"`
}

// Session is a snapshot of a game in progress.
type Session struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Found     []Entry   `json:"found"`
	Misses    []string  `json:"misses"`
	Attempts  int       `json:"attempts"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// FromCategory converts a stored category. Queries stay server side.
func FromCategory(c model.Category) Category {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return Category{
		ID:        c.ID,
		Slug:      c.Slug,
		Name:      c.Name,
		IsDynamic: c.IsDynamic,
		IsDaily:   c.IsDaily,
		PlayedOn:  c.PlayedOn,
		Tags:      tags,
	}
}

// FromEntry converts a stored entry and attaches its aliases.
func FromEntry(e model.Entry, aliases []model.Alias) Entry {
	out := Entry{
		ID:      e.ID,
		Label:   e.Label,
		Norm:    e.Norm,
		URL:     e.URL,
		Count:   e.Count,
		Aliases: make([]Alias, 0, len(aliases)),
	}
	for _, a := range aliases {
		out.Aliases = append(out.Aliases, Alias{Label: a.Label, Norm: a.Norm})
	}
	return out
}

// GroupAliases indexes aliases by their owning entry id.
func GroupAliases(aliases []model.Alias) map[string][]model.Alias {
	out := make(map[string][]model.Alias)
	for _, a := range aliases {
		out[a.EntryID] = append(out[a.EntryID], a)
	}
	return out
}
