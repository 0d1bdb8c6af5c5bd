// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// SearchTermPlaceholder marks where a live guess is substituted in an update query template.
const SearchTermPlaceholder = "SEARCH_TERM"

// Category is a named pool of accepted answers. It is read-only to the game core.
type Category struct {
	ID                  string
	Slug                string
	Name                string
	Query               string // base listing query used by refresh
	UpdateQueryTemplate string // optional, contains SearchTermPlaceholder
	IsDynamic           bool
	IsDaily             bool
	HasBeenSelected     bool
	PlayedOn            *time.Time
	Tags                []string
}

// CanSynthesize reports whether live lookups may grow this category.
func (c *Category) CanSynthesize() bool {
	return c != nil && c.IsDynamic && strings.Contains(c.UpdateQueryTemplate, SearchTermPlaceholder)
}

// PlayedWithin reports whether the category was played in [from, to).
func (c *Category) PlayedWithin(from, to time.Time) bool {
	if c == nil || c.PlayedOn == nil {
		return false
	}
	p := *c.PlayedOn
	return !p.Before(from) && p.Before(to)
}
