package model

import "time"

// Entry is a canonical named answer belonging to exactly one category.
type Entry struct {
	ID         string
	CategoryID string
	Label      string
	Norm       string
	URL        string // stable external identifier, unique per category
	Count      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Alias is an alternate accepted spelling bound to an entry.
type Alias struct {
	ID         string
	EntryID    string
	CategoryID string
	Label      string
	Norm       string
}

// Row is one validated result row from the knowledge graph.
type Row struct {
	URL   string `json:"url"`
	Label string `json:"label"`
	Alias string `json:"alias,omitempty"`
}
