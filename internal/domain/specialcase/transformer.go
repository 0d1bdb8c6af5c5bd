// Package specialcase maps hard-to-type guesses onto canonical labels per category.
package specialcase

import (
	"fmt"
	"os"
	"sync"

	"github.com/bpbrianpark/enigma-game/internal/domain/normalize"
	"gopkg.in/yaml.v3"
)

// Table maps a normalized guess to the canonical label it stands for.
type Table map[string]string

// Transformer holds the per-category override tables. It is safe for concurrent use.
type Transformer struct {
	mu     sync.RWMutex
	tables map[string]Table
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithTables merges tables over the defaults. Keys are normalized.
func WithTables(tables map[string]Table) Option {
	return func(t *Transformer) {
		for slug, table := range tables {
			t.merge(slug, table)
		}
	}
}

// WithoutDefaults drops the built-in tables.
func WithoutDefaults() Option {
	return func(t *Transformer) {
		t.tables = make(map[string]Table)
	}
}

// New returns a Transformer seeded with the built-in tables.
func New(opts ...Option) *Transformer {
	t := &Transformer{tables: make(map[string]Table)}
	for slug, table := range defaultTables() {
		t.merge(slug, table)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform returns the canonical label for guess in the given category, or
// guess unchanged when no override applies.
func (t *Transformer) Transform(slug, guess string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	table, ok := t.tables[slug]
	if !ok {
		return guess
	}
	if label, ok := table[normalize.Key(guess)]; ok {
		return label
	}
	return guess
}

// Len returns the number of overrides configured for slug.
func (t *Transformer) Len(slug string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tables[slug])
}

func (t *Transformer) merge(slug string, table Table) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dst, ok := t.tables[slug]
	if !ok {
		dst = make(Table, len(table))
		t.tables[slug] = dst
	}
	for guess, label := range table {
		dst[normalize.Key(guess)] = label
	}
}

// LoadFile reads a YAML document of the form {slug: {guess: label}}.
func LoadFile(path string) (map[string]Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read special cases %s: %w", path, err)
	}
	var tables map[string]Table
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return nil, fmt.Errorf("parse special cases %s: %w", path, err)
	}
	return tables, nil
}

func defaultTables() map[string]Table {
	return map[string]Table{
		"pokemon_gen1": {
			"nidoran male":   "Nidoran♂",
			"nidoranmale":    "Nidoran♂",
			"nidoran female": "Nidoran♀",
			"nidoranfemale":  "Nidoran♀",
		},
		"humans_men": {
			"eminem": "Marshall Mathers",
		},
	}
}
