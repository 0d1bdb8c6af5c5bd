package repository

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

// SeedFile is the YAML document loaded by Seed.
type SeedFile struct {
	Categories []SeedCategory `yaml:"categories"`
}

// SeedCategory describes one category and its known entries.
type SeedCategory struct {
	Slug                string      `yaml:"slug"`
	Name                string      `yaml:"name"`
	Query               string      `yaml:"query"`
	UpdateQueryTemplate string      `yaml:"update_query_template"`
	Dynamic             bool        `yaml:"dynamic"`
	Daily               bool        `yaml:"daily"`
	Tags                []string    `yaml:"tags"`
	Entries             []SeedEntry `yaml:"entries"`
}

// SeedEntry is an entry with optional alternate spellings.
type SeedEntry struct {
	Label   string   `yaml:"label"`
	URL     string   `yaml:"url"`
	Aliases []string `yaml:"aliases"`
}

// SeedStats counts what a seed run wrote.
type SeedStats struct {
	Categories int
	Entries    int
	Aliases    int
}

// LoadSeedFile seeds store from the YAML file at path.
func LoadSeedFile(ctx context.Context, store Store, path string) (SeedStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedStats{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Seed(ctx, store, f)
}

// Seed upserts every category, entry and alias in the document. Running it
// twice leaves the store unchanged.
func Seed(ctx context.Context, store Store, r io.Reader) (SeedStats, error) {
	var doc SeedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return SeedStats{}, fmt.Errorf("%w: decode seed: %v", model.ErrInvalidInput, err)
	}

	var st SeedStats
	for _, sc := range doc.Categories {
		cat, err := store.UpsertCategory(ctx, model.Category{
			Slug:                sc.Slug,
			Name:                sc.Name,
			Query:               sc.Query,
			UpdateQueryTemplate: sc.UpdateQueryTemplate,
			IsDynamic:           sc.Dynamic,
			IsDaily:             sc.Daily,
			Tags:                sc.Tags,
		})
		if err != nil {
			return st, fmt.Errorf("seed category %q: %w", sc.Slug, err)
		}
		st.Categories++

		for _, se := range sc.Entries {
			entry, err := store.CreateOrUpdateEntry(ctx, model.Entry{
				CategoryID: cat.ID,
				Label:      se.Label,
				URL:        se.URL,
			})
			if err != nil {
				return st, fmt.Errorf("seed entry %q in %q: %w", se.Label, sc.Slug, err)
			}
			st.Entries++

			for _, label := range se.Aliases {
				if _, err := store.CreateAlias(ctx, model.Alias{
					EntryID:    entry.ID,
					CategoryID: cat.ID,
					Label:      label,
				}); err != nil {
					return st, fmt.Errorf("seed alias %q for %q: %w", label, se.Label, err)
				}
				st.Aliases++
			}
		}
	}
	return st, nil
}
