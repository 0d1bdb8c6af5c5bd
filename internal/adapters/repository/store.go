// Package repository persists categories, entries and aliases behind a
// single record-store interface with memory, SQLite and MySQL backends.
package repository

import (
	"context"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

// Store provides read/write access to game records. Implementations are
// safe for concurrent use and every upsert is atomic.
type Store interface {
	// FindCategoryBySlug returns ErrCategoryNotFound when slug is unknown.
	FindCategoryBySlug(ctx context.Context, slug string) (*model.Category, error)
	// ListCategories returns every category ordered by slug.
	ListCategories(ctx context.Context) ([]model.Category, error)
	// UpsertCategory inserts c or updates its descriptive fields by slug.
	// The daily state of an existing category is preserved.
	UpsertCategory(ctx context.Context, c model.Category) (*model.Category, error)

	// FindEntryByURL returns ErrEntryNotFound when no entry has url.
	FindEntryByURL(ctx context.Context, categoryID, url string) (*model.Entry, error)
	// CreateOrUpdateEntry upserts e on (categoryID, url) and returns the stored entry.
	CreateOrUpdateEntry(ctx context.Context, e model.Entry) (*model.Entry, error)
	// IncrementEntry upserts e on (categoryID, url) and adds delta to its count.
	IncrementEntry(ctx context.Context, e model.Entry, delta int) (*model.Entry, error)

	// CreateAlias inserts a, or returns the existing alias with the same
	// (entryID, norm).
	CreateAlias(ctx context.Context, a model.Alias) (*model.Alias, error)

	// ListEntriesForCategory returns entries in creation order.
	ListEntriesForCategory(ctx context.Context, categoryID string) ([]model.Entry, error)
	ListAliasesForCategory(ctx context.Context, categoryID string) ([]model.Alias, error)

	UpdateCategoryDailyState(ctx context.Context, id string, hasBeenSelected bool, playedOn *time.Time) error
	// ListDailyEligibleCategories returns daily categories ordered by id ascending.
	ListDailyEligibleCategories(ctx context.Context, onlyUnselected bool) ([]model.Category, error)
	// FindDailyPlayedBetween returns a daily category with playedOn in
	// [from, to) or ErrCategoryNotFound.
	FindDailyPlayedBetween(ctx context.Context, from, to time.Time) (*model.Category, error)
	// ResetDailySelection clears hasBeenSelected on every daily category.
	ResetDailySelection(ctx context.Context) error
	// ClaimDailyCategory marks id selected and played on day, but only while
	// no daily category has been played within that day. It reports whether
	// the claim won.
	ClaimDailyCategory(ctx context.Context, id string, day time.Time) (bool, error)

	Close() error
}
