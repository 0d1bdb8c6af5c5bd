package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(*testing.T) Store {
			return NewMemStore(WithClock(func() time.Time { return testNow }))
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "enigma.db"),
				WithClock(func() time.Time { return testNow }))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func dailyCategory(id, slug string) model.Category {
	return model.Category{ID: id, Slug: slug, Name: strings.ToUpper(slug), IsDaily: true}
}

func TestStoreCategories(t *testing.T) {
	for name, factory := range backends() {
		Convey("Given a "+name+" store", t, func() {
			ctx := context.Background()
			s := factory(t)

			created, err := s.UpsertCategory(ctx, model.Category{
				Slug:                "scientists",
				Name:                "Scientists",
				Query:               "SELECT ?item ?itemLabel WHERE {}",
				UpdateQueryTemplate: `SELECT ?item WHERE { ?item rdfs:label "SEARCH_TERM"@en }`,
				IsDynamic:           true,
				IsDaily:             true,
				Tags:                []string{"people", "science"},
			})
			So(err, ShouldBeNil)

			Convey("Then it can be found by slug", func() {
				got, err := s.FindCategoryBySlug(ctx, "scientists")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, created.ID)
				So(got.Name, ShouldEqual, "Scientists")
				So(got.CanSynthesize(), ShouldBeTrue)
				So(got.Tags, ShouldResemble, []string{"people", "science"})
				So(got.PlayedOn, ShouldBeNil)
			})

			Convey("When the slug is upserted again", func() {
				day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
				So(s.UpdateCategoryDailyState(ctx, created.ID, true, &day), ShouldBeNil)

				again, err := s.UpsertCategory(ctx, model.Category{Slug: "scientists", Name: "Famous Scientists", IsDaily: true})
				So(err, ShouldBeNil)

				Convey("Then the id and daily state are preserved", func() {
					So(again.ID, ShouldEqual, created.ID)
					So(again.Name, ShouldEqual, "Famous Scientists")
					So(again.HasBeenSelected, ShouldBeTrue)
					So(again.PlayedOn, ShouldNotBeNil)
					So(again.PlayedOn.Equal(day), ShouldBeTrue)
				})
			})

			Convey("When an unknown slug is requested", func() {
				_, err := s.FindCategoryBySlug(ctx, "nope")
				So(errors.Is(err, ErrCategoryNotFound), ShouldBeTrue)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})

			Convey("When the slug is missing", func() {
				_, err := s.UpsertCategory(ctx, model.Category{Name: "x"})
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			})

			Convey("When categories are listed", func() {
				_, err := s.UpsertCategory(ctx, model.Category{Slug: "animals"})
				So(err, ShouldBeNil)
				list, err := s.ListCategories(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 2)
				So(list[0].Slug, ShouldEqual, "animals")
				So(list[1].Slug, ShouldEqual, "scientists")
			})
		})
	}
}

func TestStoreEntries(t *testing.T) {
	for name, factory := range backends() {
		Convey("Given a "+name+" store with a category", t, func() {
			ctx := context.Background()
			s := factory(t)
			cat, err := s.UpsertCategory(ctx, model.Category{Slug: "scientists"})
			So(err, ShouldBeNil)

			einstein, err := s.CreateOrUpdateEntry(ctx, model.Entry{
				CategoryID: cat.ID,
				Label:      "Albert Einstein",
				URL:        "http://www.wikidata.org/entity/Q937",
			})
			So(err, ShouldBeNil)

			Convey("Then the norm is derived from the label", func() {
				So(einstein.ID, ShouldNotBeBlank)
				So(einstein.Norm, ShouldEqual, "albert einstein")
				So(einstein.CreatedAt.Equal(testNow), ShouldBeTrue)
			})

			Convey("When the same url is upserted again", func() {
				again, err := s.CreateOrUpdateEntry(ctx, model.Entry{
					CategoryID: cat.ID,
					Label:      "Albert Einstein",
					Norm:       "albert einstein",
					URL:        "http://www.wikidata.org/entity/Q937",
				})
				So(err, ShouldBeNil)

				Convey("Then no second entry exists", func() {
					So(again.ID, ShouldEqual, einstein.ID)
					list, err := s.ListEntriesForCategory(ctx, cat.ID)
					So(err, ShouldBeNil)
					So(list, ShouldHaveLength, 1)
				})
			})

			Convey("When entries are tallied", func() {
				e := model.Entry{CategoryID: cat.ID, Label: "Marie Curie", URL: "http://www.wikidata.org/entity/Q7186"}
				first, err := s.IncrementEntry(ctx, e, 1)
				So(err, ShouldBeNil)
				second, err := s.IncrementEntry(ctx, e, 1)
				So(err, ShouldBeNil)
				bumped, err := s.IncrementEntry(ctx, model.Entry{CategoryID: cat.ID, Label: "Einstein", URL: einstein.URL}, 3)
				So(err, ShouldBeNil)

				So(first.Count, ShouldEqual, 1)
				So(second.Count, ShouldEqual, 2)
				So(second.ID, ShouldEqual, first.ID)
				So(bumped.Count, ShouldEqual, 3)
				So(bumped.Label, ShouldEqual, "Albert Einstein")
			})

			Convey("When entries are listed", func() {
				for i := 0; i < 5; i++ {
					_, err := s.CreateOrUpdateEntry(ctx, model.Entry{
						CategoryID: cat.ID,
						Label:      fmt.Sprintf("Entry %d", i),
						URL:        fmt.Sprintf("http://kg/Q%d", i),
					})
					So(err, ShouldBeNil)
				}
				list, err := s.ListEntriesForCategory(ctx, cat.ID)
				So(err, ShouldBeNil)

				Convey("Then they come back in creation order", func() {
					So(list, ShouldHaveLength, 6)
					So(list[0].URL, ShouldEqual, einstein.URL)
					for i := 0; i < 5; i++ {
						So(list[i+1].Label, ShouldEqual, fmt.Sprintf("Entry %d", i))
					}
				})
			})

			Convey("When aliases are created", func() {
				a, err := s.CreateAlias(ctx, model.Alias{EntryID: einstein.ID, CategoryID: cat.ID, Label: "Einstein"})
				So(err, ShouldBeNil)
				dup, err := s.CreateAlias(ctx, model.Alias{EntryID: einstein.ID, CategoryID: cat.ID, Label: "EINSTEIN"})
				So(err, ShouldBeNil)

				Convey("Then (entry, norm) is unique", func() {
					So(a.Norm, ShouldEqual, "einstein")
					So(dup.ID, ShouldEqual, a.ID)
					list, err := s.ListAliasesForCategory(ctx, cat.ID)
					So(err, ShouldBeNil)
					So(list, ShouldHaveLength, 1)
					So(list[0].Label, ShouldEqual, "Einstein")
				})
			})

			Convey("When an entry is looked up by url", func() {
				got, err := s.FindEntryByURL(ctx, cat.ID, einstein.URL)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, einstein.ID)

				_, err = s.FindEntryByURL(ctx, cat.ID, "http://kg/none")
				So(errors.Is(err, ErrEntryNotFound), ShouldBeTrue)
			})

			Convey("When the entry is incomplete", func() {
				_, err := s.CreateOrUpdateEntry(ctx, model.Entry{CategoryID: cat.ID, Label: "No URL"})
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
				_, err = s.CreateAlias(ctx, model.Alias{EntryID: einstein.ID, Label: "   "})
				So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			})

			Convey("When the same url is upserted concurrently", func() {
				var wg sync.WaitGroup
				ids := make([]string, 8)
				for i := range ids {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						e, err := s.CreateOrUpdateEntry(ctx, model.Entry{
							CategoryID: cat.ID, Label: "Niels Bohr", URL: "http://www.wikidata.org/entity/Q7085",
						})
						if err == nil {
							ids[i] = e.ID
						}
					}(i)
				}
				wg.Wait()

				Convey("Then exactly one entry exists for it", func() {
					for _, id := range ids {
						So(id, ShouldEqual, ids[0])
					}
					list, err := s.ListEntriesForCategory(ctx, cat.ID)
					So(err, ShouldBeNil)
					So(list, ShouldHaveLength, 2)
				})
			})
		})
	}
}

func TestStoreDaily(t *testing.T) {
	for name, factory := range backends() {
		Convey("Given a "+name+" store with daily categories", t, func() {
			ctx := context.Background()
			s := factory(t)
			for _, c := range []model.Category{
				dailyCategory("c", "rivers"),
				dailyCategory("a", "animals"),
				dailyCategory("b", "capitals"),
				{ID: "z", Slug: "scientists"},
			} {
				_, err := s.UpsertCategory(ctx, c)
				So(err, ShouldBeNil)
			}
			day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

			Convey("Then eligible categories are ordered by id", func() {
				pool, err := s.ListDailyEligibleCategories(ctx, true)
				So(err, ShouldBeNil)
				So(pool, ShouldHaveLength, 3)
				So([]string{pool[0].Slug, pool[1].Slug, pool[2].Slug}, ShouldResemble, []string{"animals", "capitals", "rivers"})
			})

			Convey("When a category is claimed for the day", func() {
				won, err := s.ClaimDailyCategory(ctx, "b", day)
				So(err, ShouldBeNil)
				So(won, ShouldBeTrue)

				Convey("Then a second claim on the same day loses", func() {
					won, err := s.ClaimDailyCategory(ctx, "a", day)
					So(err, ShouldBeNil)
					So(won, ShouldBeFalse)
				})

				Convey("And it is found within the day", func() {
					got, err := s.FindDailyPlayedBetween(ctx, day, day.Add(24*time.Hour))
					So(err, ShouldBeNil)
					So(got.Slug, ShouldEqual, "capitals")
					So(got.HasBeenSelected, ShouldBeTrue)

					_, err = s.FindDailyPlayedBetween(ctx, day.Add(24*time.Hour), day.Add(48*time.Hour))
					So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				})

				Convey("And it leaves the unselected pool", func() {
					pool, err := s.ListDailyEligibleCategories(ctx, true)
					So(err, ShouldBeNil)
					So(pool, ShouldHaveLength, 2)

					all, err := s.ListDailyEligibleCategories(ctx, false)
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 3)
				})

				Convey("And the next day can be claimed", func() {
					won, err := s.ClaimDailyCategory(ctx, "a", day.Add(24*time.Hour))
					So(err, ShouldBeNil)
					So(won, ShouldBeTrue)
				})

				Convey("And a reset returns it to the pool", func() {
					So(s.ResetDailySelection(ctx), ShouldBeNil)
					pool, err := s.ListDailyEligibleCategories(ctx, true)
					So(err, ShouldBeNil)
					So(pool, ShouldHaveLength, 3)
				})
			})

			Convey("When a non-daily category is claimed", func() {
				won, err := s.ClaimDailyCategory(ctx, "z", day)
				So(err, ShouldBeNil)
				So(won, ShouldBeFalse)
			})

			Convey("When many callers claim concurrently", func() {
				var wg sync.WaitGroup
				var mu sync.Mutex
				wins := 0
				for _, id := range []string{"a", "b", "c", "a", "b", "c"} {
					wg.Add(1)
					go func(id string) {
						defer wg.Done()
						won, err := s.ClaimDailyCategory(ctx, id, day)
						if err == nil && won {
							mu.Lock()
							wins++
							mu.Unlock()
						}
					}(id)
				}
				wg.Wait()
				So(wins, ShouldEqual, 1)
			})
		})
	}
}

const seedYAML = `
categories:
  - slug: scientists
    name: Scientists
    query: "SELECT ?item ?itemLabel WHERE {}"
    update_query_template: 'SELECT ?item ?itemLabel WHERE { ?item rdfs:label "SEARCH_TERM"@en }'
    dynamic: true
    tags: [people]
    entries:
      - label: Albert Einstein
        url: http://www.wikidata.org/entity/Q937
        aliases: [Einstein]
      - label: Marie Curie
        url: http://www.wikidata.org/entity/Q7186
  - slug: capitals
    name: World Capitals
    daily: true
    entries:
      - label: Paris
        url: http://www.wikidata.org/entity/Q90
`

func TestSeed(t *testing.T) {
	for name, factory := range backends() {
		Convey("Given a "+name+" store and a seed document", t, func() {
			ctx := context.Background()
			s := factory(t)

			st, err := Seed(ctx, s, strings.NewReader(seedYAML))
			So(err, ShouldBeNil)
			So(st, ShouldResemble, SeedStats{Categories: 2, Entries: 3, Aliases: 1})

			Convey("When it is applied twice", func() {
				_, err := Seed(ctx, s, strings.NewReader(seedYAML))
				So(err, ShouldBeNil)

				Convey("Then the store is unchanged", func() {
					cat, err := s.FindCategoryBySlug(ctx, "scientists")
					So(err, ShouldBeNil)
					So(cat.IsDynamic, ShouldBeTrue)

					entries, err := s.ListEntriesForCategory(ctx, cat.ID)
					So(err, ShouldBeNil)
					So(entries, ShouldHaveLength, 2)
					So(entries[0].Norm, ShouldEqual, "albert einstein")

					aliases, err := s.ListAliasesForCategory(ctx, cat.ID)
					So(err, ShouldBeNil)
					So(aliases, ShouldHaveLength, 1)
					So(aliases[0].EntryID, ShouldEqual, entries[0].ID)
				})
			})
		})
	}

	Convey("Given a malformed seed document", t, func() {
		_, err := Seed(context.Background(), NewMemStore(), strings.NewReader("categories: [oops"))
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
	})
}

func TestOpen(t *testing.T) {
	Convey("Given the store factory", t, func() {
		ctx := context.Background()

		s, err := Open(ctx, DriverMemory, "")
		So(err, ShouldBeNil)
		So(s, ShouldHaveSameTypeAs, &MemStore{})

		s, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "open.db"))
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		_, err = Open(ctx, "postgres", "")
		So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)

		_, err = Open(ctx, DriverMySQL, "not a dsn")
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
	})
}
