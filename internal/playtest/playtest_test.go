package playtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/bpbrianpark/enigma-game/internal/adapters/gateway"
	"github.com/bpbrianpark/enigma-game/internal/adapters/http/api"
	"github.com/bpbrianpark/enigma-game/internal/adapters/repository"
	service "github.com/bpbrianpark/enigma-game/internal/app"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/types"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
)

func init() {
	_ = logger.Init()
}

const seedDoc = `
categories:
  - slug: capitals
    name: World Capitals
    query: SELECT capitals
    daily: true
    entries:
      - label: Paris
        url: http://kg/Q90
        aliases: [City of Light]
      - label: Berlin
        url: http://kg/Q64
      - label: Tokyo
        url: http://kg/Q1490
`

type offlineGateway struct{}

func (offlineGateway) Query(context.Context, string) ([]model.Row, error) {
	return nil, nil
}

func (offlineGateway) Stats(context.Context) gateway.Stats { return gateway.Stats{} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemStore()
	if _, err := repository.Seed(ctx, store, strings.NewReader(seedDoc)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := service.New(store, offlineGateway{})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithCronSecret("s3cret")).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	Convey("Given a client for a running server", t, func() {
		ctx := context.Background()
		srv := newTestServer(t)
		c := NewClientWithHTTP(srv.URL, srv.Client())

		Convey("Then health and listings are served", func() {
			So(c.Health(ctx), ShouldBeNil)

			cats, err := c.Categories(ctx)
			So(err, ShouldBeNil)
			So(len(cats), ShouldEqual, 1)
			So(cats[0].Slug, ShouldEqual, "capitals")

			entries, err := c.Entries(ctx, "capitals")
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
		})

		Convey("Then a guess round trips", func() {
			start, err := c.StartSession(ctx, "capitals")
			So(err, ShouldBeNil)
			So(start.Total, ShouldEqual, 3)

			res, err := c.Guess(ctx, start.SessionID, "city of light")
			So(err, ShouldBeNil)
			So(res.Correct, ShouldBeTrue)
			So(res.Entry.Label, ShouldEqual, "Paris")

			snap, err := c.Session(ctx, start.SessionID)
			So(err, ShouldBeNil)
			So(snap.Attempts, ShouldEqual, 1)
		})

		Convey("Then the daily task needs the secret", func() {
			_, err := c.SelectDaily(ctx, "wrong")
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusUnauthorized)

			slug, err := c.SelectDaily(ctx, "s3cret")
			So(err, ShouldBeNil)
			So(slug, ShouldEqual, "capitals")
		})

		Convey("Then errors carry the server's code", func() {
			_, err := c.StartSession(ctx, "nope")
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusNotFound)
			So(apiErr.Code, ShouldNotBeEmpty)
		})

		Convey("Then tallies are counted", func() {
			res, err := c.Tally(ctx, "capitals", []types.TallyItem{{URL: "http://kg/Q90", Label: "Paris"}})
			So(err, ShouldBeNil)
			So(res.Updated, ShouldEqual, 1)
		})
	})
}

func TestGeneratePlans(t *testing.T) {
	Convey("Given known entries", t, func() {
		ctx := context.Background()
		entries := []types.Entry{
			{ID: "1", Label: "Paris", Aliases: []types.Alias{{Label: "City of Light"}}},
			{ID: "2", Label: "Berlin", Aliases: []types.Alias{}},
		}
		cfg := &Config{Slug: "capitals", Players: 3, Guesses: 50, MissRatio: 0.3, Seed: 42}

		Convey("When plans are generated", func() {
			plans, err := GeneratePlans(ctx, cfg, entries)
			So(err, ShouldBeNil)

			Convey("Then every player gets a full plan", func() {
				So(len(plans), ShouldEqual, 3)
				misses := 0
				for _, p := range plans {
					So(len(p.Guesses), ShouldEqual, 50)
					for _, g := range p.Guesses {
						if strings.HasPrefix(g, "qx ") {
							misses++
							continue
						}
						So(strings.ToLower(g), ShouldBeIn, []string{"paris", "city of light", "berlin"})
					}
				}
				So(misses, ShouldBeGreaterThan, 0)
				So(misses, ShouldBeLessThan, 150)
			})

			Convey("Then the same seed repeats the correct guesses", func() {
				again, err := GeneratePlans(ctx, cfg, entries)
				So(err, ShouldBeNil)
				for i := range plans {
					for j, g := range plans[i].Guesses {
						if strings.HasPrefix(g, "qx ") {
							So(again[i].Guesses[j], ShouldStartWith, "qx ")
							continue
						}
						So(again[i].Guesses[j], ShouldEqual, g)
					}
				}
			})
		})

		Convey("When the category is empty", func() {
			_, err := GeneratePlans(ctx, cfg, nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv := newTestServer(t)
		c := NewClientWithHTTP(srv.URL, srv.Client())

		Convey("When many players play at once", func() {
			stats, err := Run(ctx, c, &Config{
				Slug: "capitals", Players: 6, Guesses: 15, Workers: 4,
				MissRatio: 0.2, Seed: 7, Tally: true,
			})

			Convey("Then every session matches what its player saw", func() {
				So(err, ShouldBeNil)
				So(stats.Submitted, ShouldEqual, 90)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Verified, ShouldEqual, 6)
				So(stats.Correct+stats.Duplicate+stats.Missed, ShouldEqual, 90)
				So(stats.Correct, ShouldBeLessThanOrEqualTo, 6*3)
				So(stats.Tallied, ShouldEqual, stats.Correct)
			})
		})

		Convey("When the category does not exist", func() {
			_, err := Run(ctx, c, &Config{Slug: "nope", Players: 1, Guesses: 1})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestVerifySnapshot(t *testing.T) {
	Convey("Given a player's view", t, func() {
		p := &player{recorded: 2, found: map[string]types.Entry{"1": {ID: "1", Label: "Paris"}}}

		Convey("Then a matching snapshot passes", func() {
			So(verifySnapshot(p, types.Session{Attempts: 2, Total: 3, Found: []types.Entry{{ID: "1"}}}), ShouldBeNil)
		})

		Convey("Then a different attempt count fails", func() {
			So(verifySnapshot(p, types.Session{Attempts: 3, Found: []types.Entry{{ID: "1"}}}), ShouldNotBeNil)
		})

		Convey("Then an entry the player never scored fails", func() {
			So(verifySnapshot(p, types.Session{Attempts: 2, Found: []types.Entry{{ID: "9", Label: "Rome"}}}), ShouldNotBeNil)
		})
	})
}
