package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/bpbrianpark/enigma-game/internal/adapters/gateway"
	"github.com/bpbrianpark/enigma-game/internal/adapters/http/api"
	"github.com/bpbrianpark/enigma-game/internal/adapters/repository"
	service "github.com/bpbrianpark/enigma-game/internal/app"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
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
`

type stubGateway struct{}

func (stubGateway) Query(context.Context, string) ([]model.Row, error) {
	return []model.Row{{URL: "http://kg/Q90", Label: "Paris"}}, nil
}

func (stubGateway) Stats(context.Context) gateway.Stats { return gateway.Stats{} }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemStore()
	if _, err := repository.Seed(ctx, store, strings.NewReader(seedDoc)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := service.New(store, stubGateway{})
	mux := http.NewServeMux()
	api.NewServer(svc, svc, api.WithCronSecret("s3cret")).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	convey.Convey("Given a running server", t, func() {
		t.Setenv("ENIGMA_CRON_SECRET", "")
		srv := newServer(t)
		url := "--url=" + srv.URL

		convey.Convey("When categories are listed", func() {
			out, err := run(t, url, "categories")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, `"slug": "capitals"`)
		})

		convey.Convey("When entries are listed", func() {
			out, err := run(t, url, "entries", "capitals")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "City of Light")
		})

		convey.Convey("When a game is played", func() {
			out, err := run(t, url, "play", "capitals", "city of light", "Paris", "atlantis")
			convey.So(err, convey.ShouldBeNil)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			convey.So(len(lines), convey.ShouldEqual, 3)
			convey.So(lines[0], convey.ShouldContainSubstring, "correct (alias)")
			convey.So(lines[0], convey.ShouldContainSubstring, "[1/2]")
			convey.So(lines[1], convey.ShouldContainSubstring, "already found")
			convey.So(lines[2], convey.ShouldContainSubstring, "miss")
		})

		convey.Convey("When a raw query is run", func() {
			out, err := run(t, url, "query", "SELECT ?item WHERE {}")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "http://kg/Q90")
		})

		convey.Convey("When a query is missing", func() {
			_, err := run(t, url, "query")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the daily category is selected", func() {
			_, err := run(t, url, "select-daily")
			convey.So(err, convey.ShouldNotBeNil)

			out, err := run(t, url, "select-daily", "--secret=s3cret")
			convey.So(err, convey.ShouldBeNil)
			convey.So(strings.TrimSpace(out), convey.ShouldEqual, "capitals")

			out, err = run(t, url, "daily")
			convey.So(err, convey.ShouldBeNil)
			convey.So(strings.TrimSpace(out), convey.ShouldEqual, "capitals")
		})

		convey.Convey("When a category is refreshed", func() {
			out, err := run(t, url, "refresh", "capitals")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, `"rows": 1`)
		})

		convey.Convey("When a playtest runs", func() {
			out, err := run(t, url, "playtest", "capitals", "--players=3", "--guesses=5", "--seed=3")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, `"Verified": 3`)
		})

		convey.Convey("When the server rejects a request", func() {
			_, err := run(t, url, "entries", "nope")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "404")
		})
	})
}

func TestSeedCommand(t *testing.T) {
	convey.Convey("Given a sqlite store configured through the environment", t, func() {
		dir := t.TempDir()
		seed := filepath.Join(dir, "seed.yaml")
		convey.So(os.WriteFile(seed, []byte(seedDoc), 0o600), convey.ShouldBeNil)
		t.Setenv("ENIGMA_CONFIG", "")
		t.Setenv("ENIGMA_STORE_DRIVER", "sqlite")
		t.Setenv("ENIGMA_STORE_DSN", filepath.Join(dir, "enigma.db"))

		convey.Convey("When the seed command runs twice", func() {
			out, err := run(t, "seed", seed)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "seeded 1 categories, 2 entries, 1 aliases into sqlite")

			_, err = run(t, "seed", seed)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("When the seed file is missing", func() {
			_, err := run(t, "seed", filepath.Join(dir, "missing.yaml"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
