package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bpbrianpark/enigma-game/internal/adapters/gateway"
	"github.com/bpbrianpark/enigma-game/internal/adapters/http/api"
	service "github.com/bpbrianpark/enigma-game/internal/app"
	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var notFound = fmt.Errorf("category %w", model.ErrNotFound)

// mockDependencies records calls and returns scripted results.
type mockDependencies struct {
	mu sync.Mutex

	queryErr    error
	queryRows   []model.Row
	guessResult types.GuessResult
	guessErr    error
	tallyItems  []types.TallyItem
	aliasCalls  []string
	selectCalls int
}

func (m *mockDependencies) ListCategories(context.Context) ([]types.Category, error) {
	return []types.Category{{Slug: "capitals", Name: "World Capitals", Tags: []string{}}}, nil
}

func (m *mockDependencies) Category(_ context.Context, slug string) (types.Category, error) {
	if slug != "capitals" {
		return types.Category{}, notFound
	}
	return types.Category{Slug: slug, Name: "World Capitals", Tags: []string{}}, nil
}

func (m *mockDependencies) Entries(_ context.Context, slug string) ([]types.Entry, error) {
	if slug != "capitals" {
		return nil, notFound
	}
	return []types.Entry{{ID: "e1", Label: "Paris", Norm: "paris", URL: "http://kg/Q90", Aliases: []types.Alias{}}}, nil
}

func (m *mockDependencies) CreateAlias(_ context.Context, slug, entryID, label string) (types.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliasCalls = append(m.aliasCalls, slug+"/"+entryID+"/"+label)
	return types.Alias{Label: label, Norm: strings.ToLower(label)}, nil
}

func (m *mockDependencies) Refresh(_ context.Context, slug string) (types.RefreshResult, error) {
	return types.RefreshResult{Slug: slug, Rows: 3, Entries: 2, Aliases: 1}, nil
}

func (m *mockDependencies) Tally(_ context.Context, _ string, items []types.TallyItem) (types.TallyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tallyItems = items
	return types.TallyResult{Updated: len(items)}, nil
}

func (m *mockDependencies) Query(context.Context, string) ([]model.Row, error) {
	return m.queryRows, m.queryErr
}

func (m *mockDependencies) Daily(context.Context) (string, error) {
	return "capitals", nil
}

func (m *mockDependencies) SelectDaily(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectCalls++
	return "capitals", nil
}

func (m *mockDependencies) StartSession(_ context.Context, slug string) (types.SessionStart, error) {
	if slug != "capitals" {
		return types.SessionStart{}, notFound
	}
	return types.SessionStart{SessionID: "s1", Category: types.Category{Slug: slug}, Total: 2}, nil
}

func (m *mockDependencies) Guess(_ context.Context, id, _ string) (types.GuessResult, error) {
	if id != "s1" {
		return types.GuessResult{}, fmt.Errorf("session %w", model.ErrNotFound)
	}
	return m.guessResult, m.guessErr
}

func (m *mockDependencies) Session(_ context.Context, id string) (types.Session, error) {
	if id != "s1" {
		return types.Session{}, fmt.Errorf("session %w", model.ErrNotFound)
	}
	return types.Session{ID: id, Found: []types.Entry{}, Misses: []string{"Atlantis"}, Attempts: 1}, nil
}

type mockStatsProvider struct{}

func (mockStatsProvider) GetStats(context.Context) service.Stats {
	return service.Stats{Started: true, Sessions: 4, Gateway: gateway.Stats{QueueLength: 2, CacheHits: 7}}
}

func newMux(deps *mockDependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStatsProvider{}, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("Then the health endpoint serves metrics", func() {
			w := do(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			w = do(mux, "HEAD", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.Len(), ShouldEqual, 0)
		})

		Convey("Then the stats endpoint serves JSON", func() {
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			body := decodeBody(w)
			So(body["sessions"], ShouldEqual, 4.0)
			So(body["gateway"].(map[string]any)["cache_hits"], ShouldEqual, 7.0)
		})

		Convey("Then stats can be narrowed to a section", func() {
			w := do(mux, "GET", "/stats?section=gateway", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["queue_length"], ShouldEqual, 2.0)

			w = do(mux, "GET", "/stats?section=sessions", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["sessions"], ShouldEqual, 4.0)

			w = do(mux, "GET", "/stats?section=disk", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("Then a wrong method is rejected", func() {
			w := do(mux, "DELETE", "/api/categories", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When a nil mux is registered it panics", func() {
			So(func() { api.NewServer(deps, mockStatsProvider{}).Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestCategoryRoutes(t *testing.T) {
	Convey("Given the category routes", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When listing categories", func() {
			w := do(mux, "GET", "/api/categories", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"slug":"capitals"`)
		})

		Convey("When fetching an unknown category", func() {
			w := do(mux, "GET", "/api/categories/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decodeBody(w)["code"], ShouldEqual, "not_found")
		})

		Convey("When listing entries", func() {
			w := do(mux, "GET", "/api/categories/capitals/entries", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decodeBody(w)
			So(body["ok"], ShouldEqual, true)
			So(len(body["entries"].([]any)), ShouldEqual, 1)
		})

		Convey("When creating an alias", func() {
			w := do(mux, "POST", "/api/categories/capitals/aliases", `{"entry_id":"e1","label":"Paname"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(deps.aliasCalls, ShouldResemble, []string{"capitals/e1/Paname"})
		})

		Convey("When an alias request misses a field", func() {
			w := do(mux, "POST", "/api/categories/capitals/aliases", `{"label":"Paname"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.aliasCalls, ShouldBeEmpty)
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, "POST", "/api/categories/refresh", `{not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When refreshing a category", func() {
			w := do(mux, "POST", "/api/categories/refresh", `{"slug":"capitals"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["entries"], ShouldEqual, 2.0)
		})

		Convey("When tallying entries", func() {
			w := do(mux, "POST", "/api/entries/tally", `{"slug":"capitals","entries":[{"url":"http://kg/Q90","label":"Paris"}]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.tallyItems, ShouldResemble, []types.TallyItem{{URL: "http://kg/Q90", Label: "Paris"}})
		})
	})
}

func TestQueryRoute(t *testing.T) {
	Convey("Given the query proxy", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When the query succeeds with no rows", func() {
			w := do(mux, "POST", "/api/query", `{"query":"SELECT 1"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"rows":[]}`)
		})

		Convey("When the query is missing", func() {
			w := do(mux, "POST", "/api/query", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		errCases := []struct {
			name   string
			err    error
			status int
		}{
			{"rate limited", &model.RateLimitedError{RetryAfter: 5 * time.Second}, http.StatusTooManyRequests},
			{"a timeout", fmt.Errorf("query: %w", model.ErrTimeout), http.StatusGatewayTimeout},
			{"an upstream failure", &model.UpstreamError{Status: 500}, http.StatusBadGateway},
			{"a full queue", gateway.ErrQueueFull, http.StatusServiceUnavailable},
			{"invalid input", fmt.Errorf("query: %w", model.ErrInvalidInput), http.StatusBadRequest},
			{"a storage failure", fmt.Errorf("x: %w", model.ErrStorage), http.StatusInternalServerError},
		}
		for _, tc := range errCases {
			Convey("When the gateway reports "+tc.name, func() {
				deps.queryErr = tc.err
				w := do(mux, "POST", "/api/query", `{"query":"SELECT 1"}`)
				So(w.Code, ShouldEqual, tc.status)
			})
		}

		Convey("When rate limited the response carries Retry-After", func() {
			deps.queryErr = &model.RateLimitedError{RetryAfter: 4500 * time.Millisecond}
			w := do(mux, "POST", "/api/query", `{"query":"SELECT 1"}`)
			So(w.Header().Get("Retry-After"), ShouldEqual, "5")
			So(decodeBody(w)["code"], ShouldEqual, "rate_limited")
		})

		Convey("When a server error occurs its detail is not exposed", func() {
			deps.queryErr = fmt.Errorf("dsn secret: %w", model.ErrStorage)
			w := do(mux, "POST", "/api/query", `{"query":"SELECT 1"}`)
			So(w.Body.String(), ShouldNotContainSubstring, "secret")
		})
	})
}

func TestDailyRoutes(t *testing.T) {
	Convey("Given the daily routes with a cron secret", t, func() {
		deps := &mockDependencies{}
		fixed := time.Date(2026, 10, 14, 0, 0, 5, 0, time.UTC)
		mux := newMux(deps, api.WithCronSecret("s3cret"), api.WithClock(func() time.Time { return fixed }))

		Convey("When reading the daily category", func() {
			w := do(mux, "GET", "/api/daily", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["slug"], ShouldEqual, "capitals")
		})

		Convey("When the task is called without a token", func() {
			w := do(mux, "GET", "/api/tasks/select-daily-category", "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(deps.selectCalls, ShouldEqual, 0)
		})

		Convey("When the task is called with a wrong token", func() {
			w := do(mux, "GET", "/api/tasks/select-daily-category", "", "Authorization", "Bearer nope")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the task is called with the secret", func() {
			w := do(mux, "GET", "/api/tasks/select-daily-category", "", "Authorization", "Bearer s3cret")

			Convey("Then it selects and reports the slug", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["success"], ShouldEqual, true)
				So(body["slug"], ShouldEqual, "capitals")
				So(body["timestamp"], ShouldEqual, "2026-10-14T00:00:05Z")
				So(deps.selectCalls, ShouldEqual, 1)
			})
		})
	})

	Convey("Given the daily routes without a cron secret", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then the task always refuses", func() {
			w := do(mux, "GET", "/api/tasks/select-daily-category", "", "Authorization", "Bearer ")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestSessionRoutes(t *testing.T) {
	Convey("Given the session routes", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When a session is created", func() {
			w := do(mux, "POST", "/api/sessions", `{"slug":"capitals"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			body := decodeBody(w)
			So(body["session_id"], ShouldEqual, "s1")
			So(body["total"], ShouldEqual, 2.0)
		})

		Convey("When a session is created for an unknown category", func() {
			w := do(mux, "POST", "/api/sessions", `{"slug":"nope"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a correct guess is posted", func() {
			deps.guessResult = types.GuessResult{Correct: true, Stage: "exact", Entry: &types.Entry{Label: "Paris"}, Found: 1, Total: 2}
			w := do(mux, "POST", "/api/sessions/s1/guesses", `{"guess":"paris"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decodeBody(w)
			So(body["correct"], ShouldEqual, true)
			So(body["stage"], ShouldEqual, "exact")
			So(body["rate_limited"], ShouldEqual, false)
		})

		Convey("When the live lookup was rate limited", func() {
			deps.guessResult = types.GuessResult{RateLimited: true, RetryAfterS: 5}
			w := do(mux, "POST", "/api/sessions/s1/guesses", `{"guess":"einstein"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Retry-After"), ShouldEqual, "5")
			So(decodeBody(w)["retry_after_s"], ShouldEqual, 5.0)
		})

		Convey("When the guess is empty", func() {
			w := do(mux, "POST", "/api/sessions/s1/guesses", `{"guess":""}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the session is unknown", func() {
			w := do(mux, "POST", "/api/sessions/zzz/guesses", `{"guess":"paris"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a session is read", func() {
			w := do(mux, "GET", "/api/sessions/s1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"misses":["Atlantis"]`)
		})
	})
}
