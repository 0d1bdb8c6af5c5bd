package kg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

const einsteinResults = `{
  "head": {"vars": ["item", "itemLabel", "alias"]},
  "results": {"bindings": [
    {"item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q937"},
     "itemLabel": {"type": "literal", "value": "Albert Einstein"},
     "alias": {"type": "literal", "value": "Einstein"}},
    {"item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q42"},
     "item_label": {"type": "literal", "value": "Douglas Adams"}},
    {"item": {"type": "uri", "value": "http://www.wikidata.org/entity/Q1"}},
    {"itemLabel": {"type": "literal", "value": "No Identifier"}}
  ]}
}`

type request struct {
	query  string
	format string
	accept string
	agent  string
	method string
}

type recorded struct {
	mu   sync.Mutex
	last request
}

func (r *recorded) snapshot() request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newServer(rec *recorded, handler func(w http.ResponseWriter)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.last = request{
			query:  r.URL.Query().Get("query"),
			format: r.URL.Query().Get("format"),
			accept: r.Header.Get("Accept"),
			agent:  r.Header.Get("User-Agent"),
			method: r.Method,
		}
		rec.mu.Unlock()
		handler(w)
	}))
}

func TestClientExecute(t *testing.T) {
	Convey("Given a SPARQL endpoint", t, func() {
		ctx := context.Background()
		rec := &recorded{}

		Convey("When the query succeeds", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "application/sparql-results+json")
				_, _ = w.Write([]byte(einsteinResults))
			})
			defer srv.Close()

			c := New(WithEndpoint(srv.URL), WithUserAgent("enigma-test/0.1"))
			rows, err := c.Execute(ctx, `SELECT ?item WHERE { ?item rdfs:label "Albert Einstein"@en }`)

			Convey("Then the request follows the endpoint protocol", func() {
				So(err, ShouldBeNil)
				got := rec.snapshot()
				So(got.method, ShouldEqual, http.MethodGet)
				So(got.query, ShouldEqual, `SELECT ?item WHERE { ?item rdfs:label "Albert Einstein"@en }`)
				So(got.format, ShouldEqual, "json")
				So(got.accept, ShouldEqual, "application/sparql-results+json")
				So(got.agent, ShouldEqual, "enigma-test/0.1")
			})

			Convey("And complete bindings become typed rows", func() {
				want := []model.Row{
					{URL: "http://www.wikidata.org/entity/Q937", Label: "Albert Einstein", Alias: "Einstein"},
					{URL: "http://www.wikidata.org/entity/Q42", Label: "Douglas Adams"},
				}
				So(cmp.Diff(want, rows), ShouldBeEmpty)
			})
		})

		Convey("When the endpoint returns no bindings", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"results":{"bindings":[]}}`))
			})
			defer srv.Close()

			rows, err := New(WithEndpoint(srv.URL)).Execute(ctx, "ASK {}")
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})

		Convey("When the endpoint rate limits", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				w.Header().Set("Retry-After", "5")
				w.WriteHeader(http.StatusTooManyRequests)
			})
			defer srv.Close()

			_, err := New(WithEndpoint(srv.URL)).Execute(ctx, "q")

			Convey("Then the backoff window is reported", func() {
				So(errors.Is(err, model.ErrRateLimited), ShouldBeTrue)
				d, ok := model.RetryAfter(err)
				So(ok, ShouldBeTrue)
				So(d, ShouldEqual, 5*time.Second)
			})
		})

		Convey("When the endpoint rate limits without Retry-After", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusTooManyRequests)
			})
			defer srv.Close()

			_, err := New(WithEndpoint(srv.URL), WithDefaultRetryAfter(90*time.Second)).Execute(ctx, "q")
			d, ok := model.RetryAfter(err)
			So(ok, ShouldBeTrue)
			So(d, ShouldEqual, 90*time.Second)
		})

		Convey("When the endpoint rate limits with Retry-After: 0", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
			})
			defer srv.Close()

			_, err := New(WithEndpoint(srv.URL), WithDefaultRetryAfter(90*time.Second)).Execute(ctx, "q")
			d, ok := model.RetryAfter(err)
			So(ok, ShouldBeTrue)
			So(d, ShouldEqual, time.Duration(0))
		})

		Convey("When the endpoint fails", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadGateway)
			})
			defer srv.Close()

			_, err := New(WithEndpoint(srv.URL)).Execute(ctx, "q")

			Convey("Then the status is carried", func() {
				var up *model.UpstreamError
				So(errors.As(err, &up), ShouldBeTrue)
				So(up.Status, ShouldEqual, http.StatusBadGateway)
				So(errors.Is(err, model.ErrUpstream), ShouldBeTrue)
			})
		})

		Convey("When the body is not valid JSON", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`<html>`))
			})
			defer srv.Close()

			_, err := New(WithEndpoint(srv.URL)).Execute(ctx, "q")
			So(errors.Is(err, model.ErrUpstream), ShouldBeTrue)
		})

		Convey("When the endpoint is slower than the deadline", func() {
			release := make(chan struct{})
			srv := newServer(rec, func(w http.ResponseWriter) {
				<-release
			})
			defer srv.Close()
			defer close(release)

			tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			_, err := New(WithEndpoint(srv.URL)).Execute(tctx, "q")

			Convey("Then the call times out", func() {
				So(errors.Is(err, model.ErrTimeout), ShouldBeTrue)
			})
		})

		Convey("When the caller deadline is longer than the client timeout", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {
				time.Sleep(80 * time.Millisecond)
				_, _ = w.Write([]byte(`{"results":{"bindings":[]}}`))
			})
			defer srv.Close()
			c := New(WithEndpoint(srv.URL), WithTimeout(20*time.Millisecond))

			tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_, err := c.Execute(tctx, "q")

			Convey("Then the caller deadline wins", func() {
				So(err, ShouldBeNil)
			})

			Convey("Then the client timeout bounds calls without a deadline", func() {
				_, err := c.Execute(ctx, "q")
				So(errors.Is(err, model.ErrTimeout), ShouldBeTrue)
			})
		})

		Convey("When the endpoint is unreachable", func() {
			srv := newServer(rec, func(w http.ResponseWriter) {})
			url := srv.URL
			srv.Close()

			_, err := New(WithEndpoint(url)).Execute(ctx, "q")

			Convey("Then a transport failure has status zero", func() {
				var up *model.UpstreamError
				So(errors.As(err, &up), ShouldBeTrue)
				So(up.Status, ShouldEqual, 0)
			})
		})
	})
}

func TestParseRetryAfter(t *testing.T) {
	Convey("Given Retry-After header values", t, func() {
		now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
		fallback := time.Minute

		So(parseRetryAfter("", now, fallback), ShouldEqual, fallback)
		So(parseRetryAfter("5", now, fallback), ShouldEqual, 5*time.Second)
		So(parseRetryAfter(" 120 ", now, fallback), ShouldEqual, 2*time.Minute)
		So(parseRetryAfter("-3", now, fallback), ShouldEqual, fallback)
		So(parseRetryAfter("soon", now, fallback), ShouldEqual, fallback)
		So(parseRetryAfter("Wed, 14 Oct 2026 12:00:30 GMT", now, fallback), ShouldEqual, 30*time.Second)
		So(parseRetryAfter("Wed, 14 Oct 2026 11:00:00 GMT", now, fallback), ShouldEqual, 0)
	})
}
