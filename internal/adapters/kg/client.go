// Package kg executes queries against a SPARQL endpoint and parses the
// results into typed rows.
package kg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
)

const (
	DefaultEndpoint   = "https://query.wikidata.org/sparql"
	DefaultUserAgent  = "enigma-game/1.0 (https://github.com/bpbrianpark/enigma-game)"
	DefaultRetryAfter = 60 * time.Second
	DefaultTimeout    = 10 * time.Second

	acceptSPARQLJSON = "application/sparql-results+json"
)

// Client is a thin SPARQL-over-HTTP client. It does not retry.
type Client struct {
	http              *resty.Client
	timeout           time.Duration
	defaultRetryAfter time.Duration
}

// New creates a client for endpoint.
func New(opts ...Option) *Client {
	s := &settings{
		endpoint:   DefaultEndpoint,
		userAgent:  DefaultUserAgent,
		retryAfter: DefaultRetryAfter,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	client := resty.New()
	if s.httpClient != nil {
		client = resty.NewWithClient(s.httpClient)
	}
	client.SetBaseURL(s.endpoint)
	client.SetHeader("Accept", acceptSPARQLJSON)
	client.SetHeader("User-Agent", s.userAgent)

	return &Client{http: client, timeout: s.timeout, defaultRetryAfter: s.retryAfter}
}

type binding struct {
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]binding `json:"bindings"`
	} `json:"results"`
}

// Execute runs query and returns its result rows. Failures are typed:
// *model.RateLimitedError for 429, model.ErrTimeout on deadline, and
// *model.UpstreamError for transport failures and other non-2xx statuses.
func (c *Client) Execute(ctx context.Context, query string) ([]model.Row, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":  query,
			"format": "json",
		}).
		Get("")
	if err != nil {
		return nil, classify(ctx, err)
	}

	switch status := res.StatusCode(); {
	case status == http.StatusTooManyRequests:
		return nil, &model.RateLimitedError{
			RetryAfter: parseRetryAfter(res.Header().Get("Retry-After"), time.Now(), c.defaultRetryAfter),
		}
	case status < 200 || status > 299:
		return nil, &model.UpstreamError{Status: status, Err: fmt.Errorf("unexpected status %s", res.Status())}
	}

	rows, err := ParseRows(res.Body())
	if err != nil {
		return nil, &model.UpstreamError{Status: res.StatusCode(), Err: err}
	}
	return rows, nil
}

// ParseRows decodes a SPARQL JSON result document. Bindings without an item
// or a label are dropped.
func ParseRows(body []byte) ([]model.Row, error) {
	var doc sparqlResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode sparql results: %w", err)
	}
	rows := make([]model.Row, 0, len(doc.Results.Bindings))
	for _, b := range doc.Results.Bindings {
		url := b["item"].Value
		label := b["itemLabel"].Value
		if label == "" {
			label = b["item_label"].Value
		}
		if url == "" || label == "" {
			continue
		}
		rows = append(rows, model.Row{URL: url, Label: label, Alias: b["alias"].Value})
	}
	return rows, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return ctx.Err()
	}
	return &model.UpstreamError{Status: 0, Err: err}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
