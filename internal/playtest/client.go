// Package playtest drives a running enigma server over HTTP. It holds the
// API client used by enigmactl and a concurrent harness that plays many
// sessions at once and checks the server's session state afterwards.
package playtest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/internal/domain/types"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status     int
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("enigma api: status %d", e.Status)
	}
	return fmt.Sprintf("enigma api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the enigma HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// NewClientWithHTTP wraps an existing http.Client, e.g. one from httptest.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	c := resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Health checks GET /healthz. Any 200 reply is healthy.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return &APIError{Status: res.StatusCode()}
	}
	return nil
}

// Categories lists every category.
func (c *Client) Categories(ctx context.Context) ([]types.Category, error) {
	var out struct {
		Categories []types.Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// Entries lists a category's entries with their aliases.
func (c *Client) Entries(ctx context.Context, slug string) ([]types.Entry, error) {
	var out struct {
		Entries []types.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/categories/"+slug+"/entries", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Refresh re-runs the category's listing query on the server.
func (c *Client) Refresh(ctx context.Context, slug string) (types.RefreshResult, error) {
	var out types.RefreshResult
	err := c.do(ctx, http.MethodPost, "/api/categories/refresh", map[string]string{"slug": slug}, &out)
	return out, err
}

// Tally reports entries found in a finished game.
func (c *Client) Tally(ctx context.Context, slug string, items []types.TallyItem) (types.TallyResult, error) {
	if items == nil {
		items = []types.TallyItem{}
	}
	body := struct {
		Slug    string            `json:"slug"`
		Entries []types.TallyItem `json:"entries"`
	}{Slug: slug, Entries: items}
	var out types.TallyResult
	err := c.do(ctx, http.MethodPost, "/api/entries/tally", body, &out)
	return out, err
}

// Query runs a raw query through the server's gateway.
func (c *Client) Query(ctx context.Context, query string) ([]model.Row, error) {
	var out struct {
		Rows []model.Row `json:"rows"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/query", map[string]string{"query": query}, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

// Daily returns today's daily slug.
func (c *Client) Daily(ctx context.Context) (string, error) {
	var out struct {
		Slug string `json:"slug"`
	}
	err := c.do(ctx, http.MethodGet, "/api/daily", nil, &out)
	return out.Slug, err
}

// SelectDaily triggers the scheduled daily selection with the cron secret.
func (c *Client) SelectDaily(ctx context.Context, secret string) (string, error) {
	var out struct {
		Success bool   `json:"success"`
		Slug    string `json:"slug"`
	}
	req := c.http.R().SetContext(ctx).SetAuthToken(secret)
	if err := send(req, http.MethodGet, "/api/tasks/select-daily-category", nil, &out); err != nil {
		return "", err
	}
	return out.Slug, nil
}

// StartSession starts a game on slug.
func (c *Client) StartSession(ctx context.Context, slug string) (types.SessionStart, error) {
	var out types.SessionStart
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"slug": slug}, &out)
	return out, err
}

// Guess submits one guess to a session.
func (c *Client) Guess(ctx context.Context, sessionID, guess string) (types.GuessResult, error) {
	var out types.GuessResult
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/guesses", map[string]string{"guess": guess}, &out)
	return out, err
}

// Session returns a session snapshot.
func (c *Client) Session(ctx context.Context, sessionID string) (types.Session, error) {
	var out types.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return send(c.http.R().SetContext(ctx), method, path, body, out)
}

func send(req *resty.Request, method, path string, body, out any) error {
	apiErr := &APIError{}
	req.SetResult(out).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.IsError() {
		apiErr.Status = res.StatusCode()
		if s, convErr := strconv.Atoi(res.Header().Get("Retry-After")); convErr == nil {
			apiErr.RetryAfter = time.Duration(s) * time.Second
		}
		return apiErr
	}
	return nil
}
