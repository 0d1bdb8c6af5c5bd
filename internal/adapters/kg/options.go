package kg

import (
	"net/http"
	"time"
)

type settings struct {
	endpoint   string
	userAgent  string
	retryAfter time.Duration
	timeout    time.Duration
	httpClient *http.Client
}

// Option applies a configuration option to the Client.
type Option func(*settings)

// WithEndpoint sets the SPARQL endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithDefaultRetryAfter sets the backoff used when a 429 has no usable Retry-After.
func WithDefaultRetryAfter(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.retryAfter = d
		}
	}
}

// WithTimeout bounds requests whose context carries no deadline. A caller
// deadline always wins, longer or shorter.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}
