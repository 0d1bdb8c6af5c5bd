package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds shared by the gateway, the resolution core and the storage adapters.
var (
	ErrTimeout      = errors.New("knowledge graph query timed out")
	ErrRateLimited  = errors.New("knowledge graph rate limited")
	ErrUpstream     = errors.New("knowledge graph upstream failure")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")
	ErrNotFound     = errors.New("not found")
)

// RateLimitedError carries the upstream-declared backoff window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("knowledge graph rate limited, retry after %s", e.RetryAfter)
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// UpstreamError reports a transport failure (Status 0) or a non-2xx status.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("knowledge graph transport error: %v", e.Err)
	}
	return fmt.Sprintf("knowledge graph error %d", e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUpstream) match.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// RetryAfter extracts the backoff window from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
