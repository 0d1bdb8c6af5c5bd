package gateway

import "errors"

var (
	// ErrQueueFull is returned when the dispatch queue is at capacity.
	ErrQueueFull = errors.New("gateway queue full")
	// ErrStopped is returned once the gateway has been stopped.
	ErrStopped = errors.New("gateway stopped")
)
