// Package queue provides the bounded in-memory FIFO that feeds the
// knowledge graph dispatcher.
package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultBufferSize    = 1024
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item to the queue.
	// Returns false if the queue is full or closed and the item was not enqueued.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns a channel that will receive items in FIFO order.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the number of items enqueued but not yet handed to a consumer.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items      chan T
	capacity   int
	bufferSize int
	pending    atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := &settings{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	q := &InMemoryQueue[T]{
		capacity:   s.capacity,
		bufferSize: max(s.bufferSize, s.capacity),
	}
	q.items = make(chan T, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds an item to the queue without blocking.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if int(q.pending.Load()) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	select {
	case q.items <- item:
		metrics.RecordQueueEnqueue()
		q.observe(q.pending.Add(1))
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive items as they become available.
// An item counts as pending until the consumer has received it.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for item := range q.items {
			select {
			case out <- item:
				metrics.RecordQueueDequeue()
				q.observe(q.pending.Add(-1))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of pending items. A hand-off is counted
// down just after the consumer receives it, so Len may briefly lag.
func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	size := q.pending.Load()
	q.observe(size)
	return int(size)
}

// Close gracefully shuts down the queue. Items already enqueued are still
// delivered to an active consumer.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue[T]) observe(size int64) {
	metrics.UpdateQueueSize(int(size))
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
