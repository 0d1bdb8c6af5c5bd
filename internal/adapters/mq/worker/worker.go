// Package worker runs a single consumer over a queue so that handled items
// never overlap.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

// Queue defines how workers receive items.
type Queue[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Handler processes a single item. Errors are logged and do not stop the loop.
type Handler[T any] func(ctx context.Context, item T) error

// Worker processes queued items one at a time.
type Worker[T any] struct {
	queue   Queue[T]
	handler Handler[T]
	name    string
	logger  logger.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
	started      sync.Once
}

// New creates a worker that feeds items from q to handler.
func New[T any](q Queue[T], handler Handler[T], opts ...Option) *Worker[T] {
	s := &settings{name: "worker"}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	return &Worker[T]{
		queue:    q,
		handler:  handler,
		name:     s.name,
		logger:   s.logger.Named(s.name),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the worker loop until ctx is canceled, Shutdown is called or
// the queue is closed and drained. Only the first call has any effect.
func (w *Worker[T]) Run(ctx context.Context) {
	first := false
	w.started.Do(func() { first = true })
	if !first {
		return
	}
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			if err := w.handler(ctx, item); err != nil {
				metrics.RecordErrorByComponent(w.name, "handler_error")
				w.logger.Error(ctx, "error handling item", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the loop and waits for the in-flight item to finish.
func (w *Worker[T]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	// Never started: nothing to wait for.
	notStarted := false
	w.started.Do(func() {
		notStarted = true
		close(w.done)
	})
	if notStarted {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once the loop has exited.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}
