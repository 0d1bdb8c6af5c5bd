package queue

type settings struct {
	capacity   int
	bufferSize int
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*settings)

// WithCapacity sets the maximum number of pending items.
func WithCapacity(capacity int) Option {
	return func(s *settings) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the items channel. It is never
// smaller than the capacity.
func WithBufferSize(size int) Option {
	return func(s *settings) {
		if size > 0 {
			s.bufferSize = size
		}
	}
}
