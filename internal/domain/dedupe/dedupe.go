// Package dedupe tracks keys that were already handled.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a later attempt is treated as new.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper keeps keys in a map and evicts the oldest key first once full.
// With maxSize <= 0 it never evicts.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // key -> insertion sequence
	order   []entry           // FIFO, may hold stale entries
	seq     uint64
	maxSize int
}

type entry struct {
	key string
	seq uint64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 {
		for len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
	}
	d.seq++
	d.seen[key] = d.seq
	if d.maxSize > 0 {
		d.order = append(d.order, entry{key: key, seq: d.seq})
	}
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// The FIFO entry goes stale and is skipped on eviction.
	delete(d.seen, key)
	if d.maxSize > 0 && len(d.order) > 2*d.maxSize {
		d.compact()
	}
}

// evictOldest drops the oldest live key. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	for len(d.order) > 0 {
		head := d.order[0]
		d.order = d.order[1:]
		if seq, ok := d.seen[head.key]; ok && seq == head.seq {
			delete(d.seen, head.key)
			return
		}
	}
}

// compact removes stale FIFO entries. Must be called with d.mu held.
func (d *inMemoryDeduper) compact() {
	live := make([]entry, 0, len(d.seen))
	for _, e := range d.order {
		if seq, ok := d.seen[e.key]; ok && seq == e.seq {
			live = append(live, e)
		}
	}
	d.order = live
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
