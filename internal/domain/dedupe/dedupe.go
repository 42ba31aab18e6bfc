// Package dedupe suppresses duplicate re-embedding work. A stale vector
// may be flagged by many concurrent queries before a worker refreshes it;
// tracking (entity, version) keys keeps the job queue free of repeats.
package dedupe

import (
	"context"
	"strconv"
	"sync"
)

// Default tracker configuration constants.
const defaultMaxSize = 100_000

// Tracker records seen keys with bounded memory.
type Tracker interface {
	// SeenAndRecord atomically checks whether key was seen and records it
	// if not. Returns true when the key was already present.
	SeenAndRecord(ctx context.Context, key string) bool

	// Forget removes a key so the work can be retried, e.g. after a
	// failed re-embed.
	Forget(ctx context.Context, key string)

	// Size returns the number of tracked keys.
	Size() int
}

// Key builds the canonical tracker key for an entity at a version.
func Key(entityID string, version int) string {
	return entityID + "@" + strconv.Itoa(version)
}

// ringTracker implements Tracker with a map plus FIFO eviction ring.
type ringTracker struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	head    int
	maxSize int
}

// Option applies a configuration option to the tracker.
type Option func(*ringTracker)

// WithMaxSize bounds how many keys are retained before FIFO eviction.
func WithMaxSize(n int) Option {
	return func(t *ringTracker) {
		if n > 0 {
			t.maxSize = n
		}
	}
}

// NewTracker creates a bounded in-memory tracker.
func NewTracker(opts ...Option) Tracker {
	t := &ringTracker{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(t)
	}
	t.seen = make(map[string]struct{}, t.maxSize)
	t.order = make([]string, 0, t.maxSize)
	return t
}

func (t *ringTracker) SeenAndRecord(_ context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[key]; ok {
		return true
	}
	if len(t.order) < t.maxSize {
		t.order = append(t.order, key)
	} else {
		// Evict the oldest slot and reuse it.
		delete(t.seen, t.order[t.head])
		t.order[t.head] = key
		t.head = (t.head + 1) % t.maxSize
	}
	t.seen[key] = struct{}{}
	return false
}

func (t *ringTracker) Forget(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, key)
}

func (t *ringTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
