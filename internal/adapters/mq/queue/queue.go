// Package queue defines the contract for enqueuing and consuming
// re-embedding jobs.
//
// Stale vectors are flagged during queries and after model-version bumps;
// jobs flow through this bounded in-memory queue to the embedding workers
// so the matching path never re-embeds inline.
package queue

import (
	"context"
	"sync"

	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/pkg/metrics"
)

// Default queue configuration constants.
const defaultCapacity = 10_000

// Job names one entity whose vector must be rebuilt under the target
// model version.
type Job struct {
	EntityID     string
	Kind         model.EntityKind
	ModelVersion int
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. Returns false when the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel receiving jobs as they become available.
	// The channel closes when the queue closes.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close shuts the queue down; no further jobs can be enqueued.
	Close() error
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	jobs   chan Job
	mu     sync.RWMutex
	closed bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*int)

// WithCapacity bounds the queue.
func WithCapacity(n int) Option {
	return func(capacity *int) {
		if n > 0 {
			*capacity = n
		}
	}
}

// NewInMemoryQueue creates a bounded in-memory job queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	capacity := defaultCapacity
	for _, opt := range opts {
		opt(&capacity)
	}
	q := &InMemoryQueue{jobs: make(chan Job, capacity)}
	metrics.UpdateReembedQueueSize(0)
	return q
}

// Enqueue adds a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- j:
		metrics.UpdateReembedQueueSize(len(q.jobs))
		return true
	default:
		metrics.RecordReembedDropped()
		return false
	}
}

// Dequeue exposes the job channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Len returns the number of buffered jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.jobs)
}

// Close shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.closed = true
	close(q.jobs)
	return nil
}
