// Package storage abstracts the platform's durable store. The engine only
// assumes a key-value/document contract with optimistic-concurrency writes
// and a change feed per entity kind; the backing technology is the
// platform's business.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loomery/matchd/internal/domain/model"
)

// Record is one stored document with its version stamp. Versions within a
// kind are drawn from a monotonic sequence, so they double as a change
// cursor for incremental re-indexing.
type Record struct {
	ID      string
	Value   any
	Version int64
}

// Store is the persistence contract the engine depends on.
type Store interface {
	// Get fetches a record. Returns ErrNotFound for unknown ids.
	Get(ctx context.Context, kind model.EntityKind, id string) (Record, error)

	// Put writes value if the stored version still equals expectedVersion
	// (0 for create). Returns the new version, or ErrVersionMismatch.
	Put(ctx context.Context, kind model.EntityKind, id string, value any, expectedVersion int64) (int64, error)

	// QueryByVersion returns records of kind changed after sinceVersion,
	// ordered by version ascending.
	QueryByVersion(ctx context.Context, kind model.EntityKind, sinceVersion int64) ([]Record, error)
}

// MemStore implements Store in memory. It is the reference implementation
// used by tests and single-process deployments.
type MemStore struct {
	mu    sync.RWMutex
	kinds map[model.EntityKind]*kindBucket
}

type kindBucket struct {
	records map[string]Record
	seq     int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{kinds: map[model.EntityKind]*kindBucket{}}
}

// Get fetches a record.
func (s *MemStore) Get(ctx context.Context, kind model.EntityKind, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.kinds[kind]
	if !ok {
		return Record{}, fmt.Errorf("%s/%s: %w", kind, id, ErrNotFound)
	}
	rec, ok := b.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%s/%s: %w", kind, id, ErrNotFound)
	}
	return rec, nil
}

// Put performs an optimistic-concurrency write.
func (s *MemStore) Put(ctx context.Context, kind model.EntityKind, id string, value any, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.kinds[kind]
	if !ok {
		b = &kindBucket{records: map[string]Record{}}
		s.kinds[kind] = b
	}

	var current int64
	if rec, ok := b.records[id]; ok {
		current = rec.Version
	}
	if current != expectedVersion {
		return 0, fmt.Errorf("%s/%s: have %d, expected %d: %w",
			kind, id, current, expectedVersion, ErrVersionMismatch)
	}

	b.seq++
	b.records[id] = Record{ID: id, Value: value, Version: b.seq}
	return b.seq, nil
}

// QueryByVersion returns the change feed after sinceVersion.
func (s *MemStore) QueryByVersion(ctx context.Context, kind model.EntityKind, sinceVersion int64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.kinds[kind]
	if !ok {
		return nil, nil
	}
	var out []Record
	for _, rec := range b.records {
		if rec.Version > sinceVersion {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
