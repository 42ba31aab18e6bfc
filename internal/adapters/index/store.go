// Package index defines the nearest-neighbor store interface and errors.
package index

import (
	"context"
	"time"

	"github.com/loomery/matchd/internal/domain/model"
)

// Meta carries the filterable attributes stored next to a vector.
type Meta struct {
	Kind      model.EntityKind
	Category  string
	PostedAt  time.Time
	ExpiresAt time.Time
}

// Hit is one nearest-neighbor result. Distance is cosine distance
// (1 - cosine similarity), so identical vectors sit at 0.
type Hit struct {
	EntityID string
	Distance float64
}

// Filter restricts query results. A nil Filter admits everything.
type Filter func(id string, meta Meta) bool

// StaleHandler is invoked when a query encounters a vector produced by an
// older model version. The vector is excluded from results; the handler
// is expected to schedule re-embedding.
type StaleHandler func(id string, kind model.EntityKind)

// Store provides read/write access to entity vectors.
type Store interface {
	// Upsert inserts or replaces the vector for an entity without a full
	// index rebuild.
	Upsert(ctx context.Context, v model.EmbeddingVector, meta Meta) error

	// Query returns the k nearest entities to vec among vectors of the
	// given model version, ordered by ascending distance. Stale-version
	// vectors are skipped and flagged for lazy re-embedding.
	Query(ctx context.Context, vec []float64, k, modelVersion int, filter Filter) ([]Hit, error)

	// Remove drops an entity's vector from the index.
	Remove(ctx context.Context, id string) error

	// Count returns the number of indexed vectors.
	Count(ctx context.Context) int
}
