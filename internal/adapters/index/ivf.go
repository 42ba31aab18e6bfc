// Package index defines the nearest-neighbor store interface and errors.
package index

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/pkg/metrics"
)

// Inverted-file, in-memory Store implementation.
//
// Vectors are partitioned into cells around fixed pseudo-centroids drawn
// from a seeded source, so assignment is deterministic across restarts.
// Writes touch exactly one or two cells (old and new home of the entity),
// never the whole index; queries probe only the closest cells.

// Default IVF configuration constants.
const (
	defaultCellCount  = 32
	defaultProbeCount = 8
	defaultSeed       = 42
)

// entry is one indexed vector plus its filterable metadata.
type entry struct {
	id           string
	vec          []float64
	modelVersion int
	meta         Meta
}

// cell is one inverted-file partition with independent locking.
type cell struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// IVFStore implements Store with incremental insertion and update.
type IVFStore struct {
	cells     []*cell
	centroids [][]float64
	dimension int
	probes    int

	homes   sync.Map // entity id -> cell index
	count   atomic.Int64
	offline atomic.Bool

	staleHandler StaleHandler
}

// NewIVFStore creates an IVF index for vectors of the given dimension.
func NewIVFStore(dimension int, opts ...Option) *IVFStore {
	s := &IVFStore{
		dimension: dimension,
		probes:    defaultProbeCount,
	}
	nlist := defaultCellCount
	for _, opt := range opts {
		opt(s, &nlist)
	}
	if s.probes > nlist {
		s.probes = nlist
	}

	s.cells = make([]*cell, nlist)
	for i := range s.cells {
		s.cells[i] = &cell{entries: map[string]*entry{}}
	}
	s.centroids = makeCentroids(nlist, dimension)
	return s
}

// makeCentroids draws deterministic unit vectors for cell assignment.
func makeCentroids(n, dim int) [][]float64 {
	rng := rand.New(rand.NewSource(defaultSeed)) //nolint:gosec // deterministic layout, not cryptography
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, dim)
		var norm float64
		for j := range v {
			v[j] = rng.NormFloat64()
			norm += v[j] * v[j]
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		for j := range v {
			v[j] /= norm
		}
		out[i] = v
	}
	return out
}

// SetAvailable toggles the availability gate. While unavailable, reads and
// writes fail with ErrUnavailable so callers can retry with backoff.
func (s *IVFStore) SetAvailable(up bool) {
	s.offline.Store(!up)
}

// Upsert inserts or replaces an entity's vector.
func (s *IVFStore) Upsert(ctx context.Context, v model.EmbeddingVector, meta Meta) error {
	if s.offline.Load() {
		return ErrUnavailable
	}
	if len(v.Vector) != s.dimension {
		return ErrDimensionMismatch
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	home := s.assign(v.Vector)
	e := &entry{id: v.EntityID, vec: v.Vector, modelVersion: v.ModelVersion, meta: meta}

	if prev, ok := s.homes.Load(v.EntityID); ok {
		prevIdx := prev.(int)
		if prevIdx != home {
			c := s.cells[prevIdx]
			c.mu.Lock()
			delete(c.entries, v.EntityID)
			c.mu.Unlock()
		}
	} else {
		s.count.Add(1)
	}

	c := s.cells[home]
	c.mu.Lock()
	c.entries[v.EntityID] = e
	c.mu.Unlock()
	s.homes.Store(v.EntityID, home)

	metrics.UpdateIndexSize(int(s.count.Load()))
	return nil
}

// Remove drops an entity's vector.
func (s *IVFStore) Remove(ctx context.Context, id string) error {
	if s.offline.Load() {
		return ErrUnavailable
	}
	home, ok := s.homes.LoadAndDelete(id)
	if !ok {
		return ErrNotFound
	}
	c := s.cells[home.(int)]
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	s.count.Add(-1)
	metrics.UpdateIndexSize(int(s.count.Load()))
	return nil
}

// Count returns the number of indexed vectors.
func (s *IVFStore) Count(ctx context.Context) int {
	return int(s.count.Load())
}

// Query returns the k nearest entities to vec.
func (s *IVFStore) Query(ctx context.Context, vec []float64, k, modelVersion int, filter Filter) ([]Hit, error) {
	if s.offline.Load() {
		return nil, ErrUnavailable
	}
	if len(vec) != s.dimension {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		return nil, ErrInvalidLimit
	}
	start := time.Now()
	defer func() {
		metrics.RecordIndexQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	hits := make([]Hit, 0, k*2)
	for _, ci := range s.probeOrder(vec) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := s.cells[ci]
		c.mu.RLock()
		for _, e := range c.entries {
			if e.modelVersion != modelVersion {
				if s.staleHandler != nil {
					s.staleHandler(e.id, e.meta.Kind)
				}
				continue
			}
			if filter != nil && !filter(e.id, e.meta) {
				continue
			}
			hits = append(hits, Hit{EntityID: e.id, Distance: 1 - dot(vec, e.vec)})
		}
		c.mu.RUnlock()
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// assign picks the cell whose centroid is closest to vec. The zero vector
// lands in cell 0.
func (s *IVFStore) assign(vec []float64) int {
	best, bestSim := 0, math.Inf(-1)
	for i, c := range s.centroids {
		if sim := dot(vec, c); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best
}

// probeOrder ranks cells by centroid similarity and returns the top
// probe-count cell indices. The query's own cell always ranks first, so
// an exact-vector query finds its entity.
func (s *IVFStore) probeOrder(vec []float64) []int {
	type cellSim struct {
		idx int
		sim float64
	}
	sims := make([]cellSim, len(s.centroids))
	for i, c := range s.centroids {
		sims[i] = cellSim{idx: i, sim: dot(vec, c)}
	}
	sort.Slice(sims, func(i, j int) bool {
		if sims[i].sim != sims[j].sim {
			return sims[i].sim > sims[j].sim
		}
		return sims[i].idx < sims[j].idx
	})
	n := s.probes
	if n > len(sims) {
		n = len(sims)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = sims[i].idx
	}
	return out
}

// dot assumes both vectors are L2-normalized, so the product is cosine
// similarity.
func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
