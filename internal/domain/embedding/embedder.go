// Package embedding converts canonical entities into fixed-dimension
// vectors via feature hashing. Embedding is a pure function of entity
// content and model version: the same input always produces the same
// vector, which makes vectors cacheable and re-embedding reproducible.
package embedding

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"

	"github.com/loomery/matchd/internal/domain/model"
)

// Default embedder configuration constants.
const (
	defaultDimension  = 256
	defaultTextWeight = 0.5
)

// stopwords excluded from free-text features to avoid noisy matches.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true,
	"in": true, "on": true, "for": true, "with": true, "by": true,
	"and": true, "or": true, "as": true, "at": true, "from": true,
	"is": true, "are": true, "be": true, "this": true, "that": true,
}

// Input bundles the canonical content an entity exposes for embedding.
type Input struct {
	EntityID string
	Kind     model.EntityKind

	// Skills maps canonical skill ids to weights. For users this is
	// proficiency, for opportunities the required weight.
	Skills map[string]float64

	// Text is normalized free text (interests, description).
	Text string
}

// Embedder hashes entity features into a fixed-dimension vector.
type Embedder struct {
	dimension  int
	textWeight float64
}

// New creates an Embedder with configuration options.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		dimension:  defaultDimension,
		textWeight: defaultTextWeight,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the configured vector dimension.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed produces the entity's vector under modelVersion. Degenerate input
// (no skills, no usable text) yields the zero vector rather than an error
// so downstream scoring degrades gracefully.
func (e *Embedder) Embed(in Input, modelVersion int) model.EmbeddingVector {
	vec := make([]float64, e.dimension)

	for id, w := range in.Skills {
		if w <= 0 {
			continue
		}
		e.accumulate(vec, "skill:"+id, w, modelVersion)
	}
	for _, tok := range textTokens(in.Text) {
		e.accumulate(vec, "text:"+tok, e.textWeight, modelVersion)
	}

	normalize(vec)
	return model.EmbeddingVector{
		EntityID:     in.EntityID,
		Kind:         in.Kind,
		Vector:       vec,
		ModelVersion: modelVersion,
	}
}

// accumulate hashes one feature into the vector. The model version salts
// the hash so a version bump re-distributes every feature.
func (e *Embedder) accumulate(vec []float64, feature string, weight float64, modelVersion int) {
	h := fnv.New64a()
	_, _ = h.Write([]byte("v" + strconv.Itoa(modelVersion) + "|" + feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Cosine returns the cosine similarity of two vectors in [-1,1]. Vectors
// of mismatched length or zero magnitude compare as 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// IsZero reports whether the vector carries no information.
func IsZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

func textTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
