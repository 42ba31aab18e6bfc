// Package signal defines the relevance-signal contract and registry.
//
// Each extractor is a pure function of an immutable user/opportunity
// snapshot and returns a value in [0,1]. Extractors are total: missing
// evidence yields exactly 0, never an error, which keeps aggregation
// well-defined. The registry iterates in fixed name order so downstream
// float accumulation is deterministic.
package signal

import (
	"context"
	"sort"

	"github.com/loomery/matchd/internal/domain/model"
)

// Canonical signal names.
const (
	NameSemantic     = "semantic"
	NameSkillOverlap = "skill_overlap"
	NameBehavioral   = "behavioral"
)

// Pair is the immutable snapshot an extractor scores. Vectors are the
// entities' current embeddings; either may be the zero vector.
type Pair struct {
	User       model.UserProfile
	UserVector []float64
	Opp        model.Opportunity
	OppVector  []float64
}

// Extractor produces one normalized relevance signal for a pair.
type Extractor interface {
	// Name identifies the signal in weight configs and breakdowns.
	Name() string

	// Score returns a value in [0,1]; 0 when no evidence exists.
	Score(ctx context.Context, p Pair) float64
}

// AncestorLookup exposes the KB category chain for partial-credit scoring.
type AncestorLookup interface {
	Ancestors(skillID string) ([]string, error)
}

// OpportunityLookup resolves opportunities referenced by a user's
// interaction history.
type OpportunityLookup interface {
	Opportunity(id string) (model.Opportunity, bool)
}

// Registry holds extractors in deterministic name order.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds a registry from the given extractors, sorted by name.
func NewRegistry(extractors ...Extractor) *Registry {
	sorted := append([]Extractor(nil), extractors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	return &Registry{extractors: sorted}
}

// All returns the extractors in name order.
func (r *Registry) All() []Extractor {
	return r.extractors
}

// Names returns the registered signal names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}
