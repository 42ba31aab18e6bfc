package signal

import (
	"context"
	"math"
)

// Default partial credit granted when the user holds an ancestor category
// of a required skill rather than the skill itself.
const defaultPartialCredit = 0.5

// SkillOverlap scores weighted overlap between a user's skill set and an
// opportunity's required skills, with partial credit through the KB
// category hierarchy.
type SkillOverlap struct {
	ancestors     AncestorLookup
	partialCredit float64
}

// OverlapOption applies a configuration option to SkillOverlap.
type OverlapOption func(*SkillOverlap)

// WithPartialCredit sets the credit fraction for ancestor-category matches.
func WithPartialCredit(f float64) OverlapOption {
	return func(s *SkillOverlap) {
		if f >= 0 && f <= 1 {
			s.partialCredit = f
		}
	}
}

// NewSkillOverlap creates the overlap extractor backed by the KB hierarchy.
func NewSkillOverlap(ancestors AncestorLookup, opts ...OverlapOption) *SkillOverlap {
	s := &SkillOverlap{
		ancestors:     ancestors,
		partialCredit: defaultPartialCredit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Extractor.
func (s *SkillOverlap) Name() string { return NameSkillOverlap }

// Score implements Extractor. Each required skill earns credit scaled by
// the user's proficiency: full credit for holding the skill, the partial
// fraction for holding one of its ancestor categories, zero otherwise.
// The result is the requirement-weighted mean of those credits.
func (s *SkillOverlap) Score(_ context.Context, p Pair) float64 {
	if len(p.Opp.Required) == 0 || len(p.User.Skills) == 0 {
		return 0
	}

	var earned, total float64
	for req, reqWeight := range p.Opp.Required {
		if reqWeight <= 0 {
			continue
		}
		total += reqWeight
		earned += reqWeight * s.credit(req, p.User.Skills)
	}
	if total == 0 {
		return 0
	}
	return clamp01(earned / total)
}

// credit computes the user's credit toward one required skill.
func (s *SkillOverlap) credit(required string, held map[string]float64) float64 {
	if w, ok := held[required]; ok {
		return math.Min(1, w)
	}
	chain, err := s.ancestors.Ancestors(required)
	if err != nil {
		return 0
	}
	// Walk ancestors leaf-to-root, excluding the skill itself; the
	// nearest held category wins.
	for i := len(chain) - 2; i >= 0; i-- {
		if w, ok := held[chain[i]]; ok {
			return s.partialCredit * math.Min(1, w)
		}
	}
	return 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
