package signal

import (
	"context"
	"math"
	"time"

	"github.com/loomery/matchd/internal/domain/model"
)

// Default behavioral configuration constants.
const (
	defaultHalfLife      = 14 * 24 * time.Hour
	defaultHistoryWindow = 50
	defaultSaturation    = 3.0
)

// defaultActionWeights rank interaction strength: applying signals far
// more intent than viewing.
func defaultActionWeights() map[model.Action]float64 {
	return map[model.Action]float64{
		model.ActionApplied: 1.0,
		model.ActionSaved:   0.7,
		model.ActionViewed:  0.4,
	}
}

// Behavioral scores recency-decayed interaction affinity: history entries
// whose opportunities share skills or a category with the candidate
// contribute, weighted by action strength and exponential age decay.
type Behavioral struct {
	opportunities OpportunityLookup
	ancestors     AncestorLookup

	halfLife      time.Duration
	actionWeights map[model.Action]float64
	window        int
	saturation    float64
	partialCredit float64
	now           func() time.Time
}

// BehavioralOption applies a configuration option to Behavioral.
type BehavioralOption func(*Behavioral)

// WithHalfLife sets the recency decay half-life.
func WithHalfLife(d time.Duration) BehavioralOption {
	return func(b *Behavioral) {
		if d > 0 {
			b.halfLife = d
		}
	}
}

// WithActionWeights overrides the per-action weights.
func WithActionWeights(w map[model.Action]float64) BehavioralOption {
	return func(b *Behavioral) {
		if len(w) > 0 {
			b.actionWeights = w
		}
	}
}

// WithHistoryWindow bounds how many recent interactions are considered.
func WithHistoryWindow(n int) BehavioralOption {
	return func(b *Behavioral) {
		if n > 0 {
			b.window = n
		}
	}
}

// WithSaturation sets how much accumulated affinity maps to a full score.
func WithSaturation(s float64) BehavioralOption {
	return func(b *Behavioral) {
		if s > 0 {
			b.saturation = s
		}
	}
}

// WithClock injects the time source. Tests use this for determinism.
func WithClock(now func() time.Time) BehavioralOption {
	return func(b *Behavioral) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBehavioral creates the behavioral affinity extractor.
func NewBehavioral(opps OpportunityLookup, ancestors AncestorLookup, opts ...BehavioralOption) *Behavioral {
	b := &Behavioral{
		opportunities: opps,
		ancestors:     ancestors,
		halfLife:      defaultHalfLife,
		actionWeights: defaultActionWeights(),
		window:        defaultHistoryWindow,
		saturation:    defaultSaturation,
		partialCredit: defaultPartialCredit,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Extractor.
func (b *Behavioral) Name() string { return NameBehavioral }

// Score implements Extractor.
func (b *Behavioral) Score(_ context.Context, p Pair) float64 {
	history := p.User.History
	if len(history) == 0 {
		return 0
	}
	if len(history) > b.window {
		history = history[len(history)-b.window:]
	}

	now := b.now()
	var sum float64
	for _, it := range history {
		if it.OpportunityID == p.Opp.OpportunityID {
			// Interacting with the candidate itself is the strongest
			// evidence there is.
			sum += b.actionWeights[it.Action] * b.decay(now, it.At)
			continue
		}
		past, ok := b.opportunities.Opportunity(it.OpportunityID)
		if !ok {
			continue // missing data is absorbed as zero contribution
		}
		shared := b.affinity(past, p.Opp)
		if shared == 0 {
			continue
		}
		sum += b.actionWeights[it.Action] * b.decay(now, it.At) * shared
	}
	if sum == 0 {
		return 0
	}
	return clamp01(sum / b.saturation)
}

// decay is exponential in age with the configured half-life.
func (b *Behavioral) decay(now, at time.Time) float64 {
	age := now.Sub(at)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(b.halfLife))
}

// affinity measures how much a past opportunity resembles the candidate:
// the fraction of candidate requirements the past opportunity also
// required (with ancestor partial credit), floored at the partial-credit
// fraction when only the category matches.
func (b *Behavioral) affinity(past, candidate model.Opportunity) float64 {
	var matched, total float64
	for req := range candidate.Required {
		total++
		if _, ok := past.Required[req]; ok {
			matched++
			continue
		}
		if b.sharesAncestor(req, past.Required) {
			matched += b.partialCredit
		}
	}

	var skillPart float64
	if total > 0 {
		skillPart = matched / total
	}

	if past.Category != "" && past.Category == candidate.Category {
		skillPart = math.Max(skillPart, b.partialCredit)
	}
	return clamp01(skillPart)
}

// sharesAncestor reports whether any held skill is an ancestor category of
// the required skill.
func (b *Behavioral) sharesAncestor(required string, held map[string]float64) bool {
	chain, err := b.ancestors.Ancestors(required)
	if err != nil {
		return false
	}
	for i := len(chain) - 2; i >= 0; i-- {
		if _, ok := held[chain[i]]; ok {
			return true
		}
	}
	return false
}
