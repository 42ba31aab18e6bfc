// Package rank combines per-signal scores into the final ordered result.
package rank

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"

	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/internal/domain/signal"
)

// Weights maps signal names to non-negative blend weights. Weights need
// not sum to 1; aggregate scores are normalized by the total.
type Weights map[string]float64

// Validate rejects negative weights.
func (w Weights) Validate() error {
	for name, v := range w {
		if v < 0 {
			return fmt.Errorf("signal %q: %w", name, ErrNegativeWeight)
		}
	}
	return nil
}

// Hash returns a stable digest of the weight configuration, used as part
// of result-cache keys.
func (w Weights) Hash() uint64 {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	h := fnv.New64a()
	for _, name := range names {
		_, _ = h.Write([]byte(name))
		_, _ = h.Write([]byte("="))
		_, _ = h.Write([]byte(strconv.FormatFloat(w[name], 'g', -1, 64)))
		_, _ = h.Write([]byte(";"))
	}
	return h.Sum64()
}

// Candidate is one fully-scored opportunity awaiting ranking.
type Candidate struct {
	Opp     model.Opportunity
	Signals map[string]float64
}

// Request bundles one ranking invocation.
type Request struct {
	UserID     string
	Candidates []Candidate
	Weights    Weights

	// Limit caps the result length; non-positive means no cap.
	Limit int

	// MinScore drops entries scoring below the threshold.
	MinScore float64
}

// Aggregator blends signals with a weighted sum and applies tie-breaks
// and the diversity constraint.
type Aggregator struct {
	signalOrder  []string
	diversityCap int
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithDiversityCap limits how many results from one opportunity category
// may appear in the top-N. Zero disables the constraint.
func WithDiversityCap(cap int) Option {
	return func(a *Aggregator) {
		if cap >= 0 {
			a.diversityCap = cap
		}
	}
}

// New creates an Aggregator. signalOrder fixes the accumulation order so
// aggregate sums are bit-identical for identical inputs.
func New(signalOrder []string, opts ...Option) *Aggregator {
	a := &Aggregator{
		signalOrder: append([]string(nil), signalOrder...),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rank produces the ordered result for one request.
func (a *Aggregator) Rank(req Request) (model.RankedResult, error) {
	if err := req.Weights.Validate(); err != nil {
		return model.RankedResult{}, err
	}

	var totalWeight float64
	for _, name := range a.signalOrder {
		totalWeight += req.Weights[name]
	}

	scored := make([]model.RankedEntry, 0, len(req.Candidates))
	semantic := make(map[string]float64, len(req.Candidates))
	posted := make(map[string]int64, len(req.Candidates))
	category := make(map[string]string, len(req.Candidates))

	for _, c := range req.Candidates {
		var sum float64
		breakdown := make(map[string]float64, len(a.signalOrder))
		for _, name := range a.signalOrder {
			v := c.Signals[name]
			breakdown[name] = v
			sum += req.Weights[name] * v
		}
		score := 0.0
		if totalWeight > 0 {
			score = sum / totalWeight
		}
		if score < req.MinScore {
			continue
		}
		id := c.Opp.OpportunityID
		scored = append(scored, model.RankedEntry{
			OpportunityID: id,
			Score:         score,
			Breakdown:     breakdown,
		})
		semantic[id] = c.Signals[signal.NameSemantic]
		posted[id] = c.Opp.PostedAt.UnixNano()
		category[id] = c.Opp.Category
	}

	// Tie-break order: aggregate desc, semantic desc, most recent post
	// first, then opportunity id asc as the deterministic final word.
	sort.SliceStable(scored, func(i, j int) bool {
		x, y := scored[i], scored[j]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if semantic[x.OpportunityID] != semantic[y.OpportunityID] {
			return semantic[x.OpportunityID] > semantic[y.OpportunityID]
		}
		if posted[x.OpportunityID] != posted[y.OpportunityID] {
			return posted[x.OpportunityID] > posted[y.OpportunityID]
		}
		return x.OpportunityID < y.OpportunityID
	})

	entries := a.applyDiversity(scored, category, req.Limit)
	return model.RankedResult{UserID: req.UserID, Entries: entries}, nil
}

// applyDiversity enforces the per-category cap in a single pass, then
// backfills from the skipped remainder when diverse candidates run out.
func (a *Aggregator) applyDiversity(sorted []model.RankedEntry, category map[string]string, limit int) []model.RankedEntry {
	if limit <= 0 || limit > len(sorted) {
		limit = len(sorted)
	}
	if a.diversityCap <= 0 {
		return append([]model.RankedEntry(nil), sorted[:limit]...)
	}

	selected := make([]model.RankedEntry, 0, limit)
	var skipped []model.RankedEntry
	perCategory := map[string]int{}

	for _, e := range sorted {
		if len(selected) == limit {
			break
		}
		cat := category[e.OpportunityID]
		if perCategory[cat] >= a.diversityCap {
			skipped = append(skipped, e)
			continue
		}
		perCategory[cat]++
		selected = append(selected, e)
	}
	for _, e := range skipped {
		if len(selected) == limit {
			break
		}
		selected = append(selected, e)
	}
	return selected
}
