// Package kb maintains the controlled skill vocabulary: canonical skills,
// their synonym table, and the category forest used for partial-credit
// overlap scoring.
//
// Reads are served from an immutable snapshot that is swapped atomically
// after each write, so the matching path never blocks on KB maintenance.
// Writes are serialized per term via striped locks rather than one global
// lock.
package kb

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/pkg/metrics"
)

// Default normalizer configuration constants.
const (
	defaultMaxEditDistance  = 2
	defaultOverlapThreshold = 0.6
	defaultStripeCount      = 64
	minFuzzyLen             = 4
)

// snapshot is the immutable read view of the vocabulary.
type snapshot struct {
	skills   map[string]model.CanonicalSkill
	synonyms map[string]string // normalized term -> canonical id
}

// Normalizer canonicalizes raw skill text into canonical skill ids.
type Normalizer struct {
	mu      sync.Mutex // serializes structural writes and snapshot swaps
	stripes []sync.Mutex
	snap    atomic.Pointer[snapshot]

	maxEditDistance  int
	overlapThreshold float64
	keepUnresolved   bool
}

// NewNormalizer creates an empty vocabulary with configuration options.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		maxEditDistance:  defaultMaxEditDistance,
		overlapThreshold: defaultOverlapThreshold,
		keepUnresolved:   true,
		stripes:          make([]sync.Mutex, defaultStripeCount),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.snap.Store(&snapshot{
		skills:   map[string]model.CanonicalSkill{},
		synonyms: map[string]string{},
	})
	return n
}

// AddSkill registers a new canonical skill and returns its id. The display
// name is installed as the first synonym. parentID may be empty for roots;
// an unknown parent is rejected.
func (n *Normalizer) AddSkill(ctx context.Context, display, parentID string) (string, error) {
	display = strings.TrimSpace(display)
	if display == "" {
		return "", ErrEmptyTerm
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	cur := n.snap.Load()
	if parentID != "" {
		if _, ok := cur.skills[parentID]; !ok {
			return "", fmt.Errorf("parent %q: %w", parentID, ErrUnknownSkill)
		}
	}

	term := normalizeTerm(display)
	if owner, ok := cur.synonyms[term]; ok {
		// Same display name registered twice resolves to the existing skill.
		return owner, nil
	}

	id := uuid.NewString()
	skill := model.CanonicalSkill{
		ID:          id,
		DisplayName: display,
		Synonyms:    []string{term},
		ParentID:    parentID,
	}

	next := cur.clone()
	next.skills[id] = skill
	next.synonyms[term] = id
	if err := checkForest(next.skills); err != nil {
		return "", err
	}
	n.snap.Store(next)
	metrics.UpdateSkillCount(len(next.skills))
	return id, nil
}

// AddSynonym maps term to canonicalID. The operation is idempotent; a term
// already owned by a different canonical id is rejected with
// ErrSynonymConflict rather than silently remapped.
func (n *Normalizer) AddSynonym(ctx context.Context, term, canonicalID string) error {
	norm := normalizeTerm(term)
	if norm == "" {
		return ErrEmptyTerm
	}

	stripe := &n.stripes[stripeFor(norm, len(n.stripes))]
	stripe.Lock()
	defer stripe.Unlock()

	cur := n.snap.Load()
	if owner, ok := cur.synonyms[norm]; ok {
		if owner == canonicalID {
			return nil // idempotent
		}
		metrics.RecordSynonymConflict()
		return fmt.Errorf("%q already maps to %q: %w", norm, owner, ErrSynonymConflict)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// Re-check under the structural lock; another stripe cannot have
	// added this term but the skill set may have changed.
	cur = n.snap.Load()
	skill, ok := cur.skills[canonicalID]
	if !ok {
		return fmt.Errorf("canonical id %q: %w", canonicalID, ErrUnknownSkill)
	}
	if owner, ok := cur.synonyms[norm]; ok {
		if owner == canonicalID {
			return nil
		}
		metrics.RecordSynonymConflict()
		return fmt.Errorf("%q already maps to %q: %w", norm, owner, ErrSynonymConflict)
	}

	next := cur.clone()
	skill.Synonyms = append(append([]string(nil), skill.Synonyms...), norm)
	next.skills[canonicalID] = skill
	next.synonyms[norm] = canonicalID
	n.snap.Store(next)
	return nil
}

// Skill returns the canonical skill for id.
func (n *Normalizer) Skill(id string) (model.CanonicalSkill, error) {
	s, ok := n.snap.Load().skills[id]
	if !ok {
		return model.CanonicalSkill{}, ErrUnknownSkill
	}
	return s, nil
}

// Count returns the number of canonical skills in the vocabulary.
func (n *Normalizer) Count() int {
	return len(n.snap.Load().skills)
}

// Ancestors returns the category chain for skillID ordered root first and
// ending with skillID itself.
func (n *Normalizer) Ancestors(skillID string) ([]string, error) {
	snap := n.snap.Load()
	if _, ok := snap.skills[skillID]; !ok {
		return nil, ErrUnknownSkill
	}
	var chain []string
	for id := skillID; id != ""; {
		chain = append(chain, id)
		s, ok := snap.skills[id]
		if !ok {
			break
		}
		id = s.ParentID
	}
	// Reverse to root-to-leaf order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Canonicalize resolves raw free text into a set of canonical skill ids.
// Tokens that fail exact lookup fall back to fuzzy matching; tokens that
// resolve to nothing are returned on the unresolved side-channel when the
// normalizer is configured to keep them.
func (n *Normalizer) Canonicalize(ctx context.Context, raw string) ([]string, []string) {
	snap := n.snap.Load()

	seen := map[string]struct{}{}
	var unresolved []string

	for _, term := range candidateTerms(raw) {
		if id, ok := snap.lookup(term, n.maxEditDistance, n.overlapThreshold); ok {
			seen[id] = struct{}{}
			continue
		}
		if n.keepUnresolved {
			unresolved = append(unresolved, term)
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, unresolved
}

// lookup resolves one normalized term: exact first, then bounded edit
// distance, then token overlap for multi-word synonyms.
func (s *snapshot) lookup(term string, maxDist int, overlap float64) (string, bool) {
	if id, ok := s.synonyms[term]; ok {
		return id, true
	}

	// Short tokens are too easy to mutate into an unrelated synonym.
	if len(term) < minFuzzyLen {
		return "", false
	}

	bestID, bestSyn := "", ""
	bestDist := maxDist + 1
	for syn, id := range s.synonyms {
		d := levenshtein.ComputeDistance(term, syn)
		// Lexical tie-break keeps matches deterministic across map order.
		if d < bestDist || (d == bestDist && bestID != "" && syn < bestSyn) {
			bestDist, bestID, bestSyn = d, id, syn
		}
	}
	if bestDist <= maxDist && bestID != "" {
		return bestID, true
	}

	termTokens := strings.Fields(term)
	if len(termTokens) < 2 {
		return "", false
	}
	for syn, id := range s.synonyms {
		if tokenOverlap(termTokens, strings.Fields(syn)) >= overlap {
			return id, true
		}
	}
	return "", false
}

// tokenOverlap is the Jaccard ratio of two token sets.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := map[string]struct{}{}
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	for _, t := range b {
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// candidateTerms splits raw text into normalized lookup candidates: the
// whole phrase, each token, and adjacent bigrams.
func candidateTerms(raw string) []string {
	whole := normalizeTerm(raw)
	if whole == "" {
		return nil
	}
	tokens := strings.Fields(whole)
	if len(tokens) <= 1 {
		return tokens
	}
	terms := make([]string, 0, len(tokens)*2)
	terms = append(terms, whole)
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, tokens[i]+" "+tokens[i+1])
	}
	return terms
}

// normalizeTerm lowercases and collapses non-alphanumeric runs to single
// spaces so lookups are tokenization-agnostic.
func normalizeTerm(raw string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '#':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// clone copies the snapshot maps for copy-on-write updates.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		skills:   make(map[string]model.CanonicalSkill, len(s.skills)+1),
		synonyms: make(map[string]string, len(s.synonyms)+1),
	}
	for k, v := range s.skills {
		next.skills[k] = v
	}
	for k, v := range s.synonyms {
		next.synonyms[k] = v
	}
	return next
}

// checkForest verifies that parent references contain no cycle.
func checkForest(skills map[string]model.CanonicalSkill) error {
	for id := range skills {
		slow, ok := skills[id]
		if !ok {
			continue
		}
		seen := map[string]struct{}{id: {}}
		for cur := slow.ParentID; cur != ""; {
			if _, dup := seen[cur]; dup {
				return ErrCycle
			}
			seen[cur] = struct{}{}
			next, ok := skills[cur]
			if !ok {
				break
			}
			cur = next.ParentID
		}
	}
	return nil
}

// stripeFor maps a term to a lock stripe. The modulo happens in uint32
// space so the index stays in range on 32-bit platforms, where a large
// Sum32 converted to int is negative.
func stripeFor(term string, stripes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum32() % uint32(stripes))
}
