package signal

import (
	"context"

	"github.com/loomery/matchd/internal/domain/embedding"
)

// Semantic scores cosine similarity between the user-profile embedding and
// the opportunity embedding, rescaled from [-1,1] to [0,1].
type Semantic struct{}

// NewSemantic creates the semantic similarity extractor.
func NewSemantic() *Semantic { return &Semantic{} }

// Name implements Extractor.
func (s *Semantic) Name() string { return NameSemantic }

// Score implements Extractor. A zero-information vector on either side
// means no evidence, which scores 0 rather than the 0.5 a literal rescale
// of cosine 0 would produce.
func (s *Semantic) Score(_ context.Context, p Pair) float64 {
	if embedding.IsZero(p.UserVector) || embedding.IsZero(p.OppVector) {
		return 0
	}
	return (embedding.Cosine(p.UserVector, p.OppVector) + 1) / 2
}
