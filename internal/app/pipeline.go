package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loomery/matchd/internal/adapters/index"
	"github.com/loomery/matchd/internal/adapters/storage"
	"github.com/loomery/matchd/internal/domain/embedding"
	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/internal/domain/rank"
	"github.com/loomery/matchd/internal/domain/signal"
	"github.com/loomery/matchd/pkg/logger"
	"github.com/loomery/matchd/pkg/metrics"
)

// MatchRequest is one ranking invocation from the API.
type MatchRequest struct {
	UserID string

	// Limit caps the result count; zero applies the configured default.
	Limit int

	// Weights overrides the configured signal blend when non-empty.
	Weights map[string]float64

	// MinScore overrides the configured threshold when set.
	MinScore *float64

	// Category restricts candidates to one opportunity category.
	Category string
}

// Match runs the pipeline for one user: resolve the profile, fetch
// nearest-neighbor candidates, extract signals concurrently, then
// aggregate into the ranked result. Results are cached under
// version-stamped keys so entity writes invalidate them implicitly.
func (s *Service) Match(ctx context.Context, req MatchRequest) (model.RankedResult, error) {
	if !s.isStarted() {
		return model.RankedResult{}, ErrNotStarted
	}
	start := s.clock()

	result, err := s.match(ctx, req)
	elapsed := s.clock().Sub(start)
	metrics.RecordMatchLatency(float64(elapsed.Milliseconds()))
	switch {
	case err == nil:
		metrics.RecordMatchRequest("ok")
	case errors.Is(err, ErrUnresolvedEntity), errors.Is(err, ErrInvalidRequest):
		metrics.RecordMatchRequest("rejected")
	default:
		metrics.RecordMatchRequest("error")
	}
	return result, err
}

func (s *Service) match(ctx context.Context, req MatchRequest) (model.RankedResult, error) {
	if req.UserID == "" {
		return model.RankedResult{}, fmt.Errorf("%w: user id is empty", ErrInvalidRequest)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	minScore := s.defaultMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	weights := s.signalWeights
	if len(req.Weights) > 0 {
		weights = rank.Weights(req.Weights)
	}
	if err := weights.Validate(); err != nil {
		return model.RankedResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	// Stage 1: resolve the user snapshot.
	profile, userVec, err := s.resolveUser(ctx, req.UserID)
	if err != nil {
		return model.RankedResult{}, err
	}

	key := cacheKey(req.UserID, profile.Version, s.oppEpoch.Load(), weights.Hash(), limit, minScore) + "|c" + req.Category
	if cached, ok := s.cache.get(key); ok {
		metrics.RecordCacheHit()
		return cached, nil
	}
	metrics.RecordCacheMiss()

	// Stage 2: nearest-neighbor candidate set.
	hits, err := s.fetchCandidates(ctx, userVec.Vector, req.Category)
	if err != nil {
		return model.RankedResult{}, err
	}

	// Stage 3: signal extraction, fanned out across candidates.
	candidates, err := s.extractSignals(ctx, profile, userVec.Vector, hits)
	if err != nil {
		return model.RankedResult{}, err
	}

	// Cancellation is honored up to aggregation; past this point the
	// result is cheap to finish and worth caching.
	if err := ctx.Err(); err != nil {
		return model.RankedResult{}, err
	}

	// Stage 4: aggregate and rank.
	result, err := s.ranker.Rank(rank.Request{
		UserID:     req.UserID,
		Candidates: candidates,
		Weights:    weights,
		Limit:      limit,
		MinScore:   minScore,
	})
	if err != nil {
		return model.RankedResult{}, err
	}

	s.cache.put(key, result)
	s.logger.Debug(ctx, "match completed",
		logger.String("userID", req.UserID),
		logger.Int("candidates", len(candidates)),
		logger.Int("results", len(result.Entries)),
	)
	return result, nil
}

func (s *Service) resolveUser(ctx context.Context, userID string) (model.UserProfile, model.EmbeddingVector, error) {
	rec, err := s.store.Get(ctx, model.KindUser, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.UserProfile{}, model.EmbeddingVector{}, fmt.Errorf("%w: user %q", ErrUnresolvedEntity, userID)
		}
		return model.UserProfile{}, model.EmbeddingVector{}, err
	}
	profile, ok := rec.Value.(model.UserProfile)
	if !ok {
		return model.UserProfile{}, model.EmbeddingVector{}, fmt.Errorf("%w: record %q is not a user", ErrInvalidRequest, userID)
	}
	profile.Version = rec.Version

	vec, ok := s.vector(userID)
	if !ok || vec.ModelVersion != int(s.modelVersion.Load()) {
		// Embed inline rather than waiting on the queue; the user's own
		// vector gates the whole request.
		vec = s.embedder.Embed(embedding.Input{
			EntityID: profile.UserID,
			Kind:     model.KindUser,
			Skills:   profile.Skills,
			Text:     joinTerms(profile.Interests),
		}, int(s.modelVersion.Load()))
		s.vectors.Store(profile.UserID, vec)
		if err := s.index.Upsert(ctx, vec, index.Meta{Kind: model.KindUser}); err != nil {
			return model.UserProfile{}, model.EmbeddingVector{}, err
		}
	}
	return profile, vec, nil
}

// fetchCandidates queries the index, retrying with backoff while the
// index reports itself unavailable. Expired opportunities and non-
// opportunity vectors never enter the candidate set.
func (s *Service) fetchCandidates(ctx context.Context, userVec []float64, category string) ([]index.Hit, error) {
	now := s.clock()
	filter := func(id string, meta index.Meta) bool {
		if meta.Kind != model.KindOpportunity {
			return false
		}
		if category != "" && meta.Category != category {
			return false
		}
		return meta.ExpiresAt.IsZero() || meta.ExpiresAt.After(now)
	}

	modelVersion := int(s.modelVersion.Load())
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.RecordIndexRetry()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryBackoff << (attempt - 1)):
			}
		}
		hits, err := s.index.Query(ctx, userVec, s.candidateK, modelVersion, filter)
		if err == nil {
			return hits, nil
		}
		if !errors.Is(err, index.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) extractSignals(ctx context.Context, profile model.UserProfile, userVec []float64, hits []index.Hit) ([]rank.Candidate, error) {
	candidates := make([]rank.Candidate, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			opp, ok := s.Opportunity(hit.EntityID)
			if !ok {
				// Indexed but deleted from storage; skip silently.
				return nil
			}
			oppVec, _ := s.vector(hit.EntityID)
			pair := signal.Pair{
				User:       profile,
				UserVector: userVec,
				Opp:        opp,
				OppVector:  oppVec.Vector,
			}

			scores := make(map[string]float64, len(s.signals.All()))
			for _, ex := range s.signals.All() {
				started := time.Now()
				scores[ex.Name()] = ex.Score(gctx, pair)
				metrics.RecordSignalLatency(ex.Name(), float64(time.Since(started).Microseconds())/1000)
			}
			candidates[i] = rank.Candidate{Opp: opp, Signals: scores}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Compact out slots skipped for missing storage records.
	out := candidates[:0]
	for _, c := range candidates {
		if c.Opp.OpportunityID != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) vector(id string) (model.EmbeddingVector, bool) {
	v, ok := s.vectors.Load(id)
	if !ok {
		return model.EmbeddingVector{}, false
	}
	vec, ok := v.(model.EmbeddingVector)
	return vec, ok
}
