// Package service wires the matching engine together: knowledge base,
// embedder, vector index, signal extractors, aggregator, and the
// re-embedding pipeline, behind the interface the HTTP API depends on.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loomery/matchd/internal/adapters/index"
	jobqueue "github.com/loomery/matchd/internal/adapters/mq/queue"
	workerpool "github.com/loomery/matchd/internal/adapters/mq/worker"
	"github.com/loomery/matchd/internal/adapters/storage"
	"github.com/loomery/matchd/internal/domain/dedupe"
	"github.com/loomery/matchd/internal/domain/embedding"
	"github.com/loomery/matchd/internal/domain/kb"
	"github.com/loomery/matchd/internal/domain/model"
	"github.com/loomery/matchd/internal/domain/rank"
	"github.com/loomery/matchd/internal/domain/signal"
	"github.com/loomery/matchd/pkg/logger"
	"github.com/loomery/matchd/pkg/metrics"
)

// expiringSoonWindow is the stats bucket for opportunities near expiry.
const expiringSoonWindow = 7 * 24 * time.Hour

// Service implements the matching engine operations for the HTTP API.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    storage.Store
	kb       *kb.Normalizer
	embedder *embedding.Embedder
	index    *index.IVFStore
	signals  *signal.Registry
	ranker   *rank.Aggregator
	queue    jobqueue.Queue
	pool     *workerpool.Pool
	tracker  dedupe.Tracker
	cache    *resultCache

	// vectors holds each entity's current embedding for signal scoring.
	// The index owns nearest-neighbor search; this is the point-lookup side.
	vectors sync.Map // entityID -> model.EmbeddingVector

	// modelVersion is the embedding model version new vectors are built
	// under. oppEpoch advances on every opportunity or weight-relevant
	// write and stamps result-cache keys.
	modelVersion atomic.Int64
	oppEpoch     atomic.Int64

	// Configuration
	dimension        int
	indexCells       int
	indexProbes      int
	candidateK       int
	defaultLimit     int
	maxLimit         int
	defaultMinScore  float64
	signalWeights    rank.Weights
	partialCredit    float64
	fuzzyMaxDistance int
	overlapThreshold float64
	keepUnresolved   bool
	halfLife         time.Duration
	historyWindow    int
	diversityCap     int
	cacheTTL         time.Duration
	cacheSize        int
	queueSize        int
	workerCount      int
	retryAttempts    int
	retryBackoff     time.Duration
	clock            func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDimension sets the embedding vector dimension.
func WithDimension(d int) Option {
	return func(s *Service) {
		if d > 0 {
			s.dimension = d
		}
	}
}

// WithModelVersion sets the embedding model version the service starts at.
func WithModelVersion(v int) Option {
	return func(s *Service) {
		if v > 0 {
			s.modelVersion.Store(int64(v))
		}
	}
}

// WithIndexShape sets the inverted-file cell and probe counts.
func WithIndexShape(cells, probes int) Option {
	return func(s *Service) {
		if cells > 0 && probes > 0 && probes <= cells {
			s.indexCells = cells
			s.indexProbes = probes
		}
	}
}

// WithCandidateK bounds the nearest-neighbor prefilter.
func WithCandidateK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.candidateK = k
		}
	}
}

// WithResultLimits sets the default and maximum result counts.
func WithResultLimits(def, max int) Option {
	return func(s *Service) {
		if def > 0 && max >= def {
			s.defaultLimit = def
			s.maxLimit = max
		}
	}
}

// WithMinScore sets the default score threshold for match results.
func WithMinScore(min float64) Option {
	return func(s *Service) {
		if min >= 0 {
			s.defaultMinScore = min
		}
	}
}

// WithSignalWeights sets the default signal blend.
func WithSignalWeights(w map[string]float64) Option {
	return func(s *Service) {
		if len(w) > 0 {
			s.signalWeights = rank.Weights(w)
		}
	}
}

// WithPartialCredit sets the overlap credit for ancestor-category matches.
func WithPartialCredit(f float64) Option {
	return func(s *Service) {
		if f >= 0 && f <= 1 {
			s.partialCredit = f
		}
	}
}

// WithFuzzyMatching tunes the KB resolver's edit-distance bound and
// token-overlap threshold.
func WithFuzzyMatching(maxDist int, overlap float64) Option {
	return func(s *Service) {
		if maxDist >= 0 {
			s.fuzzyMaxDistance = maxDist
		}
		if overlap > 0 && overlap <= 1 {
			s.overlapThreshold = overlap
		}
	}
}

// WithKeepUnresolved returns unmatched tokens for manual curation.
func WithKeepUnresolved(keep bool) Option {
	return func(s *Service) {
		s.keepUnresolved = keep
	}
}

// WithHalfLife sets behavioral recency decay.
func WithHalfLife(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.halfLife = d
		}
	}
}

// WithHistoryWindow bounds how many recent interactions are scored.
func WithHistoryWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyWindow = n
		}
	}
}

// WithDiversityCap limits same-category results in the top-N.
func WithDiversityCap(cap int) Option {
	return func(s *Service) {
		if cap >= 0 {
			s.diversityCap = cap
		}
	}
}

// WithCache sets the result cache size and TTL safety net.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.cacheSize = size
		}
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithQueueSize sets the re-embed job queue capacity.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithWorkerCount sets the number of re-embed workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithIndexRetry bounds match-path retries against an unavailable index.
func WithIndexRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithStore sets the persistence backend.
func WithStore(st storage.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithClock injects the time source used for expiry and recency decay.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dimension:        256,
		indexCells:       32,
		indexProbes:      8,
		candidateK:       200,
		defaultLimit:     10,
		maxLimit:         100,
		defaultMinScore:  0,
		signalWeights:    rank.Weights{signal.NameSemantic: 0.4, signal.NameSkillOverlap: 0.4, signal.NameBehavioral: 0.2},
		partialCredit:    0.5,
		fuzzyMaxDistance: 2,
		overlapThreshold: 0.6,
		keepUnresolved:   true,
		halfLife:         14 * 24 * time.Hour,
		historyWindow:    50,
		diversityCap:     0,
		cacheTTL:         time.Minute,
		cacheSize:        10_000,
		queueSize:        10_000,
		workerCount:      runtime.NumCPU() * 2,
		retryAttempts:    3,
		retryBackoff:     50 * time.Millisecond,
		clock:            time.Now,
	}
	s.modelVersion.Store(1)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("matchd")
	}

	s.logger.Info(ctx, "starting matching service...")

	if s.store == nil {
		s.store = storage.NewMemStore()
	}
	s.kb = kb.NewNormalizer(
		kb.WithMaxEditDistance(s.fuzzyMaxDistance),
		kb.WithOverlapThreshold(s.overlapThreshold),
		kb.WithKeepUnresolved(s.keepUnresolved),
	)
	s.embedder = embedding.New(
		embedding.WithDimension(s.dimension),
	)
	s.index = index.NewIVFStore(s.dimension,
		index.WithCellCount(s.indexCells),
		index.WithProbeCount(s.indexProbes),
		index.WithStaleHandler(s.scheduleReembed),
	)
	s.signals = signal.NewRegistry(
		signal.NewSemantic(),
		signal.NewSkillOverlap(s.kb, signal.WithPartialCredit(s.partialCredit)),
		signal.NewBehavioral(s, s.kb,
			signal.WithHalfLife(s.halfLife),
			signal.WithHistoryWindow(s.historyWindow),
			signal.WithClock(s.clock),
		),
	)
	s.ranker = rank.New(s.signals.Names(),
		rank.WithDiversityCap(s.diversityCap),
	)
	s.cache = newResultCache(s.cacheSize, s.cacheTTL)
	s.tracker = dedupe.NewTracker()
	s.queue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.queue, s,
		workerpool.WithWorkerCount(s.workerCount),
		workerpool.WithLogger(s.logger.Named("reembed")),
		workerpool.WithFailureHandler(func(j jobqueue.Job) {
			s.tracker.Forget(context.Background(), dedupe.Key(j.EntityID, j.ModelVersion))
		}),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "matching service started",
		logger.Int("dimension", s.dimension),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int64("modelVersion", s.modelVersion.Load()),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping matching service...")

	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.pool != nil {
		if err := s.pool.Stop(); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "matching service stopped")
}

// UserUpsert is the write model for a user profile. Skills and interests
// arrive as raw text and are canonicalized against the KB.
type UserUpsert struct {
	UserID    string
	RawSkills map[string]float64
	Interests []string
	History   []model.Interaction

	// ExpectedVersion enforces optimistic concurrency when positive;
	// zero means last-write-wins.
	ExpectedVersion int64
}

// PutUser canonicalizes, stores, embeds, and indexes a user profile.
// It returns the stored profile and any skill terms the KB could not
// resolve.
func (s *Service) PutUser(ctx context.Context, up UserUpsert) (model.UserProfile, []string, error) {
	if !s.isStarted() {
		return model.UserProfile{}, nil, ErrNotStarted
	}
	if up.UserID == "" {
		return model.UserProfile{}, nil, fmt.Errorf("%w: user id is empty", ErrInvalidRequest)
	}

	skills, unresolved := s.canonicalizeSkills(ctx, up.RawSkills)
	profile := model.UserProfile{
		UserID:    up.UserID,
		Skills:    skills,
		Interests: append([]string(nil), up.Interests...),
		History:   append([]model.Interaction(nil), up.History...),
	}

	version, err := s.putRecord(ctx, model.KindUser, up.UserID, profile, up.ExpectedVersion)
	if err != nil {
		return model.UserProfile{}, unresolved, err
	}
	profile.Version = version

	if err := s.embedUser(ctx, profile); err != nil {
		return model.UserProfile{}, unresolved, err
	}

	s.refreshEntityCounts(ctx)
	s.logger.Debug(ctx, "user stored",
		logger.String("userID", profile.UserID),
		logger.Int64("version", profile.Version),
		logger.Int("skills", len(profile.Skills)),
		logger.Int("unresolved", len(unresolved)),
	)
	return profile, unresolved, nil
}

// OpportunityUpsert is the write model for an opportunity.
type OpportunityUpsert struct {
	OpportunityID string
	RawRequired   map[string]float64
	Description   string
	Category      string
	PostedAt      time.Time
	ExpiresAt     time.Time

	ExpectedVersion int64
}

// PutOpportunity canonicalizes, stores, embeds, and indexes an opportunity.
func (s *Service) PutOpportunity(ctx context.Context, up OpportunityUpsert) (model.Opportunity, []string, error) {
	if !s.isStarted() {
		return model.Opportunity{}, nil, ErrNotStarted
	}
	if up.OpportunityID == "" {
		return model.Opportunity{}, nil, fmt.Errorf("%w: opportunity id is empty", ErrInvalidRequest)
	}

	required, unresolved := s.canonicalizeSkills(ctx, up.RawRequired)
	opp := model.Opportunity{
		OpportunityID: up.OpportunityID,
		Required:      required,
		Description:   up.Description,
		Category:      up.Category,
		PostedAt:      up.PostedAt,
		ExpiresAt:     up.ExpiresAt,
	}
	if opp.PostedAt.IsZero() {
		opp.PostedAt = s.clock()
	}

	version, err := s.putRecord(ctx, model.KindOpportunity, up.OpportunityID, opp, up.ExpectedVersion)
	if err != nil {
		return model.Opportunity{}, unresolved, err
	}
	opp.Version = version

	if err := s.embedOpportunity(ctx, opp); err != nil {
		return model.Opportunity{}, unresolved, err
	}

	s.oppEpoch.Add(1)
	s.refreshEntityCounts(ctx)
	s.logger.Debug(ctx, "opportunity stored",
		logger.String("opportunityID", opp.OpportunityID),
		logger.Int64("version", opp.Version),
		logger.Int("required", len(opp.Required)),
	)
	return opp, unresolved, nil
}

// AddSkill registers a canonical skill, optionally under a parent category.
func (s *Service) AddSkill(ctx context.Context, display, parentID string) (string, error) {
	if !s.isStarted() {
		return "", ErrNotStarted
	}
	return s.kb.AddSkill(ctx, display, parentID)
}

// AddSynonym maps a raw term onto a canonical skill.
func (s *Service) AddSynonym(ctx context.Context, term, canonicalID string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	return s.kb.AddSynonym(ctx, term, canonicalID)
}

// BumpModelVersion advances the embedding model version and schedules
// re-embedding for every stored entity. Queries keep serving the old
// vectors until each entity's replacement lands.
func (s *Service) BumpModelVersion(ctx context.Context) (int, error) {
	if !s.isStarted() {
		return 0, ErrNotStarted
	}

	next := int(s.modelVersion.Add(1))
	s.oppEpoch.Add(1)
	s.logger.Info(ctx, "model version bumped", logger.Int("version", next))

	for _, kind := range []model.EntityKind{model.KindUser, model.KindOpportunity} {
		records, err := s.store.QueryByVersion(ctx, kind, 0)
		if err != nil {
			return next, err
		}
		for _, rec := range records {
			s.scheduleReembed(rec.ID, kind)
		}
	}
	return next, nil
}

// Reembed rebuilds one entity's vector. It implements the re-embed
// worker contract; jobs for superseded model versions are dropped. Every
// landed vector advances the result-cache epoch: a ranked result computed
// while the index was transiently depleted mid-rebuild must not keep
// serving once the replacement vector is in place.
func (s *Service) Reembed(ctx context.Context, j jobqueue.Job) error {
	current := int(s.modelVersion.Load())
	if j.ModelVersion != current {
		return nil
	}
	if err := s.reembedEntity(ctx, j); err != nil {
		return err
	}
	s.oppEpoch.Add(1)
	return nil
}

func (s *Service) reembedEntity(ctx context.Context, j jobqueue.Job) error {
	switch j.Kind {
	case model.KindUser:
		rec, err := s.store.Get(ctx, model.KindUser, j.EntityID)
		if err != nil {
			return err
		}
		profile, ok := rec.Value.(model.UserProfile)
		if !ok {
			return fmt.Errorf("%w: record %q is not a user", ErrInvalidRequest, j.EntityID)
		}
		profile.Version = rec.Version
		return s.embedUser(ctx, profile)
	case model.KindOpportunity:
		rec, err := s.store.Get(ctx, model.KindOpportunity, j.EntityID)
		if err != nil {
			return err
		}
		opp, ok := rec.Value.(model.Opportunity)
		if !ok {
			return fmt.Errorf("%w: record %q is not an opportunity", ErrInvalidRequest, j.EntityID)
		}
		opp.Version = rec.Version
		return s.embedOpportunity(ctx, opp)
	default:
		return fmt.Errorf("%w: kind %q cannot be re-embedded", ErrInvalidRequest, j.Kind)
	}
}

// Opportunity resolves a stored opportunity for behavioral scoring.
func (s *Service) Opportunity(id string) (model.Opportunity, bool) {
	rec, err := s.store.Get(context.Background(), model.KindOpportunity, id)
	if err != nil {
		return model.Opportunity{}, false
	}
	opp, ok := rec.Value.(model.Opportunity)
	if !ok {
		return model.Opportunity{}, false
	}
	opp.Version = rec.Version
	return opp, true
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]any{
		"started":      started,
		"workerCount":  s.workerCount,
		"modelVersion": s.modelVersion.Load(),
	}
	if !started {
		return stats
	}

	users, _ := s.store.QueryByVersion(ctx, model.KindUser, 0)
	opps, _ := s.store.QueryByVersion(ctx, model.KindOpportunity, 0)

	now := s.clock()
	var active, expiringSoon int
	for _, rec := range opps {
		opp, ok := rec.Value.(model.Opportunity)
		if !ok || opp.Expired(now) {
			continue
		}
		active++
		if !opp.ExpiresAt.IsZero() && opp.ExpiresAt.Sub(now) <= expiringSoonWindow {
			expiringSoon++
		}
	}

	stats["users"] = len(users)
	stats["opportunities"] = len(opps)
	stats["activeOpportunities"] = active
	stats["expiringSoon"] = expiringSoon
	stats["skills"] = s.kb.Count()
	stats["indexedVectors"] = s.index.Count(ctx)
	stats["queueLength"] = s.queue.Len(ctx)
	stats["cachedResults"] = s.cache.size()

	metrics.UpdateReembedQueueSize(s.queue.Len(ctx))
	metrics.UpdateIndexSize(s.index.Count(ctx))
	return stats
}

// scheduleReembed enqueues one re-embed job unless an identical job is
// already in flight. Enqueue failures clear the dedupe mark so the next
// stale sighting can retry.
func (s *Service) scheduleReembed(id string, kind model.EntityKind) {
	ctx := context.Background()
	version := int(s.modelVersion.Load())
	key := dedupe.Key(id, version)
	if s.tracker.SeenAndRecord(ctx, key) {
		return
	}
	j := jobqueue.Job{EntityID: id, Kind: kind, ModelVersion: version}
	if !s.queue.Enqueue(ctx, j) {
		s.tracker.Forget(ctx, key)
		s.logger.Warn(ctx, "re-embed queue full, job dropped",
			logger.String("entityID", id),
			logger.String("kind", string(kind)),
		)
	}
}

// canonicalizeSkills resolves a raw term -> weight map into canonical
// skill ids. When multiple raw terms resolve to one id the highest
// weight wins.
func (s *Service) canonicalizeSkills(ctx context.Context, raw map[string]float64) (map[string]float64, []string) {
	skills := make(map[string]float64, len(raw))
	var unresolved []string

	terms := make([]string, 0, len(raw))
	for term := range raw {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		ids, miss := s.kb.Canonicalize(ctx, term)
		if len(ids) == 0 {
			unresolved = append(unresolved, miss...)
			continue
		}
		for _, id := range ids {
			if raw[term] > skills[id] {
				skills[id] = raw[term]
			}
		}
	}
	return skills, unresolved
}

func (s *Service) embedUser(ctx context.Context, profile model.UserProfile) error {
	vec := s.embedder.Embed(embedding.Input{
		EntityID: profile.UserID,
		Kind:     model.KindUser,
		Skills:   profile.Skills,
		Text:     joinTerms(profile.Interests),
	}, int(s.modelVersion.Load()))

	s.vectors.Store(profile.UserID, vec)
	return s.index.Upsert(ctx, vec, index.Meta{Kind: model.KindUser})
}

func (s *Service) embedOpportunity(ctx context.Context, opp model.Opportunity) error {
	vec := s.embedder.Embed(embedding.Input{
		EntityID: opp.OpportunityID,
		Kind:     model.KindOpportunity,
		Skills:   opp.Required,
		Text:     opp.Description,
	}, int(s.modelVersion.Load()))

	s.vectors.Store(opp.OpportunityID, vec)
	return s.index.Upsert(ctx, vec, index.Meta{
		Kind:      model.KindOpportunity,
		Category:  opp.Category,
		PostedAt:  opp.PostedAt,
		ExpiresAt: opp.ExpiresAt,
	})
}

// putRecord writes with upsert semantics: a zero expected version adopts
// the stored version, retrying a bounded number of times on write races.
func (s *Service) putRecord(ctx context.Context, kind model.EntityKind, id string, value any, expectedVersion int64) (int64, error) {
	if expectedVersion > 0 {
		return s.store.Put(ctx, kind, id, value, expectedVersion)
	}

	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		current := int64(0)
		if rec, err := s.store.Get(ctx, kind, id); err == nil {
			current = rec.Version
		}
		version, err := s.store.Put(ctx, kind, id, value, current)
		if err == nil {
			return version, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

func (s *Service) refreshEntityCounts(ctx context.Context) {
	if users, err := s.store.QueryByVersion(ctx, model.KindUser, 0); err == nil {
		metrics.UpdateUserCount(len(users))
	}
	if opps, err := s.store.QueryByVersion(ctx, model.KindOpportunity, 0); err == nil {
		metrics.UpdateOpportunityCount(len(opps))
	}
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func joinTerms(terms []string) string {
	return strings.Join(terms, " ")
}
