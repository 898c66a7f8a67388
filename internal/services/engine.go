package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/marev/vitrina/internal/config"
	"github.com/marev/vitrina/pkg/models"
)

// Raw similarity above this threshold upgrades the reason wording.
const highSimilarityThreshold = 0.8

// Fallback entries carry a flat low final score so they never outrank a
// genuine similarity match.
const fallbackFinalScore = 0.1

var (
	ErrInvalidCount        = errors.New("count must be a positive integer")
	ErrInvalidFeedbackType = errors.New("feedback type must be like or dislike")
	ErrMissingIdentity     = errors.New("identity is required")
)

// ProductSource is the catalog collaborator: a read-only "all products" view.
type ProductSource interface {
	AllProducts(ctx context.Context) ([]models.Product, error)
}

// InteractionSource is the interaction-log collaborator. The engine reads a
// principal's history to personalize scores and appends rows through exactly
// one write path, RecordFeedback.
type InteractionSource interface {
	InteractionsByIdentity(ctx context.Context, identity string) ([]models.UserInteraction, error)
	AppendInteraction(ctx context.Context, interaction *models.UserInteraction) error
}

// RecommendationEngine owns the product feature/similarity model and produces
// ranked recommendations for a product, optionally personalized by the
// caller's interaction history.
//
// The snapshot is built lazily on first use and published through an atomic
// pointer swap, so arbitrarily many concurrent requests read it without
// locking; only the build itself is serialized. Catalog failures degrade to
// an empty loaded snapshot: a recommendation request never fails because the
// catalog is unavailable.
type RecommendationEngine struct {
	catalog      ProductSource
	interactions InteractionSource
	strategy     SimilarityStrategy
	cache        *redis.Client // warm cache for anonymous responses; may be nil
	cacheTTL     time.Duration
	maxCount     int
	logger       *logrus.Logger
	metrics      *EngineMetrics

	loadMu     sync.Mutex
	snapshot   atomic.Pointer[catalogSnapshot]
	generation atomic.Uint64

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewRecommendationEngine(
	catalog ProductSource,
	interactions InteractionSource,
	cache *redis.Client,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
	metrics *EngineMetrics,
) *RecommendationEngine {
	return &RecommendationEngine{
		catalog:      catalog,
		interactions: interactions,
		strategy:     SimilarityStrategyFor(cfg.SimilarityStrategy),
		cache:        cache,
		cacheTTL:     cfg.CacheTTL,
		maxCount:     cfg.MaxCount,
		logger:       logger,
		metrics:      metrics,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SeedFallback makes fallback sampling deterministic. Intended for tests;
// production instances keep the time-based seed.
func (e *RecommendationEngine) SeedFallback(seed int64) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng = rand.New(rand.NewSource(seed))
}

// Refresh invalidates the published snapshot so the next request rebuilds it
// from the catalog. Purely a cache invalidation signal; the engine does not
// subscribe to catalog change events itself.
func (e *RecommendationEngine) Refresh() {
	e.snapshot.Store(nil)
}

// GetRecommendations returns up to count recommendations for productID,
// personalized by identity when one is supplied. Unknown product ids and an
// empty catalog are valid inputs that degrade to fallback output; the only
// error condition is an invalid count.
func (e *RecommendationEngine) GetRecommendations(ctx context.Context, productID int64, identity string, count int) ([]models.Recommendation, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}
	if e.maxCount > 0 && count > e.maxCount {
		count = e.maxCount
	}
	e.metrics.Requests.Inc()

	snap := e.ensureLoaded(ctx)
	if snap.Len() == 0 {
		return []models.Recommendation{}, nil
	}

	anonymous := identity == ""
	cacheKey := fmt.Sprintf("recs:%d:%d:%d", snap.generation, productID, count)
	if anonymous {
		if cached := e.getCached(ctx, cacheKey); cached != nil {
			return cached, nil
		}
	}

	var prof *preferenceProfile
	if !anonymous {
		prof = e.buildProfile(ctx, identity, snap)
	}

	recs := make([]models.Recommendation, 0, count)
	seen := map[int64]bool{productID: true}

	if idx, ok := snap.indexByID[productID]; ok {
		recs = e.rankBySimilarity(snap, idx, prof, count, seen)
	}

	if len(recs) < count {
		e.metrics.FallbacksServed.Inc()
		recs = append(recs, e.fallbackRecommendations(snap, prof, count-len(recs), seen)...)
	}

	if anonymous {
		e.setCached(ctx, cacheKey, recs)
	}
	return recs, nil
}

// RecordFeedback appends one like/dislike row to the interaction log.
// Idempotency is not guaranteed here: duplicate calls create duplicate rows.
// The log is an append-only signal source to be aggregated, not normalized
// state; callers wanting like/dislike exclusivity enforce it upstream.
func (e *RecommendationEngine) RecordFeedback(ctx context.Context, identity string, productID int64, feedbackType string) error {
	if identity == "" {
		return ErrMissingIdentity
	}
	if feedbackType != models.InteractionLike && feedbackType != models.InteractionDislike {
		return ErrInvalidFeedbackType
	}

	interaction := &models.UserInteraction{
		Identity:  identity,
		ProductID: productID,
		Type:      feedbackType,
		Timestamp: time.Now(),
	}
	if err := e.interactions.AppendInteraction(ctx, interaction); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// Stats reports engine observability counts. Read-only, but triggers the
// lazy load so the numbers describe a real snapshot.
func (e *RecommendationEngine) Stats(ctx context.Context) (*models.EngineStats, error) {
	snap := e.ensureLoaded(ctx)
	return &models.EngineStats{
		TotalProducts:    snap.Len(),
		UniqueCategories: len(snap.categories),
		IsLoaded:         snap.healthy,
		Optimized:        e.strategy.Name() == StrategyGonum,
		Strategy:         e.strategy.Name(),
	}, nil
}

func (e *RecommendationEngine) ensureLoaded(ctx context.Context) *catalogSnapshot {
	if snap := e.snapshot.Load(); snap != nil {
		return snap
	}
	return e.load(ctx)
}

func (e *RecommendationEngine) load(ctx context.Context) *catalogSnapshot {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	// Another request may have finished the build while we waited.
	if snap := e.snapshot.Load(); snap != nil {
		return snap
	}

	healthy := true
	products, err := e.catalog.AllProducts(ctx)
	if err != nil {
		// Deliberate never-break-the-page policy: serve an empty loaded
		// snapshot instead of propagating catalog errors to callers.
		e.logger.WithError(err).Error("Failed to load product catalog; publishing empty snapshot")
		e.metrics.LoadFailures.Inc()
		products = nil
		healthy = false
	}

	snap := buildSnapshot(products, e.strategy, e.generation.Add(1), healthy)
	e.snapshot.Store(snap)
	e.metrics.Loads.Inc()
	e.metrics.SnapshotProducts.Set(float64(snap.Len()))

	e.logger.WithFields(logrus.Fields{
		"products":   snap.Len(),
		"categories": len(snap.categories),
		"generation": snap.generation,
		"strategy":   e.strategy.Name(),
	}).Info("Catalog snapshot published")

	return snap
}

func (e *RecommendationEngine) rankBySimilarity(snap *catalogSnapshot, idx int, prof *preferenceProfile, count int, seen map[int64]bool) []models.Recommendation {
	row := snap.similarity.RawRowView(idx)

	type candidate struct {
		index int
		sim   float64
		score float64
	}
	candidates := make([]candidate, 0, len(row))
	for j, sim := range row {
		if j == idx || sim <= 0 {
			continue
		}
		score := sim
		if prof != nil {
			score = sim * prof.multiplier(snap.products[j])
		}
		if score <= 0 {
			continue
		}
		candidates = append(candidates, candidate{index: j, sim: sim, score: score})
	}

	// Descending adjusted score; ties break on ascending product id so output
	// order is reproducible.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return snap.products[candidates[i].index].ID < snap.products[candidates[j].index].ID
	})

	recs := make([]models.Recommendation, 0, count)
	for _, c := range candidates {
		if len(recs) >= count {
			break
		}
		p := snap.products[c.index]
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		recs = append(recs, models.Recommendation{
			ProductID:       p.ID,
			Name:            p.Name,
			Price:           p.Price,
			Category:        p.Category,
			SimilarityScore: c.sim,
			FinalScore:      c.score,
			Reason:          reasonFor(p, c.sim, prof),
			ImageURL:        p.ImageURL,
		})
	}
	return recs
}

// fallbackRecommendations samples uniformly without replacement from the
// unseen remainder of the catalog, preferring the identity's liked categories
// before widening. Entries are appended after the ranked portion and are
// deliberately not re-sorted into it.
func (e *RecommendationEngine) fallbackRecommendations(snap *catalogSnapshot, prof *preferenceProfile, need int, seen map[int64]bool) []models.Recommendation {
	if need <= 0 || snap.Len() == 0 {
		return nil
	}

	var preferred, rest []models.Product
	for _, p := range snap.products {
		if seen[p.ID] {
			continue
		}
		if prof != nil && prof.likesByCategory[p.Category] > 0 {
			preferred = append(preferred, p)
		} else {
			rest = append(rest, p)
		}
	}

	recs := make([]models.Recommendation, 0, need)
	take := func(pool []models.Product, fromLikedCategory bool) {
		e.rngMu.Lock()
		e.rng.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
		e.rngMu.Unlock()

		for _, p := range pool {
			if len(recs) >= need {
				return
			}
			seen[p.ID] = true
			reason := fmt.Sprintf("popular %s product", p.Category)
			if fromLikedCategory {
				reason = fmt.Sprintf("popular in %s (your preferred category)", p.Category)
			}
			recs = append(recs, models.Recommendation{
				ProductID:       p.ID,
				Name:            p.Name,
				Price:           p.Price,
				Category:        p.Category,
				SimilarityScore: 0,
				FinalScore:      fallbackFinalScore,
				Reason:          reason,
				ImageURL:        p.ImageURL,
			})
		}
	}

	take(preferred, true)
	take(rest, false)
	return recs
}

// preferenceProfile aggregates one identity's interaction history against the
// current snapshot. Interactions referencing products that left the catalog
// still count for direct-product adjustments but not for category affinity.
type preferenceProfile struct {
	likesByCategory    map[string]int
	dislikesByCategory map[string]int
	liked              map[int64]bool
	disliked           map[int64]bool
	viewed             map[int64]bool

	likedPriceMean   float64
	likedPriceStdDev float64
	priceBandValid   bool
}

func (e *RecommendationEngine) buildProfile(ctx context.Context, identity string, snap *catalogSnapshot) *preferenceProfile {
	history, err := e.interactions.InteractionsByIdentity(ctx, identity)
	if err != nil {
		// History is a bonus signal; score unpersonalized rather than fail.
		e.logger.WithError(err).WithField("identity", identity).
			Warn("Failed to load interaction history; serving unpersonalized scores")
		return nil
	}
	if len(history) == 0 {
		return nil
	}

	prof := &preferenceProfile{
		likesByCategory:    make(map[string]int),
		dislikesByCategory: make(map[string]int),
		liked:              make(map[int64]bool),
		disliked:           make(map[int64]bool),
		viewed:             make(map[int64]bool),
	}

	var likedPrices []float64
	for _, interaction := range history {
		product, inCatalog := snap.byID(interaction.ProductID)
		switch interaction.Type {
		case models.InteractionLike:
			prof.liked[interaction.ProductID] = true
			if inCatalog {
				prof.likesByCategory[product.Category]++
				likedPrices = append(likedPrices, product.Price)
			}
		case models.InteractionDislike:
			prof.disliked[interaction.ProductID] = true
			if inCatalog {
				prof.dislikesByCategory[product.Category]++
			}
		default:
			prof.viewed[interaction.ProductID] = true
		}
	}

	if len(likedPrices) > 0 {
		prof.likedPriceMean = stat.Mean(likedPrices, nil)
		prof.likedPriceStdDev = stat.PopStdDev(likedPrices, nil)
		prof.priceBandValid = true
	}

	return prof
}

// multiplier computes the user preference multiplier for one candidate
// product. The three factors compose multiplicatively in a fixed order:
// category affinity, liked-price band, then direct prior interaction.
func (p *preferenceProfile) multiplier(product models.Product) float64 {
	m := 1.0

	if likes := p.likesByCategory[product.Category]; likes > 0 {
		factor := 1.0 + 0.5*float64(likes) - 0.3*float64(p.dislikesByCategory[product.Category])
		if factor < 0.1 {
			factor = 0.1
		}
		m *= factor
	}

	if p.priceBandValid && math.Abs(product.Price-p.likedPriceMean) <= p.likedPriceStdDev {
		m *= 1.3
	}

	// A dislike on the exact candidate outweighs an earlier like.
	switch {
	case p.disliked[product.ID]:
		m *= 0.3
	case p.liked[product.ID]:
		m *= 1.5
	}

	return m
}

// reasonFor picks the human-readable reason string. Informational only; it
// never feeds back into scoring.
func reasonFor(product models.Product, sim float64, prof *preferenceProfile) string {
	if prof != nil {
		switch {
		case prof.liked[product.ID]:
			return "previously liked by you"
		case prof.disliked[product.ID] || prof.viewed[product.ID]:
			return "previously viewed by you"
		case prof.likesByCategory[product.Category] > 0:
			return fmt.Sprintf("based on your interest in %s", product.Category)
		}
	}
	if sim > highSimilarityThreshold {
		return fmt.Sprintf("highly similar %s product", product.Category)
	}
	return fmt.Sprintf("similar %s product", product.Category)
}

func (e *RecommendationEngine) getCached(ctx context.Context, key string) []models.Recommendation {
	if e.cache == nil {
		return nil
	}
	cached := e.cache.Get(ctx, key).Val()
	if cached == "" {
		return nil
	}
	var recs []models.Recommendation
	if err := json.Unmarshal([]byte(cached), &recs); err != nil {
		return nil
	}
	return recs
}

func (e *RecommendationEngine) setCached(ctx context.Context, key string, recs []models.Recommendation) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cacheTTL).Err(); err != nil {
		e.logger.WithError(err).Warn("Failed to cache recommendation response")
	}
}
