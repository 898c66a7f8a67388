package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marev/vitrina/internal/config"
	"github.com/marev/vitrina/pkg/models"
)

type stubCatalog struct {
	products []models.Product
	err      error
	calls    int
}

func (s *stubCatalog) AllProducts(ctx context.Context) ([]models.Product, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

type stubInteractions struct {
	history  map[string][]models.UserInteraction
	err      error
	appended []models.UserInteraction
}

func (s *stubInteractions) InteractionsByIdentity(ctx context.Context, identity string) ([]models.UserInteraction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.history[identity], nil
}

func (s *stubInteractions) AppendInteraction(ctx context.Context, interaction *models.UserInteraction) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, *interaction)
	return nil
}

func newTestEngine(catalog ProductSource, interactions InteractionSource, strategy string) *RecommendationEngine {
	cfg := &config.EngineConfig{
		DefaultCount:       5,
		MaxCount:           20,
		SimilarityStrategy: strategy,
		CacheTTL:           time.Minute,
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine := NewRecommendationEngine(catalog, interactions, nil, cfg, logger, NewEngineMetrics(prometheus.NewRegistry()))
	engine.SeedFallback(42)
	return engine
}

func engineCatalog() []models.Product {
	return []models.Product{
		{ID: 1, Name: "Wireless Headphones", Price: 100, Category: "Electronics"},
		{ID: 2, Name: "Bluetooth Speaker", Price: 120, Category: "Electronics"},
		{ID: 3, Name: "Paperback Novel", Price: 20, Category: "Books"},
	}
}

func TestGetRecommendations_InvalidCount(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)

	_, err := engine.GetRecommendations(context.Background(), 1, "", 0)
	assert.ErrorIs(t, err, ErrInvalidCount)

	_, err = engine.GetRecommendations(context.Background(), 1, "", -4)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestGetRecommendations_SameCategoryRanksAboveCrossCategory(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 1, "", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// The other Electronics product wins on similarity; Books only appears
	// as fallback padding.
	assert.Equal(t, int64(2), recs[0].ProductID)
	assert.Greater(t, recs[0].SimilarityScore, recs[1].SimilarityScore)
	assert.GreaterOrEqual(t, recs[1].SimilarityScore, 0.0)
	assert.Contains(t, recs[0].Reason, "Electronics")

	assert.Equal(t, int64(3), recs[1].ProductID)
	assert.Equal(t, fallbackFinalScore, recs[1].FinalScore)
}

func TestGetRecommendations_HighSimilarityReason(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 1, "", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Products 1 and 2 share category and price bucket: similarity 1.0.
	assert.InDelta(t, 1.0, recs[0].SimilarityScore, 1e-12)
	assert.Equal(t, "highly similar Electronics product", recs[0].Reason)
}

func TestGetRecommendations_NeverIncludesSelfOrDuplicates(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 1, "", 10)
	require.NoError(t, err)

	// Catalog of 3 caps the response at 2: everything except the query
	// product, no padding beyond distinct products, no error.
	require.Len(t, recs, 2)

	seen := make(map[int64]bool)
	for _, r := range recs {
		assert.NotEqual(t, int64(1), r.ProductID)
		assert.False(t, seen[r.ProductID], "duplicate product %d", r.ProductID)
		seen[r.ProductID] = true
	}
}

func TestGetRecommendations_UnknownProductFallsBack(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 999, "", 5)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	for _, r := range recs {
		assert.Zero(t, r.SimilarityScore)
		assert.Equal(t, fallbackFinalScore, r.FinalScore)
		assert.Contains(t, r.Reason, "popular")
	}
}

func TestGetRecommendations_EmptyCatalog(t *testing.T) {
	engine := newTestEngine(&stubCatalog{}, &stubInteractions{}, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 1, "", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGetRecommendations_CatalogFailureDegradesToEmpty(t *testing.T) {
	catalog := &stubCatalog{err: errors.New("connection refused")}
	engine := newTestEngine(catalog, &stubInteractions{}, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 1, "", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// The empty snapshot is a loaded state: no retry storm on every call.
	_, err = engine.GetRecommendations(context.Background(), 1, "", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.calls)

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.IsLoaded)
	assert.Zero(t, stats.TotalProducts)
}

func TestRefresh_RebuildsOnNextRequest(t *testing.T) {
	catalog := &stubCatalog{products: engineCatalog()}
	engine := newTestEngine(catalog, &stubInteractions{}, StrategyGonum)

	before, err := engine.GetRecommendations(context.Background(), 1, "", 1)
	require.NoError(t, err)
	require.Equal(t, 1, catalog.calls)

	engine.Refresh()

	after, err := engine.GetRecommendations(context.Background(), 1, "", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.calls)

	// Unchanged catalog reproduces identical similarity scores.
	require.Len(t, after, 1)
	assert.InDelta(t, before[0].SimilarityScore, after[0].SimilarityScore, 1e-12)
	assert.Equal(t, before[0].ProductID, after[0].ProductID)
}

func TestGetRecommendations_CategoryAffinityBoostsFinalScore(t *testing.T) {
	products := []models.Product{
		{ID: 1, Name: "Wireless Headphones", Price: 100, Category: "Electronics"},
		{ID: 2, Name: "Bluetooth Speaker", Price: 120, Category: "Electronics"},
		{ID: 3, Name: "Paperback Novel", Price: 20, Category: "Books"},
		{ID: 4, Name: "Mechanical Keyboard", Price: 110, Category: "Electronics"},
	}
	interactions := &stubInteractions{history: map[string][]models.UserInteraction{
		"session-a": {
			{Identity: "session-a", ProductID: 1, Type: models.InteractionLike},
			{Identity: "session-a", ProductID: 2, Type: models.InteractionLike},
		},
	}}
	engine := newTestEngine(&stubCatalog{products: products}, interactions, StrategyGonum)

	baseline, err := engine.GetRecommendations(context.Background(), 4, "", 1)
	require.NoError(t, err)
	require.Len(t, baseline, 1)

	personalized, err := engine.GetRecommendations(context.Background(), 4, "session-a", 1)
	require.NoError(t, err)
	require.Len(t, personalized, 1)

	// Two category likes alone give a 2.0 multiplier; the direct like and
	// the price band push it higher still.
	assert.Greater(t, personalized[0].FinalScore, baseline[0].FinalScore)
	assert.GreaterOrEqual(t, personalized[0].FinalScore, 2.0*personalized[0].SimilarityScore)
	assert.Equal(t, "previously liked by you", personalized[0].Reason)
}

func TestBuildProfile_DirectDislikeMultiplier(t *testing.T) {
	products := engineCatalog()
	interactions := &stubInteractions{history: map[string][]models.UserInteraction{
		"session-b": {
			{Identity: "session-b", ProductID: 2, Type: models.InteractionDislike},
		},
	}}
	engine := newTestEngine(&stubCatalog{products: products}, interactions, StrategyGonum)

	snap := engine.ensureLoaded(context.Background())
	prof := engine.buildProfile(context.Background(), "session-b", snap)
	require.NotNil(t, prof)

	// A lone dislike yields exactly the direct-product factor.
	disliked, ok := snap.byID(2)
	require.True(t, ok)
	assert.InDelta(t, 0.3, prof.multiplier(disliked), 1e-12)
}

func TestBuildProfile_DislikeAfterLikeIsMonotonic(t *testing.T) {
	products := engineCatalog()
	catalog := &stubCatalog{products: products}

	likeOnly := &stubInteractions{history: map[string][]models.UserInteraction{
		"s": {{Identity: "s", ProductID: 2, Type: models.InteractionLike}},
	}}
	engine := newTestEngine(catalog, likeOnly, StrategyGonum)
	snap := engine.ensureLoaded(context.Background())
	target, ok := snap.byID(2)
	require.True(t, ok)

	before := engine.buildProfile(context.Background(), "s", snap).multiplier(target)

	likeThenDislike := &stubInteractions{history: map[string][]models.UserInteraction{
		"s": {
			{Identity: "s", ProductID: 2, Type: models.InteractionLike},
			{Identity: "s", ProductID: 2, Type: models.InteractionDislike},
		},
	}}
	engine.interactions = likeThenDislike

	after := engine.buildProfile(context.Background(), "s", snap).multiplier(target)

	assert.LessOrEqual(t, after, before)
}

func TestGetRecommendations_PersonalizedFallbackPrefersLikedCategories(t *testing.T) {
	products := []models.Product{
		{ID: 1, Name: "Paperback Novel", Price: 20, Category: "Books"},
		{ID: 2, Name: "Hardcover Atlas", Price: 45, Category: "Books"},
		{ID: 3, Name: "Bluetooth Speaker", Price: 120, Category: "Electronics"},
	}
	interactions := &stubInteractions{history: map[string][]models.UserInteraction{
		"reader": {
			{Identity: "reader", ProductID: 1, Type: models.InteractionLike},
		},
	}}
	engine := newTestEngine(&stubCatalog{products: products}, interactions, StrategyGonum)

	// Unknown seed product: everything comes from fallback.
	recs, err := engine.GetRecommendations(context.Background(), 999, "reader", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "Books", recs[0].Category)
	assert.Equal(t, "popular in Books (your preferred category)", recs[0].Reason)
}

func TestGetRecommendations_FallbackDeterministicWithSeed(t *testing.T) {
	products := []models.Product{
		{ID: 1, Name: "A", Price: 10, Category: "Misc"},
		{ID: 2, Name: "B", Price: 20, Category: "Misc"},
		{ID: 3, Name: "C", Price: 30, Category: "Misc"},
		{ID: 4, Name: "D", Price: 40, Category: "Misc"},
		{ID: 5, Name: "E", Price: 50, Category: "Misc"},
	}

	run := func() []int64 {
		engine := newTestEngine(&stubCatalog{products: products}, &stubInteractions{}, StrategyGonum)
		recs, err := engine.GetRecommendations(context.Background(), 999, "", 3)
		require.NoError(t, err)
		ids := make([]int64, len(recs))
		for i, r := range recs {
			ids[i] = r.ProductID
		}
		return ids
	}

	assert.Equal(t, run(), run())
}

func TestGetRecommendations_InteractionReadFailureIsNonFatal(t *testing.T) {
	interactions := &stubInteractions{err: errors.New("log unavailable")}
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, interactions, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 1, "session-x", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Unpersonalized scores: final equals raw similarity for the ranked entry.
	assert.Equal(t, recs[0].SimilarityScore, recs[0].FinalScore)
}

func TestGetRecommendations_StrategiesProduceEquivalentOutput(t *testing.T) {
	fast := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)
	slow := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyNaive)

	fastRecs, err := fast.GetRecommendations(context.Background(), 1, "", 1)
	require.NoError(t, err)
	slowRecs, err := slow.GetRecommendations(context.Background(), 1, "", 1)
	require.NoError(t, err)

	require.Len(t, fastRecs, 1)
	require.Len(t, slowRecs, 1)
	assert.Equal(t, fastRecs[0].ProductID, slowRecs[0].ProductID)
	assert.InDelta(t, fastRecs[0].SimilarityScore, slowRecs[0].SimilarityScore, 1e-9)
	assert.InDelta(t, fastRecs[0].FinalScore, slowRecs[0].FinalScore, 1e-9)
}

func TestGetRecommendations_CountClampedToMax(t *testing.T) {
	products := make([]models.Product, 0, 30)
	for i := int64(1); i <= 30; i++ {
		products = append(products, models.Product{
			ID: i, Name: "Widget", Price: float64(10 * i), Category: "Misc",
		})
	}
	engine := newTestEngine(&stubCatalog{products: products}, &stubInteractions{}, StrategyGonum)

	recs, err := engine.GetRecommendations(context.Background(), 1, "", 100)
	require.NoError(t, err)
	assert.Len(t, recs, 20)
}

func TestRecordFeedback(t *testing.T) {
	interactions := &stubInteractions{}
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, interactions, StrategyGonum)

	err := engine.RecordFeedback(context.Background(), "session-y", 2, models.InteractionLike)
	require.NoError(t, err)
	require.Len(t, interactions.appended, 1)
	assert.Equal(t, "session-y", interactions.appended[0].Identity)
	assert.Equal(t, int64(2), interactions.appended[0].ProductID)
	assert.Equal(t, models.InteractionLike, interactions.appended[0].Type)
	assert.False(t, interactions.appended[0].Timestamp.IsZero())

	// Duplicate calls append duplicate rows; the engine does not dedup.
	err = engine.RecordFeedback(context.Background(), "session-y", 2, models.InteractionLike)
	require.NoError(t, err)
	assert.Len(t, interactions.appended, 2)
}

func TestRecordFeedback_Validation(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)

	err := engine.RecordFeedback(context.Background(), "", 2, models.InteractionLike)
	assert.ErrorIs(t, err, ErrMissingIdentity)

	err = engine.RecordFeedback(context.Background(), "session-z", 2, models.InteractionView)
	assert.ErrorIs(t, err, ErrInvalidFeedbackType)

	err = engine.RecordFeedback(context.Background(), "session-z", 2, "meh")
	assert.ErrorIs(t, err, ErrInvalidFeedbackType)
}

func TestStats(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyGonum)

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalProducts)
	assert.Equal(t, 2, stats.UniqueCategories)
	assert.True(t, stats.IsLoaded)
	assert.True(t, stats.Optimized)
	assert.Equal(t, StrategyGonum, stats.Strategy)
}

func TestStats_NaiveStrategyNotOptimized(t *testing.T) {
	engine := newTestEngine(&stubCatalog{products: engineCatalog()}, &stubInteractions{}, StrategyNaive)

	stats, err := engine.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Optimized)
	assert.Equal(t, StrategyNaive, stats.Strategy)
}
