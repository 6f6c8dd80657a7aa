package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/store/memory"
)

var assessedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, valuer Valuer, cache domain.ValuationCache) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(valuer, cache, func() time.Time { return assessedAt }, logger)
}

type stubValuer struct {
	usd   float64
	conf  float64
	err   error
	calls int
}

func (s *stubValuer) Valuation(context.Context, string, *domain.IPMetadata) (float64, float64, error) {
	s.calls++
	return s.usd, s.conf, s.err
}

func provenMeta() *domain.IPMetadata {
	return &domain.IPMetadata{
		Category:  "music",
		Creator:   "0xcreator",
		CreatedAt: assessedAt.Add(-2 * 365 * 24 * time.Hour),
		Views:     50000,
		Likes:     2000,
		Tags:      []string{"jazz", "live", "album", "studio", "remaster", "vinyl"},
	}
}

func TestAssessProvenAsset(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	ra, err := e.Assess(context.Background(), "asset-1", provenMeta())
	require.NoError(t, err)

	assert.Equal(t, "asset-1", ra.AssetID)
	assert.Equal(t, "AAA", ra.Rating)
	assert.Empty(t, ra.RiskFactors)
	assert.InDelta(t, 0.01, ra.DefaultProbability, 1e-9)
	assert.Equal(t, assessedAt, ra.AssessedAt)
	assert.Greater(t, ra.ValuationUSD, 100.0)
	// Full confidence stack: views, likes, age, tags.
	assert.InDelta(t, 0.95, ra.ConfidenceScore, 1e-9)
}

func TestAssessNewUnprovenAsset(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	meta := &domain.IPMetadata{
		Category:  "software",
		CreatedAt: assessedAt.Add(-24 * time.Hour),
		Views:     10,
		Likes:     1,
	}
	ra, err := e.Assess(context.Background(), "asset-2", meta)
	require.NoError(t, err)

	// Four factors knock the score to 60: low views, new content, few
	// likes, software obsolescence.
	assert.Equal(t, "BBB", ra.Rating)
	assert.Len(t, ra.RiskFactors, 4)
	// Young content carries the 1.5x default multiplier.
	assert.InDelta(t, 0.15, ra.DefaultProbability, 1e-9)
	assert.GreaterOrEqual(t, ra.ValuationUSD, 100.0)
}

func TestAssessLTVBounds(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	for _, meta := range []*domain.IPMetadata{
		provenMeta(),
		{Category: "ebook", CreatedAt: assessedAt.Add(-time.Hour)},
	} {
		ra, err := e.Assess(context.Background(), "asset", meta)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ra.RecommendedLTV, 0.1)
		assert.LessOrEqual(t, ra.RecommendedLTV, 0.8)
	}
}

func TestAssessNilMetadata(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	_, err := e.Assess(context.Background(), "asset", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
}

func TestAssessBlendsOracleValuation(t *testing.T) {
	heuristic := newTestEngine(t, nil, nil)
	base, err := heuristic.Assess(context.Background(), "asset", provenMeta())
	require.NoError(t, err)

	valuer := &stubValuer{usd: 1_000_000, conf: 0.8}
	e := newTestEngine(t, valuer, nil)

	ra, err := e.Assess(context.Background(), "asset", provenMeta())
	require.NoError(t, err)

	assert.Equal(t, 1, valuer.calls)
	want := 1_000_000*0.8 + base.ValuationUSD*0.2
	assert.InDelta(t, want, ra.ValuationUSD, 1e-6)
	assert.GreaterOrEqual(t, ra.ConfidenceScore, base.ConfidenceScore)
}

func TestAssessOracleFailureFallsBack(t *testing.T) {
	heuristic := newTestEngine(t, nil, nil)
	base, err := heuristic.Assess(context.Background(), "asset", provenMeta())
	require.NoError(t, err)

	valuer := &stubValuer{err: errors.New("oracle down")}
	e := newTestEngine(t, valuer, nil)

	ra, err := e.Assess(context.Background(), "asset", provenMeta())
	require.NoError(t, err)
	assert.InDelta(t, base.ValuationUSD, ra.ValuationUSD, 1e-6)
}

func TestAssessUsesCachedValuation(t *testing.T) {
	cache := memory.NewValuationCache()
	require.NoError(t, cache.SetValuation(context.Background(), "asset", 500_000, assessedAt.Add(-time.Minute)))

	valuer := &stubValuer{usd: 9_999_999, conf: 0.9}
	e := newTestEngine(t, valuer, cache)

	_, err := e.Assess(context.Background(), "asset", provenMeta())
	require.NoError(t, err)
	assert.Zero(t, valuer.calls, "fresh cache entry should short-circuit the oracle")
}

func TestAssessStaleCacheHitsOracle(t *testing.T) {
	cache := memory.NewValuationCache()
	require.NoError(t, cache.SetValuation(context.Background(), "asset", 500_000, assessedAt.Add(-time.Hour)))

	valuer := &stubValuer{usd: 750_000, conf: 0.9}
	e := newTestEngine(t, valuer, cache)

	_, err := e.Assess(context.Background(), "asset", provenMeta())
	require.NoError(t, err)
	assert.Equal(t, 1, valuer.calls)

	// The fresh oracle result must land back in the cache.
	usd, ts, err := cache.GetValuation(context.Background(), "asset")
	require.NoError(t, err)
	assert.Equal(t, 750_000.0, usd)
	assert.Equal(t, assessedAt, ts)
}
