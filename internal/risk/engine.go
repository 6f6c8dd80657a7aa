// Package risk scores the IP asset behind an issuance: valuation, credit
// rating, default probability, and a recommended loan-to-value ratio.
package risk

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

// Valuer produces an external valuation for an asset. The oracle client
// implements it; a nil Valuer makes the engine fall back to its local
// heuristic alone.
type Valuer interface {
	Valuation(ctx context.Context, assetID string, meta *domain.IPMetadata) (float64, float64, error)
}

// Clock lets tests pin the assessment time.
type Clock func() time.Time

// Engine assesses IP asset value and risk at issuance time. External oracle
// valuations, when available and fresh, take precedence over the local
// heuristic; the heuristic always supplies the rating inputs.
type Engine struct {
	valuer Valuer
	cache  domain.ValuationCache
	clock  Clock
	logger *slog.Logger
}

// New creates a risk Engine. valuer and cache may be nil.
func New(valuer Valuer, cache domain.ValuationCache, clock Clock, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		valuer: valuer,
		cache:  cache,
		clock:  clock,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// oracleFreshness is how old a cached oracle valuation may be before the
// engine asks the oracle again.
const oracleFreshness = 15 * time.Minute

// Assess scores the asset and returns a complete assessment. Oracle failures
// degrade to the heuristic valuation rather than failing the issuance.
func (e *Engine) Assess(ctx context.Context, assetID string, meta *domain.IPMetadata) (domain.RiskAssessment, error) {
	if meta == nil {
		return domain.RiskAssessment{}, domain.ErrInvalidParameters
	}
	now := e.clock()

	valuation := e.baseValuation(meta, now)
	confidence := e.confidenceScore(meta, now)

	if oracleUSD, oracleConf, ok := e.oracleValuation(ctx, assetID, meta, now); ok {
		// Weight the two sources by the oracle's own confidence.
		valuation = oracleUSD*oracleConf + valuation*(1-oracleConf)
		confidence = math.Min(0.95, confidence+0.15)
	}

	factors := e.riskFactors(meta, now)
	rating := e.rating(meta, factors, now)
	defaultProb := e.defaultProbability(rating, meta, now)

	ra := domain.RiskAssessment{
		AssetID:            assetID,
		ValuationUSD:       valuation,
		ConfidenceScore:    confidence,
		Rating:             rating,
		DefaultProbability: defaultProb,
		RecommendedLTV:     e.recommendedLTV(rating, defaultProb),
		RiskFactors:        factors,
		AssessedAt:         now,
	}

	e.logger.Info("asset assessed",
		slog.String("asset_id", assetID),
		slog.String("rating", ra.Rating),
		slog.Float64("valuation_usd", ra.ValuationUSD),
		slog.Float64("default_probability", ra.DefaultProbability),
	)
	return ra, nil
}

// oracleValuation returns a fresh oracle valuation, consulting the cache
// first. The third return is false when no usable valuation exists.
func (e *Engine) oracleValuation(ctx context.Context, assetID string, meta *domain.IPMetadata, now time.Time) (float64, float64, bool) {
	if e.cache != nil {
		usd, ts, err := e.cache.GetValuation(ctx, assetID)
		if err == nil && now.Sub(ts) < oracleFreshness {
			return usd, 0.8, true
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("valuation cache read failed", slog.String("asset_id", assetID), slog.Any("error", err))
		}
	}

	if e.valuer == nil {
		return 0, 0, false
	}

	usd, conf, err := e.valuer.Valuation(ctx, assetID, meta)
	if err != nil {
		e.logger.Warn("oracle valuation failed, using heuristic only",
			slog.String("asset_id", assetID), slog.Any("error", err))
		return 0, 0, false
	}

	if e.cache != nil {
		if err := e.cache.SetValuation(ctx, assetID, usd, now); err != nil {
			e.logger.Warn("valuation cache write failed", slog.String("asset_id", assetID), slog.Any("error", err))
		}
	}
	return usd, clamp(conf, 0, 1), true
}

var categoryMultipliers = map[string]float64{
	"music":    1.5,
	"video":    2.0,
	"ebook":    1.2,
	"course":   1.8,
	"software": 2.5,
	"artwork":  3.0,
	"research": 1.3,
}

func (e *Engine) baseValuation(meta *domain.IPMetadata, now time.Time) float64 {
	mult, ok := categoryMultipliers[meta.Category]
	if !ok {
		mult = 1.0
	}

	engagement := float64(meta.Views)*0.1 + float64(meta.Likes)*1.0
	creatorScore := 1000.0

	// Content value decays 20% per year, floored at half.
	ageDays := now.Sub(meta.CreatedAt).Hours() / 24
	ageFactor := math.Max(0.5, 1.0-(ageDays/365.0)*0.2)

	v := (engagement + creatorScore) * mult * ageFactor
	if v < 100 {
		v = 100
	}
	return v
}

func (e *Engine) riskFactors(meta *domain.IPMetadata, now time.Time) []string {
	var factors []string
	if meta.Views < 100 {
		factors = append(factors, "low view count")
	}
	if now.Sub(meta.CreatedAt) < 30*24*time.Hour {
		factors = append(factors, "new content with limited track record")
	}
	if meta.Likes < 10 {
		factors = append(factors, "limited social validation")
	}
	if meta.Category == "software" {
		factors = append(factors, "technology obsolescence risk")
	}
	return factors
}

func (e *Engine) rating(meta *domain.IPMetadata, factors []string, now time.Time) string {
	score := 100.0
	score -= float64(len(factors)) * 10.0

	if meta.Views > 10000 {
		score += 10.0
	}
	if meta.Likes > 1000 {
		score += 10.0
	}
	if now.Sub(meta.CreatedAt).Hours()/24 > 365 {
		score += 15.0
	}
	score = clamp(score, 0, 100)

	switch {
	case score >= 90:
		return "AAA"
	case score >= 80:
		return "AA"
	case score >= 70:
		return "A"
	case score >= 60:
		return "BBB"
	case score >= 50:
		return "BB"
	case score >= 40:
		return "B"
	default:
		return "CCC"
	}
}

var baseDefaultProbability = map[string]float64{
	"AAA": 0.01,
	"AA":  0.02,
	"A":   0.05,
	"BBB": 0.10,
	"BB":  0.20,
	"B":   0.35,
	"CCC": 0.50,
}

func (e *Engine) defaultProbability(rating string, meta *domain.IPMetadata, now time.Time) float64 {
	prob := baseDefaultProbability[rating]
	if now.Sub(meta.CreatedAt) < 30*24*time.Hour {
		prob *= 1.5
	}
	return math.Min(0.99, prob)
}

var baseLTV = map[string]float64{
	"AAA": 0.70,
	"AA":  0.65,
	"A":   0.60,
	"BBB": 0.50,
	"BB":  0.40,
	"B":   0.30,
	"CCC": 0.20,
}

func (e *Engine) recommendedLTV(rating string, defaultProb float64) float64 {
	ltv := baseLTV[rating] * (1.0 - defaultProb*0.5)
	return clamp(ltv, 0.1, 0.8)
}

func (e *Engine) confidenceScore(meta *domain.IPMetadata, now time.Time) float64 {
	confidence := 0.5
	if meta.Views > 1000 {
		confidence += 0.1
	}
	if meta.Likes > 100 {
		confidence += 0.1
	}

	ageDays := now.Sub(meta.CreatedAt).Hours() / 24
	switch {
	case ageDays > 180:
		confidence += 0.2
	case ageDays > 90:
		confidence += 0.1
	}

	if len(meta.Tags) > 5 {
		confidence += 0.1
	}
	return math.Min(0.95, confidence)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
