package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowton/ipbond/internal/domain"
)

// RiskStore persists issuance-time risk assessments keyed by asset.
type RiskStore struct {
	pool *pgxpool.Pool
}

func NewRiskStore(pool *pgxpool.Pool) *RiskStore {
	return &RiskStore{pool: pool}
}

func (s *RiskStore) Put(ctx context.Context, ra domain.RiskAssessment) error {
	const query = `
		INSERT INTO risk_assessments (asset_id, valuation_usd, confidence_score, rating, default_probability, recommended_ltv, risk_factors, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset_id) DO UPDATE SET
			valuation_usd = EXCLUDED.valuation_usd,
			confidence_score = EXCLUDED.confidence_score,
			rating = EXCLUDED.rating,
			default_probability = EXCLUDED.default_probability,
			recommended_ltv = EXCLUDED.recommended_ltv,
			risk_factors = EXCLUDED.risk_factors,
			assessed_at = EXCLUDED.assessed_at`
	factors := ra.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		ra.AssetID, ra.ValuationUSD, ra.ConfidenceScore, ra.Rating,
		ra.DefaultProbability, ra.RecommendedLTV, factors, ra.AssessedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put risk assessment %s: %w", ra.AssetID, err)
	}
	return nil
}

func (s *RiskStore) Get(ctx context.Context, assetID string) (domain.RiskAssessment, error) {
	const query = `
		SELECT asset_id, valuation_usd, confidence_score, rating, default_probability, recommended_ltv, risk_factors, assessed_at
		FROM risk_assessments WHERE asset_id = $1`
	var ra domain.RiskAssessment
	err := s.pool.QueryRow(ctx, query, assetID).Scan(
		&ra.AssetID, &ra.ValuationUSD, &ra.ConfidenceScore, &ra.Rating,
		&ra.DefaultProbability, &ra.RecommendedLTV, &ra.RiskFactors, &ra.AssessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskAssessment{}, domain.ErrNotFound
		}
		return domain.RiskAssessment{}, fmt.Errorf("postgres: get risk assessment %s: %w", assetID, err)
	}
	return ra, nil
}

var _ domain.RiskStore = (*RiskStore)(nil)
