package domain

import "time"

// RiskAssessment captures the issuance-time valuation and credit view of the
// underlying IP asset.
type RiskAssessment struct {
	AssetID            string
	ValuationUSD       float64
	ConfidenceScore    float64
	Rating             string // AAA .. CCC
	DefaultProbability float64
	RecommendedLTV     float64
	RiskFactors        []string
	AssessedAt         time.Time
}

// IPMetadata is the asset metadata the risk engine scores at issuance.
type IPMetadata struct {
	Category  string
	Creator   string
	CreatedAt time.Time
	Views     int64
	Likes     int64
	Tags      []string
}
