package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/knowton/ipbond/internal/domain"
)

// Queries is the read-only surface consumed by the API layer and external
// valuation/risk collaborators.
type Queries struct {
	ledger domain.LedgerStore
	risks  domain.RiskStore
	logger *slog.Logger
}

// NewQueries creates a Queries facade.
func NewQueries(ledger domain.LedgerStore, risks domain.RiskStore, logger *slog.Logger) *Queries {
	return &Queries{
		ledger: ledger,
		risks:  risks,
		logger: logger.With(slog.String("component", "queries")),
	}
}

// BondInfo returns the bond, its tranches in priority order, and the
// issuance-time risk assessment when one exists.
func (q *Queries) BondInfo(ctx context.Context, bondID string) (domain.BondInfo, error) {
	bond, err := q.ledger.GetBond(ctx, bondID)
	if err != nil {
		return domain.BondInfo{}, err
	}
	tranches, err := q.ledger.TranchesByBond(ctx, bondID)
	if err != nil {
		return domain.BondInfo{}, fmt.Errorf("queries: load tranches: %w", err)
	}

	info := domain.BondInfo{Bond: bond, Tranches: tranches}
	if q.risks != nil {
		ra, err := q.risks.Get(ctx, bond.AssetID)
		switch {
		case err == nil:
			info.Risk = &ra
		case !errors.Is(err, domain.ErrNotFound):
			q.logger.WarnContext(ctx, "risk assessment lookup failed",
				slog.String("asset_id", bond.AssetID),
				slog.String("error", err.Error()),
			)
		}
	}
	return info, nil
}

// ListBonds pages through all bonds, oldest first.
func (q *Queries) ListBonds(ctx context.Context, opts domain.ListOpts) ([]domain.Bond, error) {
	return q.ledger.ListBonds(ctx, opts)
}

// InvestorPositions returns every investment held by investor.
func (q *Queries) InvestorPositions(ctx context.Context, investor string, opts domain.ListOpts) ([]domain.Investment, error) {
	if investor == "" {
		return nil, fmt.Errorf("%w: investor identity required", domain.ErrInvalidParameters)
	}
	return q.ledger.PositionsByInvestor(ctx, investor, opts)
}

// Distributions returns the distribution history of a bond.
func (q *Queries) Distributions(ctx context.Context, bondID string, opts domain.ListOpts) ([]domain.DistributionEvent, error) {
	if _, err := q.ledger.GetBond(ctx, bondID); err != nil {
		return nil, err
	}
	return q.ledger.ListDistributions(ctx, bondID, opts)
}
