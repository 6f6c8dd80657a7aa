package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/knowton/ipbond/internal/access"
	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/yield"
)

// RiskAssessor scores the underlying IP asset at issuance.
type RiskAssessor interface {
	Assess(ctx context.Context, assetID string, meta *domain.IPMetadata) (domain.RiskAssessment, error)
}

// TrancheAPY carries the per-tier annual rates for an issuance, in basis
// points.
type TrancheAPY struct {
	Senior    int64
	Mezzanine int64
	Junior    int64
}

// IssueParams are the caller-supplied parameters of one issuance.
type IssueParams struct {
	AssetID         string
	PrincipalTarget int64
	MaturesAt       time.Time
	APY             TrancheAPY
	Metadata        *domain.IPMetadata // optional, feeds the risk assessment
}

// Registry issues bonds: it validates parameters, scores the underlying
// asset, and creates the bond with its three tranches atomically.
type Registry struct {
	ledger domain.LedgerStore
	risks  domain.RiskStore
	acl    *access.Controller
	risk   RiskAssessor
	bus    domain.SignalBus
	auditl domain.AuditStore
	clock  Clock
	logger *slog.Logger
}

// NewRegistry creates a Registry. risk may be nil to skip asset scoring.
func NewRegistry(
	ledger domain.LedgerStore,
	risks domain.RiskStore,
	acl *access.Controller,
	risk RiskAssessor,
	bus domain.SignalBus,
	auditStore domain.AuditStore,
	clock Clock,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		ledger: ledger,
		risks:  risks,
		acl:    acl,
		risk:   risk,
		bus:    bus,
		auditl: auditStore,
		clock:  clock,
		logger: logger.With(slog.String("component", "registry")),
	}
}

// IssueBond validates params, creates the bond with its three tranches, and
// returns the new bond's ID. The caller must hold the issuer role.
func (r *Registry) IssueBond(ctx context.Context, caller string, params IssueParams) (string, error) {
	if err := r.acl.RequireRunning(ctx); err != nil {
		return "", err
	}
	if err := r.acl.RequireRole(ctx, caller, domain.RoleIssuer); err != nil {
		return "", err
	}

	now := r.clock.now()
	if err := validateIssueParams(params, now); err != nil {
		return "", err
	}

	// Score the underlying asset before any ledger write; an assessment
	// failure aborts issuance. Metadata is optional: without it there is
	// nothing to score, so the bond issues with no assessment on record.
	var assessment *domain.RiskAssessment
	if r.risk != nil && params.Metadata != nil {
		ra, err := r.risk.Assess(ctx, params.AssetID, params.Metadata)
		if err != nil {
			return "", fmt.Errorf("registry: assess asset %s: %w", params.AssetID, err)
		}
		assessment = &ra
	}

	caps, err := yield.SplitAllocation(params.PrincipalTarget)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidParameters, err)
	}

	bond := domain.Bond{
		ID:              uuid.New().String(),
		AssetID:         params.AssetID,
		Issuer:          caller,
		PrincipalTarget: params.PrincipalTarget,
		Status:          domain.BondActive,
		MaturesAt:       params.MaturesAt.UTC(),
		CreatedAt:       now,
	}

	rates := [3]int64{params.APY.Senior, params.APY.Mezzanine, params.APY.Junior}
	tranches := make([]domain.Tranche, 0, 3)
	for i, tier := range domain.Tiers {
		tranches = append(tranches, domain.Tranche{
			ID:            uuid.New().String(),
			BondID:        bond.ID,
			Tier:          tier,
			AllocationCap: caps[i],
			APYBps:        rates[i],
		})
	}

	if err := r.ledger.CreateBond(ctx, bond, tranches); err != nil {
		return "", fmt.Errorf("registry: create bond: %w", err)
	}
	if assessment != nil && r.risks != nil {
		if err := r.risks.Put(ctx, *assessment); err != nil {
			r.logger.WarnContext(ctx, "store risk assessment failed",
				slog.String("asset_id", params.AssetID),
				slog.String("error", err.Error()),
			)
		}
	}

	audit(ctx, r.auditl, r.logger, domain.EventBondIssued, map[string]any{
		"bond_id":          bond.ID,
		"asset_id":         bond.AssetID,
		"issuer":           caller,
		"principal_target": bond.PrincipalTarget,
		"matures_at":       bond.MaturesAt,
	})
	emit(ctx, r.bus, r.logger, domain.EventBondIssued, map[string]any{
		"bond_id":          bond.ID,
		"asset_id":         bond.AssetID,
		"issuer":           caller,
		"principal_target": bond.PrincipalTarget,
		"matures_at":       bond.MaturesAt.Format(time.RFC3339),
	})
	r.logger.InfoContext(ctx, "bond issued",
		slog.String("bond_id", bond.ID),
		slog.String("asset_id", bond.AssetID),
		slog.Int64("principal_target", bond.PrincipalTarget),
	)

	return bond.ID, nil
}

func validateIssueParams(params IssueParams, now time.Time) error {
	if params.AssetID == "" {
		return fmt.Errorf("%w: asset id required", domain.ErrInvalidParameters)
	}
	if params.PrincipalTarget <= 0 {
		return fmt.Errorf("%w: principal target must be positive", domain.ErrInvalidParameters)
	}
	if !params.MaturesAt.After(now) {
		return fmt.Errorf("%w: maturity must be in the future", domain.ErrInvalidParameters)
	}
	apy := params.APY
	if apy.Senior < 0 || apy.Mezzanine < 0 || apy.Junior < 0 {
		return fmt.Errorf("%w: negative apy", domain.ErrInvalidParameters)
	}
	// Risk-reward ordering: the riskier the tier, the higher its rate.
	if !(apy.Junior > apy.Mezzanine && apy.Mezzanine > apy.Senior) {
		return fmt.Errorf("%w: apy must be strictly increasing junior > mezzanine > senior", domain.ErrInvalidParameters)
	}
	return nil
}
