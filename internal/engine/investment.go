package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/knowton/ipbond/internal/access"
	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/yield"
)

// InvestmentLedger records investor contributions per tranche and enforces
// the allocation caps. It owns Tranche.TotalInvested.
type InvestmentLedger struct {
	ledger domain.LedgerStore
	acl    *access.Controller
	locks  domain.LockManager
	bus    domain.SignalBus
	auditl domain.AuditStore
	clock  Clock
	logger *slog.Logger
}

// NewInvestmentLedger creates an InvestmentLedger.
func NewInvestmentLedger(
	ledger domain.LedgerStore,
	acl *access.Controller,
	locks domain.LockManager,
	bus domain.SignalBus,
	auditStore domain.AuditStore,
	clock Clock,
	logger *slog.Logger,
) *InvestmentLedger {
	return &InvestmentLedger{
		ledger: ledger,
		acl:    acl,
		locks:  locks,
		bus:    bus,
		auditl: auditStore,
		clock:  clock,
		logger: logger.With(slog.String("component", "investment_ledger")),
	}
}

// Invest records one contribution into a tranche. The whole call is rejected
// when the amount would breach the tranche's allocation cap; there are no
// partial fills. Repeated calls by the same investor create separate
// positions.
func (il *InvestmentLedger) Invest(ctx context.Context, bondID string, tier domain.TrancheTier, investor string, amount int64) (string, error) {
	if err := il.acl.RequireRunning(ctx); err != nil {
		return "", err
	}
	if investor == "" {
		return "", fmt.Errorf("%w: investor identity required", domain.ErrInvalidParameters)
	}
	if !tier.Valid() {
		return "", fmt.Errorf("%w: unknown tranche tier %q", domain.ErrInvalidParameters, tier)
	}
	if amount <= 0 {
		return "", domain.ErrInvalidAmount
	}

	release, err := il.locks.Acquire(ctx, bondLockKey(bondID), lockTTL)
	if err != nil {
		return "", fmt.Errorf("investment_ledger: lock bond %s: %w", bondID, err)
	}
	defer release()

	bond, err := il.ledger.GetBond(ctx, bondID)
	if err != nil {
		return "", err
	}
	if bond.Status != domain.BondActive {
		return "", domain.ErrBondNotActive
	}

	tranches, err := il.ledger.TranchesByBond(ctx, bondID)
	if err != nil {
		return "", fmt.Errorf("investment_ledger: load tranches: %w", err)
	}
	tranche, ok := findTier(tranches, tier)
	if !ok {
		return "", fmt.Errorf("investment_ledger: bond %s missing %s tranche: %w", bondID, tier, domain.ErrLedgerCorrupt)
	}

	if tranche.TotalInvested+amount > tranche.AllocationCap {
		return "", domain.ErrAllocationExceeded
	}

	now := il.clock.now()

	// Roll the contractual entitlement forward to now before the invested
	// base changes, so yield accrued by the old base is not recomputed
	// against the new one.
	if tranche.TotalInvested > 0 && !tranche.AccrualStart.IsZero() {
		earned, err := yield.Accrued(tranche.TotalInvested, tranche.APYBps, now.Sub(tranche.AccrualStart))
		if err != nil {
			return "", fmt.Errorf("investment_ledger: roll entitlement: %w", err)
		}
		tranche.YieldEntitled += earned
	}
	tranche.AccrualStart = now
	tranche.TotalInvested += amount

	inv := domain.Investment{
		ID:         uuid.New().String(),
		BondID:     bondID,
		TrancheID:  tranche.ID,
		Tier:       tier,
		Investor:   investor,
		Principal:  amount,
		InvestedAt: now,
	}

	if err := il.ledger.ApplyInvestment(ctx, tranche, inv); err != nil {
		return "", fmt.Errorf("investment_ledger: apply investment: %w", err)
	}

	audit(ctx, il.auditl, il.logger, domain.EventInvestmentRecorded, map[string]any{
		"investment_id": inv.ID,
		"bond_id":       bondID,
		"tier":          string(tier),
		"investor":      investor,
		"amount":        amount,
	})
	emit(ctx, il.bus, il.logger, domain.EventInvestmentRecorded, map[string]any{
		"investment_id": inv.ID,
		"bond_id":       bondID,
		"tier":          string(tier),
		"investor":      investor,
		"amount":        amount,
	})
	il.logger.InfoContext(ctx, "investment recorded",
		slog.String("investment_id", inv.ID),
		slog.String("bond_id", bondID),
		slog.String("tier", string(tier)),
		slog.Int64("amount", amount),
	)

	return inv.ID, nil
}

func findTier(tranches []domain.Tranche, tier domain.TrancheTier) (domain.Tranche, bool) {
	for _, t := range tranches {
		if t.Tier == tier {
			return t, true
		}
	}
	return domain.Tranche{}, false
}
