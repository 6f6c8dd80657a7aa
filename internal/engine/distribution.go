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

// DistributionEngine applies incoming revenue to tranches through the strict
// priority waterfall. It owns Tranche.YieldEntitled, Tranche.AccrualStart,
// and (jointly with the redemption processor) Tranche.AccruedYield.
type DistributionEngine struct {
	ledger domain.LedgerStore
	acl    *access.Controller
	locks  domain.LockManager
	bus    domain.SignalBus
	auditl domain.AuditStore
	clock  Clock
	logger *slog.Logger
}

// NewDistributionEngine creates a DistributionEngine.
func NewDistributionEngine(
	ledger domain.LedgerStore,
	acl *access.Controller,
	locks domain.LockManager,
	bus domain.SignalBus,
	auditStore domain.AuditStore,
	clock Clock,
	logger *slog.Logger,
) *DistributionEngine {
	return &DistributionEngine{
		ledger: ledger,
		acl:    acl,
		locks:  locks,
		bus:    bus,
		auditl: auditStore,
		clock:  clock,
		logger: logger.With(slog.String("component", "distribution_engine")),
	}
}

// Distribute routes amount through the waterfall: senior's outstanding
// entitlement is satisfied in full before mezzanine sees anything, then
// junior. Revenue beyond all three entitlements is reported back as excess,
// never absorbed into the ledger. Distribution is status-independent so a
// defaulted bond can still route recovered funds.
func (de *DistributionEngine) Distribute(ctx context.Context, caller, bondID string, amount int64) (domain.DistributionResult, error) {
	var zero domain.DistributionResult

	if err := de.acl.RequireRunning(ctx); err != nil {
		return zero, err
	}
	if err := de.acl.RequireRole(ctx, caller, domain.RoleIssuer); err != nil {
		return zero, err
	}
	if amount <= 0 {
		return zero, domain.ErrInvalidAmount
	}

	release, err := de.locks.Acquire(ctx, bondLockKey(bondID), lockTTL)
	if err != nil {
		return zero, fmt.Errorf("distribution_engine: lock bond %s: %w", bondID, err)
	}
	defer release()

	bond, err := de.ledger.GetBond(ctx, bondID)
	if err != nil {
		return zero, err
	}
	tranches, err := de.ledger.TranchesByBond(ctx, bondID)
	if err != nil {
		return zero, fmt.Errorf("distribution_engine: load tranches: %w", err)
	}

	now := de.clock.now()
	remaining := amount
	var applied [3]int64

	// TranchesByBond returns priority order: senior, mezzanine, junior.
	for i := range tranches {
		t := &tranches[i]

		// Roll the entitlement clock forward. Accrual is frozen once the
		// bond is terminal; only the outstanding carry remains payable.
		if !bond.Status.Terminal() && t.TotalInvested > 0 && !t.AccrualStart.IsZero() {
			earned, err := yield.Accrued(t.TotalInvested, t.APYBps, now.Sub(t.AccrualStart))
			if err != nil {
				return zero, fmt.Errorf("distribution_engine: accrue %s tranche: %w", t.Tier, err)
			}
			t.YieldEntitled += earned
			t.AccrualStart = now
		}

		outstanding := t.OutstandingEntitlement()
		if outstanding < 0 {
			return zero, fmt.Errorf("distribution_engine: negative entitlement on %s tranche of bond %s: %w", t.Tier, bondID, domain.ErrLedgerCorrupt)
		}

		// Lower-priority tranches still get their entitlement clocks rolled
		// even when nothing is left to pay them this round.
		pay := min(remaining, outstanding)
		t.AccruedYield += pay
		applied[i] = pay
		remaining -= pay
	}

	excess := remaining
	bond.TotalRevenue += amount - excess

	evt := domain.DistributionEvent{
		ID:      uuid.New().String(),
		BondID:  bondID,
		Revenue: amount,
		Applied: applied,
		Excess:  excess,
		At:      now,
	}
	if err := de.ledger.ApplyDistribution(ctx, bond, tranches, evt); err != nil {
		return zero, fmt.Errorf("distribution_engine: apply distribution: %w", err)
	}

	result := domain.DistributionResult{
		SeniorApplied: applied[0],
		MezzApplied:   applied[1],
		JuniorApplied: applied[2],
		Excess:        excess,
	}

	audit(ctx, de.auditl, de.logger, domain.EventRevenueDistributed, map[string]any{
		"bond_id":        bondID,
		"revenue":        amount,
		"senior_applied": applied[0],
		"mezz_applied":   applied[1],
		"junior_applied": applied[2],
		"excess":         excess,
	})
	emit(ctx, de.bus, de.logger, domain.EventRevenueDistributed, map[string]any{
		"bond_id":        bondID,
		"revenue":        amount,
		"senior_applied": applied[0],
		"mezz_applied":   applied[1],
		"junior_applied": applied[2],
		"excess":         excess,
	})
	de.logger.InfoContext(ctx, "revenue distributed",
		slog.String("bond_id", bondID),
		slog.Int64("revenue", amount),
		slog.Int64("excess", excess),
	)

	return result, nil
}
