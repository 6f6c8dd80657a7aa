package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knowton/ipbond/internal/access"
	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/yield"
)

// RedemptionProcessor pays out positions once the bond is terminal. Payout
// is principal plus the position's pro-rata share of the tranche's
// distributable yield. It marks the position redeemed before the Redeemed
// event reaches the payments bridge, and the bond lock is held for the whole
// call, so a transfer callback can never re-enter a half-finished redemption.
type RedemptionProcessor struct {
	ledger domain.LedgerStore
	acl    *access.Controller
	locks  domain.LockManager
	bus    domain.SignalBus
	auditl domain.AuditStore
	clock  Clock
	logger *slog.Logger
}

// NewRedemptionProcessor creates a RedemptionProcessor.
func NewRedemptionProcessor(
	ledger domain.LedgerStore,
	acl *access.Controller,
	locks domain.LockManager,
	bus domain.SignalBus,
	auditStore domain.AuditStore,
	clock Clock,
	logger *slog.Logger,
) *RedemptionProcessor {
	return &RedemptionProcessor{
		ledger: ledger,
		acl:    acl,
		locks:  locks,
		bus:    bus,
		auditl: auditStore,
		clock:  clock,
		logger: logger.With(slog.String("component", "redemption")),
	}
}

// Redeem pays out one investment and returns the payout amount. Only the
// position's investor may redeem it, and only once; a second call fails with
// ErrAlreadyRedeemed no matter how it is interleaved.
func (rp *RedemptionProcessor) Redeem(ctx context.Context, caller, investmentID string) (int64, error) {
	if err := rp.acl.RequireRunning(ctx); err != nil {
		return 0, err
	}

	// Resolve the owning bond first; the authoritative re-read happens
	// under the bond lock below.
	inv, err := rp.ledger.GetInvestment(ctx, investmentID)
	if err != nil {
		return 0, err
	}
	if caller != inv.Investor {
		return 0, domain.ErrUnauthorized
	}

	release, err := rp.locks.Acquire(ctx, bondLockKey(inv.BondID), lockTTL)
	if err != nil {
		return 0, fmt.Errorf("redemption: lock bond %s: %w", inv.BondID, err)
	}
	defer release()

	inv, err = rp.ledger.GetInvestment(ctx, investmentID)
	if err != nil {
		return 0, err
	}
	if inv.Redeemed {
		return 0, domain.ErrAlreadyRedeemed
	}

	bond, err := rp.ledger.GetBond(ctx, inv.BondID)
	if err != nil {
		return 0, err
	}
	if !bond.Status.Terminal() {
		return 0, domain.ErrNotMatured
	}

	tranches, err := rp.ledger.TranchesByBond(ctx, inv.BondID)
	if err != nil {
		return 0, fmt.Errorf("redemption: load tranches: %w", err)
	}
	tranche, ok := findTrancheID(tranches, inv.TrancheID)
	if !ok {
		return 0, fmt.Errorf("redemption: investment %s references missing tranche %s: %w", inv.ID, inv.TrancheID, domain.ErrLedgerCorrupt)
	}

	share, err := yield.ProRata(inv.Principal, tranche.AccruedYield, tranche.SettledInvested)
	if err != nil {
		return 0, fmt.Errorf("redemption: yield share for %s: %w", inv.ID, domain.ErrLedgerCorrupt)
	}

	now := rp.clock.now()
	payout := inv.Principal + share

	inv.Redeemed = true
	inv.PayoutAmount = payout
	inv.RedeemedAt = &now
	// The paid share moves from the unpaid pot to YieldPaid so it keeps
	// counting against the entitlement in later distributions.
	tranche.AccruedYield -= share
	tranche.YieldPaid += share
	tranche.SettledInvested -= inv.Principal

	if tranche.AccruedYield < 0 || tranche.SettledInvested < 0 {
		return 0, fmt.Errorf("redemption: tranche %s would go negative: %w", tranche.ID, domain.ErrLedgerCorrupt)
	}

	// All local state is committed before the payout event leaves the
	// engine; the off-ledger transfer is driven by the Redeemed event.
	if err := rp.ledger.ApplyRedemption(ctx, tranche, inv); err != nil {
		return 0, fmt.Errorf("redemption: apply redemption: %w", err)
	}

	audit(ctx, rp.auditl, rp.logger, domain.EventRedeemed, map[string]any{
		"investment_id": inv.ID,
		"bond_id":       inv.BondID,
		"investor":      inv.Investor,
		"principal":     inv.Principal,
		"yield_share":   share,
		"payout":        payout,
	})
	emit(ctx, rp.bus, rp.logger, domain.EventRedeemed, map[string]any{
		"investment_id": inv.ID,
		"bond_id":       inv.BondID,
		"investor":      inv.Investor,
		"payout":        payout,
	})
	rp.logger.InfoContext(ctx, "investment redeemed",
		slog.String("investment_id", inv.ID),
		slog.String("bond_id", inv.BondID),
		slog.Int64("payout", payout),
	)

	return payout, nil
}

func findTrancheID(tranches []domain.Tranche, id string) (domain.Tranche, bool) {
	for _, t := range tranches {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Tranche{}, false
}
