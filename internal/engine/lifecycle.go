package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knowton/ipbond/internal/access"
	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/yield"
)

// Notifier receives issuer-facing alerts on lifecycle transitions.
type Notifier interface {
	Notify(ctx context.Context, event string, message string)
}

// Lifecycle drives bond status transitions. Active is the only non-terminal
// state; Matured and Defaulted are terminal and irreversible. It owns
// Bond.Status and Tranche.SettledInvested.
type Lifecycle struct {
	ledger   domain.LedgerStore
	acl      *access.Controller
	locks    domain.LockManager
	bus      domain.SignalBus
	auditl   domain.AuditStore
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
}

// NewLifecycle creates a Lifecycle. notifier may be nil.
func NewLifecycle(
	ledger domain.LedgerStore,
	acl *access.Controller,
	locks domain.LockManager,
	bus domain.SignalBus,
	auditStore domain.AuditStore,
	notifier Notifier,
	clock Clock,
	logger *slog.Logger,
) *Lifecycle {
	return &Lifecycle{
		ledger:   ledger,
		acl:      acl,
		locks:    locks,
		bus:      bus,
		auditl:   auditStore,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(slog.String("component", "lifecycle")),
	}
}

// MarkMatured transitions an Active bond to Matured once its maturity
// timestamp has passed. Early calls fail with ErrMaturityNotReached.
func (lc *Lifecycle) MarkMatured(ctx context.Context, caller, bondID string) error {
	return lc.transition(ctx, caller, bondID, domain.BondMatured)
}

// MarkDefaulted transitions an Active bond to Defaulted. This is an
// issuer-declared credit event and is allowed at any time before maturity.
func (lc *Lifecycle) MarkDefaulted(ctx context.Context, caller, bondID string) error {
	return lc.transition(ctx, caller, bondID, domain.BondDefaulted)
}

func (lc *Lifecycle) transition(ctx context.Context, caller, bondID string, target domain.BondStatus) error {
	if err := lc.acl.RequireRunning(ctx); err != nil {
		return err
	}
	if err := lc.acl.RequireRole(ctx, caller, domain.RoleIssuer); err != nil {
		return err
	}

	release, err := lc.locks.Acquire(ctx, bondLockKey(bondID), lockTTL)
	if err != nil {
		return fmt.Errorf("lifecycle: lock bond %s: %w", bondID, err)
	}
	defer release()

	bond, err := lc.ledger.GetBond(ctx, bondID)
	if err != nil {
		return err
	}
	if bond.Status != domain.BondActive {
		return domain.ErrBondNotActive
	}

	now := lc.clock.now()
	if target == domain.BondMatured && now.Before(bond.MaturesAt) {
		return domain.ErrMaturityNotReached
	}

	tranches, err := lc.ledger.TranchesByBond(ctx, bondID)
	if err != nil {
		return fmt.Errorf("lifecycle: load tranches: %w", err)
	}

	// Freeze accrual: roll every entitlement clock to the transition moment
	// and stamp the settlement base redemption will pro-rate against.
	for i := range tranches {
		t := &tranches[i]
		if t.TotalInvested > 0 && !t.AccrualStart.IsZero() {
			earned, err := yield.Accrued(t.TotalInvested, t.APYBps, now.Sub(t.AccrualStart))
			if err != nil {
				return fmt.Errorf("lifecycle: settle %s tranche: %w", t.Tier, err)
			}
			t.YieldEntitled += earned
			t.AccrualStart = now
		}
		t.SettledInvested = t.TotalInvested
	}

	bond.Status = target
	bond.ClosedAt = &now

	if err := lc.ledger.ApplyTransition(ctx, bond, tranches); err != nil {
		return fmt.Errorf("lifecycle: apply transition: %w", err)
	}

	event := domain.EventBondMatured
	if target == domain.BondDefaulted {
		event = domain.EventBondDefaulted
	}
	audit(ctx, lc.auditl, lc.logger, event, map[string]any{
		"bond_id": bondID,
		"caller":  caller,
		"status":  string(target),
	})
	emit(ctx, lc.bus, lc.logger, event, map[string]any{
		"bond_id": bondID,
		"status":  string(target),
	})
	if lc.notifier != nil {
		switch target {
		case domain.BondMatured:
			lc.notifier.Notify(ctx, event, fmt.Sprintf("Bond %s matured; redemption window open", bondID))
		case domain.BondDefaulted:
			lc.notifier.Notify(ctx, event, fmt.Sprintf("Bond %s marked DEFAULTED by %s", bondID, caller))
		}
	}
	lc.logger.InfoContext(ctx, "bond transitioned",
		slog.String("bond_id", bondID),
		slog.String("status", string(target)),
	)

	return nil
}
