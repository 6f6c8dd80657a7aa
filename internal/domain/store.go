package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore is the durable, transactional state of the engine: bonds with
// their tranches, investor positions, and the distribution history. Each
// Apply* method commits its writes atomically; either every row mutation in
// the call is visible afterwards or none is. Field ownership is split across
// the engine components, so no two components ever write the same column
// through different Apply methods.
type LedgerStore interface {
	// CreateBond persists a bond together with its three tranches.
	CreateBond(ctx context.Context, bond Bond, tranches []Tranche) error
	GetBond(ctx context.Context, id string) (Bond, error)
	ListBonds(ctx context.Context, opts ListOpts) ([]Bond, error)
	// ListMaturedCandidates returns Active bonds whose maturity timestamp is
	// at or before the cutoff. Used by the maturity sweeper.
	ListMaturedCandidates(ctx context.Context, cutoff time.Time) ([]Bond, error)

	// TranchesByBond returns the bond's tranches in priority order
	// (senior, mezzanine, junior).
	TranchesByBond(ctx context.Context, bondID string) ([]Tranche, error)

	GetInvestment(ctx context.Context, id string) (Investment, error)
	PositionsByInvestor(ctx context.Context, investor string, opts ListOpts) ([]Investment, error)
	InvestmentsByTranche(ctx context.Context, trancheID string) ([]Investment, error)

	// ApplyInvestment inserts the investment and writes back the updated
	// tranche (totalInvested, entitlement roll-forward) in one transaction.
	ApplyInvestment(ctx context.Context, tranche Tranche, inv Investment) error

	// ApplyDistribution writes back the bond revenue counter, all updated
	// tranches, and appends the distribution event in one transaction.
	ApplyDistribution(ctx context.Context, bond Bond, tranches []Tranche, evt DistributionEvent) error

	// ApplyTransition writes the bond's terminal status and the settlement
	// snapshots on its tranches in one transaction.
	ApplyTransition(ctx context.Context, bond Bond, tranches []Tranche) error

	// ApplyRedemption marks the investment redeemed and writes back the
	// tranche's remaining distributable yield in one transaction.
	ApplyRedemption(ctx context.Context, tranche Tranche, inv Investment) error

	ListDistributions(ctx context.Context, bondID string, opts ListOpts) ([]DistributionEvent, error)
	// ListDistributionsBefore and DeleteDistributionsBefore support the
	// cold-storage archiver.
	ListDistributionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]DistributionEvent, error)
	DeleteDistributionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RiskStore persists issuance-time risk assessments.
type RiskStore interface {
	Put(ctx context.Context, ra RiskAssessment) error
	Get(ctx context.Context, assetID string) (RiskAssessment, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
