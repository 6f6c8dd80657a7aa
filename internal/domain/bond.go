// Package domain defines the core types, errors, and persistence interfaces
// for the IP-bond engine.
package domain

import "time"

// BondStatus is the lifecycle state of a bond.
type BondStatus string

const (
	BondActive    BondStatus = "active"
	BondMatured   BondStatus = "matured"
	BondDefaulted BondStatus = "defaulted"
)

// Terminal reports whether the status permits no further transitions.
func (s BondStatus) Terminal() bool {
	return s == BondMatured || s == BondDefaulted
}

// TrancheTier identifies one of the three fixed risk tiers of a bond.
type TrancheTier string

const (
	TierSenior    TrancheTier = "senior"
	TierMezzanine TrancheTier = "mezzanine"
	TierJunior    TrancheTier = "junior"
)

// Tiers lists the tranche tiers in waterfall priority order (senior first).
var Tiers = [3]TrancheTier{TierSenior, TierMezzanine, TierJunior}

// AllocationBps returns the tier's share of the bond principal target in
// basis points. Senior 50%, Mezzanine 33%, Junior 17%; the rounding
// remainder goes to Senior so the three caps always sum to the target.
func (t TrancheTier) AllocationBps() int64 {
	switch t {
	case TierSenior:
		return 5000
	case TierMezzanine:
		return 3300
	case TierJunior:
		return 1700
	}
	return 0
}

// Priority returns the waterfall rank of the tier; lower is paid first.
func (t TrancheTier) Priority() int {
	switch t {
	case TierSenior:
		return 0
	case TierMezzanine:
		return 1
	case TierJunior:
		return 2
	}
	return 3
}

// Valid reports whether t is one of the three known tiers.
func (t TrancheTier) Valid() bool {
	switch t {
	case TierSenior, TierMezzanine, TierJunior:
		return true
	}
	return false
}

// Bond is one structured issuance against a single underlying IP asset.
// All monetary amounts across the engine are int64 base units.
type Bond struct {
	ID              string
	AssetID         string // underlying IP-NFT identifier
	Issuer          string
	PrincipalTarget int64
	Status          BondStatus
	TotalRevenue    int64 // lifetime revenue routed through distributions
	MaturesAt       time.Time
	CreatedAt       time.Time
	ClosedAt        *time.Time // set when the bond reaches a terminal status
}

// Tranche is one risk tier of a bond. AccruedYield is the pot of yield
// credited by distributions and not yet paid out by redemptions; YieldPaid
// is the yield redemptions have already paid out of that pot.
type Tranche struct {
	ID            string
	BondID        string
	Tier          TrancheTier
	AllocationCap int64
	APYBps        int64
	TotalInvested int64
	YieldEntitled int64 // cumulative contractual entitlement at distribution points
	AccruedYield  int64 // credited by distributions, not yet paid by redemptions
	YieldPaid     int64 // cumulative yield paid out by redemptions
	AccrualStart  time.Time

	// SettledInvested is the principal base redemption pro-rates against.
	// Stamped from TotalInvested when the bond reaches a terminal status
	// and decremented as positions redeem, so payout shares do not depend
	// on the order in which investors redeem.
	SettledInvested int64
}

// OutstandingEntitlement is the contractual yield the tranche is still owed
// from amounts already rolled into YieldEntitled. Both the unpaid credited
// pot and yield already paid out count against the entitlement, so a
// redemption can never make its share payable a second time.
func (t Tranche) OutstandingEntitlement() int64 {
	return t.YieldEntitled - t.AccruedYield - t.YieldPaid
}

// BondInfo bundles a bond with its tranches and optional risk assessment for
// read-only callers.
type BondInfo struct {
	Bond     Bond
	Tranches []Tranche
	Risk     *RiskAssessment
}
