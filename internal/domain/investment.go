package domain

import "time"

// Investment is one investor's position in one tranche. Principal is
// immutable after creation; Redeemed transitions false to true exactly once.
type Investment struct {
	ID           string
	BondID       string
	TrancheID    string
	Tier         TrancheTier
	Investor     string
	Principal    int64
	InvestedAt   time.Time
	Redeemed     bool
	PayoutAmount int64 // set once, on redemption
	RedeemedAt   *time.Time
}

// DistributionEvent is the append-only audit record of one revenue
// distribution. Applied amounts are ordered senior, mezzanine, junior.
type DistributionEvent struct {
	ID      string
	BondID  string
	Revenue int64
	Applied [3]int64
	Excess  int64
	At      time.Time
}

// DistributionResult is returned to the caller of a distribution; Excess is
// revenue beyond all three tranches' entitlements, surfaced rather than
// absorbed.
type DistributionResult struct {
	SeniorApplied int64
	MezzApplied   int64
	JuniorApplied int64
	Excess        int64
}
