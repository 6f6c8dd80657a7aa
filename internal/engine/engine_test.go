package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/ipbond/internal/access"
	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/risk"
	"github.com/knowton/ipbond/internal/store/memory"
)

const (
	issuerID   = "0xissuer"
	adminID    = "0xadmin"
	investorID = "0xinvestor"
	year       = 365 * 24 * time.Hour
)

type fixture struct {
	ledger   *memory.Ledger
	roles    *memory.RoleStore
	pause    *memory.PauseSwitch
	bus      *memory.SignalBus
	auditlog *memory.AuditStore
	acl      *access.Controller

	registry *Registry
	invest   *InvestmentLedger
	dist     *DistributionEngine
	life     *Lifecycle
	redeem   *RedemptionProcessor
	queries  *Queries

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))

	f := &fixture{
		ledger:   memory.NewLedger(),
		roles:    memory.NewRoleStore(),
		pause:    memory.NewPauseSwitch(),
		bus:      memory.NewSignalBus(),
		auditlog: memory.NewAuditStore(),
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.acl = access.NewController(f.roles, f.pause, logger)

	ctx := context.Background()
	require.NoError(t, f.roles.Grant(ctx, issuerID, domain.RoleIssuer))
	require.NoError(t, f.roles.Grant(ctx, adminID, domain.RoleAdmin))

	clock := Clock(func() time.Time { return f.now })
	locks := memory.NewLockManager()
	risks := memory.NewRiskStore()

	f.registry = NewRegistry(f.ledger, risks, f.acl, nil, f.bus, f.auditlog, clock, logger)
	f.invest = NewInvestmentLedger(f.ledger, f.acl, locks, f.bus, f.auditlog, clock, logger)
	f.dist = NewDistributionEngine(f.ledger, f.acl, locks, f.bus, f.auditlog, clock, logger)
	f.life = NewLifecycle(f.ledger, f.acl, locks, f.bus, f.auditlog, nil, clock, logger)
	f.redeem = NewRedemptionProcessor(f.ledger, f.acl, locks, f.bus, f.auditlog, clock, logger)
	f.queries = NewQueries(f.ledger, risks, logger)

	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (f *fixture) issueParams() IssueParams {
	return IssueParams{
		AssetID:         "ipnft-42",
		PrincipalTarget: 100_000,
		MaturesAt:       f.now.Add(year),
		APY:             TrancheAPY{Senior: 500, Mezzanine: 1000, Junior: 2000},
	}
}

func (f *fixture) issue(t *testing.T) string {
	t.Helper()
	id, err := f.registry.IssueBond(context.Background(), issuerID, f.issueParams())
	require.NoError(t, err)
	return id
}

func (f *fixture) tranche(t *testing.T, bondID string, tier domain.TrancheTier) domain.Tranche {
	t.Helper()
	tranches, err := f.ledger.TranchesByBond(context.Background(), bondID)
	require.NoError(t, err)
	tr, ok := findTier(tranches, tier)
	require.True(t, ok)
	return tr
}

func TestIssueBondCreatesTranches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bondID := f.issue(t)

	info, err := f.queries.BondInfo(ctx, bondID)
	require.NoError(t, err)
	assert.Equal(t, domain.BondActive, info.Bond.Status)
	assert.Equal(t, issuerID, info.Bond.Issuer)
	require.Len(t, info.Tranches, 3)

	// Priority order and 50/33/17 caps summing to the target.
	assert.Equal(t, domain.TierSenior, info.Tranches[0].Tier)
	assert.Equal(t, domain.TierMezzanine, info.Tranches[1].Tier)
	assert.Equal(t, domain.TierJunior, info.Tranches[2].Tier)
	assert.Equal(t, int64(50_000), info.Tranches[0].AllocationCap)
	assert.Equal(t, int64(33_000), info.Tranches[1].AllocationCap)
	assert.Equal(t, int64(17_000), info.Tranches[2].AllocationCap)
}

func TestIssueBondAllocationSumInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, target := range []int64{1, 3, 99, 101, 12_345, 999_999_999} {
		params := f.issueParams()
		params.PrincipalTarget = target
		bondID, err := f.registry.IssueBond(ctx, issuerID, params)
		require.NoError(t, err)

		tranches, err := f.ledger.TranchesByBond(ctx, bondID)
		require.NoError(t, err)
		var sum int64
		for _, tr := range tranches {
			sum += tr.AllocationCap
		}
		assert.Equal(t, target, sum, "caps must sum to target %d", target)
	}
}

func TestIssueBondValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*IssueParams)
	}{
		{"zero target", func(p *IssueParams) { p.PrincipalTarget = 0 }},
		{"negative target", func(p *IssueParams) { p.PrincipalTarget = -1 }},
		{"maturity in the past", func(p *IssueParams) { p.MaturesAt = f.now.Add(-time.Hour) }},
		{"maturity exactly now", func(p *IssueParams) { p.MaturesAt = f.now }},
		{"missing asset", func(p *IssueParams) { p.AssetID = "" }},
		{"negative apy", func(p *IssueParams) { p.APY.Senior = -1 }},
		{"flat apy ordering", func(p *IssueParams) { p.APY = TrancheAPY{Senior: 500, Mezzanine: 500, Junior: 2000} }},
		{"inverted apy ordering", func(p *IssueParams) { p.APY = TrancheAPY{Senior: 2000, Mezzanine: 1000, Junior: 500} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := f.issueParams()
			tt.mutate(&params)
			_, err := f.registry.IssueBond(ctx, issuerID, params)
			assert.ErrorIs(t, err, domain.ErrInvalidParameters)
		})
	}
}

func TestIssueBondMetadataOptionalWithRiskEngine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	risks := memory.NewRiskStore()
	registry := NewRegistry(
		f.ledger, risks, f.acl,
		risk.New(nil, nil, func() time.Time { return f.now }, logger),
		f.bus, f.auditlog, Clock(func() time.Time { return f.now }), logger,
	)

	// No metadata: the issuance succeeds with no assessment on record.
	bondID, err := registry.IssueBond(ctx, issuerID, f.issueParams())
	require.NoError(t, err)
	_, err = risks.Get(ctx, "ipnft-42")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bond, err := f.ledger.GetBond(ctx, bondID)
	require.NoError(t, err)
	assert.Equal(t, domain.BondActive, bond.Status)

	// With metadata the same registry scores and stores the assessment.
	params := f.issueParams()
	params.AssetID = "ipnft-43"
	params.Metadata = &domain.IPMetadata{
		Category:  "music",
		Creator:   "0xcreator",
		CreatedAt: f.now.Add(-2 * year),
		Views:     25_000,
		Likes:     2_000,
	}
	_, err = registry.IssueBond(ctx, issuerID, params)
	require.NoError(t, err)
	ra, err := risks.Get(ctx, "ipnft-43")
	require.NoError(t, err)
	assert.NotEmpty(t, ra.Rating)
}

func TestIssueBondRequiresIssuerRole(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.IssueBond(context.Background(), investorID, f.issueParams())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestInvestCapEnforcement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	// Fill the senior cap exactly.
	_, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 50_000)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), f.tranche(t, bondID, domain.TierSenior).TotalInvested)

	// One more unit must be rejected whole, with no partial fill.
	_, err = f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 1)
	assert.ErrorIs(t, err, domain.ErrAllocationExceeded)
	assert.Equal(t, int64(50_000), f.tranche(t, bondID, domain.TierSenior).TotalInvested)
}

func TestInvestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	_, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, -100)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.invest.Invest(ctx, bondID, "equity", investorID, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)

	_, err = f.invest.Invest(ctx, "no-such-bond", domain.TierSenior, investorID, 100)
	assert.ErrorIs(t, err, domain.ErrBondNotFound)
}

func TestInvestMultiplePositionsPerInvestor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	id1, err := f.invest.Invest(ctx, bondID, domain.TierJunior, investorID, 5_000)
	require.NoError(t, err)
	id2, err := f.invest.Invest(ctx, bondID, domain.TierJunior, investorID, 5_000)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2, "each invest call creates a new position")

	positions, err := f.queries.InvestorPositions(ctx, investorID, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestInvestRejectedOnTerminalBond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	require.NoError(t, f.life.MarkDefaulted(ctx, issuerID, bondID))

	_, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 100)
	assert.ErrorIs(t, err, domain.ErrBondNotActive)
}

func TestDistributeWaterfallPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	_, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 50_000)
	require.NoError(t, err)
	_, err = f.invest.Invest(ctx, bondID, domain.TierMezzanine, investorID, 33_000)
	require.NoError(t, err)
	_, err = f.invest.Invest(ctx, bondID, domain.TierJunior, investorID, 17_000)
	require.NoError(t, err)

	// One year of accrual: senior 2500, mezzanine 3300, junior 3400.
	f.now = f.now.Add(year)

	// Less than senior's entitlement: mezzanine and junior see nothing.
	res, err := f.dist.Distribute(ctx, issuerID, bondID, 1_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), res.SeniorApplied)
	assert.Zero(t, res.MezzApplied)
	assert.Zero(t, res.JuniorApplied)
	assert.Zero(t, res.Excess)
	assert.Zero(t, f.tranche(t, bondID, domain.TierMezzanine).AccruedYield)
	assert.Zero(t, f.tranche(t, bondID, domain.TierJunior).AccruedYield)

	// Enough for everything: all outstanding entitlements satisfied and the
	// remainder surfaced as excess.
	res, err = f.dist.Distribute(ctx, issuerID, bondID, 20_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), res.SeniorApplied) // 2500 - 1000 already paid
	assert.Equal(t, int64(3_300), res.MezzApplied)
	assert.Equal(t, int64(3_400), res.JuniorApplied)
	assert.Equal(t, int64(11_800), res.Excess)
}

func TestDistributePartialWaterfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	_, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 50_000)
	require.NoError(t, err)
	_, err = f.invest.Invest(ctx, bondID, domain.TierMezzanine, investorID, 33_000)
	require.NoError(t, err)

	f.now = f.now.Add(year)

	// Covers senior (2500) fully and mezzanine (3300) partially.
	res, err := f.dist.Distribute(ctx, issuerID, bondID, 4_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), res.SeniorApplied)
	assert.Equal(t, int64(1_500), res.MezzApplied)
	assert.Zero(t, res.JuniorApplied)
	assert.Zero(t, res.Excess)

	// The unpaid mezzanine carry is honored by the next distribution.
	res, err = f.dist.Distribute(ctx, issuerID, bondID, 1_800)
	require.NoError(t, err)
	assert.Zero(t, res.SeniorApplied)
	assert.Equal(t, int64(1_800), res.MezzApplied)
}

func TestDistributeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	_, err := f.dist.Distribute(ctx, issuerID, bondID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.dist.Distribute(ctx, issuerID, "no-such-bond", 100)
	assert.ErrorIs(t, err, domain.ErrBondNotFound)

	_, err = f.dist.Distribute(ctx, investorID, bondID, 100)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDistributeOnDefaultedBond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	_, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 50_000)
	require.NoError(t, err)

	f.now = f.now.Add(year / 2)
	require.NoError(t, f.life.MarkDefaulted(ctx, issuerID, bondID))

	// Half a year of senior accrual (1250) is frozen at default; recovered
	// funds still flow through the waterfall afterwards.
	f.now = f.now.Add(year)
	res, err := f.dist.Distribute(ctx, issuerID, bondID, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_250), res.SeniorApplied)
	assert.Equal(t, int64(8_750), res.Excess)
}

func TestLifecycleMaturityGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	err := f.life.MarkMatured(ctx, issuerID, bondID)
	assert.ErrorIs(t, err, domain.ErrMaturityNotReached)

	f.now = f.now.Add(year - time.Second)
	err = f.life.MarkMatured(ctx, issuerID, bondID)
	assert.ErrorIs(t, err, domain.ErrMaturityNotReached)

	f.now = f.now.Add(time.Second)
	require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))

	bond, err := f.ledger.GetBond(ctx, bondID)
	require.NoError(t, err)
	assert.Equal(t, domain.BondMatured, bond.Status)
	require.NotNil(t, bond.ClosedAt)
}

func TestLifecycleMonotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	require.NoError(t, f.life.MarkDefaulted(ctx, issuerID, bondID))

	f.now = f.now.Add(2 * year)
	assert.ErrorIs(t, f.life.MarkMatured(ctx, issuerID, bondID), domain.ErrBondNotActive)
	assert.ErrorIs(t, f.life.MarkDefaulted(ctx, issuerID, bondID), domain.ErrBondNotActive)

	bond, err := f.ledger.GetBond(ctx, bondID)
	require.NoError(t, err)
	assert.Equal(t, domain.BondDefaulted, bond.Status)
}

func TestLifecycleRequiresIssuerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	assert.ErrorIs(t, f.life.MarkDefaulted(ctx, investorID, bondID), domain.ErrUnauthorized)
}

func TestRedeemRejectedWhileActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	invID, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 10_000)
	require.NoError(t, err)

	// Any elapsed time short of a lifecycle transition keeps the gate shut.
	f.now = f.now.Add(2 * year)
	_, err = f.redeem.Redeem(ctx, investorID, invID)
	assert.ErrorIs(t, err, domain.ErrNotMatured)
}

func TestRedeemPaysPrincipalPlusProRataYield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	invA, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 40_000)
	require.NoError(t, err)
	invB, err := f.invest.Invest(ctx, bondID, domain.TierSenior, "0xother", 10_000)
	require.NoError(t, err)

	f.now = f.now.Add(year)
	// Senior entitlement for the year: 50000 * 5% = 2500.
	_, err = f.dist.Distribute(ctx, issuerID, bondID, 2_500)
	require.NoError(t, err)

	require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))

	payoutA, err := f.redeem.Redeem(ctx, investorID, invA)
	require.NoError(t, err)
	assert.Equal(t, int64(40_000+2_000), payoutA)

	payoutB, err := f.redeem.Redeem(ctx, "0xother", invB)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000+500), payoutB)

	// The tranche pool is fully drained.
	assert.Zero(t, f.tranche(t, bondID, domain.TierSenior).AccruedYield)
	assert.Zero(t, f.tranche(t, bondID, domain.TierSenior).SettledInvested)
}

func TestDistributeAfterRedemptionDoesNotRecreditPaidYield(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	invA, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 40_000)
	require.NoError(t, err)
	invB, err := f.invest.Invest(ctx, bondID, domain.TierSenior, "0xother", 10_000)
	require.NoError(t, err)

	f.now = f.now.Add(year)
	// Senior entitlement for the year (2500) is paid in full.
	_, err = f.dist.Distribute(ctx, issuerID, bondID, 2_500)
	require.NoError(t, err)
	require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))

	payoutA, err := f.redeem.Redeem(ctx, investorID, invA)
	require.NoError(t, err)
	assert.Equal(t, int64(42_000), payoutA)

	// The yield paid to A must stay counted against the entitlement: a
	// later distribution has nothing left to credit and surfaces whole
	// as excess.
	res, err := f.dist.Distribute(ctx, issuerID, bondID, 10_000)
	require.NoError(t, err)
	assert.Zero(t, res.SeniorApplied)
	assert.Equal(t, int64(10_000), res.Excess)

	payoutB, err := f.redeem.Redeem(ctx, "0xother", invB)
	require.NoError(t, err)
	assert.Equal(t, int64(10_500), payoutB)
}

func TestRedeemShareIndependentOfOrder(t *testing.T) {
	run := func(t *testing.T, first, second string) (int64, int64) {
		f := newFixture(t)
		ctx := context.Background()
		bondID := f.issue(t)

		ids := map[string]string{}
		var err error
		ids[investorID], err = f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 30_000)
		require.NoError(t, err)
		ids["0xother"], err = f.invest.Invest(ctx, bondID, domain.TierSenior, "0xother", 20_000)
		require.NoError(t, err)

		f.now = f.now.Add(year)
		_, err = f.dist.Distribute(ctx, issuerID, bondID, 2_500)
		require.NoError(t, err)
		require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))

		p1, err := f.redeem.Redeem(ctx, first, ids[first])
		require.NoError(t, err)
		p2, err := f.redeem.Redeem(ctx, second, ids[second])
		require.NoError(t, err)
		if first == investorID {
			return p1, p2
		}
		return p2, p1
	}

	aFirst, bFirst := run(t, investorID, "0xother")
	aSecond, bSecond := run(t, "0xother", investorID)
	assert.Equal(t, aFirst, aSecond, "payout must not depend on redemption order")
	assert.Equal(t, bFirst, bSecond, "payout must not depend on redemption order")
}

func TestRedeemIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	invID, err := f.invest.Invest(ctx, bondID, domain.TierJunior, investorID, 1_000)
	require.NoError(t, err)

	f.now = f.now.Add(year)
	require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))

	payout, err := f.redeem.Redeem(ctx, investorID, invID)
	require.NoError(t, err)

	_, err = f.redeem.Redeem(ctx, investorID, invID)
	assert.ErrorIs(t, err, domain.ErrAlreadyRedeemed)

	// The recorded payout is unchanged by the failed second call.
	inv, err := f.ledger.GetInvestment(ctx, invID)
	require.NoError(t, err)
	assert.True(t, inv.Redeemed)
	assert.Equal(t, payout, inv.PayoutAmount)
}

func TestRedeemOnlyByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	invID, err := f.invest.Invest(ctx, bondID, domain.TierJunior, investorID, 1_000)
	require.NoError(t, err)
	f.now = f.now.Add(year)
	require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))

	_, err = f.redeem.Redeem(ctx, "0xstranger", invID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.redeem.Redeem(ctx, investorID, "no-such-investment")
	assert.ErrorIs(t, err, domain.ErrInvestmentNotFound)
}

func TestRedeemAfterDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)

	invID, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 10_000)
	require.NoError(t, err)

	require.NoError(t, f.life.MarkDefaulted(ctx, issuerID, bondID))

	payout, err := f.redeem.Redeem(ctx, investorID, invID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), payout, "no yield distributed, principal only")
}

func TestPauseBlocksMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bondID := f.issue(t)
	invID, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 1_000)
	require.NoError(t, err)

	require.NoError(t, f.acl.SetPaused(ctx, adminID, true))

	_, err = f.registry.IssueBond(ctx, issuerID, f.issueParams())
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 1)
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = f.dist.Distribute(ctx, issuerID, bondID, 100)
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, err = f.redeem.Redeem(ctx, investorID, invID)
	assert.ErrorIs(t, err, domain.ErrPaused)
	assert.ErrorIs(t, f.life.MarkDefaulted(ctx, issuerID, bondID), domain.ErrPaused)

	// Unpause restores normal operation.
	require.NoError(t, f.acl.SetPaused(ctx, adminID, false))
	_, err = f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 1)
	assert.NoError(t, err)
}

func TestPauseRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.acl.SetPaused(context.Background(), issuerID, true), domain.ErrUnauthorized)
}

func TestBondLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Issue: target 100000, maturity now+365d, APYs 500/1000/2000 bps.
	bondID := f.issue(t)
	tranches, err := f.ledger.TranchesByBond(ctx, bondID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), tranches[0].AllocationCap)
	assert.Equal(t, int64(33_000), tranches[1].AllocationCap)
	assert.Equal(t, int64(17_000), tranches[2].AllocationCap)

	// Fill the senior cap exactly; one more unit fails.
	invID, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 50_000)
	require.NoError(t, err)
	_, err = f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 1)
	assert.ErrorIs(t, err, domain.ErrAllocationExceeded)

	f.now = f.now.Add(year)

	// Distribution before markMatured still succeeds; redemption does not.
	res, err := f.dist.Distribute(ctx, issuerID, bondID, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), res.SeniorApplied)
	assert.Equal(t, int64(7_500), res.Excess)

	_, err = f.redeem.Redeem(ctx, investorID, invID)
	assert.ErrorIs(t, err, domain.ErrNotMatured)

	require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))

	payout, err := f.redeem.Redeem(ctx, investorID, invID)
	require.NoError(t, err)
	assert.Equal(t, int64(52_500), payout)
}

func TestEventsReachTheStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bondID := f.issue(t)
	invID, err := f.invest.Invest(ctx, bondID, domain.TierSenior, investorID, 50_000)
	require.NoError(t, err)
	f.now = f.now.Add(year)
	_, err = f.dist.Distribute(ctx, issuerID, bondID, 2_500)
	require.NoError(t, err)
	require.NoError(t, f.life.MarkMatured(ctx, issuerID, bondID))
	_, err = f.redeem.Redeem(ctx, investorID, invID)
	require.NoError(t, err)

	msgs, err := f.bus.StreamRead(ctx, domain.EventStream, "0", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	var types []string
	for _, m := range msgs {
		var body map[string]any
		require.NoError(t, json.Unmarshal(m.Payload, &body))
		types = append(types, body["event"].(string))
	}
	assert.Equal(t, []string{
		domain.EventBondIssued,
		domain.EventInvestmentRecorded,
		domain.EventRevenueDistributed,
		domain.EventBondMatured,
		domain.EventRedeemed,
	}, types)
}
