package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/engine"
	"github.com/knowton/ipbond/internal/server/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// identityHandler injects a fixed caller identity the way the auth
// middleware would.
func withIdentity(identity string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), identity)))
	})
}

type stubEngine struct {
	issuedParams engine.IssueParams
	issuedCaller string
	issueErr     error

	investTier   domain.TrancheTier
	investAmount int64
	investErr    error

	distributed int64
	distErr     error

	transitions []string
	transErr    error

	redeemPayout int64
	redeemErr    error

	bonds map[string]domain.BondInfo
}

func (s *stubEngine) IssueBond(_ context.Context, caller string, params engine.IssueParams) (string, error) {
	s.issuedCaller = caller
	s.issuedParams = params
	if s.issueErr != nil {
		return "", s.issueErr
	}
	return "bond-1", nil
}

func (s *stubEngine) Invest(_ context.Context, bondID string, tier domain.TrancheTier, investor string, amount int64) (string, error) {
	s.investTier = tier
	s.investAmount = amount
	if s.investErr != nil {
		return "", s.investErr
	}
	return "inv-1", nil
}

func (s *stubEngine) InvestorPositions(_ context.Context, investor string, _ domain.ListOpts) ([]domain.Investment, error) {
	return []domain.Investment{{ID: "inv-1", Investor: investor, Principal: 5000}}, nil
}

func (s *stubEngine) Distribute(_ context.Context, caller, bondID string, amount int64) (domain.DistributionResult, error) {
	s.distributed = amount
	if s.distErr != nil {
		return domain.DistributionResult{}, s.distErr
	}
	return domain.DistributionResult{SeniorApplied: amount}, nil
}

func (s *stubEngine) MarkMatured(_ context.Context, caller, bondID string) error {
	s.transitions = append(s.transitions, bondID+":matured")
	return s.transErr
}

func (s *stubEngine) MarkDefaulted(_ context.Context, caller, bondID string) error {
	s.transitions = append(s.transitions, bondID+":defaulted")
	return s.transErr
}

func (s *stubEngine) Redeem(_ context.Context, caller, investmentID string) (int64, error) {
	if s.redeemErr != nil {
		return 0, s.redeemErr
	}
	return s.redeemPayout, nil
}

func (s *stubEngine) BondInfo(_ context.Context, bondID string) (domain.BondInfo, error) {
	info, ok := s.bonds[bondID]
	if !ok {
		return domain.BondInfo{}, domain.ErrBondNotFound
	}
	return info, nil
}

func (s *stubEngine) ListBonds(_ context.Context, _ domain.ListOpts) ([]domain.Bond, error) {
	var out []domain.Bond
	for _, info := range s.bonds {
		out = append(out, info.Bond)
	}
	return out, nil
}

func (s *stubEngine) Distributions(_ context.Context, bondID string, _ domain.ListOpts) ([]domain.DistributionEvent, error) {
	if _, ok := s.bonds[bondID]; !ok {
		return nil, domain.ErrBondNotFound
	}
	return []domain.DistributionEvent{{BondID: bondID, Revenue: 1000}}, nil
}

func newTestMux(eng *stubEngine) *http.ServeMux {
	logger := testLogger()
	bonds := NewBondHandler(eng, eng, logger)
	invs := NewInvestmentHandler(eng, logger)
	dist := NewDistributionHandler(eng, logger)
	life := NewLifecycleHandler(eng, logger)
	red := NewRedemptionHandler(eng, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bonds", bonds.IssueBond)
	mux.HandleFunc("GET /api/bonds", bonds.ListBonds)
	mux.HandleFunc("GET /api/bonds/{id}", bonds.GetBond)
	mux.HandleFunc("GET /api/bonds/{id}/distributions", bonds.ListDistributions)
	mux.HandleFunc("POST /api/bonds/{id}/invest", invs.Invest)
	mux.HandleFunc("GET /api/investors/{addr}/positions", invs.Positions)
	mux.HandleFunc("POST /api/bonds/{id}/distribute", dist.Distribute)
	mux.HandleFunc("POST /api/bonds/{id}/mature", life.MarkMatured)
	mux.HandleFunc("POST /api/bonds/{id}/default", life.MarkDefaulted)
	mux.HandleFunc("POST /api/investments/{id}/redeem", red.Redeem)
	return mux
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	withIdentity("issuer-1", h).ServeHTTP(rec, req)
	return rec
}

func TestIssueBond(t *testing.T) {
	eng := &stubEngine{}
	mux := newTestMux(eng)

	maturity := time.Now().UTC().Add(365 * 24 * time.Hour).Truncate(time.Second)
	rec := doJSON(t, mux, http.MethodPost, "/api/bonds", map[string]any{
		"asset_id":          "asset-9",
		"principal_target":  1_000_000,
		"matures_at":        maturity.Format(time.RFC3339),
		"senior_apy_bps":    500,
		"mezzanine_apy_bps": 900,
		"junior_apy_bps":    1500,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bond-1", resp["bond_id"])

	assert.Equal(t, "issuer-1", eng.issuedCaller)
	assert.Equal(t, "asset-9", eng.issuedParams.AssetID)
	assert.Equal(t, int64(1_000_000), eng.issuedParams.PrincipalTarget)
	assert.True(t, eng.issuedParams.MaturesAt.Equal(maturity))
	assert.Equal(t, int64(900), eng.issuedParams.APY.Mezzanine)
	assert.Nil(t, eng.issuedParams.Metadata)
}

func TestIssueBondWithMetadata(t *testing.T) {
	eng := &stubEngine{}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/bonds", map[string]any{
		"asset_id":         "asset-9",
		"principal_target": 500_000,
		"matures_at":       time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"senior_apy_bps":   500,
		"metadata": map[string]any{
			"category": "music",
			"creator":  "0xabc",
			"views":    1200,
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, eng.issuedParams.Metadata)
	assert.Equal(t, "music", eng.issuedParams.Metadata.Category)
	assert.Equal(t, int64(1200), eng.issuedParams.Metadata.Views)
}

func TestIssueBondRejectsUnknownFields(t *testing.T) {
	mux := newTestMux(&stubEngine{})
	rec := doJSON(t, mux, http.MethodPost, "/api/bonds", map[string]any{
		"asset_id": "a",
		"bogus":    true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueBondUnauthorized(t *testing.T) {
	eng := &stubEngine{issueErr: domain.ErrUnauthorized}
	mux := newTestMux(eng)
	rec := doJSON(t, mux, http.MethodPost, "/api/bonds", map[string]any{"asset_id": "a"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBond(t *testing.T) {
	eng := &stubEngine{bonds: map[string]domain.BondInfo{
		"bond-1": {Bond: domain.Bond{ID: "bond-1", AssetID: "asset-9", Status: domain.BondActive}},
	}}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodGet, "/api/bonds/bond-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info domain.BondInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "asset-9", info.Bond.AssetID)

	rec = doJSON(t, mux, http.MethodGet, "/api/bonds/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvest(t *testing.T) {
	eng := &stubEngine{}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/bonds/bond-1/invest", map[string]any{
		"tier":   "mezzanine",
		"amount": 25_000,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.TierMezzanine, eng.investTier)
	assert.Equal(t, int64(25_000), eng.investAmount)
}

func TestInvestAllocationExceeded(t *testing.T) {
	eng := &stubEngine{investErr: domain.ErrAllocationExceeded}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/bonds/bond-1/invest", map[string]any{
		"tier":   "senior",
		"amount": 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDistribute(t *testing.T) {
	eng := &stubEngine{}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/bonds/bond-1/distribute", map[string]any{
		"amount": 10_000,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10_000), eng.distributed)

	var result domain.DistributionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(10_000), result.SeniorApplied)
}

func TestDistributePaused(t *testing.T) {
	eng := &stubEngine{distErr: domain.ErrPaused}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/bonds/bond-1/distribute", map[string]any{
		"amount": 1,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLifecycleTransitions(t *testing.T) {
	eng := &stubEngine{}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/bonds/bond-1/mature", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/bonds/bond-2/default", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"bond-1:matured", "bond-2:defaulted"}, eng.transitions)
}

func TestLifecycleMaturityNotReached(t *testing.T) {
	eng := &stubEngine{transErr: domain.ErrMaturityNotReached}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/bonds/bond-1/mature", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRedeem(t *testing.T) {
	eng := &stubEngine{redeemPayout: 52_500}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/investments/inv-1/redeem", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(52_500), resp["payout"])
}

func TestRedeemTwiceConflicts(t *testing.T) {
	eng := &stubEngine{redeemErr: domain.ErrAlreadyRedeemed}
	mux := newTestMux(eng)

	rec := doJSON(t, mux, http.MethodPost, "/api/investments/inv-1/redeem", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPositions(t *testing.T) {
	mux := newTestMux(&stubEngine{})

	rec := doJSON(t, mux, http.MethodGet, "/api/investors/0xabc/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Positions []domain.Investment `json:"positions"`
		Count     int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "0xabc", resp.Positions[0].Investor)
}

func TestListDistributionsUnknownBond(t *testing.T) {
	mux := newTestMux(&stubEngine{bonds: map[string]domain.BondInfo{}})

	rec := doJSON(t, mux, http.MethodGet, "/api/bonds/nope/distributions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
