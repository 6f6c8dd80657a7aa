package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/server/middleware"
)

// Investor defines the operations the investment handler requires.
type Investor interface {
	Invest(ctx context.Context, bondID string, tier domain.TrancheTier, investor string, amount int64) (string, error)
	InvestorPositions(ctx context.Context, investor string, opts domain.ListOpts) ([]domain.Investment, error)
}

// InvestmentHandler serves investment endpoints.
type InvestmentHandler struct {
	investor Investor
	logger   *slog.Logger
}

// NewInvestmentHandler creates an InvestmentHandler.
func NewInvestmentHandler(investor Investor, logger *slog.Logger) *InvestmentHandler {
	return &InvestmentHandler{investor: investor, logger: logger}
}

type investRequest struct {
	Tier   string `json:"tier"`
	Amount int64  `json:"amount"`
}

// Invest records an investment into one tranche of a bond. The investor
// identity is the authenticated caller.
// POST /api/bonds/{id}/invest
func (h *InvestmentHandler) Invest(w http.ResponseWriter, r *http.Request) {
	bondID := r.PathValue("id")
	if bondID == "" {
		writeError(w, http.StatusBadRequest, "missing bond id")
		return
	}

	var req investRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := middleware.Identity(r.Context())
	invID, err := h.investor.Invest(r.Context(), bondID, domain.TrancheTier(req.Tier), caller, req.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: invest failed",
			slog.String("bond_id", bondID),
			slog.String("investor", caller),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"investment_id": invID})
}

// Positions returns every investment held by an investor.
// GET /api/investors/{addr}/positions
func (h *InvestmentHandler) Positions(w http.ResponseWriter, r *http.Request) {
	investor := r.PathValue("addr")
	if investor == "" {
		writeError(w, http.StatusBadRequest, "missing investor address")
		return
	}

	positions, err := h.investor.InvestorPositions(r.Context(), investor, parseListOpts(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if positions == nil {
		positions = []domain.Investment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}
