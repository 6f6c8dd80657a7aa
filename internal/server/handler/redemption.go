package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/knowton/ipbond/internal/server/middleware"
)

// Redeemer defines the operation the redemption handler requires.
type Redeemer interface {
	Redeem(ctx context.Context, caller, investmentID string) (int64, error)
}

// RedemptionHandler serves the investment redemption endpoint.
type RedemptionHandler struct {
	redeemer Redeemer
	logger   *slog.Logger
}

// NewRedemptionHandler creates a RedemptionHandler.
func NewRedemptionHandler(redeemer Redeemer, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{redeemer: redeemer, logger: logger}
}

// Redeem pays out a closed bond position to its owner.
// POST /api/investments/{id}/redeem
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	invID := r.PathValue("id")
	if invID == "" {
		writeError(w, http.StatusBadRequest, "missing investment id")
		return
	}

	caller := middleware.Identity(r.Context())
	payout, err := h.redeemer.Redeem(r.Context(), caller, invID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: redeem failed",
			slog.String("investment_id", invID),
			slog.String("caller", caller),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"investment_id": invID,
		"payout":        payout,
	})
}
