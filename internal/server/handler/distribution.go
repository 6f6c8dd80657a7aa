package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/server/middleware"
)

// Distributor defines the operation the distribution handler requires.
type Distributor interface {
	Distribute(ctx context.Context, caller, bondID string, amount int64) (domain.DistributionResult, error)
}

// DistributionHandler serves the revenue distribution endpoint.
type DistributionHandler struct {
	distributor Distributor
	logger      *slog.Logger
}

// NewDistributionHandler creates a DistributionHandler.
func NewDistributionHandler(distributor Distributor, logger *slog.Logger) *DistributionHandler {
	return &DistributionHandler{distributor: distributor, logger: logger}
}

type distributeRequest struct {
	Amount int64 `json:"amount"`
}

// Distribute pushes a revenue amount through the bond's waterfall.
// POST /api/bonds/{id}/distribute
func (h *DistributionHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	bondID := r.PathValue("id")
	if bondID == "" {
		writeError(w, http.StatusBadRequest, "missing bond id")
		return
	}

	var req distributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := middleware.Identity(r.Context())
	result, err := h.distributor.Distribute(r.Context(), caller, bondID, req.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: distribute failed",
			slog.String("bond_id", bondID),
			slog.String("caller", caller),
			slog.Int64("amount", req.Amount),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
