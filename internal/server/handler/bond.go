package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/engine"
	"github.com/knowton/ipbond/internal/server/middleware"
)

// BondIssuer defines the issuance operation the bond handler requires.
type BondIssuer interface {
	IssueBond(ctx context.Context, caller string, params engine.IssueParams) (string, error)
}

// BondReader defines the read operations the bond handler requires.
type BondReader interface {
	BondInfo(ctx context.Context, bondID string) (domain.BondInfo, error)
	ListBonds(ctx context.Context, opts domain.ListOpts) ([]domain.Bond, error)
	Distributions(ctx context.Context, bondID string, opts domain.ListOpts) ([]domain.DistributionEvent, error)
}

// BondHandler serves bond issuance and read endpoints.
type BondHandler struct {
	issuer BondIssuer
	reader BondReader
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler.
func NewBondHandler(issuer BondIssuer, reader BondReader, logger *slog.Logger) *BondHandler {
	return &BondHandler{issuer: issuer, reader: reader, logger: logger}
}

// issueRequest is the JSON body for bond issuance. Monetary amounts are
// int64 base units; rates are basis points.
type issueRequest struct {
	AssetID         string        `json:"asset_id"`
	PrincipalTarget int64         `json:"principal_target"`
	MaturesAt       time.Time     `json:"matures_at"`
	SeniorAPYBps    int64         `json:"senior_apy_bps"`
	MezzanineAPYBps int64         `json:"mezzanine_apy_bps"`
	JuniorAPYBps    int64         `json:"junior_apy_bps"`
	Metadata        *metadataBody `json:"metadata,omitempty"`
}

type metadataBody struct {
	Category  string    `json:"category"`
	Creator   string    `json:"creator"`
	CreatedAt time.Time `json:"created_at"`
	Views     int64     `json:"views"`
	Likes     int64     `json:"likes"`
	Tags      []string  `json:"tags"`
}

// IssueBond creates a bond with its three tranches.
// POST /api/bonds
func (h *BondHandler) IssueBond(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := engine.IssueParams{
		AssetID:         req.AssetID,
		PrincipalTarget: req.PrincipalTarget,
		MaturesAt:       req.MaturesAt,
		APY: engine.TrancheAPY{
			Senior:    req.SeniorAPYBps,
			Mezzanine: req.MezzanineAPYBps,
			Junior:    req.JuniorAPYBps,
		},
	}
	if req.Metadata != nil {
		params.Metadata = &domain.IPMetadata{
			Category:  req.Metadata.Category,
			Creator:   req.Metadata.Creator,
			CreatedAt: req.Metadata.CreatedAt,
			Views:     req.Metadata.Views,
			Likes:     req.Metadata.Likes,
			Tags:      req.Metadata.Tags,
		}
	}

	caller := middleware.Identity(r.Context())
	bondID, err := h.issuer.IssueBond(r.Context(), caller, params)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: issue bond failed",
			slog.String("caller", caller),
			slog.String("asset_id", req.AssetID),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"bond_id": bondID})
}

// ListBonds returns a page of bonds.
// GET /api/bonds
func (h *BondHandler) ListBonds(w http.ResponseWriter, r *http.Request) {
	bonds, err := h.reader.ListBonds(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bonds failed",
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	if bonds == nil {
		bonds = []domain.Bond{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bonds": bonds,
		"count": len(bonds),
	})
}

// GetBond returns a bond with its tranches and risk assessment.
// GET /api/bonds/{id}
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bond id")
		return
	}

	info, err := h.reader.BondInfo(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ListDistributions returns a bond's distribution history.
// GET /api/bonds/{id}/distributions
func (h *BondHandler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bond id")
		return
	}

	events, err := h.reader.Distributions(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if events == nil {
		events = []domain.DistributionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distributions": events,
		"count":         len(events),
	})
}
