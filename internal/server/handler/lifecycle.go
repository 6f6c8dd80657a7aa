package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/knowton/ipbond/internal/server/middleware"
)

// LifecycleController defines the state transitions the lifecycle
// handler requires.
type LifecycleController interface {
	MarkMatured(ctx context.Context, caller, bondID string) error
	MarkDefaulted(ctx context.Context, caller, bondID string) error
}

// LifecycleHandler serves bond state transition endpoints.
type LifecycleHandler struct {
	controller LifecycleController
	logger     *slog.Logger
}

// NewLifecycleHandler creates a LifecycleHandler.
func NewLifecycleHandler(controller LifecycleController, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{controller: controller, logger: logger}
}

// MarkMatured transitions a bond to matured.
// POST /api/bonds/{id}/mature
func (h *LifecycleHandler) MarkMatured(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "matured", h.controller.MarkMatured)
}

// MarkDefaulted transitions a bond to defaulted.
// POST /api/bonds/{id}/default
func (h *LifecycleHandler) MarkDefaulted(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "defaulted", h.controller.MarkDefaulted)
}

func (h *LifecycleHandler) transition(w http.ResponseWriter, r *http.Request, status string, fn func(ctx context.Context, caller, bondID string) error) {
	bondID := r.PathValue("id")
	if bondID == "" {
		writeError(w, http.StatusBadRequest, "missing bond id")
		return
	}

	caller := middleware.Identity(r.Context())
	if err := fn(r.Context(), caller, bondID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: transition failed",
			slog.String("bond_id", bondID),
			slog.String("target", status),
			slog.String("caller", caller),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"bond_id": bondID,
		"status":  status,
	})
}
