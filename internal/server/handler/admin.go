package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/server/middleware"
)

// AccessController defines the administrative operations the admin
// handler requires.
type AccessController interface {
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, caller string, paused bool) error
	GrantIssuer(ctx context.Context, caller, identity string) error
	RevokeIssuer(ctx context.Context, caller, identity string) error
}

// AuditReader lists recorded audit entries.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves pause, role, audit, and archive endpoints. The
// archive lister is optional; without one the archives endpoint reports
// that archival storage is not configured.
type AdminHandler struct {
	access   AccessController
	audit    AuditReader
	archives domain.BlobReader
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. archives may be nil.
func NewAdminHandler(access AccessController, audit AuditReader, archives domain.BlobReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{access: access, audit: audit, archives: archives, logger: logger}
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

// SetPaused engages or releases the engine kill switch.
// POST /api/admin/pause
func (h *AdminHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := middleware.Identity(r.Context())
	if err := h.access.SetPaused(r.Context(), caller, req.Paused); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: set pause failed",
			slog.String("caller", caller),
			slog.Bool("paused", req.Paused),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// Status reports the current pause state.
// GET /api/admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	paused, err := h.access.Paused(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

type roleRequest struct {
	Identity string `json:"identity"`
}

// GrantIssuer grants the issuer role to an identity.
// POST /api/admin/issuers
func (h *AdminHandler) GrantIssuer(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := middleware.Identity(r.Context())
	if err := h.access.GrantIssuer(r.Context(), caller, req.Identity); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"identity": req.Identity,
		"role":     string(domain.RoleIssuer),
	})
}

// RevokeIssuer removes the issuer role from an identity.
// DELETE /api/admin/issuers/{identity}
func (h *AdminHandler) RevokeIssuer(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	caller := middleware.Identity(r.Context())
	if err := h.access.RevokeIssuer(r.Context(), caller, identity); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAudit returns recent audit entries, newest first.
// GET /api/admin/audit
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// ListArchives returns the archive objects written to blob storage.
// GET /api/admin/archives
func (h *AdminHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archives == nil {
		writeError(w, http.StatusNotImplemented, "archival storage is not configured")
		return
	}

	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}
	objects, err := h.archives.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archives": objects,
		"count":    len(objects),
	})
}
