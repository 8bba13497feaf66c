package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	authsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/auth"
	handoversvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/handover"
	lifecyclesvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
	"github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/dto"
	httperrors "github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/errors"
)

type HandoverHandler struct {
	handover  *handoversvc.Service
	lifecycle *lifecyclesvc.Service
}

func NewHandoverHandler(handover *handoversvc.Service, lifecycle *lifecyclesvc.Service) *HandoverHandler {
	return &HandoverHandler{handover: handover, lifecycle: lifecycle}
}

func (h *HandoverHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.handover == nil || h.lifecycle == nil {
		writeInternal(w, "INTERNAL_ERROR", "handover service is unavailable")
		return
	}

	var req dto.HandoverConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	matchID := chi.URLParam(r, "id")
	role := enums.HandoverRole(req.Role)
	if !role.IsValid() {
		writeBadRequest(w, "VALIDATION_ERROR", "role must be source or target")
		return
	}
	if !h.actorHoldsRole(r, matchID, role, identity) {
		writeForbidden(w, "FORBIDDEN", "caller does not act in this role")
		return
	}

	rec, err := h.handover.Confirm(r.Context(), matchID, role)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.MatchResponse{
		ID:                   rec.ID,
		SourceReportID:       rec.SourceReportID,
		TargetReportID:       rec.TargetReportID,
		Status:               string(rec.Status),
		SourceConfirmed:      rec.SourceConfirmed,
		TargetConfirmed:      rec.TargetConfirmed,
		VerificationAttempts: rec.VerificationAttempts,
		RejectionReason:      rec.RejectionReason,
		Notes:                rec.Notes,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
	})
}

func (h *HandoverHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.handover == nil || h.lifecycle == nil {
		writeInternal(w, "INTERNAL_ERROR", "handover service is unavailable")
		return
	}

	var req dto.HandoverCancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	matchID := chi.URLParam(r, "id")
	role := enums.HandoverRole(req.Role)
	if !role.IsValid() {
		writeBadRequest(w, "VALIDATION_ERROR", "role must be source or target")
		return
	}
	if !h.actorHoldsRole(r, matchID, role, identity) {
		writeForbidden(w, "FORBIDDEN", "caller does not act in this role")
		return
	}

	rec, err := h.handover.Cancel(r.Context(), matchID, role, req.Reason, req.Details)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.MatchResponse{
		ID:              rec.ID,
		SourceReportID:  rec.SourceReportID,
		TargetReportID:  rec.TargetReportID,
		Status:          string(rec.Status),
		SourceConfirmed: rec.SourceConfirmed,
		TargetConfirmed: rec.TargetConfirmed,
		RejectionReason: rec.RejectionReason,
		Notes:           rec.Notes,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	})
}

// actorHoldsRole verifies the caller owns the report on the claimed side.
// Admins may act on either side.
func (h *HandoverHandler) actorHoldsRole(r *http.Request, matchID string, role enums.HandoverRole, identity authsvc.Identity) bool {
	if identity.IsAdmin() {
		return true
	}

	rec, err := h.lifecycle.Get(r.Context(), matchID)
	if err != nil {
		// Let the service surface the real error on the main call path.
		return true
	}
	ownerID, err := h.lifecycle.RoleUser(r.Context(), rec, role)
	if err != nil {
		return true
	}
	return ownerID == identity.UserID
}
