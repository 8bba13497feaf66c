package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	authsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/auth"
	expirationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/expiration"
	lifecyclesvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
	"github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/dto"
	httperrors "github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/errors"
)

type MatchesHandler struct {
	lifecycle  *lifecyclesvc.Service
	expiration *expirationsvc.Service
}

func NewMatchesHandler(lifecycle *lifecyclesvc.Service, expiration *expirationsvc.Service) *MatchesHandler {
	return &MatchesHandler{lifecycle: lifecycle, expiration: expiration}
}

func (h *MatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.lifecycle == nil {
		writeInternal(w, "INTERNAL_ERROR", "match service is unavailable")
		return
	}

	var req dto.CreateMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	var (
		rec pgrepo.MatchRecord
		err error
	)
	if req.Suggested {
		rec, err = h.lifecycle.CreateSuggestion(r.Context(), req.SourceReportID, req.TargetReportID, req.Notes)
	} else {
		rec, err = h.lifecycle.Create(r.Context(), req.SourceReportID, req.TargetReportID, req.Notes)
	}
	if err != nil {
		writeMatchError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, h.toResponse(rec))
}

func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.lifecycle == nil {
		writeInternal(w, "INTERNAL_ERROR", "match service is unavailable")
		return
	}

	rec, err := h.lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMatchError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, h.toResponse(rec))
}

func (h *MatchesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.lifecycle == nil {
		writeInternal(w, "INTERNAL_ERROR", "match service is unavailable")
		return
	}

	var req dto.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	notes := req.Notes
	if req.ReasonDetails != "" {
		notes = req.ReasonDetails
	}
	rec, err := h.lifecycle.UpdateStatus(r.Context(), chi.URLParam(r, "id"),
		enums.MatchStatus(req.Status), notes, req.RejectionReason, identity.UserID)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, h.toResponse(rec))
}

func (h *MatchesHandler) toResponse(rec pgrepo.MatchRecord) dto.MatchResponse {
	resp := dto.MatchResponse{
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
	}

	if h.expiration != nil && !rec.Status.IsTerminal() {
		deadline := h.expiration.CheckMatch(rec)
		resp.Expiration = &dto.ExpirationInfo{
			ExpiresAt:      deadline.ExpiresAt,
			HoursRemaining: deadline.HoursRemaining,
			Expired:        deadline.Expired,
		}
	}

	return resp
}

func writeMatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecyclesvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, lifecyclesvc.ErrConflict):
		writeConflict(w, "MATCH_CONFLICT", "report already has an active match")
	case errors.Is(err, lifecyclesvc.ErrNotFound):
		writeNotFound(w, "NOT_FOUND", "match not found")
	case errors.Is(err, lifecyclesvc.ErrInvalidTransition):
		writeConflict(w, "INVALID_TRANSITION", "status transition not permitted")
	case errors.Is(err, lifecyclesvc.ErrMatchClosed):
		writeConflict(w, "MATCH_CLOSED", "match is already closed")
	case errors.Is(err, lifecyclesvc.ErrAttemptsExhausted):
		writeConflict(w, "VERIFICATION_EXHAUSTED", "verification attempts exhausted")
	case errors.Is(err, pgrepo.ErrStorageUnavailable):
		writeStorageUnavailable(w)
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
