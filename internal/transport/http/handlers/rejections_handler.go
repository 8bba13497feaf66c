package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	authsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/auth"
	rejectionssvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/rejections"
	"github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/dto"
	httperrors "github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/errors"
)

type RejectionsHandler struct {
	rejections *rejectionssvc.Service
}

func NewRejectionsHandler(rejections *rejectionssvc.Service) *RejectionsHandler {
	return &RejectionsHandler{rejections: rejections}
}

func (h *RejectionsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.rejections == nil {
		writeInternal(w, "INTERNAL_ERROR", "rejections service is unavailable")
		return
	}

	userID, ok := parseInt64Param(chi.URLParam(r, "id"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid user id")
		return
	}
	// Users see their own stats; moderation needs the admin role.
	if userID != identity.UserID && !identity.IsAdmin() {
		writeForbidden(w, "FORBIDDEN", "cannot read another user's rejection stats")
		return
	}

	stats, err := h.rejections.StatsForUser(r.Context(), userID)
	if err != nil {
		writeRejectionsError(w, err)
		return
	}

	flags := make([]dto.UserFlag, 0, len(stats.Flags))
	for _, flag := range stats.Flags {
		flags = append(flags, dto.UserFlag{Reason: flag.Reason, FlaggedAt: flag.FlaggedAt})
	}

	httperrors.Write(w, http.StatusOK, dto.RejectionStatsResponse{
		UserID:        stats.UserID,
		WindowCount:   stats.WindowCount,
		RecentReasons: stats.RecentReasons,
		Flagged:       stats.Flagged,
		Flags:         flags,
	})
}

func (h *RejectionsHandler) Flag(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if !identity.IsAdmin() {
		writeForbidden(w, "FORBIDDEN", "admin role required")
		return
	}
	if h.rejections == nil {
		writeInternal(w, "INTERNAL_ERROR", "rejections service is unavailable")
		return
	}

	userID, ok := parseInt64Param(chi.URLParam(r, "id"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid user id")
		return
	}

	var req dto.FlagUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	flagged, err := h.rejections.FlagUser(r.Context(), userID, enums.FlagReason(req.Reason))
	if err != nil {
		writeRejectionsError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.FlagUserResponse{OK: true, Flagged: flagged})
}

func (h *RejectionsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if !identity.IsAdmin() {
		writeForbidden(w, "FORBIDDEN", "admin role required")
		return
	}
	if h.rejections == nil {
		writeInternal(w, "INTERNAL_ERROR", "rejections service is unavailable")
		return
	}

	filters, ok := parseAnalyticsFilters(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid time filter")
		return
	}

	report, err := h.rejections.AnalyticsReport(r.Context(), filters)
	if err != nil {
		writeRejectionsError(w, err)
		return
	}

	items := make([]dto.RejectionAggregateItem, 0, len(report.Rows))
	for _, row := range report.Rows {
		items = append(items, dto.RejectionAggregateItem{Reason: row.Reason, Count: row.Count})
	}

	httperrors.Write(w, http.StatusOK, dto.RejectionAnalyticsResponse{
		Items:        items,
		FlaggedUsers: report.FlaggedUsers,
	})
}

func parseAnalyticsFilters(r *http.Request) (pgrepo.RejectionFilters, bool) {
	filters := pgrepo.RejectionFilters{Reason: r.URL.Query().Get("reason")}

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return pgrepo.RejectionFilters{}, false
		}
		filters.From = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return pgrepo.RejectionFilters{}, false
		}
		filters.To = parsed
	}

	return filters, true
}

func writeRejectionsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rejectionssvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, rejectionssvc.ErrUserNotFound):
		writeNotFound(w, "NOT_FOUND", "user not found")
	case errors.Is(err, pgrepo.ErrStorageUnavailable):
		writeStorageUnavailable(w)
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
