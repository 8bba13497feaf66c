package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ozonelabrada/resqhub-sub003/internal/pkg/validate"
	authsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/auth"
	verificationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/verification"
	"github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/dto"
	httperrors "github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/errors"
)

type VerificationHandler struct {
	verification *verificationsvc.Service
}

func NewVerificationHandler(verification *verificationsvc.Service) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

func (h *VerificationHandler) Question(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.verification == nil {
		writeInternal(w, "INTERNAL_ERROR", "verification service is unavailable")
		return
	}

	challenge, err := h.verification.NextQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.VerificationQuestionResponse{
		QuestionID: challenge.QuestionID,
		Question:   challenge.Question,
	})
}

func (h *VerificationHandler) Answer(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.verification == nil {
		writeInternal(w, "INTERNAL_ERROR", "verification service is unavailable")
		return
	}

	var req dto.VerificationAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if !validate.Required(req.Answer) {
		writeBadRequest(w, "VALIDATION_ERROR", "answer must not be empty")
		return
	}

	result, err := h.verification.VerifyAnswer(r.Context(), chi.URLParam(r, "id"), req.QuestionID, req.Answer)
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.VerificationAnswerResponse{
		Verified:     result.Verified,
		AttemptsUsed: result.AttemptsUsed,
		AttemptsLeft: result.AttemptsLeft,
		Dismissed:    result.Dismissed,
	})
}

// SeedQuestions replaces a report's challenge set. Restricted to the admin
// role by route middleware; the intake service is the expected caller.
func (h *VerificationHandler) SeedQuestions(w http.ResponseWriter, r *http.Request) {
	if h.verification == nil {
		writeInternal(w, "INTERNAL_ERROR", "verification service is unavailable")
		return
	}

	reportID, ok := parseInt64Param(chi.URLParam(r, "id"))
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid report id")
		return
	}

	var req dto.SeedQuestionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	items := make([]verificationsvc.QuestionInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, verificationsvc.QuestionInput{Question: item.Question, Answer: item.Answer})
	}

	if err := h.verification.SetQuestions(r.Context(), reportID, items); err != nil {
		writeVerificationError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SeedQuestionsResponse{OK: true, Count: len(items)})
}

func writeVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verificationsvc.ErrNoQuestions):
		writeNotFound(w, "NOT_FOUND", "no security questions for this match")
	case errors.Is(err, verificationsvc.ErrUnknownQuestion):
		writeBadRequest(w, "VALIDATION_ERROR", "question does not belong to this match")
	default:
		writeMatchError(w, err)
	}
}
