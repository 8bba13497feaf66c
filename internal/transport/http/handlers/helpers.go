package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	httperrors "github.com/Ozonelabrada/resqhub-sub003/internal/transport/http/errors"
)

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeForbidden(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusForbidden, httperrors.APIError{Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: code, Message: message})
}

func writeConflict(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusConflict, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

func writeStorageUnavailable(w http.ResponseWriter) {
	httperrors.Write(w, http.StatusServiceUnavailable, httperrors.RetryableError{
		Code:          "STORAGE_UNAVAILABLE",
		Message:       "storage is temporarily unavailable",
		RetryAfterSec: 30,
	})
}

func parseInt64Param(raw string) (int64, bool) {
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
