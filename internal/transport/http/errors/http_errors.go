package errors

import (
	"encoding/json"
	"net/http"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RetryableError marks failures the client may retry, such as a storage
// outage behind STORAGE_UNAVAILABLE.
type RetryableError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RetryAfterSec int64  `json:"retry_after_sec"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
