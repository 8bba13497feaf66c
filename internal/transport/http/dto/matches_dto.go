package dto

import "time"

type CreateMatchRequest struct {
	SourceReportID int64  `json:"source_report_id"`
	TargetReportID int64  `json:"target_report_id"`
	Notes          string `json:"notes,omitempty"`
	Suggested      bool   `json:"suggested,omitempty"`
}

type UpdateStatusRequest struct {
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	ReasonDetails   string `json:"reason_details,omitempty"`
}

type HandoverConfirmRequest struct {
	Role string `json:"role"`
}

type HandoverCancelRequest struct {
	Role    string `json:"role"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// ExpirationInfo is the deadline snapshot embedded in match responses so
// clients never compute the window themselves.
type ExpirationInfo struct {
	ExpiresAt      time.Time `json:"expires_at"`
	HoursRemaining int       `json:"hours_remaining"`
	Expired        bool      `json:"expired"`
}

type MatchResponse struct {
	ID                   string          `json:"id"`
	SourceReportID       int64           `json:"source_report_id"`
	TargetReportID       int64           `json:"target_report_id"`
	Status               string          `json:"status"`
	SourceConfirmed      bool            `json:"source_confirmed"`
	TargetConfirmed      bool            `json:"target_confirmed"`
	VerificationAttempts int             `json:"verification_attempts"`
	RejectionReason      string          `json:"rejection_reason,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Expiration           *ExpirationInfo `json:"expiration,omitempty"`
}
