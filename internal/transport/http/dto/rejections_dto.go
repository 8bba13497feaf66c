package dto

import "time"

type UserFlag struct {
	Reason    string    `json:"reason"`
	FlaggedAt time.Time `json:"flagged_at"`
}

type RejectionStatsResponse struct {
	UserID        int64      `json:"user_id"`
	WindowCount   int64      `json:"window_count"`
	RecentReasons []string   `json:"recent_reasons"`
	Flagged       bool       `json:"flagged"`
	Flags         []UserFlag `json:"flags"`
}

type FlagUserRequest struct {
	Reason string `json:"reason,omitempty"`
}

type FlagUserResponse struct {
	OK      bool `json:"ok"`
	Flagged bool `json:"flagged"`
}

type RejectionAggregateItem struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

type RejectionAnalyticsResponse struct {
	Items        []RejectionAggregateItem `json:"items"`
	FlaggedUsers int64                    `json:"flagged_users"`
}
