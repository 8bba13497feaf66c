package enums

type FlagReason string

const (
	FlagReasonRepeatedRejections FlagReason = "repeated_rejections"
	FlagReasonManualReview       FlagReason = "manual_review"
)
