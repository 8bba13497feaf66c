package enums

type RejectionReason string

const (
	RejectionReasonNotMyItem          RejectionReason = "not_my_item"
	RejectionReasonWrongItem          RejectionReason = "wrong_item"
	RejectionReasonNoShow             RejectionReason = "no_show"
	RejectionReasonSuspectedFraud     RejectionReason = "suspected_fraud"
	RejectionReasonVerificationFailed RejectionReason = "verification_failed"
	RejectionReasonOther              RejectionReason = "other"
)
