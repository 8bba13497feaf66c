package enums

type MatchStatus string

const (
	MatchStatusSuggested MatchStatus = "suggested"
	MatchStatusConfirmed MatchStatus = "confirmed"
	MatchStatusResolved  MatchStatus = "resolved"
	MatchStatusDismissed MatchStatus = "dismissed"
	MatchStatusExpired   MatchStatus = "expired"
)

func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusResolved, MatchStatusDismissed, MatchStatusExpired:
		return true
	default:
		return false
	}
}

func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusSuggested, MatchStatusConfirmed, MatchStatusResolved, MatchStatusDismissed, MatchStatusExpired:
		return true
	default:
		return false
	}
}
