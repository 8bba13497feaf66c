package rules

import (
	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
)

// allowedTransitions is the full status graph of a match record. Terminal
// states have no outgoing edges; everything not listed here is rejected.
var allowedTransitions = map[enums.MatchStatus][]enums.MatchStatus{
	enums.MatchStatusSuggested: {
		enums.MatchStatusConfirmed,
		enums.MatchStatusDismissed,
		enums.MatchStatusExpired,
	},
	enums.MatchStatusConfirmed: {
		enums.MatchStatusResolved,
		enums.MatchStatusDismissed,
		enums.MatchStatusExpired,
	},
}

func CanTransition(from, to enums.MatchStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourceStatuses returns every status from which the given target status is
// reachable. Repositories use this as the compare set for conditional
// updates, so a transition never applies to a record that moved concurrently.
func SourceStatuses(to enums.MatchStatus) []enums.MatchStatus {
	var from []enums.MatchStatus
	for status, nexts := range allowedTransitions {
		for _, next := range nexts {
			if next == to {
				from = append(from, status)
				break
			}
		}
	}
	return from
}

func NonTerminalStatuses() []enums.MatchStatus {
	return []enums.MatchStatus{
		enums.MatchStatusSuggested,
		enums.MatchStatusConfirmed,
	}
}
