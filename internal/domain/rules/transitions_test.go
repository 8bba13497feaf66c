package rules

import (
	"testing"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
)

func TestCanTransitionGraph(t *testing.T) {
	tests := []struct {
		name    string
		from    enums.MatchStatus
		to      enums.MatchStatus
		allowed bool
	}{
		{name: "suggested to confirmed", from: enums.MatchStatusSuggested, to: enums.MatchStatusConfirmed, allowed: true},
		{name: "suggested to dismissed", from: enums.MatchStatusSuggested, to: enums.MatchStatusDismissed, allowed: true},
		{name: "suggested to expired", from: enums.MatchStatusSuggested, to: enums.MatchStatusExpired, allowed: true},
		{name: "suggested to resolved", from: enums.MatchStatusSuggested, to: enums.MatchStatusResolved, allowed: false},
		{name: "confirmed to resolved", from: enums.MatchStatusConfirmed, to: enums.MatchStatusResolved, allowed: true},
		{name: "confirmed to dismissed", from: enums.MatchStatusConfirmed, to: enums.MatchStatusDismissed, allowed: true},
		{name: "confirmed to expired", from: enums.MatchStatusConfirmed, to: enums.MatchStatusExpired, allowed: true},
		{name: "confirmed to suggested", from: enums.MatchStatusConfirmed, to: enums.MatchStatusSuggested, allowed: false},
		{name: "resolved to dismissed", from: enums.MatchStatusResolved, to: enums.MatchStatusDismissed, allowed: false},
		{name: "dismissed to expired", from: enums.MatchStatusDismissed, to: enums.MatchStatusExpired, allowed: false},
		{name: "expired to confirmed", from: enums.MatchStatusExpired, to: enums.MatchStatusConfirmed, allowed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.allowed {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	terminal := []enums.MatchStatus{
		enums.MatchStatusResolved,
		enums.MatchStatusDismissed,
		enums.MatchStatusExpired,
	}
	all := []enums.MatchStatus{
		enums.MatchStatusSuggested,
		enums.MatchStatusConfirmed,
		enums.MatchStatusResolved,
		enums.MatchStatusDismissed,
		enums.MatchStatusExpired,
	}

	for _, from := range terminal {
		if !from.IsTerminal() {
			t.Fatalf("expected %s to be terminal", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal status %s must not transition to %s", from, to)
			}
		}
	}
}

func TestSourceStatusesForResolved(t *testing.T) {
	from := SourceStatuses(enums.MatchStatusResolved)
	if len(from) != 1 || from[0] != enums.MatchStatusConfirmed {
		t.Fatalf("unexpected source statuses for resolved: %v", from)
	}
}

func TestSourceStatusesForExpired(t *testing.T) {
	from := SourceStatuses(enums.MatchStatusExpired)
	if len(from) != 2 {
		t.Fatalf("unexpected source statuses for expired: %v", from)
	}
}
