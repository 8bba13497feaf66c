package handover

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
)

// Lifecycle is the slice of the lifecycle service the coordinator uses.
type Lifecycle interface {
	Get(ctx context.Context, id string) (pgrepo.MatchRecord, error)
	ConfirmRole(ctx context.Context, id string, role enums.HandoverRole) (pgrepo.MatchRecord, error)
	UpdateStatus(ctx context.Context, id string, to enums.MatchStatus, notes, rejectionReason string, actorUserID int64) (pgrepo.MatchRecord, error)
	RoleUser(ctx context.Context, rec pgrepo.MatchRecord, role enums.HandoverRole) (int64, error)
}

type Dependencies struct {
	Lifecycle Lifecycle
	Logger    *zap.Logger
}

// Service coordinates the dual-confirmation handshake that closes a match.
// Each party confirms independently; the second confirmation resolves the
// record exactly once regardless of ordering or concurrency.
type Service struct {
	lifecycle Lifecycle
	logger    *zap.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		lifecycle: deps.Lifecycle,
		logger:    logger,
	}
}

// Confirm records one party's handover confirmation and resolves the match
// when both flags are set. Confirming the same role twice is a no-op.
func (s *Service) Confirm(ctx context.Context, matchID string, role enums.HandoverRole) (pgrepo.MatchRecord, error) {
	rec, err := s.lifecycle.ConfirmRole(ctx, matchID, role)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}

	if !rec.SourceConfirmed || !rec.TargetConfirmed {
		return rec, nil
	}

	resolved, err := s.lifecycle.UpdateStatus(ctx, matchID, enums.MatchStatusResolved, "", "", 0)
	if err == nil {
		return resolved, nil
	}
	if errors.Is(err, lifecycle.ErrInvalidTransition) {
		// Two confirmers can both observe the completed flag pair; the
		// loser reloads and accepts whatever terminal state it finds.
		current, getErr := s.lifecycle.Get(ctx, matchID)
		if getErr != nil {
			return pgrepo.MatchRecord{}, getErr
		}
		if current.Status == enums.MatchStatusResolved {
			return current, nil
		}
	}
	return pgrepo.MatchRecord{}, err
}

// Cancel backs one party out of a pending handover, dismissing the match.
// The rejection is attributed to the cancelling party.
func (s *Service) Cancel(ctx context.Context, matchID string, role enums.HandoverRole, reason, notes string) (pgrepo.MatchRecord, error) {
	if !role.IsValid() {
		return pgrepo.MatchRecord{}, lifecycle.ErrValidation
	}

	rec, err := s.lifecycle.Get(ctx, matchID)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}

	actorUserID, err := s.lifecycle.RoleUser(ctx, rec, role)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}

	if reason == "" {
		reason = string(enums.RejectionReasonOther)
	}
	return s.lifecycle.UpdateStatus(ctx, matchID, enums.MatchStatusDismissed, notes, reason, actorUserID)
}
