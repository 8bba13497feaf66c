package expiration

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
)

// DefaultWindow is how long a match may sit in an active state before it
// expires. The window is derived from created_at on every check, so it
// survives restarts without any persisted deadline.
const DefaultWindow = 48 * time.Hour

// Deadline describes where a single match stands against its window.
type Deadline struct {
	ExpiresAt      time.Time
	TimeRemaining  time.Duration
	HoursRemaining int
	Expired        bool
}

type OverdueStore interface {
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]pgrepo.MatchRecord, error)
}

// Transitioner is the slice of the lifecycle service the sweeper needs.
type Transitioner interface {
	UpdateStatus(ctx context.Context, id string, to enums.MatchStatus, notes, rejectionReason string, actorUserID int64) (pgrepo.MatchRecord, error)
}

type Config struct {
	Window     time.Duration
	SweepBatch int
}

type Dependencies struct {
	Store     OverdueStore
	Lifecycle Transitioner
	Logger    *zap.Logger
}

// Service computes handover deadlines and sweeps overdue matches into
// expired. Expiry is exactly-once: the status transition is guarded by a
// conditional update, so concurrent sweepers cannot double-fire.
type Service struct {
	store     OverdueStore
	lifecycle Transitioner
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:     deps.Store,
		lifecycle: deps.Lifecycle,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Check evaluates a creation time against the window at the given instant.
func (s *Service) Check(createdAt, now time.Time) Deadline {
	expiresAt := createdAt.Add(s.cfg.Window)
	remaining := expiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return Deadline{
		ExpiresAt:      expiresAt,
		TimeRemaining:  remaining,
		HoursRemaining: int(math.Ceil(remaining.Hours())),
		Expired:        remaining == 0,
	}
}

// CheckMatch reports the deadline for a live record. Terminal records have
// no deadline and always report not expired.
func (s *Service) CheckMatch(rec pgrepo.MatchRecord) Deadline {
	if rec.Status.IsTerminal() {
		return Deadline{ExpiresAt: rec.CreatedAt.Add(s.cfg.Window)}
	}
	return s.Check(rec.CreatedAt, s.now())
}

// ExpireOverdue moves every active match past its deadline into expired and
// returns how many records this pass closed. Records another worker closes
// mid-sweep are skipped, not errors.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Window)

	overdue, err := s.store.ListOverdue(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, rec := range overdue {
		_, err := s.lifecycle.UpdateStatus(ctx, rec.ID, enums.MatchStatusExpired, "handover window elapsed", "", 0)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrNotFound):
			// Someone else resolved or dismissed it first.
			s.logger.Debug("skipping match closed mid-sweep", zap.String("match_id", rec.ID))
		default:
			return expired, err
		}
	}

	if expired > 0 {
		s.logger.Info("expired overdue matches", zap.Int("count", expired))
	}
	return expired, nil
}
