package rejections

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/notify"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUserNotFound = errors.New("user not found")
)

const (
	DefaultThreshold          = 3
	DefaultWindow             = 30 * 24 * time.Hour
	DefaultRecentReasonsLimit = 10
)

var knownReasons = map[string]struct{}{
	string(enums.RejectionReasonNotMyItem):          {},
	string(enums.RejectionReasonWrongItem):          {},
	string(enums.RejectionReasonNoShow):             {},
	string(enums.RejectionReasonSuspectedFraud):     {},
	string(enums.RejectionReasonVerificationFailed): {},
	string(enums.RejectionReasonOther):              {},
}

type RejectionStore interface {
	Append(ctx context.Context, rec pgrepo.RejectionWriteRecord) error
	CountForUserSince(ctx context.Context, userID int64, since time.Time) (int64, error)
	RecentReasonsForUser(ctx context.Context, userID int64, since time.Time, limit int) ([]string, error)
	Aggregate(ctx context.Context, filters pgrepo.RejectionFilters) ([]pgrepo.RejectionAggregateRow, error)
}

type UserStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type FlagStore interface {
	Insert(ctx context.Context, userID int64, reason string, flaggedAt time.Time) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]pgrepo.UserFlagRecord, error)
	CountFlaggedSince(ctx context.Context, since time.Time) (int64, error)
}

// FlagMarker short-circuits repeated threshold evaluations within a window.
// It is an optimization only: the flag store's unique constraint is the
// real idempotency guarantee.
type FlagMarker interface {
	MarkOnce(ctx context.Context, userID int64, reason string, window time.Duration) (bool, error)
}

type Config struct {
	Threshold          int
	Window             time.Duration
	RecentReasonsLimit int
}

type Dependencies struct {
	Rejections RejectionStore
	Flags      FlagStore
	Marker     FlagMarker
	// Users is optional. When present, manual flagging rejects unknown ids.
	Users  UserStore
	Logger *zap.Logger
}

// Stats is the per-user view returned to moderators and the profile screen.
type Stats struct {
	UserID        int64
	WindowCount   int64
	RecentReasons []string
	Flagged       bool
	Flags         []pgrepo.UserFlagRecord
}

// Analytics is the aggregate view for the admin dashboard.
type Analytics struct {
	Rows         []pgrepo.RejectionAggregateRow
	FlaggedUsers int64
}

// Service keeps the append-only rejection log and flags users whose
// rejection count crosses the threshold inside the rolling window.
type Service struct {
	rejections RejectionStore
	flags      FlagStore
	marker     FlagMarker
	users      UserStore
	notifier   notify.Notifier
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.RecentReasonsLimit <= 0 {
		cfg.RecentReasonsLimit = DefaultRecentReasonsLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		rejections: deps.Rejections,
		flags:      deps.Flags,
		marker:     deps.Marker,
		users:      deps.Users,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) AttachNotifier(notifier notify.Notifier) {
	s.notifier = notifier
}

// Record appends one rejection entry and evaluates the flagging threshold.
// Entries are never rewritten: corrections happen by appending, not editing.
func (s *Service) Record(ctx context.Context, matchID string, userID int64, reason, details string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = string(enums.RejectionReasonOther)
	}
	if _, ok := knownReasons[reason]; !ok {
		return ErrValidation
	}
	if strings.TrimSpace(matchID) == "" || userID <= 0 {
		return ErrValidation
	}

	now := s.now().UTC()
	if err := s.rejections.Append(ctx, pgrepo.RejectionWriteRecord{
		MatchID:   matchID,
		UserID:    userID,
		Reason:    reason,
		Details:   strings.TrimSpace(details),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	s.evaluateThreshold(ctx, userID, now)
	return nil
}

// StatsForUser reports a user's rejection activity inside the window plus
// any standing flags.
func (s *Service) StatsForUser(ctx context.Context, userID int64) (Stats, error) {
	if userID <= 0 {
		return Stats{}, ErrValidation
	}

	since := s.now().UTC().Add(-s.cfg.Window)
	count, err := s.rejections.CountForUserSince(ctx, userID, since)
	if err != nil {
		return Stats{}, err
	}
	reasons, err := s.rejections.RecentReasonsForUser(ctx, userID, since, s.cfg.RecentReasonsLimit)
	if err != nil {
		return Stats{}, err
	}
	flags, err := s.flags.ListForUser(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		UserID:        userID,
		WindowCount:   count,
		RecentReasons: reasons,
		Flagged:       len(flags) > 0,
		Flags:         flags,
	}, nil
}

// FlagUser raises a manual moderation flag. Returns whether the flag is new.
func (s *Service) FlagUser(ctx context.Context, userID int64, reason enums.FlagReason) (bool, error) {
	if userID <= 0 {
		return false, ErrValidation
	}
	if reason == "" {
		reason = enums.FlagReasonManualReview
	}

	if s.users != nil {
		exists, err := s.users.Exists(ctx, userID)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, ErrUserNotFound
		}
	}

	inserted, err := s.flags.Insert(ctx, userID, string(reason), s.now().UTC())
	if err != nil {
		return false, err
	}
	if inserted {
		s.notifyFlagged(ctx, userID, string(reason))
	}
	return inserted, nil
}

// AnalyticsReport aggregates rejections by reason over the filter range and
// counts users flagged inside the window.
func (s *Service) AnalyticsReport(ctx context.Context, filters pgrepo.RejectionFilters) (Analytics, error) {
	rows, err := s.rejections.Aggregate(ctx, filters)
	if err != nil {
		return Analytics{}, err
	}

	flagged, err := s.flags.CountFlaggedSince(ctx, s.now().UTC().Add(-s.cfg.Window))
	if err != nil {
		return Analytics{}, err
	}

	return Analytics{Rows: rows, FlaggedUsers: flagged}, nil
}

// evaluateThreshold flags the user once their rejection count inside the
// window reaches the threshold. Failures are logged, never propagated: the
// log entry is already durable.
func (s *Service) evaluateThreshold(ctx context.Context, userID int64, now time.Time) {
	count, err := s.rejections.CountForUserSince(ctx, userID, now.Add(-s.cfg.Window))
	if err != nil {
		s.logger.Error("rejection threshold count failed", zap.Error(err), zap.Int64("user_id", userID))
		return
	}
	if count < int64(s.cfg.Threshold) {
		return
	}

	reason := string(enums.FlagReasonRepeatedRejections)
	if s.marker != nil {
		marked, err := s.marker.MarkOnce(ctx, userID, reason, s.cfg.Window)
		if err != nil {
			s.logger.Warn("flag marker failed, falling through to store", zap.Error(err), zap.Int64("user_id", userID))
		} else if !marked {
			return
		}
	}

	inserted, err := s.flags.Insert(ctx, userID, reason, now)
	if err != nil {
		s.logger.Error("user flag insert failed", zap.Error(err), zap.Int64("user_id", userID))
		return
	}
	if inserted {
		s.logger.Warn("user crossed rejection threshold",
			zap.Int64("user_id", userID),
			zap.Int64("count", count),
			zap.Int("threshold", s.cfg.Threshold),
		)
		s.notifyFlagged(ctx, userID, reason)
	}
}

func (s *Service) notifyFlagged(ctx context.Context, userID int64, reason string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.UserFlagged(ctx, notify.FlagEvent{UserID: userID, Reason: reason}); err != nil {
		s.logger.Warn("user flagged notification failed", zap.Error(err), zap.Int64("user_id", userID))
	}
}
