package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/rules"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/notify"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("report already has an active match")
	ErrNotFound          = errors.New("match not found")
	ErrInvalidTransition = errors.New("status transition not permitted")
	ErrMatchClosed       = errors.New("match is already closed")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
)

const uniqueViolationCode = "23505"

type MatchStore interface {
	Insert(ctx context.Context, rec pgrepo.MatchRecord) error
	GetByID(ctx context.Context, id string) (pgrepo.MatchRecord, bool, error)
	FindActiveByReportID(ctx context.Context, reportID int64) (pgrepo.MatchRecord, bool, error)
	TransitionStatus(ctx context.Context, id string, from []enums.MatchStatus, to enums.MatchStatus, notes, rejectionReason string) (pgrepo.MatchRecord, bool, error)
	SetHandoverFlag(ctx context.Context, id string, role enums.HandoverRole) (pgrepo.MatchRecord, bool, error)
	IncrementVerificationAttempts(ctx context.Context, id string, max int) (pgrepo.MatchRecord, bool, error)
}

type ReportStore interface {
	GetByID(ctx context.Context, id int64) (pgrepo.ReportRecord, bool, error)
}

// RejectionSink receives the rejection log entry a dismissal produces.
// Implemented by the rejections service, which also evaluates flagging.
type RejectionSink interface {
	Record(ctx context.Context, matchID string, userID int64, reason, details string) error
}

type Config struct {
	// AutoConfirm makes Create start records in confirmed, the production
	// fast path. Suggestion-seeded records are created via CreateSuggestion.
	AutoConfirm bool
}

type Dependencies struct {
	MatchStore  MatchStore
	ReportStore ReportStore
	Rejections  RejectionSink
	Logger      *zap.Logger
}

// Service owns every status transition of a match record. All other
// components mutate records only through this API.
type Service struct {
	store      MatchStore
	reports    ReportStore
	rejections RejectionSink
	notifier   notify.Notifier
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(deps Dependencies, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:      deps.MatchStore,
		reports:    deps.ReportStore,
		rejections: deps.Rejections,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) AttachNotifier(notifier notify.Notifier) {
	s.notifier = notifier
}

// Create links a lost report to a found report. The record starts in
// confirmed when AutoConfirm is on, otherwise in suggested.
func (s *Service) Create(ctx context.Context, sourceReportID, targetReportID int64, notes string) (pgrepo.MatchRecord, error) {
	initial := enums.MatchStatusSuggested
	if s.cfg.AutoConfirm {
		initial = enums.MatchStatusConfirmed
	}
	return s.create(ctx, sourceReportID, targetReportID, notes, initial)
}

// CreateSuggestion seeds a match from the discovery pipeline; it always
// starts in suggested and waits for an explicit confirmation.
func (s *Service) CreateSuggestion(ctx context.Context, sourceReportID, targetReportID int64, notes string) (pgrepo.MatchRecord, error) {
	return s.create(ctx, sourceReportID, targetReportID, notes, enums.MatchStatusSuggested)
}

func (s *Service) create(ctx context.Context, sourceReportID, targetReportID int64, notes string, initial enums.MatchStatus) (pgrepo.MatchRecord, error) {
	if sourceReportID <= 0 || targetReportID <= 0 || sourceReportID == targetReportID {
		return pgrepo.MatchRecord{}, ErrValidation
	}
	if s.store == nil || s.reports == nil {
		return pgrepo.MatchRecord{}, fmt.Errorf("lifecycle dependencies are not configured")
	}

	source, err := s.loadOpenReport(ctx, sourceReportID)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}
	target, err := s.loadOpenReport(ctx, targetReportID)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}
	if source.Kind == target.Kind {
		return pgrepo.MatchRecord{}, ErrValidation
	}

	for _, reportID := range []int64{sourceReportID, targetReportID} {
		if _, active, err := s.store.FindActiveByReportID(ctx, reportID); err != nil {
			return pgrepo.MatchRecord{}, err
		} else if active {
			return pgrepo.MatchRecord{}, ErrConflict
		}
	}

	rec := pgrepo.MatchRecord{
		ID:             uuid.NewString(),
		SourceReportID: sourceReportID,
		TargetReportID: targetReportID,
		Status:         initial,
		Notes:          strings.TrimSpace(notes),
		CreatedAt:      s.now().UTC(),
	}
	rec.UpdatedAt = rec.CreatedAt

	if err := s.store.Insert(ctx, rec); err != nil {
		// Two concurrent creates for the same report both pass the lookup;
		// the partial unique index catches the loser.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return pgrepo.MatchRecord{}, ErrConflict
		}
		return pgrepo.MatchRecord{}, err
	}

	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (pgrepo.MatchRecord, error) {
	if strings.TrimSpace(id) == "" {
		return pgrepo.MatchRecord{}, ErrValidation
	}
	if s.store == nil {
		return pgrepo.MatchRecord{}, fmt.Errorf("match store is nil")
	}

	rec, found, err := s.store.GetByID(ctx, id)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}
	if !found {
		return pgrepo.MatchRecord{}, ErrNotFound
	}
	return rec, nil
}

// UpdateStatus moves a match along the transition graph. Requesting the
// status a terminal record already has is an idempotent no-op, so naive
// retries never surface spurious failures.
func (s *Service) UpdateStatus(ctx context.Context, id string, to enums.MatchStatus, notes, rejectionReason string, actorUserID int64) (pgrepo.MatchRecord, error) {
	if !to.IsValid() {
		return pgrepo.MatchRecord{}, ErrValidation
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}

	if rec.Status == to && rec.Status.IsTerminal() {
		return rec, nil
	}
	if !rules.CanTransition(rec.Status, to) {
		return pgrepo.MatchRecord{}, ErrInvalidTransition
	}
	if to == enums.MatchStatusResolved && (!rec.SourceConfirmed || !rec.TargetConfirmed) {
		return pgrepo.MatchRecord{}, ErrInvalidTransition
	}

	updated, applied, err := s.store.TransitionStatus(ctx, id, []enums.MatchStatus{rec.Status}, to, strings.TrimSpace(notes), strings.TrimSpace(rejectionReason))
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}
	if !applied {
		// Lost a race: someone else moved the record first.
		current, err := s.Get(ctx, id)
		if err != nil {
			return pgrepo.MatchRecord{}, err
		}
		if current.Status == to {
			return current, nil
		}
		return pgrepo.MatchRecord{}, ErrInvalidTransition
	}

	s.afterTransition(ctx, updated, actorUserID)
	return updated, nil
}

// ConfirmRole records one party's handover confirmation. Flags are monotonic
// and confirming twice is a no-op. Resolution is the handover coordinator's
// decision, not a side effect here.
func (s *Service) ConfirmRole(ctx context.Context, id string, role enums.HandoverRole) (pgrepo.MatchRecord, error) {
	if !role.IsValid() {
		return pgrepo.MatchRecord{}, ErrValidation
	}
	if s.store == nil {
		return pgrepo.MatchRecord{}, fmt.Errorf("match store is nil")
	}

	rec, applied, err := s.store.SetHandoverFlag(ctx, id, role)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}
	if !applied {
		current, err := s.Get(ctx, id)
		if err != nil {
			return pgrepo.MatchRecord{}, err
		}
		return pgrepo.MatchRecord{}, closedError(current)
	}

	return rec, nil
}

// RecordVerificationAttempt increments the attempt counter, failing once the
// cap is reached or the record left the active states.
func (s *Service) RecordVerificationAttempt(ctx context.Context, id string, max int) (pgrepo.MatchRecord, error) {
	if max <= 0 {
		return pgrepo.MatchRecord{}, ErrValidation
	}
	if s.store == nil {
		return pgrepo.MatchRecord{}, fmt.Errorf("match store is nil")
	}

	rec, applied, err := s.store.IncrementVerificationAttempts(ctx, id, max)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}
	if !applied {
		current, err := s.Get(ctx, id)
		if err != nil {
			return pgrepo.MatchRecord{}, err
		}
		if current.VerificationAttempts >= max {
			return pgrepo.MatchRecord{}, ErrAttemptsExhausted
		}
		return pgrepo.MatchRecord{}, closedError(current)
	}

	return rec, nil
}

// RoleUser resolves which platform user acts in the given role of a match.
func (s *Service) RoleUser(ctx context.Context, rec pgrepo.MatchRecord, role enums.HandoverRole) (int64, error) {
	if s.reports == nil {
		return 0, fmt.Errorf("report store is nil")
	}

	reportID := rec.SourceReportID
	if role == enums.HandoverRoleTarget {
		reportID = rec.TargetReportID
	}

	report, found, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return report.OwnerUserID, nil
}

// ClaimantUser resolves the owner of the lost report, the party whose
// ownership claim the verification challenge tests.
func (s *Service) ClaimantUser(ctx context.Context, rec pgrepo.MatchRecord) (int64, error) {
	report, err := s.reportOfKind(ctx, rec, enums.ReportKindLost)
	if err != nil {
		return 0, err
	}
	return report.OwnerUserID, nil
}

// FoundReport resolves the found-side report of a match, which carries the
// security questions.
func (s *Service) FoundReport(ctx context.Context, rec pgrepo.MatchRecord) (pgrepo.ReportRecord, error) {
	return s.reportOfKind(ctx, rec, enums.ReportKindFound)
}

func (s *Service) reportOfKind(ctx context.Context, rec pgrepo.MatchRecord, kind enums.ReportKind) (pgrepo.ReportRecord, error) {
	if s.reports == nil {
		return pgrepo.ReportRecord{}, fmt.Errorf("report store is nil")
	}

	for _, reportID := range []int64{rec.SourceReportID, rec.TargetReportID} {
		report, found, err := s.reports.GetByID(ctx, reportID)
		if err != nil {
			return pgrepo.ReportRecord{}, err
		}
		if found && report.Kind == kind {
			return report, nil
		}
	}

	return pgrepo.ReportRecord{}, ErrNotFound
}

func (s *Service) loadOpenReport(ctx context.Context, id int64) (pgrepo.ReportRecord, error) {
	report, found, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return pgrepo.ReportRecord{}, err
	}
	if !found || report.Status != enums.ReportStatusOpen {
		return pgrepo.ReportRecord{}, ErrValidation
	}
	return report, nil
}

// afterTransition runs the post-commit side effects of a terminal
// transition. Delivery is best-effort: the durable transition already
// happened and is never rolled back.
func (s *Service) afterTransition(ctx context.Context, rec pgrepo.MatchRecord, actorUserID int64) {
	event := notify.MatchEvent{
		MatchID:        rec.ID,
		SourceReportID: rec.SourceReportID,
		TargetReportID: rec.TargetReportID,
		Status:         string(rec.Status),
		Reason:         rec.RejectionReason,
	}

	switch rec.Status {
	case enums.MatchStatusDismissed:
		s.appendRejection(ctx, rec, actorUserID)
		if s.notifier != nil {
			if err := s.notifier.MatchDismissed(ctx, event); err != nil {
				s.logger.Warn("match dismissed notification failed", zap.Error(err), zap.String("match_id", rec.ID))
			}
		}
	case enums.MatchStatusResolved:
		if s.notifier != nil {
			if err := s.notifier.MatchResolved(ctx, event); err != nil {
				s.logger.Warn("match resolved notification failed", zap.Error(err), zap.String("match_id", rec.ID))
			}
		}
	case enums.MatchStatusExpired:
		if s.notifier != nil {
			if err := s.notifier.MatchExpired(ctx, event); err != nil {
				s.logger.Warn("match expired notification failed", zap.Error(err), zap.String("match_id", rec.ID))
			}
		}
	}
}

func (s *Service) appendRejection(ctx context.Context, rec pgrepo.MatchRecord, actorUserID int64) {
	if s.rejections == nil {
		return
	}

	userID := actorUserID
	if userID <= 0 {
		// System-initiated dismissal: attribute to the claimant.
		resolved, err := s.ClaimantUser(ctx, rec)
		if err != nil {
			s.logger.Warn("rejection attribution failed", zap.Error(err), zap.String("match_id", rec.ID))
			return
		}
		userID = resolved
	}

	if err := s.rejections.Record(ctx, rec.ID, userID, rec.RejectionReason, rec.Notes); err != nil {
		s.logger.Error("rejection record failed", zap.Error(err), zap.String("match_id", rec.ID))
	}
}

func closedError(rec pgrepo.MatchRecord) error {
	if rec.Status.IsTerminal() {
		return ErrMatchClosed
	}
	return ErrNotFound
}
