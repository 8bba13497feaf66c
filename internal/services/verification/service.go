package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
)

var (
	ErrNoQuestions     = errors.New("report has no security questions")
	ErrUnknownQuestion = errors.New("question does not belong to this match")
)

const (
	DefaultMaxAttempts = 3
	DefaultIssuedTTL   = 48 * time.Hour
)

// Challenge is the claimant-facing view of a security question. The stored
// answer never leaves the service.
type Challenge struct {
	QuestionID int64
	Question   string
}

// Result reports the outcome of one answer attempt.
type Result struct {
	Verified     bool
	AttemptsUsed int
	AttemptsLeft int
	Dismissed    bool
}

type QuestionStore interface {
	ListForReport(ctx context.Context, reportID int64) ([]pgrepo.SecurityQuestionRecord, error)
	ReplaceForReport(ctx context.Context, reportID int64, items []pgrepo.SecurityQuestionWrite) error
}

// QuestionInput is one question/answer pair supplied by the intake flow.
type QuestionInput struct {
	Question string
	Answer   string
}

// IssuedTracker remembers which questions a match already received, so
// repeated challenges rotate instead of leaking the same question.
type IssuedTracker interface {
	MarkIssued(ctx context.Context, matchID string, questionID int64, ttl time.Duration) error
	IssuedIDs(ctx context.Context, matchID string) ([]int64, error)
}

type Lifecycle interface {
	Get(ctx context.Context, id string) (pgrepo.MatchRecord, error)
	FoundReport(ctx context.Context, rec pgrepo.MatchRecord) (pgrepo.ReportRecord, error)
	RecordVerificationAttempt(ctx context.Context, id string, max int) (pgrepo.MatchRecord, error)
	UpdateStatus(ctx context.Context, id string, to enums.MatchStatus, notes, rejectionReason string, actorUserID int64) (pgrepo.MatchRecord, error)
}

type Config struct {
	MaxAttempts int
	IssuedTTL   time.Duration
}

type Dependencies struct {
	Questions QuestionStore
	Issued    IssuedTracker
	Lifecycle Lifecycle
	Logger    *zap.Logger
}

// Service runs the ownership challenge: the finder's intake questions are
// posed to the claimant, wrong answers burn attempts, and exhausting the cap
// dismisses the match.
type Service struct {
	questions QuestionStore
	issued    IssuedTracker
	lifecycle Lifecycle
	cfg       Config
	logger    *zap.Logger
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.IssuedTTL <= 0 {
		cfg.IssuedTTL = DefaultIssuedTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		questions: deps.Questions,
		issued:    deps.Issued,
		lifecycle: deps.Lifecycle,
		cfg:       cfg,
		logger:    logger,
	}
}

// SetQuestions replaces a report's challenge set. Answers are normalized
// before they are stored; the raw answer is never persisted.
func (s *Service) SetQuestions(ctx context.Context, reportID int64, items []QuestionInput) error {
	if reportID <= 0 || len(items) == 0 {
		return lifecycle.ErrValidation
	}

	writes := make([]pgrepo.SecurityQuestionWrite, 0, len(items))
	for _, item := range items {
		question := strings.TrimSpace(item.Question)
		answer := Normalize(item.Answer)
		if question == "" || answer == "" {
			return lifecycle.ErrValidation
		}
		writes = append(writes, pgrepo.SecurityQuestionWrite{Question: question, AnswerNorm: answer})
	}

	return s.questions.ReplaceForReport(ctx, reportID, writes)
}

// NextQuestion issues a security question for the match, preferring one the
// claimant has not seen yet. Once the pool is exhausted questions repeat.
func (s *Service) NextQuestion(ctx context.Context, matchID string) (Challenge, error) {
	rec, err := s.activeMatch(ctx, matchID)
	if err != nil {
		return Challenge{}, err
	}

	pool, err := s.questionPool(ctx, rec)
	if err != nil {
		return Challenge{}, err
	}

	question := s.pickUnissued(ctx, matchID, pool)
	if s.issued != nil {
		if err := s.issued.MarkIssued(ctx, matchID, question.ID, s.cfg.IssuedTTL); err != nil {
			// Rotation is an aid, not a guarantee; the challenge still stands.
			s.logger.Warn("mark issued question failed", zap.Error(err), zap.String("match_id", matchID))
		}
	}

	return Challenge{QuestionID: question.ID, Question: question.Question}, nil
}

// VerifyAnswer checks one answer attempt. Every answer consumes an attempt
// regardless of correctness; the final wrong answer dismisses the match.
func (s *Service) VerifyAnswer(ctx context.Context, matchID string, questionID int64, answer string) (Result, error) {
	rec, err := s.activeMatch(ctx, matchID)
	if err != nil {
		return Result{}, err
	}

	pool, err := s.questionPool(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	var question pgrepo.SecurityQuestionRecord
	found := false
	for _, q := range pool {
		if q.ID == questionID {
			question = q
			found = true
			break
		}
	}
	if !found {
		return Result{}, ErrUnknownQuestion
	}

	updated, err := s.lifecycle.RecordVerificationAttempt(ctx, matchID, s.cfg.MaxAttempts)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		AttemptsUsed: updated.VerificationAttempts,
		AttemptsLeft: s.cfg.MaxAttempts - updated.VerificationAttempts,
	}

	if Normalize(answer) == question.AnswerNorm {
		result.Verified = true
		return result, nil
	}

	if result.AttemptsLeft > 0 {
		return result, nil
	}

	// Final attempt burned: the claim is treated as failed and the match is
	// dismissed on the claimant's behalf.
	if _, err := s.lifecycle.UpdateStatus(ctx, matchID, enums.MatchStatusDismissed,
		"ownership verification failed: max attempts exceeded",
		string(enums.RejectionReasonVerificationFailed), 0); err != nil {
		if !errors.Is(err, lifecycle.ErrInvalidTransition) {
			return Result{}, err
		}
		// Closed concurrently; the attempt counter already tells the story.
	}
	result.Dismissed = true
	return result, nil
}

// activeMatch loads a record a claimant may still challenge. Exhausted
// attempts are reported as such even on the auto-dismissed record, so the
// claimant sees why the claim is closed.
func (s *Service) activeMatch(ctx context.Context, matchID string) (pgrepo.MatchRecord, error) {
	rec, err := s.lifecycle.Get(ctx, matchID)
	if err != nil {
		return pgrepo.MatchRecord{}, err
	}
	if rec.VerificationAttempts >= s.cfg.MaxAttempts {
		return pgrepo.MatchRecord{}, lifecycle.ErrAttemptsExhausted
	}
	if rec.Status.IsTerminal() {
		return pgrepo.MatchRecord{}, lifecycle.ErrMatchClosed
	}
	return rec, nil
}

func (s *Service) questionPool(ctx context.Context, rec pgrepo.MatchRecord) ([]pgrepo.SecurityQuestionRecord, error) {
	report, err := s.lifecycle.FoundReport(ctx, rec)
	if err != nil {
		return nil, err
	}

	pool, err := s.questions.ListForReport(ctx, report.ID)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, ErrNoQuestions
	}
	return pool, nil
}

func (s *Service) pickUnissued(ctx context.Context, matchID string, pool []pgrepo.SecurityQuestionRecord) pgrepo.SecurityQuestionRecord {
	if s.issued == nil {
		return pool[0]
	}

	issuedIDs, err := s.issued.IssuedIDs(ctx, matchID)
	if err != nil {
		s.logger.Warn("list issued questions failed", zap.Error(err), zap.String("match_id", matchID))
		return pool[0]
	}

	issued := make(map[int64]struct{}, len(issuedIDs))
	for _, id := range issuedIDs {
		issued[id] = struct{}{}
	}
	for _, q := range pool {
		if _, seen := issued[q.ID]; !seen {
			return q
		}
	}
	return pool[0]
}

// Normalize canonicalizes an answer for comparison: lowercased, trimmed, and
// inner whitespace collapsed. Intake stores answers in the same form.
func Normalize(answer string) string {
	return strings.Join(strings.Fields(strings.ToLower(answer)), " ")
}
