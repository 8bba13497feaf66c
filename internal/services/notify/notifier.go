package notify

import (
	"context"

	"go.uber.org/zap"
)

// MatchEvent carries the outward-facing facts about a protocol outcome.
// Consumers (ops channel, in-app toast relay) never see internal state.
type MatchEvent struct {
	MatchID        string
	SourceReportID int64
	TargetReportID int64
	Status         string
	Reason         string
}

type FlagEvent struct {
	UserID int64
	Reason string
}

// Notifier is the injected replacement for the legacy global toast hook.
// Implementations must be safe for concurrent use; failures are reported to
// the caller, which treats delivery as best-effort.
type Notifier interface {
	MatchResolved(ctx context.Context, event MatchEvent) error
	MatchExpired(ctx context.Context, event MatchEvent) error
	MatchDismissed(ctx context.Context, event MatchEvent) error
	UserFlagged(ctx context.Context, event FlagEvent) error
}

// LogNotifier writes protocol outcomes to the service log. It is the default
// sink when no external channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) MatchResolved(_ context.Context, event MatchEvent) error {
	n.logger.Info("match resolved",
		zap.String("match_id", event.MatchID),
		zap.Int64("source_report_id", event.SourceReportID),
		zap.Int64("target_report_id", event.TargetReportID),
	)
	return nil
}

func (n *LogNotifier) MatchExpired(_ context.Context, event MatchEvent) error {
	n.logger.Info("match expired",
		zap.String("match_id", event.MatchID),
		zap.Int64("source_report_id", event.SourceReportID),
		zap.Int64("target_report_id", event.TargetReportID),
	)
	return nil
}

func (n *LogNotifier) MatchDismissed(_ context.Context, event MatchEvent) error {
	n.logger.Info("match dismissed",
		zap.String("match_id", event.MatchID),
		zap.String("reason", event.Reason),
	)
	return nil
}

func (n *LogNotifier) UserFlagged(_ context.Context, event FlagEvent) error {
	n.logger.Warn("user flagged",
		zap.Int64("user_id", event.UserID),
		zap.String("reason", event.Reason),
	)
	return nil
}
