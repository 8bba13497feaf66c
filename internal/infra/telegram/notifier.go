package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Ozonelabrada/resqhub-sub003/internal/infra/httpclient"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/notify"
)

const sendTimeout = 10 * time.Second

// Notifier relays protocol outcomes to the ops Telegram channel. Send-only:
// no update polling, no command handling.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	api, err := tgbotapi.NewBotAPIWithClient(
		strings.TrimSpace(token),
		tgbotapi.APIEndpoint,
		httpclient.New(sendTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Notifier{
		api:    api,
		chatID: chatID,
	}, nil
}

func (n *Notifier) MatchResolved(_ context.Context, event notify.MatchEvent) error {
	return n.send(fmt.Sprintf(
		"✅ Match %s resolved (reports %d / %d): item handed over.",
		event.MatchID, event.SourceReportID, event.TargetReportID,
	))
}

func (n *Notifier) MatchExpired(_ context.Context, event notify.MatchEvent) error {
	return n.send(fmt.Sprintf(
		"⏰ Match %s expired (reports %d / %d): handover window elapsed.",
		event.MatchID, event.SourceReportID, event.TargetReportID,
	))
}

func (n *Notifier) MatchDismissed(_ context.Context, event notify.MatchEvent) error {
	reason := strings.TrimSpace(event.Reason)
	if reason == "" {
		reason = "no reason given"
	}
	return n.send(fmt.Sprintf("❌ Match %s dismissed: %s.", event.MatchID, reason))
}

func (n *Notifier) UserFlagged(_ context.Context, event notify.FlagEvent) error {
	return n.send(fmt.Sprintf(
		"🚩 User %d flagged for moderation review: %s.",
		event.UserID, event.Reason,
	))
}

func (n *Notifier) send(text string) error {
	if n == nil || n.api == nil {
		return fmt.Errorf("telegram notifier is not initialized")
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}

	return nil
}
