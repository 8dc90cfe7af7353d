// Package notify delivers payable reminder digests.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shopledger/shopledger/internal/payables"
)

// Notifier sends a reminder digest somewhere a human will read it.
type Notifier interface {
	NotifyReminders(ctx context.Context, reminders payables.Reminders) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts digests to a single chat.
type Telegram struct {
	api    sender
	chatID int64
	logger *slog.Logger
}

// NewTelegram authenticates the bot token and returns a notifier for chatID.
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram login: %w", err)
	}
	return newTelegram(api, chatID, logger), nil
}

func newTelegram(api sender, chatID int64, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{api: api, chatID: chatID, logger: logger}
}

// NotifyReminders sends the digest. Empty digests are skipped.
func (t *Telegram) NotifyReminders(ctx context.Context, reminders payables.Reminders) error {
	if reminders.Empty() {
		t.logger.Debug("telegram digest skipped, nothing due")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatDigest(reminders))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("notify: telegram send: %w", err)
	}
	t.logger.Info("telegram digest sent", slog.Int64("chat_id", t.chatID))
	return nil
}

// Log writes digests to the logger when no chat is configured.
type Log struct {
	Logger *slog.Logger
}

// NotifyReminders logs bucket sizes.
func (l Log) NotifyReminders(ctx context.Context, reminders payables.Reminders) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("payables reminders",
		slog.String("as_of", reminders.AsOf.Format("2006-01-02")),
		slog.Int("due_today", len(reminders.DueToday)),
		slog.Int("due_tomorrow", len(reminders.DueTomorrow)),
		slog.Int("due_soon", len(reminders.DueSoon)),
		slog.Int("overdue", len(reminders.Overdue)))
	return nil
}

// FormatDigest renders reminders as plain text.
func FormatDigest(r payables.Reminders) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payables reminder for %s\n", r.AsOf.Format("2006-01-02"))
	section(&b, "Overdue", r.Overdue)
	section(&b, "Due today", r.DueToday)
	section(&b, "Due tomorrow", r.DueTomorrow)
	section(&b, "Due in the next 3 days", r.DueSoon)
	return strings.TrimRight(b.String(), "\n")
}

func section(b *strings.Builder, title string, rows []payables.Payable) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d)\n", title, len(rows))
	for _, p := range rows {
		fmt.Fprintf(b, "- #%d %s: %s due %s\n", p.ID, p.Description, p.BalanceDue.StringFixed(2), p.DueDate.Format("2006-01-02"))
	}
}
