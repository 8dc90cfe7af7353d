package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/payables"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func sampleReminders() payables.Reminders {
	asOf := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	return payables.Reminders{
		AsOf:     asOf,
		DueToday: []payables.Payable{{ID: 3, Description: "rent", BalanceDue: decimal.RequireFromString("1200"), DueDate: asOf}},
		Overdue:  []payables.Payable{{ID: 1, Description: "tyres", BalanceDue: decimal.RequireFromString("80.5"), DueDate: asOf.AddDate(0, 0, -2)}},
	}
}

func TestFormatDigest(t *testing.T) {
	text := FormatDigest(sampleReminders())
	require.Contains(t, text, "Payables reminder for 2024-06-10")
	require.Contains(t, text, "Overdue (1)\n- #1 tyres: 80.50 due 2024-06-08")
	require.Contains(t, text, "Due today (1)\n- #3 rent: 1200.00 due 2024-06-10")
	require.NotContains(t, text, "Due tomorrow")
}

func TestTelegramSendsDigest(t *testing.T) {
	api := &fakeSender{}
	tg := newTelegram(api, 42, nil)

	require.NoError(t, tg.NotifyReminders(context.Background(), sampleReminders()))
	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, int64(42), msg.ChatID)

	require.NoError(t, tg.NotifyReminders(context.Background(), payables.Reminders{}))
	require.Len(t, api.sent, 1)
}

func TestTelegramSendFailure(t *testing.T) {
	tg := newTelegram(&fakeSender{err: errors.New("chat not found")}, 42, nil)
	err := tg.NotifyReminders(context.Background(), sampleReminders())
	require.ErrorContains(t, err, "chat not found")
}
