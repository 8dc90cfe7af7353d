package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/notify"
	"github.com/shopledger/shopledger/internal/payables"
	"github.com/shopledger/shopledger/internal/shared"
)

// ReminderSource buckets unpaid payables by due date.
type ReminderSource interface {
	Reminders(ctx context.Context, asOf time.Time) (payables.Reminders, error)
}

// RemindersJob sends the daily payables digest.
type RemindersJob struct {
	Payables ReminderSource
	Notifier notify.Notifier
	Lock     Locker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewRemindersJob wires dependencies for the digest handler.
func NewRemindersJob(source ReminderSource, notifier notify.Notifier, lock Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *RemindersJob {
	return &RemindersJob{
		Payables: source,
		Notifier: notifier,
		Lock:     lock,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskPayablesReminders.
func (j *RemindersJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Payables == nil || j.Notifier == nil {
		return errors.New("reminders: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	now := time.Now().UTC()
	if j.clock != nil {
		now = j.clock()
	}
	asOf, err := payload.day(now)
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	day := shared.DateOnly(asOf)
	logger := logFor(j.Logger, TaskPayablesReminders).With(slog.String("as_of", day.Format(dayLayout)))
	metrics := metricsOr(j.Metrics)

	release, ok, err := acquire(ctx, j.Lock, shared.SweepLockKey("reminders", day.Format(dayLayout)), digestClaimTTL)
	if err != nil {
		logger.Warn("digest lock unavailable, sending unguarded", slog.Any("error", err))
	}
	if !ok {
		metrics.Skipped(TaskPayablesReminders)
		logger.Info("digest already sent by another worker")
		return nil
	}

	tracker := metrics.Track(TaskPayablesReminders)
	reminders, err := j.Payables.Reminders(ctx, day)
	if err != nil {
		release()
		logger.Error("load reminders", slog.Any("error", err))
		return tracker.End(err)
	}
	if err := j.Notifier.NotifyReminders(ctx, reminders); err != nil {
		// Drop the claim so a retry can deliver.
		release()
		logger.Error("deliver digest", slog.Any("error", err))
		return tracker.End(err)
	}
	count := len(reminders.Overdue) + len(reminders.DueToday) + len(reminders.DueTomorrow) + len(reminders.DueSoon)
	metrics.AddAffected(TaskPayablesReminders, int64(count))
	logger.Info("digest delivered", slog.Int("entries", count))
	return tracker.End(nil)
}
