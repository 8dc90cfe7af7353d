package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	sweepLockTTL   = 10 * time.Minute
	digestClaimTTL = 24 * time.Hour
)

// OverdueMarker flips open payables due before asOf to overdue.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// CacheInvalidator drops cached reports once the ledger changed.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Locker guards a sweep so only one worker runs it per day.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MarkOverdueJob runs the daily overdue sweep.
type MarkOverdueJob struct {
	Payables OverdueMarker
	Reports  CacheInvalidator
	Lock     Locker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewMarkOverdueJob wires dependencies for the sweep handler.
func NewMarkOverdueJob(payables OverdueMarker, reports CacheInvalidator, lock Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *MarkOverdueJob {
	return &MarkOverdueJob{
		Payables: payables,
		Reports:  reports,
		Lock:     lock,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskPayablesMarkOverdue.
func (j *MarkOverdueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Payables == nil {
		return errors.New("mark overdue: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := payload.day(j.now())
	if err != nil {
		return errors.Join(err, asynq.SkipRetry)
	}
	day := shared.DateOnly(asOf)
	logger := logFor(j.Logger, TaskPayablesMarkOverdue).With(slog.String("as_of", day.Format(dayLayout)))
	metrics := metricsOr(j.Metrics)

	release, ok, err := acquire(ctx, j.Lock, shared.SweepLockKey("mark-overdue", day.Format(dayLayout)), sweepLockTTL)
	if err != nil {
		logger.Warn("sweep lock unavailable, running unguarded", slog.Any("error", err))
	}
	if !ok {
		metrics.Skipped(TaskPayablesMarkOverdue)
		logger.Info("overdue sweep already claimed by another worker")
		return nil
	}
	defer release()

	tracker := metrics.Track(TaskPayablesMarkOverdue)
	updated, err := j.Payables.MarkOverdue(ctx, day)
	if err != nil {
		logger.Error("mark overdue", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddAffected(TaskPayablesMarkOverdue, updated)
	if updated > 0 && j.Reports != nil {
		if err := j.Reports.Invalidate(ctx); err != nil {
			logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	logger.Info("overdue sweep completed", slog.Int64("updated", updated))
	return tracker.End(nil)
}

func (j *MarkOverdueJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// acquire claims key. A lock backend failure still reports ok.
func acquire(ctx context.Context, lock Locker, key string, ttl time.Duration) (func(), bool, error) {
	noop := func() {}
	if lock == nil {
		return noop, true, nil
	}
	ok, err := lock.Acquire(ctx, key, ttl)
	if err != nil {
		return noop, true, err
	}
	if !ok {
		return noop, false, nil
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx), key)
	}, true, nil
}

func logFor(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
