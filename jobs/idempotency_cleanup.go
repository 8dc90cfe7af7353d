package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
)

const defaultRetention = 7 * 24 * time.Hour

// KeyPruner deletes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes processed request keys.
type IdempotencyCleanupJob struct {
	Store   KeyPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the cleanup handler.
func NewIdempotencyCleanupJob(store KeyPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultRetention
	}
	metrics := metricsOr(j.Metrics)
	tracker := metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		logFor(j.Logger, TaskIdempotencyCleanup).Error("cleanup idempotency keys", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddAffected(TaskIdempotencyCleanup, removed)
	logFor(j.Logger, TaskIdempotencyCleanup).Info("idempotency keys pruned", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return tracker.End(nil)
}
