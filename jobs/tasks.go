package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPayablesMarkOverdue flips unpaid payables past their due date to overdue.
	TaskPayablesMarkOverdue = "payables:mark-overdue"
	// TaskPayablesReminders sends the daily due/overdue digest.
	TaskPayablesReminders = "payables:reminders"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

const dayLayout = "2006-01-02"

// SweepPayload pins a sweep to a calendar day. An empty AsOf means "today" at run time.
type SweepPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

func (p SweepPayload) day(now time.Time) (time.Time, error) {
	if p.AsOf == "" {
		return now, nil
	}
	t, err := time.Parse(dayLayout, p.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of: %w", err)
	}
	return t, nil
}

// CleanupPayload configures idempotency cleanup.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewMarkOverdueTask builds an overdue sweep task. A zero asOf resolves to the run date.
func NewMarkOverdueTask(asOf time.Time) (*asynq.Task, error) {
	return newSweepTask(TaskPayablesMarkOverdue, asOf)
}

// NewRemindersTask builds a reminder digest task.
func NewRemindersTask(asOf time.Time) (*asynq.Task, error) {
	return newSweepTask(TaskPayablesReminders, asOf)
}

func newSweepTask(typ string, asOf time.Time) (*asynq.Task, error) {
	payload := SweepPayload{}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(dayLayout)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask builds a cleanup task keeping keys younger than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
