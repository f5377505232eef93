package queue

import (
	"context"
	"fmt"
	"time"

	"taskforge/pkg/metrics"
	"taskforge/pkg/models"
	"taskforge/pkg/registry"

	"go.uber.org/zap"
)

// EnqueueOptions customizes a single Enqueue call. A zero ScheduledAt
// means "run as soon as possible"; Priority is clamped into
// [models.MinPriority, models.MaxPriority].
type EnqueueOptions struct {
	Priority    int
	ScheduledAt time.Time
}

// Enqueue persists a new job in StatusPending (spec.md §4.2 "Producer
// API"). It rejects job names with no registered Handler so the
// Producer/Admin split described in design notes §9 is enforced at
// insertion time, not discovered later when the Claim Engine can't find a
// handler.
func (e *Engine) Enqueue(ctx context.Context, jobName string, payload []byte, opts EnqueueOptions) (*models.Job, error) {
	if !e.registry.Known(jobName) {
		return nil, fmt.Errorf("queue: %w: %s", registry.ErrUnknownHandler, jobName)
	}

	now := e.clock.Now()
	scheduledAt := opts.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	job := &models.Job{
		JobName:     jobName,
		JobData:     payload,
		Priority:    models.ClampPriority(opts.Priority),
		Status:      models.StatusPending,
		CreatedAt:   now,
		ScheduledAt: scheduledAt,
	}

	if err := e.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", jobName, err)
	}

	metrics.JobsEnqueued.WithLabelValues(jobName).Inc()
	e.log.Info("job enqueued",
		zap.Int64("job_id", job.ID),
		zap.String("job_name", jobName),
		zap.Int("priority", job.Priority),
		zap.Time("scheduled_at", scheduledAt),
	)

	// High-priority jobs don't wait for the next Dispatcher tick: nudge a
	// worker immediately. This is purely an optimization — claimByID still
	// tolerates losing the race to the Dispatcher's own next sweep or to a
	// plain worker's direct claim, so skipping or failing this trigger
	// never loses the job, only its head start.
	if job.Priority <= e.highPriorityThreshold && !scheduledAt.After(now) {
		id := job.ID
		if err := e.host.Trigger(ctx, func(ctx context.Context) {
			e.claimAndExecute(ctx, id)
		}); err != nil {
			e.log.Warn("immediate-dispatch trigger failed, job remains for next sweep",
				zap.Int64("job_id", id), zap.Error(err))
		}
	}

	return job, nil
}

// RecurringInterval is one of the cadences ScheduleRecurring accepts.
type RecurringInterval string

const (
	IntervalHourly     RecurringInterval = "hourly"
	IntervalTwiceDaily RecurringInterval = "twicedaily"
	IntervalDaily      RecurringInterval = "daily"
)

func (i RecurringInterval) duration() (time.Duration, bool) {
	switch i {
	case IntervalHourly:
		return time.Hour, true
	case IntervalTwiceDaily:
		return 12 * time.Hour, true
	case IntervalDaily:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ScheduleRecurring registers a host timer that calls Enqueue(jobName, ...)
// on the stated cadence (spec.md §4.2 "Producer API"). It is idempotent per
// jobName: a second call while a timer is already registered under that
// name returns false without touching the existing registration.
func (e *Engine) ScheduleRecurring(jobName string, payload []byte, interval RecurringInterval, priority int) bool {
	d, ok := interval.duration()
	if !ok {
		e.log.Warn("queue: rejected recurring schedule with unknown interval",
			zap.String("job_name", jobName), zap.String("interval", string(interval)))
		return false
	}

	e.recurringMu.Lock()
	defer e.recurringMu.Unlock()

	if _, exists := e.recurring[jobName]; exists {
		return false
	}

	handle := e.host.RegisterTimer(d, func(ctx context.Context) {
		if _, err := e.Enqueue(ctx, jobName, payload, EnqueueOptions{Priority: priority}); err != nil {
			e.log.Warn("recurring enqueue failed", zap.String("job_name", jobName), zap.Error(err))
		}
	})
	e.recurring[jobName] = handle
	return true
}

// CancelRecurring stops the timer registered for jobName, if any.
func (e *Engine) CancelRecurring(jobName string) {
	e.recurringMu.Lock()
	defer e.recurringMu.Unlock()

	if handle, ok := e.recurring[jobName]; ok {
		handle.Stop()
		delete(e.recurring, jobName)
	}
}
