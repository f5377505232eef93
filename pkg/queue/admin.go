package queue

import (
	"context"
	"errors"
	"fmt"

	"taskforge/pkg/models"
)

// ErrNotRetryable is returned by Retry when a job has not reached
// StatusFailed.
var ErrNotRetryable = errors.New("queue: job is not in a retryable state")

// Get returns a single job by ID, for the Admin API (spec.md §6.4).
func (e *Engine) Get(ctx context.Context, id int64) (*models.Job, error) {
	return e.store.GetByID(ctx, id)
}

// List returns jobs filtered by an optional status, newest first.
func (e *Engine) List(ctx context.Context, status *models.Status, limit, offset int) ([]models.Job, error) {
	return e.store.List(ctx, status, limit, offset)
}

// CountByStatus reports the current count of jobs in each status.
func (e *Engine) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	return e.store.CountByStatus(ctx)
}

// Cancel removes a job outright, regardless of its current status
// (spec.md §6.4: Cancel is a hard delete of the row). If the job is
// currently claimed, its worker's eventual ConditionalUpdate will find the
// row gone and no-op safely rather than being blocked here.
func (e *Engine) Cancel(ctx context.Context, id int64) error {
	return e.store.Delete(ctx, id)
}

// Retry resets a terminally-failed job back to StatusPending with a fresh
// retry budget, for operator-triggered recovery after fixing an upstream
// cause (spec.md §6.4 "Admin API").
func (e *Engine) Retry(ctx context.Context, id int64) (*models.Job, error) {
	job, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: job %d is %s", ErrNotRetryable, id, job.Status)
	}

	return e.store.Reset(ctx, id, e.clock.Now())
}
