package queue

import (
	"context"
	"errors"

	"taskforge/pkg/metrics"
	"taskforge/pkg/models"
	"taskforge/pkg/storage"

	"go.uber.org/zap"
)

// claimNext wraps Store.ClaimNext with the lease token generation and
// metrics the spec's Claim Engine section requires (spec.md §4.3): every
// claim gets a fresh, cryptographically random lock_key and a
// lock_expiration leaseDuration out from now.
func (e *Engine) claimNext(ctx context.Context) (*models.Job, error) {
	now := e.clock.Now()
	lockKey := e.host.RandomToken()
	lockExpiry := now.Add(e.leaseDuration)

	job, err := e.store.ClaimNext(ctx, now, lockKey, lockExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrNoJobAvailable) {
			return nil, err
		}
		return nil, err
	}

	metrics.RecordClaim(now.Sub(job.ScheduledAt).Seconds())
	e.log.Debug("job claimed",
		zap.Int64("job_id", job.ID),
		zap.String("job_name", job.JobName),
		zap.String("lock_key", lockKey),
	)
	return job, nil
}

// claimByID wraps Store.ClaimByID the same way claimNext wraps
// Store.ClaimNext, but targets a single candidate job instead of letting
// the store pick one. Used by the Dispatcher and by Enqueue's
// immediate-dispatch path, both of which already know which job they want
// claimed; ErrNoJobAvailable here just means another claimant won the race
// first, which both callers treat as a normal, silent no-op.
func (e *Engine) claimByID(ctx context.Context, id int64) (*models.Job, error) {
	now := e.clock.Now()
	lockKey := e.host.RandomToken()
	lockExpiry := now.Add(e.leaseDuration)

	job, err := e.store.ClaimByID(ctx, id, now, lockKey, lockExpiry)
	if err != nil {
		return nil, err
	}

	metrics.RecordClaim(now.Sub(job.ScheduledAt).Seconds())
	e.log.Debug("job claimed",
		zap.Int64("job_id", job.ID),
		zap.String("job_name", job.JobName),
		zap.String("lock_key", lockKey),
	)
	return job, nil
}
