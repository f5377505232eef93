package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskforge/pkg/models"
)

func TestReap_ReclaimsExpiredLeaseWithoutIncrementingRetries(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	ctx := context.Background()
	reg.Register("job", noopHandler())

	job, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{})
	require.NoError(t, err)

	claimed, err := e.claimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)
	require.Equal(t, models.StatusProcessing, claimed.Status)

	// Advance past the lease expiry without the worker ever completing.
	fake.Advance(e.leaseDuration + time.Minute)

	e.reap(ctx)

	got, err := e.store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, got.Status)
	require.Nil(t, got.LockKey)
	require.Nil(t, got.LockExpiration)
	require.Equal(t, 0, got.Retries, "lease reclamation must not count as a retry")
}

func TestReap_DoesNotTouchLiveLease(t *testing.T) {
	e, _, reg := newTestEngine(t, 5)
	ctx := context.Background()
	reg.Register("job", noopHandler())

	job, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{})
	require.NoError(t, err)

	_, err = e.claimNext(ctx)
	require.NoError(t, err)

	e.reap(ctx)

	got, err := e.store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)
}

func TestReap_PrunesRetiredTerminalJobs(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	ctx := context.Background()
	reg.Register("job", noopHandler())

	job, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{})
	require.NoError(t, err)

	claimed, err := e.claimNext(ctx)
	require.NoError(t, err)

	completedAt := fake.Now()
	err = e.store.ConditionalUpdate(ctx, claimed.ID, *claimed.LockKey, func(j *models.Job) {
		j.Status = models.StatusCompleted
		j.CompletedAt = &completedAt
		j.LockKey = nil
		j.LockExpiration = nil
	})
	require.NoError(t, err)

	fake.Advance(e.completedRetention + 24*time.Hour)

	e.reap(ctx)

	_, err = e.store.GetByID(ctx, job.ID)
	require.Error(t, err)
}

func TestReap_KeepsTerminalJobsWithinRetention(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	ctx := context.Background()
	reg.Register("job", noopHandler())

	job, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{})
	require.NoError(t, err)

	claimed, err := e.claimNext(ctx)
	require.NoError(t, err)

	completedAt := fake.Now()
	err = e.store.ConditionalUpdate(ctx, claimed.ID, *claimed.LockKey, func(j *models.Job) {
		j.Status = models.StatusCompleted
		j.CompletedAt = &completedAt
		j.LockKey = nil
		j.LockExpiration = nil
	})
	require.NoError(t, err)

	e.reap(ctx)

	_, err = e.store.GetByID(ctx, job.ID)
	require.NoError(t, err)
}
