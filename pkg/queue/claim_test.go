package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskforge/pkg/models"
	"taskforge/pkg/registry"
	"taskforge/pkg/storage"
)

func noopHandler() registry.Handler {
	return registry.HandlerFunc(func(ctx context.Context, payload []byte, jobID int64) error {
		return nil
	})
}

func TestClaimNext_OrdersByPriority(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	ctx := context.Background()
	reg.Register("job", noopHandler())

	now := fake.Now()

	low, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{Priority: 8, ScheduledAt: now})
	require.NoError(t, err)
	high, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{Priority: 1, ScheduledAt: now})
	require.NoError(t, err)
	_ = low

	claimed, err := e.claimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, high.ID, claimed.ID)
}

func TestClaimNext_NotDueJobIsSkipped(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	ctx := context.Background()
	reg.Register("job", noopHandler())

	_, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{ScheduledAt: fake.Now().Add(time.Hour)})
	require.NoError(t, err)

	_, err = e.claimNext(ctx)
	require.ErrorIs(t, err, storage.ErrNoJobAvailable)
}

func TestClaimNext_SetsLeaseFields(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	ctx := context.Background()
	reg.Register("job", noopHandler())

	_, err := e.Enqueue(ctx, "job", nil, EnqueueOptions{ScheduledAt: fake.Now()})
	require.NoError(t, err)

	claimed, err := e.claimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, claimed.Status)
	require.NotNil(t, claimed.LockKey)
	require.NotNil(t, claimed.LockExpiration)
	require.Equal(t, fake.Now().Add(e.leaseDuration), *claimed.LockExpiration)
}
