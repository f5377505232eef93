package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskforge/pkg/models"
	"taskforge/pkg/registry"
)

func TestEnqueue_RejectsUnknownJobName(t *testing.T) {
	e, _, _ := newTestEngine(t, 5)
	_, err := e.Enqueue(context.Background(), "nobody-home", nil, EnqueueOptions{})
	require.True(t, errors.Is(err, registry.ErrUnknownHandler))
}

func TestEnqueue_DefaultsScheduledAtToNow(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	reg.Register("job", noopHandler())

	job, err := e.Enqueue(context.Background(), "job", nil, EnqueueOptions{})
	require.NoError(t, err)
	require.Equal(t, fake.Now(), job.ScheduledAt)
	require.Equal(t, fake.Now(), job.CreatedAt)
	require.Equal(t, models.StatusPending, job.Status)
}

func TestEnqueue_HonorsExplicitScheduledAt(t *testing.T) {
	e, fake, reg := newTestEngine(t, 5)
	reg.Register("job", noopHandler())

	future := fake.Now().Add(time.Hour)
	job, err := e.Enqueue(context.Background(), "job", nil, EnqueueOptions{ScheduledAt: future})
	require.NoError(t, err)
	require.Equal(t, future, job.ScheduledAt)
}

func TestEnqueue_ClampsOutOfRangePriority(t *testing.T) {
	e, _, reg := newTestEngine(t, 5)
	reg.Register("job", noopHandler())

	high, err := e.Enqueue(context.Background(), "job", nil, EnqueueOptions{Priority: 999})
	require.NoError(t, err)
	require.Equal(t, models.MaxPriority, high.Priority)

	low, err := e.Enqueue(context.Background(), "job", nil, EnqueueOptions{Priority: -5})
	require.NoError(t, err)
	require.Equal(t, models.MinPriority, low.Priority)
}

func TestEnqueue_PersistsPayload(t *testing.T) {
	e, _, reg := newTestEngine(t, 5)
	reg.Register("job", noopHandler())

	payload := []byte(`{"key":"value"}`)
	job, err := e.Enqueue(context.Background(), "job", payload, EnqueueOptions{})
	require.NoError(t, err)

	got, err := e.store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, payload, []byte(got.JobData))
}
