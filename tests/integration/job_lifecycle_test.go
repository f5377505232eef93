package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	config "taskforge/configs"
	"taskforge/pkg/clock"
	"taskforge/pkg/host"
	"taskforge/pkg/models"
	"taskforge/pkg/queue"
	"taskforge/pkg/registry"
	"taskforge/pkg/storage"
	"taskforge/pkg/storage/postgres"
)

// JobLifecycleSuite exercises the full Producer -> Claim Engine -> Executor
// cycle against a real Postgres instance (spec.md §8 "Test scenarios").
type JobLifecycleSuite struct {
	suite.Suite
	store  *postgres.Store
	engine *queue.Engine
	clock  *clock.FakeClock
	host   *host.InProcess
	cancel context.CancelFunc
}

func (s *JobLifecycleSuite) SetupSuite() {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		s.T().Skip("skipping integration tests (SKIP_INTEGRATION_TESTS=true)")
	}

	dbHost := getEnv("TEST_DB_HOST", "localhost")
	dbPort := getEnv("TEST_DB_PORT", "5432")
	dbUser := getEnv("TEST_DB_USER", "taskforge")
	dbPass := getEnv("TEST_DB_PASS", "password")
	dbName := getEnv("TEST_DB_NAME", "taskforge_test")

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPass, dbName,
	)

	store, err := postgres.New(connStr)
	if err != nil {
		s.T().Skipf("skipping integration tests: %v", err)
	}
	s.store = store

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.host = host.NewInProcess(ctx, 2)
	s.clock = clock.NewFakeClock(time.Now())

	reg := registry.New()
	reg.Register("noop", registry.HandlerFunc(func(ctx context.Context, payload []byte, jobID int64) error {
		return nil
	}))
	reg.Register("always-fails", registry.HandlerFunc(func(ctx context.Context, payload []byte, jobID int64) error {
		return errors.New("handler always fails")
	}))

	cfg := &config.Config{
		MaxRetries:             3,
		LeaseDuration:          5 * time.Second,
		DispatchBatchSize:      10,
		DispatchInterval:       time.Second,
		ReaperInterval:         time.Second,
		CompletedRetentionDays: 7,
		FailedRetentionDays:    30,
	}
	s.engine = queue.New(cfg, store, reg, s.host, s.clock, nil, nil)
}

func (s *JobLifecycleSuite) TearDownSuite() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.store != nil {
		s.store.Close()
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestEnqueueAndClaim verifies a job enqueued with a known handler name can
// be claimed and completed, ending in StatusCompleted.
func (s *JobLifecycleSuite) TestEnqueueAndClaim() {
	ctx := context.Background()

	job, err := s.engine.Enqueue(ctx, "noop", []byte(`{}`), queue.EnqueueOptions{Priority: 5})
	require.NoError(s.T(), err)
	require.Equal(s.T(), models.StatusPending, job.Status)

	require.NoError(s.T(), s.engine.RunOnce(ctx))

	completed, err := s.engine.Get(ctx, job.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), models.StatusCompleted, completed.Status)
	require.NotNil(s.T(), completed.CompletedAt)
}

// TestUnknownHandlerRejectedAtEnqueue verifies the Producer API's
// enqueue-time validation (spec.md §4.2).
func (s *JobLifecycleSuite) TestUnknownHandlerRejectedAtEnqueue() {
	ctx := context.Background()

	_, err := s.engine.Enqueue(ctx, "no-such-handler", []byte(`{}`), queue.EnqueueOptions{})
	require.Error(s.T(), err)
	require.ErrorIs(s.T(), err, registry.ErrUnknownHandler)
}

// TestRetryThenTerminalFailure drives a failing handler through every
// retry until it crosses MaxRetries and lands in StatusFailed. The fake
// clock is advanced past each exponential backoff window so the test runs
// in milliseconds instead of real minutes.
func (s *JobLifecycleSuite) TestRetryThenTerminalFailure() {
	ctx := context.Background()

	job, err := s.engine.Enqueue(ctx, "always-fails", []byte(`{}`), queue.EnqueueOptions{})
	require.NoError(s.T(), err)

	for attempt := 0; attempt < 10; attempt++ {
		err := s.engine.RunOnce(ctx)
		if errors.Is(err, storage.ErrNoJobAvailable) {
			s.clock.Advance(2 * time.Hour)
			continue
		}
		require.NoError(s.T(), err)

		current, err := s.engine.Get(ctx, job.ID)
		require.NoError(s.T(), err)
		if current.Status.IsTerminal() {
			break
		}
		s.clock.Advance(2 * time.Hour)
	}

	final, err := s.engine.Get(ctx, job.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), models.StatusFailed, final.Status)
	require.GreaterOrEqual(s.T(), final.Retries, 3)
}

// TestCancelPendingJob verifies the Admin API's Cancel removes a pending
// job outright.
func (s *JobLifecycleSuite) TestCancelPendingJob() {
	ctx := context.Background()

	job, err := s.engine.Enqueue(ctx, "noop", []byte(`{}`), queue.EnqueueOptions{
		ScheduledAt: s.clock.Now().Add(time.Hour),
	})
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.engine.Cancel(ctx, job.ID))

	_, err = s.engine.Get(ctx, job.ID)
	require.Error(s.T(), err)
}

// TestCancelProcessingJob verifies Cancel is a hard delete regardless of
// status: a job already claimed by a worker can still be cancelled, and
// the worker's eventual ConditionalUpdate against the now-deleted row
// writes nothing and returns ErrNotFound.
func (s *JobLifecycleSuite) TestCancelProcessingJob() {
	ctx := context.Background()

	job, err := s.engine.Enqueue(ctx, "noop", []byte(`{}`), queue.EnqueueOptions{})
	require.NoError(s.T(), err)

	claimed, err := s.store.ClaimNext(ctx, s.clock.Now(), "manual-test-lock", s.clock.Now().Add(time.Minute))
	require.NoError(s.T(), err)
	require.Equal(s.T(), job.ID, claimed.ID)
	require.Equal(s.T(), models.StatusProcessing, claimed.Status)

	require.NoError(s.T(), s.engine.Cancel(ctx, job.ID))

	_, err = s.engine.Get(ctx, job.ID)
	require.Error(s.T(), err)

	err = s.store.ConditionalUpdate(ctx, job.ID, "manual-test-lock", func(j *models.Job) {
		j.Status = models.StatusCompleted
	})
	require.ErrorIs(s.T(), err, storage.ErrNotFound)
}

// TestAdminRetryResetsFailedJob verifies operator-triggered retry restores
// a terminally-failed job to StatusPending with a fresh retry budget while
// preserving its ID.
func (s *JobLifecycleSuite) TestAdminRetryResetsFailedJob() {
	ctx := context.Background()

	job, err := s.engine.Enqueue(ctx, "always-fails", []byte(`{}`), queue.EnqueueOptions{})
	require.NoError(s.T(), err)

	for attempt := 0; attempt < 10; attempt++ {
		current, err := s.engine.Get(ctx, job.ID)
		require.NoError(s.T(), err)
		if current.Status.IsTerminal() {
			break
		}
		if err := s.engine.RunOnce(ctx); errors.Is(err, storage.ErrNoJobAvailable) {
			s.clock.Advance(2 * time.Hour)
		}
	}

	retried, err := s.engine.Retry(ctx, job.ID)
	require.NoError(s.T(), err)
	require.Equal(s.T(), job.ID, retried.ID)
	require.Equal(s.T(), models.StatusPending, retried.Status)
	require.Equal(s.T(), 0, retried.Retries)
}

func TestJobLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(JobLifecycleSuite))
}
