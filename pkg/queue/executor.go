package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskforge/pkg/metrics"
	"taskforge/pkg/models"
	"taskforge/pkg/registry"
	"taskforge/pkg/resilience"

	"go.uber.org/zap"
)

// RunOnce claims at most one job and executes it synchronously. Callers
// that want concurrent execution call RunOnce from multiple goroutines, or
// use StartWorkers for a managed pool; this separation keeps the claim/run
// cycle testable without a running goroutine pool (spec.md §8 scenarios).
func (e *Engine) RunOnce(ctx context.Context) error {
	job, err := e.claimNext(ctx)
	if err != nil {
		return err
	}
	e.execute(ctx, job)
	return nil
}

// StartWorkers launches a pool of concurrency goroutines, each repeatedly
// claiming and executing jobs until ctx is cancelled. This is the
// in-process analogue of the source's semaphore-bounded worker pool,
// generalized from a fixed shell-command executor to the Handler/Registry
// dispatch model.
func (e *Engine) StartWorkers(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go e.workerLoop(ctx)
	}
}

func (e *Engine) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := e.RunOnce(ctx); err != nil {
			// No job available: back off briefly rather than spinning.
			select {
			case <-ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
			}
		}
	}
}

// execute invokes the handler bound to job.JobName and routes the outcome
// through HandleFailure/markCompleted. A job whose handler is no longer
// registered fails immediately and terminally (design notes §9, resolved
// open question on unknown handlers).
func (e *Engine) execute(ctx context.Context, job *models.Job) {
	lockKey := *job.LockKey
	started := e.clock.Now()

	handler, err := e.registry.Lookup(job.JobName)
	if err != nil {
		e.markTerminalFailure(ctx, job, lockKey, fmt.Errorf("%w: %s", registry.ErrUnknownHandler, job.JobName))
		return
	}

	payload, err := handler.Decode(job.JobData)
	if err != nil {
		e.HandleFailure(ctx, job, lockKey, fmt.Errorf("decode payload: %w", err))
		return
	}

	runCtx := registry.WithAttempt(ctx, job.Retries+1)
	runErr := e.runWithBreaker(ctx, job.JobName, func() error {
		return handler.Invoke(runCtx, payload, job.ID)
	})

	duration := e.clock.Now().Sub(started).Seconds()

	if runErr != nil {
		metrics.JobExecutionDuration.WithLabelValues(job.JobName, "failed_attempt").Observe(duration)
		e.HandleFailure(ctx, job, lockKey, runErr)
		return
	}

	metrics.RecordCompletion(job.JobName, "completed", duration)
	e.markCompleted(ctx, job, lockKey)
}

func (e *Engine) runWithBreaker(ctx context.Context, jobName string, fn func() error) error {
	if e.breakers == nil {
		return fn()
	}
	cb := e.breakers.get(jobName)
	return cb.Execute(ctx, fn)
}

// markCompleted transitions job to StatusCompleted via the CAS-guarded
// ConditionalUpdate (spec.md invariant: only the lease holder may mutate
// the row).
func (e *Engine) markCompleted(ctx context.Context, job *models.Job, lockKey string) {
	now := e.clock.Now()
	err := e.store.ConditionalUpdate(ctx, job.ID, lockKey, func(j *models.Job) {
		j.Status = models.StatusCompleted
		j.CompletedAt = &now
		j.LockKey = nil
		j.LockExpiration = nil
	})
	if err != nil {
		e.log.Warn("failed to mark job completed", zap.Int64("job_id", job.ID), zap.Error(err))
	}
}

// HandleFailure implements the Executor's failure path (spec.md §4.4):
// attempts below the engine's maxRetries (config MaxRetries) are
// rescheduled with exponential backoff; the attempt that reaches it marks
// the job StatusFailed.
func (e *Engine) HandleFailure(ctx context.Context, job *models.Job, lockKey string, cause error) {
	nextRetries := job.Retries + 1

	if nextRetries >= e.maxRetries {
		e.markTerminalFailure(ctx, job, lockKey, cause)
		return
	}

	now := e.clock.Now()
	delay := backoffDelay(nextRetries)
	err := e.store.ConditionalUpdate(ctx, job.ID, lockKey, func(j *models.Job) {
		j.Status = models.StatusPending
		j.Retries = nextRetries
		j.ErrorMessage = cause.Error()
		j.ScheduledAt = now.Add(delay)
		j.LockKey = nil
		j.LockExpiration = nil
		j.StartedAt = nil
	})
	if err != nil {
		e.log.Warn("failed to reschedule job after failure", zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}

	metrics.RetriesTotal.WithLabelValues(job.JobName).Inc()
	e.log.Info("job rescheduled after failure",
		zap.Int64("job_id", job.ID),
		zap.Int("retries", nextRetries),
		zap.Duration("backoff", delay),
		zap.Error(cause),
	)
}

func (e *Engine) markTerminalFailure(ctx context.Context, job *models.Job, lockKey string, cause error) {
	now := e.clock.Now()
	err := e.store.ConditionalUpdate(ctx, job.ID, lockKey, func(j *models.Job) {
		j.Status = models.StatusFailed
		j.Retries = job.Retries + 1
		j.ErrorMessage = cause.Error()
		j.CompletedAt = &now
		j.LockKey = nil
		j.LockExpiration = nil
	})
	if err != nil {
		e.log.Warn("failed to mark job terminally failed", zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}

	metrics.RecordCompletion(job.JobName, "failed", 0)
	e.log.Error("job failed terminally",
		zap.Int64("job_id", job.ID),
		zap.String("job_name", job.JobName),
		zap.Error(cause),
	)
}

// breakerSet lazily creates one CircuitBreaker per job name, so a
// misbehaving handler's failures don't trip the breaker for unrelated job
// types.
type breakerSet struct {
	mu sync.Mutex
	m  map[string]*resilience.CircuitBreaker
}

func newBreakerSet() *breakerSet {
	return &breakerSet{m: make(map[string]*resilience.CircuitBreaker)}
}

func (b *breakerSet) get(name string) *resilience.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.m[name]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(name, resilience.DefaultCircuitBreakerConfig())
	b.m[name] = cb
	return cb
}
