package queue

import (
	"context"
	"errors"

	"taskforge/pkg/host"
	"taskforge/pkg/metrics"
	"taskforge/pkg/storage"

	"go.uber.org/zap"
)

// StartDispatcher registers a periodic timer with the host that scans for
// due candidates and hands each one off (spec.md §4.5 "Dispatcher"). The
// Dispatcher does NOT claim jobs itself — claim happens inside the
// triggered callback, via claimByID — so two dispatchers (or a dispatcher
// racing a plain worker) targeting the same candidate simply let exactly
// one of them win the claim; the other's claimByID call returns
// ErrNoJobAvailable and is silently dropped.
func (e *Engine) StartDispatcher(h host.TimerHost) host.TimerHandle {
	return h.RegisterTimer(e.dispatchInterval, func(ctx context.Context) {
		e.sweep(ctx)
	})
}

func (e *Engine) sweep(ctx context.Context) {
	metrics.DispatchSweeps.Inc()

	candidates, err := e.store.ListDue(ctx, e.clock.Now(), e.dispatchBatchSize)
	if err != nil {
		e.log.Warn("dispatch sweep candidate scan failed", zap.Error(err))
		return
	}

	for _, candidate := range candidates {
		id := candidate.ID
		if err := e.host.Trigger(ctx, func(ctx context.Context) {
			e.claimAndExecute(ctx, id)
		}); err != nil {
			e.log.Warn("failed to trigger dispatch candidate", zap.Int64("job_id", id), zap.Error(err))
			return
		}
	}
}

// claimAndExecute attempts to claim job id and, if it wins the race,
// executes it. Losing the race (ErrNoJobAvailable — another claimant got
// there first) is an expected outcome, not an error, per spec.md §4.5 step
// 2's tolerance for concurrent dispatch.
func (e *Engine) claimAndExecute(ctx context.Context, id int64) {
	job, err := e.claimByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNoJobAvailable) {
			return
		}
		e.log.Warn("dispatch claim attempt failed", zap.Int64("job_id", id), zap.Error(err))
		return
	}
	e.execute(ctx, job)
}
