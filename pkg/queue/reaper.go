package queue

import (
	"context"

	"taskforge/pkg/host"
	"taskforge/pkg/metrics"

	"go.uber.org/zap"
)

// StartReaper registers a periodic timer that reclaims expired leases and
// prunes retired terminal jobs (spec.md §4.6 "Reaper"). Both operations
// are idempotent, which is what lets leader election around the Reaper be
// a pure efficiency optimization rather than a correctness requirement
// (spec.md §5 concurrency model).
func (e *Engine) StartReaper(h host.TimerHost) host.TimerHandle {
	return h.RegisterTimer(e.reaperInterval, func(ctx context.Context) {
		e.reap(ctx)
	})
}

func (e *Engine) reap(ctx context.Context) {
	now := e.clock.Now()

	reclaimed, err := e.store.UnlockExpired(ctx, now)
	if err != nil {
		e.log.Warn("reaper: unlock expired leases failed", zap.Error(err))
	} else if reclaimed > 0 {
		metrics.LeasesReclaimed.Add(float64(reclaimed))
		e.log.Info("reaper: reclaimed expired leases", zap.Int64("count", reclaimed))
	}

	completedCutoff := now.Add(-e.completedRetention)
	failedCutoff := now.Add(-e.failedRetention)
	pruned, err := e.store.DeleteOlderThan(ctx, completedCutoff, failedCutoff)
	if err != nil {
		e.log.Warn("reaper: retention prune failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		metrics.JobsPruned.WithLabelValues("terminal").Add(float64(pruned))
		e.log.Info("reaper: pruned retired jobs", zap.Int64("count", pruned))
	}
}
