// Package queue implements the durable, priority-aware job queue: the
// Producer API, the Claim Engine, the Executor, the Dispatcher, and the
// Reaper, composed around an explicit Engine handle rather than the
// package-level globals the source favored (design notes §9 — an explicit
// handle lets a single process run multiple independently-configured
// queues, and makes every dependency visible at construction time).
package queue

import (
	"sync"
	"time"

	config "taskforge/configs"
	"taskforge/pkg/clock"
	"taskforge/pkg/host"
	"taskforge/pkg/logstore"
	"taskforge/pkg/registry"
	"taskforge/pkg/storage"

	"go.uber.org/zap"
)

// Engine bundles everything the queue's components share: the backing
// Store, the Handler Registry, the host's async/timer/token contracts, an
// injectable Clock, and the tunables from config.Config.
type Engine struct {
	store    storage.Store
	registry *registry.Registry
	host     host.Host
	clock    clock.Clock
	logs     logstore.Store
	log      *zap.Logger
	breakers *breakerSet

	recurringMu sync.Mutex
	recurring   map[string]host.TimerHandle

	maxRetries             int
	leaseDuration          time.Duration
	dispatchBatchSize      int
	dispatchInterval       time.Duration
	reaperInterval         time.Duration
	completedRetention     time.Duration
	failedRetention        time.Duration
	highPriorityThreshold  int
}

// New constructs an Engine. logs may be nil: the Engine only holds it, and
// handler output is persisted by handlers given their own logstore.Store
// (see pkg/handlers/shell).
func New(cfg *config.Config, store storage.Store, reg *registry.Registry, h host.Host, c clock.Clock, logs logstore.Store, log *zap.Logger) *Engine {
	if c == nil {
		c = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:                 store,
		registry:              reg,
		host:                  h,
		clock:                 c,
		logs:                  logs,
		log:                   log,
		breakers:              newBreakerSet(),
		recurring:             make(map[string]host.TimerHandle),
		maxRetries:            cfg.MaxRetries,
		leaseDuration:         cfg.LeaseDuration,
		dispatchBatchSize:     cfg.DispatchBatchSize,
		dispatchInterval:      cfg.DispatchInterval,
		reaperInterval:        cfg.ReaperInterval,
		completedRetention:    time.Duration(cfg.CompletedRetentionDays) * 24 * time.Hour,
		failedRetention:       time.Duration(cfg.FailedRetentionDays) * 24 * time.Hour,
		highPriorityThreshold: cfg.HighPriorityThreshold,
	}
}
