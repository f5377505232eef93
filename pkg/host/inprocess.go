package host

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// InProcess is the default Host: AsyncTrigger hands work to a bounded
// worker pool running in the same process, RegisterTimer is backed by a
// cron.Cron instance driving interval schedules, and RandomToken returns
// 128 bits from crypto/rand (spec.md §3: lock_key needs >=128 bits of
// cryptographic randomness).
type InProcess struct {
	work chan func(ctx context.Context)
	ctx  context.Context
	cron *cron.Cron

	wg sync.WaitGroup
}

// NewInProcess starts a worker pool of size concurrency. ctx governs the
// lifetime of both the pool and any timers registered through RegisterTimer.
func NewInProcess(ctx context.Context, concurrency int) *InProcess {
	if concurrency < 1 {
		concurrency = 1
	}
	h := &InProcess{
		work: make(chan func(ctx context.Context), concurrency*4),
		ctx:  ctx,
		cron: cron.New(cron.WithSeconds()),
	}
	for i := 0; i < concurrency; i++ {
		h.wg.Add(1)
		go h.worker()
	}
	h.cron.Start()
	go func() {
		<-ctx.Done()
		h.cron.Stop()
		close(h.work)
	}()
	return h
}

func (h *InProcess) worker() {
	defer h.wg.Done()
	for fn := range h.work {
		fn(h.ctx)
	}
}

// Trigger enqueues fn for execution by a pool worker. It returns
// immediately once the work is queued, or context.Canceled if ctx is done
// before a slot frees up.
func (h *InProcess) Trigger(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case h.work <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronTimerHandle struct {
	c  *cron.Cron
	id cron.EntryID
}

func (t cronTimerHandle) Stop() { t.c.Remove(t.id) }

// RegisterTimer schedules fn to run every interval via the internal cron
// instance. interval is rounded to whole seconds since cron.Cron is
// second-granular.
func (h *InProcess) RegisterTimer(interval time.Duration, fn func(ctx context.Context)) TimerHandle {
	spec := "@every " + interval.String()
	id, err := h.cron.AddFunc(spec, func() { fn(h.ctx) })
	if err != nil {
		log.Printf("host: failed to register timer %q: %v", spec, err)
		return cronTimerHandle{}
	}
	return cronTimerHandle{c: h.cron, id: id}
}

// RandomToken returns 128 bits from crypto/rand as a 32-character hex
// string.
func (h *InProcess) RandomToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("host: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
