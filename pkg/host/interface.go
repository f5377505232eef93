// Package host describes the capabilities the queue engine requires from
// its hosting process (spec.md §6.1 "Host contracts"). The engine depends
// only on these interfaces; pkg/host's own implementations are defaults a
// caller may swap out entirely.
package host

import (
	"context"
	"time"
)

// AsyncTrigger requests that fn run soon, off the calling goroutine. The
// Dispatcher uses this to hand a due job to a worker, which then claims and
// runs it, without blocking the dispatch loop on the handler's execution
// time.
type AsyncTrigger interface {
	Trigger(ctx context.Context, fn func(ctx context.Context)) error
}

// TimerHandle cancels a timer registered with RegisterTimer.
type TimerHandle interface {
	Stop()
}

// TimerHost registers and cancels recurring callbacks, used by the
// Dispatcher and Reaper to drive their periodic scans.
type TimerHost interface {
	RegisterTimer(interval time.Duration, fn func(ctx context.Context)) TimerHandle
}

// TokenSource produces cryptographically random lock tokens (spec.md §3
// invariant: lock_key must be "at least 128 bits, cryptographically
// random").
type TokenSource interface {
	RandomToken() string
}

// Host bundles the three contracts the engine needs from its environment.
type Host interface {
	AsyncTrigger
	TimerHost
	TokenSource
}
