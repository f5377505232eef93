// Package storage defines the persistence contract the queue engine is
// built against (spec.md §4.1 "Store"). Concrete backends live in
// pkg/storage/postgres (production) and pkg/storage/memstore (tests).
package storage

import (
	"context"
	"errors"
	"time"

	"taskforge/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup by ID matches no row.
	ErrNotFound = errors.New("storage: record not found")

	// ErrNoJobAvailable is returned by ClaimNext when no job currently
	// qualifies for claiming.
	ErrNoJobAvailable = errors.New("storage: no job available")

	// ErrLeaseMismatch is returned by ConditionalUpdate when the caller's
	// lock_key no longer matches the stored one — the caller's lease was
	// reclaimed by the Reaper.
	ErrLeaseMismatch = errors.New("storage: lease no longer held")
)

// Store is the data-access contract the queue engine depends on. Every
// mutating method here composes to the invariants in spec.md §3; backends
// must provide the same atomicity guarantees the Postgres implementation
// does (single-statement claim, CAS-guarded conditional update).
type Store interface {
	// Insert persists a new job as given (status included) and assigns its ID.
	Insert(ctx context.Context, job *models.Job) error

	// GetByID retrieves a job by primary key, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*models.Job, error)

	// ClaimNext atomically selects the highest-priority, earliest-due
	// pending job whose scheduled_at <= now, transitions it to
	// StatusProcessing, stamps started_at, and assigns lockKey/lockExpiry.
	// Returns ErrNoJobAvailable when nothing qualifies.
	ClaimNext(ctx context.Context, now time.Time, lockKey string, lockExpiry time.Time) (*models.Job, error)

	// ListDue returns up to limit pending jobs whose scheduled_at <= now,
	// ordered by (priority, scheduled_at, id) — the Dispatcher's read-only
	// candidate scan (spec.md §4.5 step 1). It does not claim anything.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Job, error)

	// ClaimByID atomically claims job id if, and only if, it is still
	// StatusPending and due (scheduled_at <= now), transitioning it to
	// StatusProcessing exactly as ClaimNext does. Returns ErrNoJobAvailable
	// if the job was already claimed, cancelled, or is not yet due by the
	// time this call runs — the race spec.md §4.5 step 2 tolerates between
	// the Dispatcher's candidate scan and a worker's claim attempt.
	ClaimByID(ctx context.Context, id int64, now time.Time, lockKey string, lockExpiry time.Time) (*models.Job, error)

	// ConditionalUpdate applies the mutation produced by fn to the job
	// with the given id, but only if its current lock_key still equals
	// lockKey. This is the compare-and-swap primitive that lets the
	// Reaper safely reclaim a lease out from under a stalled worker.
	// Returns ErrLeaseMismatch if the lease no longer matches.
	ConditionalUpdate(ctx context.Context, id int64, lockKey string, fn func(job *models.Job)) error

	// UnlockExpired reclaims every job in StatusProcessing whose
	// lock_expiration is before now, resetting it to StatusPending with
	// its lock cleared so it can be claimed again. Returns the count of
	// jobs reclaimed.
	UnlockExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteOlderThan removes terminal jobs (StatusCompleted or
	// StatusFailed) whose completed_at is before the respective cutoff,
	// implementing the Reaper's retention pruning (spec.md §4.6).
	DeleteOlderThan(ctx context.Context, completedCutoff, failedCutoff time.Time) (int64, error)

	// List returns jobs matching an optional status filter, newest first,
	// bounded by limit/offset, for the Admin API (spec.md §6.4).
	List(ctx context.Context, status *models.Status, limit, offset int) ([]models.Job, error)

	// CountByStatus returns the number of jobs currently in each status,
	// keyed by models.Status.
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)

	// Delete removes a job outright, whatever its status (Admin API's
	// Cancel). Returns ErrNotFound if no row has that id.
	Delete(ctx context.Context, id int64) error

	// Reset unconditionally returns a terminal job to StatusPending with a
	// clean retry/lease state and a new scheduled_at, for the Admin API's
	// Retry operation. No lock_key CAS is needed here: a terminal job is by
	// definition held by no worker.
	Reset(ctx context.Context, id int64, scheduledAt time.Time) (*models.Job, error)
}
