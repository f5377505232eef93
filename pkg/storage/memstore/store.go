// Package memstore is an in-memory storage.Store used by the queue
// engine's unit tests. It implements the exact same CAS and claim-ordering
// semantics as pkg/storage/postgres, without requiring a database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskforge/pkg/models"
	"taskforge/pkg/storage"
)

// Store is a mutex-guarded, in-memory implementation of storage.Store.
type Store struct {
	mu     sync.Mutex
	jobs   map[int64]*models.Job
	nextID int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{jobs: make(map[int64]*models.Job)}
}

func clone(j *models.Job) *models.Job {
	cp := *j
	return &cp
}

func (s *Store) Insert(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job.ID = s.nextID
	s.jobs[job.ID] = clone(job)
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(j), nil
}

// ClaimNext mirrors the Postgres CTE: candidates are pending jobs due by
// now, ordered priority ASC, scheduled_at ASC, id ASC (spec.md §4.3).
func (s *Store) ClaimNext(ctx context.Context, now time.Time, lockKey string, lockExpiry time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.Job
	for _, j := range s.jobs {
		if j.Status == models.StatusPending && !j.ScheduledAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, storage.ErrNoJobAvailable
	}
	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.ID < b.ID
	})

	picked := candidates[0]
	picked.Status = models.StatusProcessing
	started := now
	picked.StartedAt = &started
	key := lockKey
	picked.LockKey = &key
	exp := lockExpiry
	picked.LockExpiration = &exp

	return clone(picked), nil
}

// ListDue returns up to limit pending, due jobs ordered the same way
// ClaimNext picks them, without claiming anything.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.Job
	for _, j := range s.jobs {
		if j.Status == models.StatusPending && !j.ScheduledAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		a, b := candidates[i], candidates[k]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]models.Job, 0, len(candidates))
	for _, j := range candidates {
		out = append(out, *clone(j))
	}
	return out, nil
}

// ClaimByID claims job id only if it is still pending and due, mirroring
// ClaimNext's state transition scoped to a single row.
func (s *Store) ClaimByID(ctx context.Context, id int64, now time.Time, lockKey string, lockExpiry time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != models.StatusPending || j.ScheduledAt.After(now) {
		return nil, storage.ErrNoJobAvailable
	}

	j.Status = models.StatusProcessing
	started := now
	j.StartedAt = &started
	key := lockKey
	j.LockKey = &key
	exp := lockExpiry
	j.LockExpiration = &exp

	return clone(j), nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id int64, lockKey string, fn func(job *models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if j.LockKey == nil || *j.LockKey != lockKey {
		return storage.ErrLeaseMismatch
	}
	fn(j)
	return nil
}

func (s *Store) UnlockExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, j := range s.jobs {
		if j.Status == models.StatusProcessing && j.LockExpiration != nil && j.LockExpiration.Before(now) {
			j.Status = models.StatusPending
			j.LockKey = nil
			j.LockExpiration = nil
			j.StartedAt = nil
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, completedCutoff, failedCutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, j := range s.jobs {
		if j.CompletedAt == nil {
			continue
		}
		switch j.Status {
		case models.StatusCompleted:
			if j.CompletedAt.Before(completedCutoff) {
				delete(s.jobs, id)
				count++
			}
		case models.StatusFailed:
			if j.CompletedAt.Before(failedCutoff) {
				delete(s.jobs, id)
				count++
			}
		}
	}
	return count, nil
}

func (s *Store) List(ctx context.Context, status *models.Status, limit, offset int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*models.Job
	for _, j := range s.jobs {
		if status != nil && j.Status != *status {
			continue
		}
		all = append(all, j)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })

	if offset >= len(all) {
		return []models.Job{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	out := make([]models.Job, 0, end-offset)
	for _, j := range all[offset:end] {
		out = append(out, *clone(j))
	}
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[models.Status]int64{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *Store) Reset(ctx context.Context, id int64, scheduledAt time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	j.Status = models.StatusPending
	j.Retries = 0
	j.ErrorMessage = ""
	j.ScheduledAt = scheduledAt
	j.StartedAt = nil
	j.CompletedAt = nil
	j.LockKey = nil
	j.LockExpiration = nil
	return clone(j), nil
}
