// Package postgres is the production storage.Store backend: GORM handles
// schema migration and the simple CRUD paths, while the claim and
// conditional-update operations drop to raw SQL so Postgres itself
// enforces the atomicity spec.md §3 requires.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskforge/pkg/models"
	"taskforge/pkg/storage"
)

type Store struct {
	db *gorm.DB
}

// New opens a GORM connection against connString and migrates the jobs
// table.
func New(connString string) (*Store, error) {
	cfg := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Warn),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.Open(connString), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.Job{}); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Insert(ctx context.Context, job *models.Job) error {
	result := s.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		return fmt.Errorf("failed to insert job: %w", result.Error)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	result := s.db.WithContext(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

// ClaimNext expresses the claim algorithm (spec.md §4.3) as a single CTE:
// the candidate subselect locks one due, pending row with
// FOR UPDATE SKIP LOCKED so concurrent claimers never block on or
// re-select each other's candidate, and the outer UPDATE...FROM...RETURNING
// performs the state transition in the same statement.
func (s *Store) ClaimNext(ctx context.Context, now time.Time, lockKey string, lockExpiry time.Time) (*models.Job, error) {
	const q = `
WITH candidate AS (
	SELECT id FROM jobs
	WHERE status = ? AND scheduled_at <= ?
	ORDER BY priority ASC, scheduled_at ASC, id ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE jobs
SET status = ?, started_at = ?, lock_key = ?, lock_expiration = ?
FROM candidate
WHERE jobs.id = candidate.id
RETURNING jobs.id, jobs.job_name, jobs.job_data, jobs.priority, jobs.status,
          jobs.created_at, jobs.scheduled_at, jobs.started_at, jobs.completed_at,
          jobs.retries, jobs.error_message, jobs.lock_key, jobs.lock_expiration`

	var job models.Job
	result := s.db.WithContext(ctx).Raw(q,
		models.StatusPending, now,
		models.StatusProcessing, now, lockKey, lockExpiry,
	).Scan(&job)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, storage.ErrNoJobAvailable
	}
	return &job, nil
}

// ListDue mirrors the teacher's ListDueJobs query, generalized to the
// priority/scheduled_at/id ordering the Dispatcher's candidate scan needs
// (spec.md §4.5 step 1). It is a plain read — no row locking, no claim.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	var jobs []models.Job
	result := s.db.WithContext(ctx).
		Where("status = ?", models.StatusPending).
		Where("scheduled_at <= ?", now).
		Order("priority asc, scheduled_at asc, id asc").
		Limit(limit).
		Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", result.Error)
	}
	return jobs, nil
}

// ClaimByID is ClaimNext narrowed to a single candidate row: the same
// FOR UPDATE SKIP LOCKED + UPDATE...RETURNING shape, scoped by id instead
// of picked by the ORDER BY. A second caller racing the same id simply
// finds zero rows left to update and gets ErrNoJobAvailable.
func (s *Store) ClaimByID(ctx context.Context, id int64, now time.Time, lockKey string, lockExpiry time.Time) (*models.Job, error) {
	const q = `
WITH candidate AS (
	SELECT id FROM jobs
	WHERE id = ? AND status = ? AND scheduled_at <= ?
	FOR UPDATE SKIP LOCKED
)
UPDATE jobs
SET status = ?, started_at = ?, lock_key = ?, lock_expiration = ?
FROM candidate
WHERE jobs.id = candidate.id
RETURNING jobs.id, jobs.job_name, jobs.job_data, jobs.priority, jobs.status,
          jobs.created_at, jobs.scheduled_at, jobs.started_at, jobs.completed_at,
          jobs.retries, jobs.error_message, jobs.lock_key, jobs.lock_expiration`

	var job models.Job
	result := s.db.WithContext(ctx).Raw(q,
		id, models.StatusPending, now,
		models.StatusProcessing, now, lockKey, lockExpiry,
	).Scan(&job)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim job %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, storage.ErrNoJobAvailable
	}
	return &job, nil
}

// ConditionalUpdate loads the row, applies fn in-process, then writes back
// every mutable column guarded by "WHERE id = ? AND lock_key = ?" — the
// CAS that stops a reclaimed lease from clobbering a fresher claim.
func (s *Store) ConditionalUpdate(ctx context.Context, id int64, lockKey string, fn func(job *models.Job)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Raw(
			"SELECT * FROM jobs WHERE id = ? FOR UPDATE", id,
		).Scan(&job).Error; err != nil {
			return err
		}
		if job.ID == 0 {
			return storage.ErrNotFound
		}
		if job.LockKey == nil || *job.LockKey != lockKey {
			return storage.ErrLeaseMismatch
		}

		fn(&job)

		result := tx.Exec(`
			UPDATE jobs SET status = ?, started_at = ?, completed_at = ?,
				retries = ?, error_message = ?, lock_key = ?, lock_expiration = ?,
				scheduled_at = ?
			WHERE id = ? AND lock_key = ?`,
			job.Status, job.StartedAt, job.CompletedAt,
			job.Retries, job.ErrorMessage, job.LockKey, job.LockExpiration,
			job.ScheduledAt, id, lockKey,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrLeaseMismatch
		}
		return nil
	})
}

// UnlockExpired implements the Reaper's lease-reclamation sweep (spec.md
// §4.6): any processing job whose lease has lapsed goes back to pending
// with no retry increment, since the worker may simply be slow rather than
// dead (Design Notes §9, resolved open question).
func (s *Store) UnlockExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		UPDATE jobs
		SET status = ?, lock_key = NULL, lock_expiration = NULL, started_at = NULL
		WHERE status = ? AND lock_expiration < ?`,
		models.StatusPending, models.StatusProcessing, now,
	)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to unlock expired jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, completedCutoff, failedCutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		DELETE FROM jobs
		WHERE (status = ? AND completed_at < ?)
		   OR (status = ? AND completed_at < ?)`,
		models.StatusCompleted, completedCutoff,
		models.StatusFailed, failedCutoff,
	)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune retired jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) List(ctx context.Context, status *models.Status, limit, offset int) ([]models.Job, error) {
	var jobs []models.Job
	q := s.db.WithContext(ctx).Order("created_at desc")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	result := q.Offset(offset).Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", result.Error)
	}
	return jobs, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	type row struct {
		Status models.Status
		Count  int64
	}
	var rows []row
	result := s.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", result.Error)
	}

	counts := map[models.Status]int64{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&models.Job{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, id int64, scheduledAt time.Time) (*models.Job, error) {
	result := s.db.WithContext(ctx).Exec(`
		UPDATE jobs
		SET status = ?, retries = 0, error_message = '', scheduled_at = ?,
		    started_at = NULL, completed_at = NULL, lock_key = NULL, lock_expiration = NULL
		WHERE id = ?`,
		models.StatusPending, scheduledAt, id,
	)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to reset job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetByID(ctx, id)
}
