// Package models holds the queue engine's sole persistent entity: Job.
package models

import "time"

// Status is the lifecycle state of a Job (spec data model §3).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MaxRetries is the hard cap referenced by invariant 3: retries <= MaxRetries.
// Configurable deployments may override it via configs.Config.MaxRetries; this
// constant is the spec-mandated default used wherever no override is wired.
const MaxRetries = 5

// MinPriority and MaxPriority bound the clamped priority range (invariant 4).
const (
	MinPriority = 1
	MaxPriority = 10
)

// Job is the durable record backing one unit of deferred work. Every field
// maps directly to a column in the single relational table described in
// spec.md §3 — this struct IS the compatibility surface.
type Job struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	JobName string `gorm:"size:255;not null;index:idx_job_name" json:"job_name"`

	// JobData is opaque to the engine; encode/decode lives entirely in the
	// handler bound to JobName via the Registry.
	JobData []byte `gorm:"type:bytea" json:"job_data,omitempty"`

	Priority int    `gorm:"not null;index:idx_status_sched_prio,priority:3" json:"priority"`
	Status   Status `gorm:"size:20;not null;index:idx_status_sched_prio,priority:1;index:idx_status" json:"status"`

	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	ScheduledAt time.Time  `gorm:"not null;index:idx_scheduled_at;index:idx_status_sched_prio,priority:2" json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Retries      int    `gorm:"not null;default:0" json:"retries"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	LockKey        *string    `gorm:"size:64;index:idx_lock_key" json:"-"`
	LockExpiration *time.Time `json:"-"`
}

func (Job) TableName() string { return "jobs" }

// ClampPriority clamps a requested priority into [MinPriority, MaxPriority],
// per the Producer API's "clamp on insert" requirement (spec.md §4.2).
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// IsTerminal reports whether status is one of the two terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
