package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Job state metrics ---

	// JobsByStatus tracks the current count of jobs in each status.
	JobsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "taskforge",
			Subsystem: "jobs",
			Name:      "by_status",
			Help:      "Current number of jobs in each status",
		},
		[]string{"status"},
	)

	// JobsEnqueued counts jobs accepted by the Producer API.
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Total number of jobs enqueued",
		},
		[]string{"job_name"},
	)

	// JobsCompleted counts terminal outcomes by job name and final status.
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Total number of jobs reaching a terminal state",
		},
		[]string{"job_name", "status"},
	)

	// JobExecutionDuration tracks handler invocation duration.
	JobExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskforge",
			Subsystem: "jobs",
			Name:      "execution_duration_seconds",
			Help:      "Duration of individual handler invocations",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 15),
		},
		[]string{"job_name", "outcome"},
	)

	// --- Claim / dispatch metrics ---

	// ClaimsTotal counts successful claims by the Claim Engine.
	ClaimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "claim",
			Name:      "claims_total",
			Help:      "Total number of jobs successfully claimed",
		},
	)

	// DispatchLag measures delay between scheduled_at and the moment a job
	// is actually claimed.
	DispatchLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskforge",
			Subsystem: "dispatch",
			Name:      "lag_seconds",
			Help:      "Delay between a job's scheduled_at and its claim time",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// DispatchSweeps counts Dispatcher poll cycles.
	DispatchSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "dispatch",
			Name:      "sweeps_total",
			Help:      "Total number of dispatcher poll cycles",
		},
	)

	// --- Retry / failure metrics ---

	// RetriesTotal counts jobs rescheduled after a failed attempt.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "jobs",
			Name:      "retries_total",
			Help:      "Total number of job retries scheduled after a failure",
		},
		[]string{"job_name"},
	)

	// --- Reaper metrics ---

	// LeasesReclaimed counts processing jobs whose lease expired and were
	// returned to pending by the Reaper.
	LeasesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "reaper",
			Name:      "leases_reclaimed_total",
			Help:      "Total number of expired leases reclaimed",
		},
	)

	// JobsPruned counts terminal jobs deleted by the Reaper's retention
	// sweep.
	JobsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskforge",
			Subsystem: "reaper",
			Name:      "pruned_total",
			Help:      "Total number of terminal jobs pruned by retention policy",
		},
		[]string{"status"},
	)

	// --- Cluster metrics ---

	// IsLeader reports (0/1) whether this process currently holds the
	// Dispatcher/Reaper leader-election lease.
	IsLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskforge",
			Subsystem: "cluster",
			Name:      "is_leader",
			Help:      "1 if this process holds the dispatcher/reaper leader lease",
		},
	)

	// --- Worker resource gauges (spec.md §2 executor capacity reporting) ---

	WorkerCPUCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskforge",
			Subsystem: "worker",
			Name:      "cpu_count",
			Help:      "Number of logical CPUs available to this worker process",
		},
	)

	WorkerMemTotalMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskforge",
			Subsystem: "worker",
			Name:      "mem_total_mb",
			Help:      "Total system memory detected by this worker process, in MB",
		},
	)
)

// RecordCompletion records metrics for a job reaching a terminal outcome.
func RecordCompletion(jobName, status string, durationSeconds float64) {
	JobsCompleted.WithLabelValues(jobName, status).Inc()
	JobExecutionDuration.WithLabelValues(jobName, status).Observe(durationSeconds)
}

// RecordClaim records a successful claim and its dispatch lag.
func RecordClaim(lagSeconds float64) {
	ClaimsTotal.Inc()
	DispatchLag.Observe(lagSeconds)
}
