package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StatementsSent counts statements handed to the SMTP server.
	StatementsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statements_sent_total",
			Help: "Total statements delivered",
		},
	)

	// StatementsFailed counts permanently failed deliveries.
	StatementsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statements_failed_total",
			Help: "Total statement deliveries that failed permanently",
		},
	)

	// StatementsSkipped counts recipients skipped with a recorded reason.
	StatementsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statements_skipped_total",
			Help: "Total recipients skipped during dispatch",
		},
	)

	// JobAttempts counts job attempts claimed by the worker.
	JobAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_job_attempts_total",
			Help: "Total dispatch job attempts started",
		},
	)

	// JobsFinished counts jobs reaching a terminal state, by outcome.
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_finished_total",
			Help: "Total dispatch jobs finished, labeled by final status",
		},
		[]string{"status"},
	)

	// JobsReclaimed counts stale running jobs returned to the queue.
	JobsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_reclaimed_total",
			Help: "Total stale jobs reclaimed back to the queue",
		},
	)
)

var registerOnce = false

// InitMetrics registers the worker collectors with the default registry.
// Safe to call once per process.
func InitMetrics() {
	if registerOnce {
		return
	}
	registerOnce = true
	prometheus.MustRegister(
		StatementsSent,
		StatementsFailed,
		StatementsSkipped,
		JobAttempts,
		JobsFinished,
		JobsReclaimed,
	)
}
