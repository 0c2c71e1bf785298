package domain

import "time"

// JobStatus is the lifecycle state of a dispatch job.
type JobStatus string

const (
	// JobQueued means the job is waiting to be claimed by the worker.
	JobQueued JobStatus = "queued"
	// JobRunning means a worker holds the job and is heartbeating it.
	JobRunning JobStatus = "running"
	// JobSucceeded means the dispatch pass ran to the end of the item set.
	// Individual items may still have failed; their outcomes are recorded
	// on the items and the counters.
	JobSucceeded JobStatus = "succeeded"
	// JobFailed means the run itself could not proceed, for example the
	// invoice snapshot was unreadable or the worker lost the claim.
	JobFailed JobStatus = "failed"
)

// Terminal reports whether s is a final job state.
func (s JobStatus) Terminal() bool { return s == JobSucceeded || s == JobFailed }

// JobTrigger records what caused a job to be enqueued.
type JobTrigger string

const (
	// TriggerAPI marks jobs enqueued through the HTTP API.
	TriggerAPI JobTrigger = "api"
	// TriggerSchedule marks jobs enqueued by the periodic schedule sweep.
	TriggerSchedule JobTrigger = "schedule"
)

// ScheduledJob is one dispatch run over a fixed set of recipients. At most
// one job may be queued or running at a time; enqueue enforces this, and the
// worker claims jobs with a compare-and-swap on status so that two workers
// can never both own one.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Status: queued | running | succeeded | failed.
//   - Trigger: api or schedule.
//   - InvoiceFileID: the source file snapshot the job reads from.
//   - AttemptCount: how many times a worker has claimed the job. A job that
//     is reclaimed after a stale heartbeat is claimed again.
//   - MaxAttempts: the per-item delivery budget. Each item is tried at most
//     MaxAttempts times before it is finalized failed.
//   - HeartbeatAt: refreshed by the owning worker while running. A running
//     job whose heartbeat goes stale is reclaimed back to queued.
//   - ItemsTotal / ItemsSent / ItemsFailed / ItemsSkipped: outcome counters,
//     updated as items reach terminal states.
//   - LastError: message from the most recent failed attempt.
type ScheduledJob struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	Status        JobStatus  `json:"status"         gorm:"type:varchar(16);not null;default:'queued';index;check:status IN ('queued','running','succeeded','failed')"`
	Trigger       JobTrigger `json:"trigger"        gorm:"type:varchar(16);not null;default:'api'"`
	InvoiceFileID *string    `json:"invoice_file_id,omitempty" gorm:"type:char(36)"`
	AttemptCount  int        `json:"attempt_count"  gorm:"not null;default:0"`
	MaxAttempts   int        `json:"max_attempts"   gorm:"not null;default:1"`
	EnqueuedAt    time.Time  `json:"enqueued_at"    gorm:"not null"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	HeartbeatAt   *time.Time `json:"heartbeat_at,omitempty" gorm:"index"`
	ItemsTotal    int        `json:"items_total"    gorm:"not null;default:0"`
	ItemsSent     int        `json:"items_sent"     gorm:"not null;default:0"`
	ItemsFailed   int        `json:"items_failed"   gorm:"not null;default:0"`
	ItemsSkipped  int        `json:"items_skipped"  gorm:"not null;default:0"`
	LastError     string     `json:"last_error,omitempty" gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ScheduledJob.
func (ScheduledJob) TableName() string { return "scheduled_jobs" }

// ItemStatus is the per-recipient state within a job.
type ItemStatus string

const (
	// ItemPending means no delivery attempt has started for the item yet.
	ItemPending ItemStatus = "pending"
	// ItemRunning means a delivery attempt is in flight. A running item left
	// behind by an interrupted worker is picked up again on the next claim.
	ItemRunning ItemStatus = "running"
	// ItemSent means a statement was delivered for this recipient.
	ItemSent ItemStatus = "sent"
	// ItemFailed means delivery failed and the attempt budget is spent.
	ItemFailed ItemStatus = "failed"
	// ItemSkipped means the recipient was intentionally not sent to, with
	// the reason recorded in Detail.
	ItemSkipped ItemStatus = "skipped"
)

// Terminal reports whether s is a final item state.
func (s ItemStatus) Terminal() bool {
	return s == ItemSent || s == ItemFailed || s == ItemSkipped
}

// ScheduledJobItem is one recipient inside a job. The item set is frozen at
// enqueue time so a retried or resumed job processes exactly the recipients
// that were due when it was created.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - JobID: owning job (indexed; unique together with RecipientID).
//   - RecipientID / RecipientName / Email: snapshot of the recipient at
//     enqueue time. Edits to the recipient after enqueue do not affect a
//     queued job.
//   - Status: pending | running | sent | failed | skipped.
//   - Attempts: delivery attempts started so far. The item fails once this
//     reaches the job's MaxAttempts.
//   - Detail: human-readable outcome (skip reason or failure message).
//   - SentAt: set when the item reaches sent.
type ScheduledJobItem struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	JobID         string     `json:"job_id"         gorm:"type:char(36);not null;index;uniqueIndex:ux_job_recipient"`
	RecipientID   string     `json:"recipient_id"   gorm:"type:char(36);not null;uniqueIndex:ux_job_recipient"`
	RecipientName string     `json:"recipient_name" gorm:"type:varchar(255);not null"`
	Email         string     `json:"email"          gorm:"type:varchar(255);not null;default:''"`
	Status        ItemStatus `json:"status"         gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','running','sent','failed','skipped')"`
	Attempts      int        `json:"attempts"       gorm:"not null;default:0"`
	Detail        string     `json:"detail,omitempty" gorm:"type:text;not null;default:''"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Job is the owning dispatch run. Items are cascade-deleted with it.
	Job ScheduledJob `json:"-" gorm:"foreignKey:JobID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ScheduledJobItem.
func (ScheduledJobItem) TableName() string { return "scheduled_job_items" }
