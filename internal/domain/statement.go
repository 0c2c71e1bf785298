package domain

import "time"

// RunStatus is the recorded outcome of one statement delivery attempt.
type RunStatus string

const (
	// RunSent means the statement email was handed to the SMTP server.
	RunSent RunStatus = "sent"
	// RunFailed means delivery was attempted and failed.
	RunFailed RunStatus = "failed"
	// RunSkipped means the recipient was deliberately not sent to.
	RunSkipped RunStatus = "skipped"
)

// StatementRun is the audit record of a single statement delivery. Rows are
// append-only. Job attempts consult prior runs of the same job before
// sending, so a crashed attempt that already delivered to a recipient does
// not deliver twice when the job is reclaimed.
//
// Manual send-now deliveries are recorded with a nil JobID.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - JobID: the dispatch job this run belongs to, nil for manual sends.
//   - RecipientID / RecipientName / Email: delivery target at send time.
//   - Status: sent | failed | skipped.
//   - Detail: skip reason or failure message.
//   - ArtifactPath: where the rendered statement document was written.
//   - TotalOutstanding: outstanding balance carried by the statement.
type StatementRun struct {
	ID               string    `json:"id"              gorm:"type:char(36);primaryKey"`
	JobID            *string   `json:"job_id,omitempty" gorm:"type:char(36);index:idx_run_job_recipient,priority:1"`
	RecipientID      string    `json:"recipient_id"    gorm:"type:char(36);not null;index:idx_run_job_recipient,priority:2"`
	RecipientName    string    `json:"recipient_name"  gorm:"type:varchar(255);not null"`
	Email            string    `json:"email"           gorm:"type:varchar(255);not null;default:''"`
	Status           RunStatus `json:"status"          gorm:"type:varchar(16);not null;check:status IN ('sent','failed','skipped')"`
	Detail           string    `json:"detail,omitempty" gorm:"type:text;not null;default:''"`
	ArtifactPath     string    `json:"artifact_path,omitempty" gorm:"type:varchar(1024);not null;default:''"`
	TotalOutstanding float64   `json:"total_outstanding" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at"      gorm:"index"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for StatementRun.
func (StatementRun) TableName() string { return "statement_runs" }
