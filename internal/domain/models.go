// Package domain defines the persistence models for statement recipients,
// dispatch jobs, statement runs, and aging reports. These types are mapped
// with GORM and form the core data layer of the dispatch engine.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// ScheduleType controls when a recipient becomes due for a statement.
type ScheduleType string

const (
	// ScheduleWeekly sends on a fixed weekday, at most once every 7 days.
	ScheduleWeekly ScheduleType = "weekly"
	// ScheduleBiweekly sends on a fixed weekday, at most once every 14 days.
	ScheduleBiweekly ScheduleType = "biweekly"
	// ScheduleMonthly sends on a fixed day of month, at most once per month.
	ScheduleMonthly ScheduleType = "monthly"
	// ScheduleManual excludes the recipient from scheduled dispatch entirely.
	ScheduleManual ScheduleType = "manual"
)

// Recipient represents a statement destination: either a single customer or
// a named group whose members' invoices are combined into one statement.
// A single recipient that belongs to a group is dispatched only through the
// group, never on its own.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: canonical customer or group name; unique among live rows.
//   - Email: destination address. May be empty, in which case dispatch
//     records the recipient as skipped for a missing email.
//   - Terms: normalized payment-terms code (see the terms package).
//   - ScheduleType / ScheduleDay: dispatch cadence. ScheduleDay is a weekday
//     (0=Monday..6=Sunday) for weekly/biweekly and a day of month (1..28)
//     for monthly. Ignored for manual.
//   - IsGroup: marks a group container. Groups match no invoice rows
//     themselves; their members do.
//   - GroupID: for singles, the group this recipient belongs to. A recipient
//     belongs to at most one group; reassignment overwrites the previous one.
//   - LastSentAt: when a statement was last successfully sent, used by the
//     schedule check to enforce minimum gaps.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type Recipient struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	Name         string         `json:"name"          gorm:"type:varchar(255);not null;index"`
	Email        string         `json:"email"         gorm:"type:varchar(255);not null;default:''"`
	Terms        string         `json:"terms"         gorm:"type:varchar(32);not null;default:'net_30'"`
	ScheduleType ScheduleType   `json:"schedule_type" gorm:"type:varchar(16);not null;default:'manual';check:schedule_type IN ('weekly','biweekly','monthly','manual')"`
	ScheduleDay  int            `json:"schedule_day"  gorm:"not null;default:0"`
	IsGroup      bool           `json:"is_group"      gorm:"not null;default:false"`
	GroupID      *string        `json:"group_id,omitempty" gorm:"type:char(36);index"`
	LastSentAt   *time.Time     `json:"last_sent_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for Recipient.
func (Recipient) TableName() string { return "recipients" }

// RecipientAlias maps an alternate spelling of a customer name, as it appears
// in invoice source files, onto a recipient. Resolution is case-insensitive
// on the normalized alias.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - RecipientID: foreign key to the owning recipient.
//   - Alias: the alternate name as written in source data.
//   - NormalizedAlias: case-folded, whitespace-collapsed form used for
//     matching; unique among live rows.
type RecipientAlias struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	RecipientID     string         `json:"recipient_id"     gorm:"type:char(36);not null;index"`
	Alias           string         `json:"alias"            gorm:"type:varchar(255);not null"`
	NormalizedAlias string         `json:"normalized_alias" gorm:"type:varchar(255);not null;index"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                gorm:"index"`

	// Recipient is the alias owner. Aliases are cascade-deleted with it.
	Recipient Recipient `json:"-" gorm:"foreignKey:RecipientID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RecipientAlias.
func (RecipientAlias) TableName() string { return "recipient_aliases" }

// InvoiceFile records an uploaded invoice source file. Aging reports and
// dispatch jobs read from the most recently registered file unless the
// configuration pins a fixed path.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Path: absolute path of the stored file.
//   - OriginalName: filename as uploaded, kept for display.
//   - RowCount: number of data rows detected at registration time.
type InvoiceFile struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	Path         string         `json:"path"          gorm:"type:varchar(1024);not null"`
	OriginalName string         `json:"original_name" gorm:"type:varchar(255);not null"`
	RowCount     int            `json:"row_count"     gorm:"not null;default:0"`
	CreatedAt    time.Time      `json:"created_at"    gorm:"index"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for InvoiceFile.
func (InvoiceFile) TableName() string { return "invoice_files" }
