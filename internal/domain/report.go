package domain

import "time"

// AgingReportRun is one generated accounts-receivable aging report. The
// per-customer breakdown lives in AgingReportItem rows; names that matched
// no recipient are kept on the run itself as a JSON list so data problems
// in the source file stay visible.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - AsOf: the reference date the report was aged against.
//   - SourcePath: invoice file the report was built from.
//   - TotalOutstanding: sum of outstanding balances across all customers.
//   - TotalOverdue: sum of overdue balances across all customers.
//   - CustomerCount: number of customers with outstanding invoices.
//   - UnresolvedNamesJSON: JSON array of source names that matched no
//     recipient or alias. Their rows are excluded from the totals.
type AgingReportRun struct {
	ID                  string    `json:"id"                gorm:"type:char(36);primaryKey"`
	AsOf                time.Time `json:"as_of"             gorm:"not null"`
	SourcePath          string    `json:"source_path"       gorm:"type:varchar(1024);not null"`
	TotalOutstanding    float64   `json:"total_outstanding" gorm:"not null;default:0"`
	TotalOverdue        float64   `json:"total_overdue"     gorm:"not null;default:0"`
	CustomerCount       int       `json:"customer_count"    gorm:"not null;default:0"`
	UnresolvedNamesJSON string    `json:"-"                 gorm:"type:text;not null;default:'[]'"`
	CreatedAt           time.Time `json:"created_at"        gorm:"index"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName returns the database table name for AgingReportRun.
func (AgingReportRun) TableName() string { return "aging_report_runs" }

// AgingReportItem is one customer's aggregate line in an aging report,
// ordered by overdue amount when listed. The full invoice detail backing
// the aggregates is stored as JSON for statement rendering and audit.
//
// Fields:
//   - RunID: owning report run.
//   - RecipientID: resolved recipient, nil when the customer name resolved
//     through the default match but has no recipient row.
//   - CustomerName / Email / Terms: resolved identity at report time.
//   - Outstanding / OverdueAmount: balance totals.
//   - InvoiceCount / OverdueCount / SkippedCount / ShortPaidCount: row
//     counters by classification.
//   - InvoicesJSON: JSON array of the customer's open invoice lines.
type AgingReportItem struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	RunID          string    `json:"run_id"          gorm:"type:char(36);not null;index"`
	RecipientID    *string   `json:"recipient_id,omitempty" gorm:"type:char(36);index"`
	CustomerName   string    `json:"customer_name"   gorm:"type:varchar(255);not null"`
	Email          string    `json:"email"           gorm:"type:varchar(255);not null;default:''"`
	Terms          string    `json:"terms"           gorm:"type:varchar(32);not null;default:''"`
	Outstanding    float64   `json:"outstanding"     gorm:"not null;default:0"`
	OverdueAmount  float64   `json:"overdue_amount"  gorm:"not null;default:0;index"`
	InvoiceCount   int       `json:"invoice_count"   gorm:"not null;default:0"`
	OverdueCount   int       `json:"overdue_count"   gorm:"not null;default:0"`
	SkippedCount   int       `json:"skipped_count"   gorm:"not null;default:0"`
	ShortPaidCount int       `json:"short_paid_count" gorm:"not null;default:0"`
	InvoicesJSON   string    `json:"-"               gorm:"type:text;not null;default:'[]'"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Run is the owning report. Items are cascade-deleted with it.
	Run AgingReportRun `json:"-" gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AgingReportItem.
func (AgingReportItem) TableName() string { return "aging_report_items" }
