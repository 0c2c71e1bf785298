// Package services – ReportService
//
// This file implements aging report generation: parse the invoice source
// file, resolve customer names, aggregate per-recipient ledgers, and persist
// the result as an AgingReportRun with per-customer items. Unresolved source
// names are kept on the run so bad data stays visible instead of silently
// shrinking the totals.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/clock"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/invoice"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
)

// ReportService generates and serves aging reports.
type ReportService struct {
	// DB is the database handle used for all report operations.
	DB *gorm.DB
	// Clock supplies the reference date reports are aged against.
	Clock clock.Clock
	// SourcePath pins a fixed invoice file path. When empty, the most
	// recently registered upload is used.
	SourcePath string
}

// Report bundles a persisted run with its items and the unresolved names
// decoded from the run record.
type Report struct {
	Run        *domain.AgingReportRun   `json:"run"`
	Items      []domain.AgingReportItem `json:"items"`
	Unresolved []string                 `json:"unresolved_names"`
}

// Generate builds an aging report from the current invoice source and
// persists it. Returns ErrNoInvoiceFile when no source is available.
func (s *ReportService) Generate(ctx context.Context) (*Report, error) {
	path, err := s.resolveSource(ctx)
	if err != nil {
		return nil, err
	}

	rows, _, err := invoice.ParseFile(path)
	if err != nil {
		return nil, err
	}
	book, err := loadBook(ctx, s.DB, rows, s.Clock.Now())
	if err != nil {
		return nil, err
	}

	run := &domain.AgingReportRun{
		AsOf:       s.Clock.Now().UTC(),
		SourcePath: path,
	}
	run.UnresolvedNamesJSON = mustJSON(book.Unresolved)

	items := make([]domain.AgingReportItem, 0, len(book.Ledgers))
	for _, led := range book.Ledgers {
		if led.OverdueCount == 0 && len(led.Skipped) == 0 && len(led.ShortPaid) == 0 {
			// Nothing to chase yet: current balances stay off the report.
			continue
		}
		run.TotalOutstanding += led.Outstanding
		run.TotalOverdue += led.OverdueAmount
		recipientID := led.Target.ID
		items = append(items, domain.AgingReportItem{
			RecipientID:    &recipientID,
			CustomerName:   led.Target.Name,
			Email:          led.Target.Email,
			Terms:          string(led.Terms),
			Outstanding:    led.Outstanding,
			OverdueAmount:  led.OverdueAmount,
			InvoiceCount:   len(led.Lines),
			OverdueCount:   led.OverdueCount,
			SkippedCount:   len(led.Skipped),
			ShortPaidCount: len(led.ShortPaid),
			InvoicesJSON:   mustJSON(led.Lines),
		})
	}
	run.CustomerCount = len(items)

	if _, err := repo.CreateReportRun(ctx, s.DB, run, items); err != nil {
		return nil, err
	}
	return s.assemble(ctx, run)
}

// Latest returns the most recently generated report, or ErrReportNotFound.
func (s *ReportService) Latest(ctx context.Context) (*Report, error) {
	run, err := repo.LatestReportRun(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return s.assemble(ctx, run)
}

// Get returns one report run by ID, or ErrReportNotFound.
func (s *ReportService) Get(ctx context.Context, id string) (*Report, error) {
	run, err := repo.GetReportRun(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return s.assemble(ctx, run)
}

func (s *ReportService) assemble(ctx context.Context, run *domain.AgingReportRun) (*Report, error) {
	items, err := repo.ListReportItems(ctx, s.DB, run.ID)
	if err != nil {
		return nil, err
	}
	var unresolved []string
	if run.UnresolvedNamesJSON != "" {
		// Tolerate malformed stored JSON; the report is still useful.
		_ = json.Unmarshal([]byte(run.UnresolvedNamesJSON), &unresolved)
	}
	return &Report{Run: run, Items: items, Unresolved: unresolved}, nil
}

func (s *ReportService) resolveSource(ctx context.Context) (string, error) {
	return resolveSourcePath(ctx, s.DB, s.SourcePath)
}

// resolveSourcePath returns the invoice file path to read: the pinned path
// when configured, otherwise the latest registered upload.
func resolveSourcePath(ctx context.Context, db *gorm.DB, pinned string) (string, error) {
	if pinned != "" {
		return pinned, nil
	}
	f, err := repo.LatestInvoiceFile(ctx, db)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNoInvoiceFile
		}
		return "", err
	}
	return f.Path, nil
}

// loadBook loads the recipient directory and aggregates rows against it.
func loadBook(ctx context.Context, db *gorm.DB, rows []invoice.Row, today time.Time) (BuildResult, error) {
	recipients, err := repo.ListRecipients(ctx, db, false)
	if err != nil {
		return BuildResult{}, err
	}
	aliases, err := repo.ListAliases(ctx, db, "")
	if err != nil {
		return BuildResult{}, err
	}
	return BuildLedgers(rows, NewResolveIndex(recipients, aliases), today), nil
}

// mustJSON marshals v, falling back to an empty array on error. The inputs
// are plain structs and slices, so failure would be a programming bug.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}
