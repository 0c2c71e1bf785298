// Package services – DispatchService
//
// This file implements statement dispatch proper: building the statement for
// one recipient, writing the artifact, handing the email to the SMTP sender,
// and recording the outcome. The worker loop drives ProcessItem for job
// items; SendNow serves the manual, queue-bypassing path.
//
// Failure handling is contained to the item. Transient transport failures
// are retried in place with a linear backoff until the job's per-item
// attempt budget is spent, then the item settles failed. Everything else
// settles immediately: skipped with a reason, or failed with the error
// message. Every outcome is recorded as a StatementRun so the audit trail
// is complete either way, and no item outcome ever aborts the batch.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/clock"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/invoice"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/statement"
)

// DispatchService renders and delivers statements.
type DispatchService struct {
	// DB is the database handle used for all dispatch operations.
	DB *gorm.DB
	// Clock supplies send timestamps and the aging reference date.
	Clock clock.Clock
	// Renderer produces statement HTML and artifact files.
	Renderer *statement.Renderer
	// Sender delivers rendered statements.
	Sender statement.Sender
	// SourcePath pins a fixed invoice file path for jobs without a file
	// snapshot and for manual sends.
	SourcePath string
	// RetryBackoff is the base delay between delivery attempts on one item;
	// attempt n waits n times this before retrying. Zero retries at once.
	RetryBackoff time.Duration
}

// LoadBook parses the job's invoice source and aggregates it against the
// current recipient directory. The worker calls this once per attempt and
// feeds the result to every ProcessItem call.
func (s *DispatchService) LoadBook(ctx context.Context, job *domain.ScheduledJob) (*BuildResult, error) {
	path, err := s.sourceForJob(ctx, job)
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
	return &book, nil
}

// ProcessItem settles one job item: skip, fail, or render-and-send. It owns
// the item's full attempt budget: transient delivery failures are retried
// here with backoff, and the item is finalized failed once job.MaxAttempts
// attempts are spent. A nil return means the item reached a terminal state;
// a non-nil return is a storage or context error, never a delivery outcome.
func (s *DispatchService) ProcessItem(ctx context.Context, job *domain.ScheduledJob, item *domain.ScheduledJobItem, book *BuildResult) error {
	attempts, started, err := repo.StartItem(ctx, s.DB, item.ID)
	if err != nil {
		return err
	}
	if !started {
		// Finished by a previous attempt.
		return nil
	}

	// A crashed attempt may have delivered before the item row was updated.
	// The statement run audit is written first, so it is the source of truth.
	delivered, err := repo.HasSentRun(ctx, s.DB, job.ID, item.RecipientID)
	if err != nil {
		return err
	}
	if delivered {
		_, err := repo.FinishItem(ctx, s.DB, item.ID, domain.ItemSent, SkipAlreadySent, nil)
		return err
	}

	r, err := repo.GetRecipient(ctx, s.DB, item.RecipientID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return s.settleFail(ctx, job, item, errors.New("recipient not found"))
		}
		return err
	}

	if r.IsGroup {
		members, err := repo.ListGroupMembers(ctx, s.DB, r.ID)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return s.settleSkip(ctx, job, item, SkipGroupEmpty)
		}
	}

	led := book.LedgerFor(r.ID)
	if led == nil {
		if book.Matched[r.ID] > 0 {
			return s.settleSkip(ctx, job, item, SkipNoOutstanding)
		}
		return s.settleSkip(ctx, job, item, SkipNoMatchingRows)
	}

	email := r.Email
	if email == "" {
		email = item.Email
	}
	if email == "" {
		return s.settleSkip(ctx, job, item, SkipMissingEmail)
	}

	now := s.Clock.Now()
	html, artifact, err := s.render(r.Name, led, now)
	if err != nil {
		return s.settleFail(ctx, job, item, err)
	}

	msg := statement.Message{
		To:      email,
		Subject: fmt.Sprintf("Account Statement - %s", r.Name),
		HTML:    html,
	}
	for {
		err = s.Sender.Send(ctx, msg)
		if err == nil {
			break
		}
		if !statement.Transient(err) || attempts >= job.MaxAttempts {
			return s.settleFail(ctx, job, item, err)
		}
		if s.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.RetryBackoff * time.Duration(attempts)):
			}
		}
		attempts, started, err = repo.StartItem(ctx, s.DB, item.ID)
		if err != nil {
			return err
		}
		if !started {
			return nil
		}
	}

	sentAt := now.UTC()
	if _, err := repo.CreateStatementRun(ctx, s.DB, &domain.StatementRun{
		JobID:            &job.ID,
		RecipientID:      r.ID,
		RecipientName:    r.Name,
		Email:            email,
		Status:           domain.RunSent,
		ArtifactPath:     artifact,
		TotalOutstanding: led.Outstanding,
	}); err != nil {
		return err
	}
	if _, err := repo.FinishItem(ctx, s.DB, item.ID, domain.ItemSent, "", &sentAt); err != nil {
		return err
	}
	return repo.UpdateLastSent(ctx, s.DB, r.ID, sentAt)
}

// SendNow renders and delivers one recipient's statement immediately,
// bypassing the queue. The delivery is recorded as a StatementRun with no
// job attached.
func (s *DispatchService) SendNow(ctx context.Context, recipientID string) (*domain.StatementRun, error) {
	r, err := repo.GetRecipient(ctx, s.DB, recipientID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if r.Email == "" {
		return nil, ErrMissingEmail
	}
	if r.IsGroup {
		members, err := repo.ListGroupMembers(ctx, s.DB, r.ID)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			return nil, ErrGroupEmpty
		}
	}

	path, err := resolveSourcePath(ctx, s.DB, s.SourcePath)
	if err != nil {
		return nil, err
	}
	rows, _, err := invoice.ParseFile(path)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	book, err := loadBook(ctx, s.DB, rows, now)
	if err != nil {
		return nil, err
	}

	led := book.LedgerFor(r.ID)
	if led == nil {
		if book.Matched[r.ID] > 0 {
			return nil, ErrNoOutstanding
		}
		return nil, ErrNoMatchingRows
	}

	html, artifact, err := s.render(r.Name, led, now)
	if err != nil {
		return nil, err
	}

	run := &domain.StatementRun{
		RecipientID:      r.ID,
		RecipientName:    r.Name,
		Email:            r.Email,
		ArtifactPath:     artifact,
		TotalOutstanding: led.Outstanding,
	}
	if err := s.Sender.Send(ctx, statement.Message{
		To:      r.Email,
		Subject: fmt.Sprintf("Account Statement - %s", r.Name),
		HTML:    html,
	}); err != nil {
		run.Status = domain.RunFailed
		run.Detail = err.Error()
		if _, rerr := repo.CreateStatementRun(ctx, s.DB, run); rerr != nil {
			return nil, rerr
		}
		return run, err
	}

	run.Status = domain.RunSent
	if _, err := repo.CreateStatementRun(ctx, s.DB, run); err != nil {
		return nil, err
	}
	if err := repo.UpdateLastSent(ctx, s.DB, r.ID, now.UTC()); err != nil {
		return nil, err
	}
	return run, nil
}

// RunsForJob returns the delivery audit trail for one job.
func (s *DispatchService) RunsForJob(ctx context.Context, jobID string) ([]domain.StatementRun, error) {
	return repo.ListRunsForJob(ctx, s.DB, jobID)
}

// RecentRuns returns the newest delivery records across all jobs and manual
// sends.
func (s *DispatchService) RecentRuns(ctx context.Context, limit int) ([]domain.StatementRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return repo.ListRecentRuns(ctx, s.DB, limit)
}

// render produces the statement HTML for a ledger and writes the artifact
// copy. The artifact path is empty when no artifact directory is configured.
func (s *DispatchService) render(name string, led *Ledger, now time.Time) (html, artifact string, err error) {
	html, err = s.Renderer.Render(statementData(name, led, now))
	if err != nil {
		return "", "", err
	}
	artifact, err = s.Renderer.WriteArtifact(name, html, now)
	if err != nil {
		return "", "", err
	}
	return html, artifact, nil
}

// settleSkip marks the item skipped with a reason and records the run.
func (s *DispatchService) settleSkip(ctx context.Context, job *domain.ScheduledJob, item *domain.ScheduledJobItem, reason string) error {
	if _, err := repo.CreateStatementRun(ctx, s.DB, &domain.StatementRun{
		JobID:         &job.ID,
		RecipientID:   item.RecipientID,
		RecipientName: item.RecipientName,
		Email:         item.Email,
		Status:        domain.RunSkipped,
		Detail:        reason,
	}); err != nil {
		return err
	}
	_, err := repo.FinishItem(ctx, s.DB, item.ID, domain.ItemSkipped, reason, nil)
	return err
}

// settleFail marks the item failed permanently and records the run.
func (s *DispatchService) settleFail(ctx context.Context, job *domain.ScheduledJob, item *domain.ScheduledJobItem, cause error) error {
	if _, err := repo.CreateStatementRun(ctx, s.DB, &domain.StatementRun{
		JobID:         &job.ID,
		RecipientID:   item.RecipientID,
		RecipientName: item.RecipientName,
		Email:         item.Email,
		Status:        domain.RunFailed,
		Detail:        cause.Error(),
	}); err != nil {
		return err
	}
	_, err := repo.FinishItem(ctx, s.DB, item.ID, domain.ItemFailed, cause.Error(), nil)
	return err
}

// sourceForJob returns the invoice path a job should read: its file snapshot
// when it has one, otherwise the pinned or latest source.
func (s *DispatchService) sourceForJob(ctx context.Context, job *domain.ScheduledJob) (string, error) {
	if job.InvoiceFileID != nil {
		f, err := repo.GetInvoiceFile(ctx, s.DB, *job.InvoiceFileID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", ErrNoInvoiceFile
			}
			return "", err
		}
		return f.Path, nil
	}
	return resolveSourcePath(ctx, s.DB, s.SourcePath)
}

// statementData converts a ledger into template data.
func statementData(name string, led *Ledger, now time.Time) statement.Data {
	data := statement.Data{
		RecipientName:    name,
		GeneratedAt:      now,
		TotalOutstanding: led.Outstanding,
		OverdueAmount:    led.OverdueAmount,
		DaysOverdue:      led.DaysOverdue,
	}
	for _, l := range led.Lines {
		data.Lines = append(data.Lines, statement.Line{
			OrderID:     l.OrderID,
			Location:    l.Location,
			ShipDate:    l.ShipDate,
			DueDate:     l.DueDate,
			Status:      string(l.Status),
			Outstanding: l.Outstanding,
			PaidAmount:  l.PaidAmount,
		})
	}
	for _, f := range led.Skipped {
		data.Skipped = append(data.Skipped, statement.Flag{
			OrderID:  f.OrderID,
			Location: f.Location,
			ShipDate: f.ShipDate,
		})
	}
	for _, f := range led.ShortPaid {
		data.ShortPaid = append(data.ShortPaid, statement.Flag{
			OrderID:  f.OrderID,
			Location: f.Location,
			ShipDate: f.ShipDate,
			Amount:   f.Amount,
		})
	}
	return data
}
