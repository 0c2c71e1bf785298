// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the dispatch
// job queue.
//
// The queue holds at most one active (queued or running) job. EnqueueJob
// enforces that inside a transaction, and ClaimJob transfers ownership to a
// worker with a conditional UPDATE on status: the claim succeeds only when
// the row is still queued, so concurrent claimers cannot both win. A running
// job is kept alive by Heartbeat; ReclaimStale returns abandoned jobs to the
// queue once their heartbeat passes the staleness cutoff.
//
// Error semantics:
//   - EnqueueJob returns ErrActiveJobExists when a queued or running job
//     already occupies the queue.
//   - Lookup functions return gorm.ErrRecordNotFound (ErrNotFound) when the
//     requested row does not exist.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

// ErrActiveJobExists indicates the queue already holds a queued or running
// job, so a new one cannot be enqueued.
var ErrActiveJobExists = errors.New("active job exists")

// EnqueueJob inserts a job together with its frozen item set. The insert is
// transactional and first verifies that no queued or running job exists;
// the conflicting job is returned alongside ErrActiveJobExists so callers
// can report it.
func EnqueueJob(ctx context.Context, db *gorm.DB, job *domain.ScheduledJob, items []domain.ScheduledJobItem) (*domain.ScheduledJob, error) {
	now := time.Now().UTC()
	job.ID = uuid.NewString()
	job.Status = domain.JobQueued
	job.EnqueuedAt = now
	job.CreatedAt = now
	job.ItemsTotal = len(items)

	var conflict *domain.ScheduledJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.ScheduledJob
		err := tx.Where("status IN ?", []domain.JobStatus{domain.JobQueued, domain.JobRunning}).
			First(&existing).Error
		switch {
		case err == nil:
			conflict = &existing
			return ErrActiveJobExists
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Create(job).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = uuid.NewString()
			items[i].JobID = job.ID
			items[i].Status = domain.ItemPending
			items[i].CreatedAt = now
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	if errors.Is(err, ErrActiveJobExists) {
		return conflict, err
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ActiveJob returns the queued or running job, or ErrNotFound if the queue
// is empty.
func ActiveJob(ctx context.Context, db *gorm.DB) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	err := db.WithContext(ctx).
		Where("status IN ?", []domain.JobStatus{domain.JobQueued, domain.JobRunning}).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// NextQueuedJob returns the oldest queued job, or ErrNotFound.
func NextQueuedJob(ctx context.Context, db *gorm.DB) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	err := db.WithContext(ctx).
		Where("status = ?", domain.JobQueued).
		Order("enqueued_at asc").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob attempts to move a queued job to running on behalf of a worker.
// The conditional UPDATE only matches while the row is still queued, so
// when claimers race exactly one sees RowsAffected == 1 and wins. Claiming
// bumps the attempt counter and stamps the heartbeat.
func ClaimJob(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	now = now.UTC()
	res := db.WithContext(ctx).
		Model(&domain.ScheduledJob{}).
		Where("id = ? AND status = ?", id, domain.JobQueued).
		Updates(map[string]any{
			"status":        domain.JobRunning,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"started_at":    now,
			"heartbeat_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Heartbeat refreshes the liveness stamp on a running job. It returns
// ErrNotFound when the job is no longer running, which tells the worker it
// has lost ownership (e.g. the job was reclaimed as stale).
func Heartbeat(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ScheduledJob{}).
		Where("id = ? AND status = ?", id, domain.JobRunning).
		Update("heartbeat_at", now.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReclaimStale returns running jobs whose heartbeat is older than cutoff to
// the queue so another worker pass can pick them up. Attempt counters are
// preserved; a job that keeps dying still runs out of attempts. The number
// of reclaimed jobs is returned.
func ReclaimStale(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.ScheduledJob{}).
		Where("status = ? AND heartbeat_at < ?", domain.JobRunning, cutoff.UTC()).
		Updates(map[string]any{
			"status":       domain.JobQueued,
			"heartbeat_at": nil,
			"last_error":   "reclaimed after stale heartbeat",
		})
	return res.RowsAffected, res.Error
}

// FinishJob moves a running job to a terminal status and stamps FinishedAt.
// It returns ErrNotFound when the job is not running anymore.
func FinishJob(ctx context.Context, db *gorm.DB, id string, status domain.JobStatus, lastError string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ScheduledJob{}).
		Where("id = ? AND status = ?", id, domain.JobRunning).
		Updates(map[string]any{
			"status":      status,
			"finished_at": now.UTC(),
			"last_error":  lastError,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetJob fetches a job by ID, or ErrNotFound.
func GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	if err := db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the most recently enqueued jobs, newest first.
func ListJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.ScheduledJob, error) {
	var out []domain.ScheduledJob
	err := db.WithContext(ctx).
		Order("enqueued_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListJobItems returns a job's items ordered by recipient name.
func ListJobItems(ctx context.Context, db *gorm.DB, jobID string) ([]domain.ScheduledJobItem, error) {
	var out []domain.ScheduledJobItem
	err := db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("recipient_name asc").
		Find(&out).Error
	return out, err
}

// ListOpenItems returns the job's items that have not reached a terminal
// status, in a stable order. Running items are included so a claim that
// resumes an interrupted run picks up items the previous worker had started.
func ListOpenItems(ctx context.Context, db *gorm.DB, jobID string) ([]domain.ScheduledJobItem, error) {
	var out []domain.ScheduledJobItem
	err := db.WithContext(ctx).
		Where("job_id = ? AND status IN ?", jobID, []domain.ItemStatus{domain.ItemPending, domain.ItemRunning}).
		Order("recipient_name asc").
		Find(&out).Error
	return out, err
}

// StartItem marks an item running and bumps its attempt counter ahead of a
// delivery attempt. The returned count is the attempts used including this
// one. False is returned when the item is already terminal, which happens
// when a resumed run races a previous attempt's final write.
func StartItem(ctx context.Context, db *gorm.DB, itemID string) (int, bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ScheduledJobItem{}).
		Where("id = ? AND status IN ?", itemID, []domain.ItemStatus{domain.ItemPending, domain.ItemRunning}).
		Updates(map[string]any{
			"status":   domain.ItemRunning,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	var item domain.ScheduledJobItem
	if err := db.WithContext(ctx).Select("attempts").Where("id = ?", itemID).First(&item).Error; err != nil {
		return 0, false, err
	}
	return item.Attempts, true, nil
}

// FinishItem moves a pending or running item to a terminal status. The
// status guard makes the write idempotent across resumed attempts: an item
// already finished by a previous attempt is left untouched and false is
// returned.
func FinishItem(ctx context.Context, db *gorm.DB, itemID string, status domain.ItemStatus, detail string, sentAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status": status,
		"detail": detail,
	}
	if sentAt != nil {
		updates["sent_at"] = sentAt.UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.ScheduledJobItem{}).
		Where("id = ? AND status IN ?", itemID, []domain.ItemStatus{domain.ItemPending, domain.ItemRunning}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FailureSample returns the detail of one failed item on the job, for the
// run summary. Empty when no item failed.
func FailureSample(ctx context.Context, db *gorm.DB, jobID string) (string, error) {
	var item domain.ScheduledJobItem
	err := db.WithContext(ctx).
		Select("recipient_name", "detail").
		Where("job_id = ? AND status = ?", jobID, domain.ItemFailed).
		Order("recipient_name asc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return item.RecipientName + ": " + item.Detail, nil
}

// RefreshJobCounters recomputes the job's outcome counters from its items.
func RefreshJobCounters(ctx context.Context, db *gorm.DB, jobID string) error {
	count := func(status domain.ItemStatus) (int64, error) {
		var n int64
		err := db.WithContext(ctx).
			Model(&domain.ScheduledJobItem{}).
			Where("job_id = ? AND status = ?", jobID, status).
			Count(&n).Error
		return n, err
	}
	sent, err := count(domain.ItemSent)
	if err != nil {
		return err
	}
	failed, err := count(domain.ItemFailed)
	if err != nil {
		return err
	}
	skipped, err := count(domain.ItemSkipped)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.ScheduledJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"items_sent":    sent,
			"items_failed":  failed,
			"items_skipped": skipped,
		}).Error
}
