// Package services – JobService
//
// This file implements the dispatch queue front end: deciding which
// recipients are due, freezing them into a job, and serving job state back to
// the API. The worker loop picks up queued jobs elsewhere.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/clock"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
)

// JobService enqueues dispatch jobs and serves their state.
type JobService struct {
	// DB is the database handle used for all queue operations.
	DB *gorm.DB
	// Clock supplies the reference time for schedule evaluation.
	Clock clock.Clock
	// MaxAttempts is stamped on every enqueued job: the delivery budget each
	// of its items gets before it fails permanently.
	MaxAttempts int
	// MaxRecipients caps the due set frozen onto one job; recipients beyond
	// the cap stay due and are picked up by a later run. 0 means no cap.
	MaxRecipients int
	// SourcePath pins a fixed invoice file path. When empty, the latest
	// registered upload is snapshotted onto the job instead.
	SourcePath string
}

// JobDetail bundles a job with its frozen item set.
type JobDetail struct {
	Job   *domain.ScheduledJob      `json:"job"`
	Items []domain.ScheduledJobItem `json:"items"`
}

// Enqueue creates a dispatch job for every recipient due right now and
// freezes the recipient set onto it.
//
// Due means the recipient's schedule matches today and enough time has
// passed since its last statement. Grouped singles never dispatch on their
// own; their group carries the schedule. Returns ErrNothingDue when no
// recipient is due, ErrNoInvoiceFile when there is no source to read, and
// ErrJobAlreadyActive (with the conflicting job) when the queue is occupied.
func (s *JobService) Enqueue(ctx context.Context, trigger domain.JobTrigger) (*domain.ScheduledJob, error) {
	now := s.Clock.Now()

	recipients, err := repo.ListRecipients(ctx, s.DB, false)
	if err != nil {
		return nil, err
	}

	var items []domain.ScheduledJobItem
	for _, r := range recipients {
		if !r.IsGroup && r.GroupID != nil {
			continue
		}
		if !IsDue(r, now) {
			continue
		}
		items = append(items, domain.ScheduledJobItem{
			RecipientID:   r.ID,
			RecipientName: r.Name,
			Email:         r.Email,
		})
	}
	if len(items) == 0 {
		return nil, ErrNothingDue
	}
	if s.MaxRecipients > 0 && len(items) > s.MaxRecipients {
		items = items[:s.MaxRecipients]
	}

	job := &domain.ScheduledJob{
		Trigger:     trigger,
		MaxAttempts: s.MaxAttempts,
	}
	if s.SourcePath == "" {
		f, err := repo.LatestInvoiceFile(ctx, s.DB)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrNoInvoiceFile
			}
			return nil, err
		}
		job.InvoiceFileID = &f.ID
	}

	created, err := repo.EnqueueJob(ctx, s.DB, job, items)
	if errors.Is(err, repo.ErrActiveJobExists) {
		// created is the conflicting job; hand it back so the caller can
		// report which job is blocking the queue.
		return created, ErrJobAlreadyActive
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Active returns the queued or running job, or ErrJobNotFound when the queue
// is empty.
func (s *JobService) Active(ctx context.Context) (*domain.ScheduledJob, error) {
	job, err := repo.ActiveJob(ctx, s.DB)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// Get returns one job with its items, or ErrJobNotFound.
func (s *JobService) Get(ctx context.Context, id string) (*JobDetail, error) {
	job, err := repo.GetJob(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	items, err := repo.ListJobItems(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, Items: items}, nil
}

// List returns the most recent jobs, newest first.
func (s *JobService) List(ctx context.Context, limit int) ([]domain.ScheduledJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return repo.ListJobs(ctx, s.DB, limit)
}
