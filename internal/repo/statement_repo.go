// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for statement run
// audit records.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

// CreateStatementRun appends a delivery audit record.
func CreateStatementRun(ctx context.Context, db *gorm.DB, run *domain.StatementRun) (*domain.StatementRun, error) {
	run.ID = uuid.NewString()
	run.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// GetStatementRun returns one delivery record by ID, or ErrNotFound.
func GetStatementRun(ctx context.Context, db *gorm.DB, id string) (*domain.StatementRun, error) {
	var run domain.StatementRun
	err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// HasSentRun reports whether a sent record already exists for the given job
// and recipient. Resumed job attempts consult this before delivering, so a
// statement handed to SMTP by a crashed attempt is not sent twice.
func HasSentRun(ctx context.Context, db *gorm.DB, jobID, recipientID string) (bool, error) {
	var run domain.StatementRun
	err := db.WithContext(ctx).
		Where("job_id = ? AND recipient_id = ? AND status = ?", jobID, recipientID, domain.RunSent).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListRunsForJob returns every run recorded under a job, oldest first.
func ListRunsForJob(ctx context.Context, db *gorm.DB, jobID string) ([]domain.StatementRun, error) {
	var out []domain.StatementRun
	err := db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListRecentRuns returns the newest runs across all jobs and manual sends.
func ListRecentRuns(ctx context.Context, db *gorm.DB, limit int) ([]domain.StatementRun, error) {
	var out []domain.StatementRun
	err := db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
