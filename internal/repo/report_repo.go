// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for aging report
// runs and their per-customer items.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

// CreateReportRun persists a report run together with its items in one
// transaction.
func CreateReportRun(ctx context.Context, db *gorm.DB, run *domain.AgingReportRun, items []domain.AgingReportItem) (*domain.AgingReportRun, error) {
	now := time.Now().UTC()
	run.ID = uuid.NewString()
	run.CreatedAt = now

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = uuid.NewString()
			items[i].RunID = run.ID
			items[i].CreatedAt = now
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// LatestReportRun returns the most recently generated report, or ErrNotFound
// when none exists.
func LatestReportRun(ctx context.Context, db *gorm.DB) (*domain.AgingReportRun, error) {
	var run domain.AgingReportRun
	err := db.WithContext(ctx).
		Order("created_at desc").
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetReportRun fetches a report run by ID, or ErrNotFound.
func GetReportRun(ctx context.Context, db *gorm.DB, id string) (*domain.AgingReportRun, error) {
	var run domain.AgingReportRun
	if err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListReportItems returns a run's customer lines ordered by overdue amount
// descending, worst debtors first.
func ListReportItems(ctx context.Context, db *gorm.DB, runID string) ([]domain.AgingReportItem, error) {
	var out []domain.AgingReportItem
	err := db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("overdue_amount desc").
		Find(&out).Error
	return out, err
}
