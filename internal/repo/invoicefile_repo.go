// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the invoice
// source-file registry.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
)

// CreateInvoiceFile registers an uploaded invoice source file.
func CreateInvoiceFile(ctx context.Context, db *gorm.DB, path, originalName string, rowCount int) (*domain.InvoiceFile, error) {
	f := &domain.InvoiceFile{
		ID:           uuid.NewString(),
		Path:         path,
		OriginalName: originalName,
		RowCount:     rowCount,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		return nil, err
	}
	return f, nil
}

// LatestInvoiceFile returns the most recently registered file, or
// ErrNotFound when none has been uploaded.
func LatestInvoiceFile(ctx context.Context, db *gorm.DB) (*domain.InvoiceFile, error) {
	var f domain.InvoiceFile
	err := db.WithContext(ctx).
		Order("created_at desc").
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetInvoiceFile fetches a registered file by ID, or ErrNotFound.
func GetInvoiceFile(ctx context.Context, db *gorm.DB, id string) (*domain.InvoiceFile, error) {
	var f domain.InvoiceFile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListInvoiceFiles returns registered files, newest first.
func ListInvoiceFiles(ctx context.Context, db *gorm.DB, limit int) ([]domain.InvoiceFile, error) {
	var out []domain.InvoiceFile
	err := db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
