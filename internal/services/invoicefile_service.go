// Package services – InvoiceFileService
//
// This file implements the registry of uploaded invoice files. The HTTP
// layer stores the raw upload on disk and hands the stored path here;
// registration counts the data rows up front so a malformed file is rejected
// before it can become the dispatch source.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/invoice"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
)

// InvoiceFileService manages the uploaded invoice file registry. The most
// recently registered file becomes the default dispatch and report source.
type InvoiceFileService struct {
	// DB is the database handle used for all registry operations.
	DB *gorm.DB
}

// Register validates the stored file at path and records it. The row count
// is taken at registration time; a file that cannot be parsed is rejected
// and never registered.
func (s *InvoiceFileService) Register(ctx context.Context, path, originalName string) (*domain.InvoiceFile, error) {
	rows, err := invoice.CountRows(path)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice file: %w", err)
	}
	return repo.CreateInvoiceFile(ctx, s.DB, path, originalName, rows)
}

// Get returns one registered file by ID.
func (s *InvoiceFileService) Get(ctx context.Context, id string) (*domain.InvoiceFile, error) {
	f, err := repo.GetInvoiceFile(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvoiceFileNotFound
	}
	return f, err
}

// List returns registered files, newest first.
func (s *InvoiceFileService) List(ctx context.Context, limit int) ([]domain.InvoiceFile, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return repo.ListInvoiceFiles(ctx, s.DB, limit)
}
