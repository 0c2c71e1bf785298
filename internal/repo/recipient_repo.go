// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for recipients,
// their aliases, and group membership.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a recipient is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/utils"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateRecipient inserts a new recipient row. The ID is a randomly
// generated UUID (string), and CreatedAt is set to UTC.
func CreateRecipient(ctx context.Context, db *gorm.DB, r *domain.Recipient) (*domain.Recipient, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecipients returns all live recipients ordered by name. Pass
// groupsOnly to restrict the result to group containers.
func ListRecipients(ctx context.Context, db *gorm.DB, groupsOnly bool) ([]domain.Recipient, error) {
	q := db.WithContext(ctx).Order("name asc")
	if groupsOnly {
		q = q.Where("is_group = ?", true)
	}
	var out []domain.Recipient
	err := q.Find(&out).Error
	return out, err
}

// GetRecipient fetches a recipient by ID, or ErrNotFound if missing.
func GetRecipient(ctx context.Context, db *gorm.DB, id string) (*domain.Recipient, error) {
	var r domain.Recipient
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindRecipientByName fetches a recipient whose canonical name matches name
// under key normalization. Matching is done in Go because the folding rules
// are not expressible in portable SQL; recipient counts are small.
func FindRecipientByName(ctx context.Context, db *gorm.DB, name string) (*domain.Recipient, error) {
	key := utils.NameKey(name)
	var all []domain.Recipient
	if err := db.WithContext(ctx).Find(&all).Error; err != nil {
		return nil, err
	}
	for i := range all {
		if utils.NameKey(all[i].Name) == key {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

// UpdateRecipient applies the given column updates to a recipient. If no
// rows are affected it returns ErrNotFound.
func UpdateRecipient(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Recipient{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteRecipient soft-deletes a recipient and detaches any members that
// pointed at it as their group. Returns ErrNotFound when the row is missing.
func DeleteRecipient(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Recipient{}).
			Where("group_id = ?", id).
			Update("group_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Recipient{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// AssignGroup points a single recipient at a group. A recipient belongs to
// at most one group, so a second assignment replaces the first. Pass an
// empty groupID to detach.
func AssignGroup(ctx context.Context, db *gorm.DB, recipientID, groupID string) error {
	var val any
	if groupID != "" {
		val = groupID
	}
	res := db.WithContext(ctx).
		Model(&domain.Recipient{}).
		Where("id = ? AND is_group = ?", recipientID, false).
		Update("group_id", val)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListGroupMembers returns the live members of the given group, ordered by
// name.
func ListGroupMembers(ctx context.Context, db *gorm.DB, groupID string) ([]domain.Recipient, error) {
	var out []domain.Recipient
	err := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("name asc").
		Find(&out).Error
	return out, err
}

// UpdateLastSent records a successful statement delivery time for the
// recipient. Missing rows are ignored: the recipient may have been deleted
// between enqueue and send.
func UpdateLastSent(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Recipient{}).
		Where("id = ?", id).
		Update("last_sent_at", at.UTC()).Error
}

// CreateAlias inserts an alias for a recipient. The normalized form is
// computed here so every write goes through the same folding.
func CreateAlias(ctx context.Context, db *gorm.DB, recipientID, alias string) (*domain.RecipientAlias, error) {
	a := &domain.RecipientAlias{
		ID:              uuid.NewString(),
		RecipientID:     recipientID,
		Alias:           alias,
		NormalizedAlias: utils.NameKey(alias),
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// ListAliases returns aliases for a recipient, or all aliases when
// recipientID is empty.
func ListAliases(ctx context.Context, db *gorm.DB, recipientID string) ([]domain.RecipientAlias, error) {
	q := db.WithContext(ctx).Order("alias asc")
	if recipientID != "" {
		q = q.Where("recipient_id = ?", recipientID)
	}
	var out []domain.RecipientAlias
	err := q.Find(&out).Error
	return out, err
}

// DeleteAlias soft-deletes an alias by ID. Returns ErrNotFound when the row
// is missing.
func DeleteAlias(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.RecipientAlias{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
