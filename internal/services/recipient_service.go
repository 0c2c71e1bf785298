// Package services – RecipientService
//
// This file implements the RecipientService, which governs the recipient
// directory: single customers, group containers, group membership, and name
// aliases. It enforces business rules (non-empty canonical names, normalized
// payment terms, valid schedules, group-only membership targets) and persists
// changes through the repo layer. Service-level errors (ErrEmptyName,
// ErrInvalidTerms, ErrInvalidSchedule, ErrNotAGroup, ErrRecipientNotFound)
// are returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/match"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/terms"
)

// RecipientInput carries the writable recipient fields for create and
// update calls. Terms accepts any free-form value the terms package can
// normalize ("Net 30", "30", "bill to bill").
type RecipientInput struct {
	Name         string
	Email        string
	Terms        string
	ScheduleType domain.ScheduleType
	ScheduleDay  int
	IsGroup      bool
}

// RecipientService implements the use-cases around the recipient directory.
// It validates input and persists changes using the provided GORM handle.
type RecipientService struct {
	// DB is the database handle used for all recipient operations.
	DB *gorm.DB
}

// Create validates in and inserts a new recipient.
//
// Validation:
//   - Name must be non-blank; otherwise ErrEmptyName.
//   - Terms must normalize to a known code; a blank value falls back to the
//     default. Unknown values yield ErrInvalidTerms.
//   - ScheduleType/ScheduleDay must form a valid schedule (see
//     validSchedule); otherwise ErrInvalidSchedule.
func (s *RecipientService) Create(ctx context.Context, in RecipientInput) (*domain.Recipient, error) {
	r, err := s.buildRecipient(in)
	if err != nil {
		return nil, err
	}
	return repo.CreateRecipient(ctx, s.DB, r)
}

// Update applies in to an existing recipient, with the same validation as
// Create. Returns ErrRecipientNotFound when id does not exist.
func (s *RecipientService) Update(ctx context.Context, id string, in RecipientInput) (*domain.Recipient, error) {
	r, err := s.buildRecipient(in)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{
		"name":          r.Name,
		"email":         r.Email,
		"terms":         r.Terms,
		"schedule_type": r.ScheduleType,
		"schedule_day":  r.ScheduleDay,
	}
	if err := repo.UpdateRecipient(ctx, s.DB, id, updates); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return repo.GetRecipient(ctx, s.DB, id)
}

// Get returns a recipient by ID, or ErrRecipientNotFound.
func (s *RecipientService) Get(ctx context.Context, id string) (*domain.Recipient, error) {
	r, err := repo.GetRecipient(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return r, nil
}

// List returns all recipients, optionally restricted to groups.
func (s *RecipientService) List(ctx context.Context, groupsOnly bool) ([]domain.Recipient, error) {
	return repo.ListRecipients(ctx, s.DB, groupsOnly)
}

// Delete removes a recipient. Deleting a group detaches its members first.
func (s *RecipientService) Delete(ctx context.Context, id string) error {
	if err := repo.DeleteRecipient(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRecipientNotFound
		}
		return err
	}
	return nil
}

// AssignGroup places a single recipient into groupID, replacing any previous
// membership. An empty groupID detaches the recipient. The target must be a
// group container; otherwise ErrNotAGroup.
func (s *RecipientService) AssignGroup(ctx context.Context, recipientID, groupID string) error {
	if groupID != "" {
		g, err := repo.GetRecipient(ctx, s.DB, groupID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}
		if !g.IsGroup {
			return ErrNotAGroup
		}
	}
	if err := repo.AssignGroup(ctx, s.DB, recipientID, groupID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRecipientNotFound
		}
		return err
	}
	return nil
}

// Members lists the current members of a group.
func (s *RecipientService) Members(ctx context.Context, groupID string) ([]domain.Recipient, error) {
	g, err := repo.GetRecipient(ctx, s.DB, groupID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if !g.IsGroup {
		return nil, ErrNotAGroup
	}
	return repo.ListGroupMembers(ctx, s.DB, groupID)
}

// AddAlias records an alternate source-file spelling for a recipient.
func (s *RecipientService) AddAlias(ctx context.Context, recipientID, alias string) (*domain.RecipientAlias, error) {
	if strings.TrimSpace(alias) == "" {
		return nil, ErrEmptyName
	}
	if _, err := repo.GetRecipient(ctx, s.DB, recipientID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return repo.CreateAlias(ctx, s.DB, recipientID, strings.TrimSpace(alias))
}

// RemoveAlias deletes an alias by ID, or ErrAliasNotFound.
func (s *RecipientService) RemoveAlias(ctx context.Context, aliasID string) error {
	if err := repo.DeleteAlias(ctx, s.DB, aliasID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAliasNotFound
		}
		return err
	}
	return nil
}

// Aliases lists a recipient's aliases.
func (s *RecipientService) Aliases(ctx context.Context, recipientID string) ([]domain.RecipientAlias, error) {
	return repo.ListAliases(ctx, s.DB, recipientID)
}

// Suggest ranks directory entries by name similarity to an unresolved
// customer name. The index is rebuilt per call; the directory is small
// enough that caching it would buy nothing.
func (s *RecipientService) Suggest(ctx context.Context, name string, k int) ([]match.Candidate, error) {
	recipients, err := repo.ListRecipients(ctx, s.DB, false)
	if err != nil {
		return nil, err
	}
	aliases, err := repo.ListAliases(ctx, s.DB, "")
	if err != nil {
		return nil, err
	}
	return match.NewIndex(recipients, aliases).TopK(name, k), nil
}

func (s *RecipientService) buildRecipient(in RecipientInput) (*domain.Recipient, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrEmptyName
	}

	code := terms.Default
	if strings.TrimSpace(in.Terms) != "" {
		var ok bool
		code, ok = terms.Normalize(in.Terms)
		if !ok {
			return nil, ErrInvalidTerms
		}
	}

	st := in.ScheduleType
	if st == "" {
		st = domain.ScheduleManual
	}
	if !validSchedule(st, in.ScheduleDay) {
		return nil, ErrInvalidSchedule
	}

	return &domain.Recipient{
		Name:         name,
		Email:        strings.TrimSpace(in.Email),
		Terms:        string(code),
		ScheduleType: st,
		ScheduleDay:  in.ScheduleDay,
		IsGroup:      in.IsGroup,
	}, nil
}

// validSchedule checks the day range for each schedule type: weekday 0..6
// (Monday-anchored) for weekly and biweekly, day of month 1..28 for monthly
// so every month qualifies, anything for manual.
func validSchedule(st domain.ScheduleType, day int) bool {
	switch st {
	case domain.ScheduleWeekly, domain.ScheduleBiweekly:
		return day >= 0 && day <= 6
	case domain.ScheduleMonthly:
		return day >= 1 && day <= 28
	case domain.ScheduleManual:
		return true
	default:
		return false
	}
}
