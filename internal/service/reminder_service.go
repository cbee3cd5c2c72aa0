package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"remindr/internal/models"
)

// CreateReminderInput carries the owner-supplied fields of a new reminder.
type CreateReminderInput struct {
	Title          string
	Description    string
	EventAt        time.Time
	NotifyEmail    string
	NextOccurrence time.Time
	Rules          []string
}

// UpdateReminderInput carries a partial edit; nil fields are left unchanged.
type UpdateReminderInput struct {
	Title          *string
	Description    *string
	EventAt        *time.Time
	NotifyEmail    *string
	NextOccurrence *time.Time
	Rules          []string
}

// ReminderService implements the owner-facing reminder operations.
type ReminderService struct {
	repo   ReminderRepository
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func NewReminderService(repo ReminderRepository, logger zerolog.Logger) *ReminderService {
	return &ReminderService{
		repo:   repo,
		logger: logger.With().Str("component", "reminders").Logger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create validates input and stores a new active reminder for ownerID.
func (s *ReminderService) Create(ctx context.Context, ownerID string, in CreateReminderInput) (*models.Reminder, error) {
	rules, err := models.ParseRules(in.Rules)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &models.Reminder{
		ID:             s.newID(),
		OwnerID:        ownerID,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		EventAt:        in.EventAt.UTC(),
		NotifyEmail:    strings.TrimSpace(in.NotifyEmail),
		NextOccurrence: in.NextOccurrence.UTC(),
		Rules:          rules,
		Status:         models.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}

	s.logger.Info().
		Str("reminder_id", r.ID).
		Str("owner_id", ownerID).
		Str("rules", r.Rules.String()).
		Time("next_occurrence", r.NextOccurrence).
		Msg("reminder created")
	return r, nil
}

// Update applies a partial edit. A sent reminder cannot be edited.
func (s *ReminderService) Update(ctx context.Context, ownerID, id string, in UpdateReminderInput) (*models.Reminder, error) {
	r, err := s.repo.GetReminder(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusSent {
		return nil, models.ErrAlreadySent
	}

	if in.Title != nil {
		r.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		r.Description = strings.TrimSpace(*in.Description)
	}
	if in.EventAt != nil {
		r.EventAt = in.EventAt.UTC()
	}
	if in.NotifyEmail != nil {
		r.NotifyEmail = strings.TrimSpace(*in.NotifyEmail)
	}
	if in.NextOccurrence != nil {
		r.NextOccurrence = in.NextOccurrence.UTC()
	}
	if in.Rules != nil {
		rules, err := models.ParseRules(in.Rules)
		if err != nil {
			return nil, err
		}
		r.Rules = rules
	}
	r.UpdatedAt = s.now().UTC()

	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateReminder(ctx, r); err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}

	s.logger.Info().Str("reminder_id", r.ID).Str("owner_id", ownerID).Msg("reminder updated")
	return r, nil
}

func (s *ReminderService) Get(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	return s.repo.GetReminder(ctx, ownerID, id)
}

// List returns the owner's reminders, newest first.
func (s *ReminderService) List(ctx context.Context, ownerID string) ([]models.Reminder, error) {
	rs, err := s.repo.ListReminders(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []models.Reminder{}
	}
	return rs, nil
}

// Delete removes a reminder. This is the only way a reminder leaves storage.
func (s *ReminderService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.DeleteReminder(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info().Str("reminder_id", id).Str("owner_id", ownerID).Msg("reminder deleted")
	return nil
}
