package service

import (
	"context"
	"time"

	"remindr/internal/models"
)

// ReminderRepository stores reminders on behalf of their owners. Every lookup
// is scoped by owner; a reminder of another owner is models.ErrNotFound.
type ReminderRepository interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, ownerID, id string) (*models.Reminder, error)
	ListReminders(ctx context.Context, ownerID string) ([]models.Reminder, error)
	UpdateReminder(ctx context.Context, r *models.Reminder) error
	DeleteReminder(ctx context.Context, ownerID, id string) error
}

// UserRepository stores accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID, email string) (string, time.Time, error)
}
