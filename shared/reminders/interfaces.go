package reminders

import (
	"context"
	"errors"
	"time"

	"remindr/internal/models"
)

// ReminderFilter defines criteria for querying reminders.
type ReminderFilter struct {
	Status        []models.Status
	DueAtOrBefore *time.Time
	OwnerID       *string
}

// ErrStale is returned by UpdateOccurrence when the stored reminder no longer
// matches the expected snapshot: it was edited or deleted after selection.
var ErrStale = errors.New("reminder changed since it was selected")

// Snapshot identifies the version of a reminder a pass selected.
type Snapshot struct {
	Status         models.Status
	NextOccurrence time.Time
	UpdatedAt      time.Time
}

// SnapshotOf captures the version fields of r.
func SnapshotOf(r *models.Reminder) *Snapshot {
	return &Snapshot{
		Status:         r.Status,
		NextOccurrence: r.NextOccurrence.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

// OccurrenceUpdate is the set of fields the engine writes after a send.
// Nil pointers leave the stored value untouched.
type OccurrenceUpdate struct {
	Status         models.Status
	NextOccurrence *time.Time
	LastSentAt     *time.Time
	SentAt         *time.Time

	// Expect, when set, makes the write conditional: it only applies if the
	// stored reminder still matches the snapshot, otherwise ErrStale.
	Expect *Snapshot
}

// ReminderStore provides access to reminders storage.
type ReminderStore interface {
	// FindReminders returns reminders matching the filter.
	FindReminders(ctx context.Context, filter ReminderFilter) ([]models.Reminder, error)

	// UpdateOccurrence applies a post-send update to a single reminder.
	// With upd.Expect set, a mismatch (or a missing row) is ErrStale.
	UpdateOccurrence(ctx context.Context, id string, upd OccurrenceUpdate) error
}

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a message. A nil error means the provider accepted it.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// EventPublisher receives engine events.
type EventPublisher interface {
	Publish(evType string, payload interface{})
}

// Event types published by the scheduler.
const (
	EventPassCompleted = "pass.completed"
	EventReminderSent  = "reminder.sent"
)

// Logger is the key-value logger used by the engine.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
