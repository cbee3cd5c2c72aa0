package reminders

import (
	"context"
	"fmt"
	"time"

	"remindr/internal/models"
	"remindr/internal/recurrence"
)

// NextState computes the state a reminder moves to after a successful send
// at sentAt, along with the update that persists it.
//
// A reminder with no recurring rule becomes sent. Otherwise the driving rule
// advances the next occurrence by one step from its previous value, even when
// the result is still in the past.
//
// The update expects the stored reminder to still be the version in r, so an
// owner edit made while the send was in flight is never overwritten.
func NextState(r models.Reminder, sentAt time.Time) (models.Reminder, OccurrenceUpdate, error) {
	sentAt = sentAt.UTC()
	expect := SnapshotOf(&r)

	if r.IsOnceOnly() {
		r.Status = models.StatusSent
		r.SentAt = &sentAt
		r.UpdatedAt = sentAt
		return r, OccurrenceUpdate{
			Status: models.StatusSent,
			SentAt: &sentAt,
			Expect: expect,
		}, nil
	}

	rule, _ := recurrence.Select(r.Rules)
	next, err := recurrence.Next(r.NextOccurrence, rule)
	if err != nil {
		return r, OccurrenceUpdate{}, fmt.Errorf("advance reminder %s: %w", r.ID, err)
	}

	r.NextOccurrence = next
	r.LastSentAt = &sentAt
	r.UpdatedAt = sentAt
	return r, OccurrenceUpdate{
		Status:         models.StatusActive,
		NextOccurrence: &next,
		LastSentAt:     &sentAt,
		Expect:         expect,
	}, nil
}

// Advancer persists post-send state transitions.
type Advancer struct {
	store ReminderStore
}

// NewAdvancer creates an advancer writing to store.
func NewAdvancer(store ReminderStore) *Advancer {
	return &Advancer{store: store}
}

// Advance computes and stores the next state of r after a send at sentAt.
// It returns an error wrapping ErrStale when r was edited or deleted after it
// was selected; the stored reminder is then left as the owner saved it.
func (a *Advancer) Advance(ctx context.Context, r *models.Reminder, sentAt time.Time) (models.Reminder, error) {
	next, upd, err := NextState(*r, sentAt)
	if err != nil {
		return *r, err
	}
	if err := a.store.UpdateOccurrence(ctx, r.ID, upd); err != nil {
		return *r, fmt.Errorf("store reminder %s: %w", r.ID, err)
	}
	return next, nil
}
