package reminders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"remindr/internal/models"
)

// FindDue returns active reminders whose next occurrence is at or before now,
// in creation order. The store's result is re-checked against the same
// predicate so a loose backend query cannot widen the due set.
func FindDue(ctx context.Context, store ReminderStore, now time.Time) ([]models.Reminder, error) {
	now = now.UTC()
	found, err := store.FindReminders(ctx, ReminderFilter{
		Status:        []models.Status{models.StatusActive},
		DueAtOrBefore: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}

	due := found[:0]
	for i := range found {
		if found[i].IsDue(now) {
			due = append(due, found[i])
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}
