package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"remindr/internal/models"
	"remindr/shared/reminders"
)

// normalize drops what BSON datetimes cannot hold and pins the zone to UTC.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func normalizePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := normalize(*t)
	return &n
}

func normalizeReminder(r models.Reminder) models.Reminder {
	r.EventAt = normalize(r.EventAt)
	r.NextOccurrence = normalize(r.NextOccurrence)
	r.CreatedAt = normalize(r.CreatedAt)
	r.UpdatedAt = normalize(r.UpdatedAt)
	r.LastSentAt = normalizePtr(r.LastSentAt)
	r.SentAt = normalizePtr(r.SentAt)
	return r
}

func ownedFilter(ownerID, id string) bson.M {
	return bson.M{"_id": id, "ownerId": ownerID}
}

func reminderFilter(f reminders.ReminderFilter) bson.M {
	filter := bson.M{}
	if len(f.Status) > 0 {
		statuses := make(bson.A, len(f.Status))
		for i, s := range f.Status {
			statuses[i] = string(s)
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if f.DueAtOrBefore != nil {
		filter["nextOccurrence"] = bson.M{"$lte": normalize(*f.DueAtOrBefore)}
	}
	if f.OwnerID != nil {
		filter["ownerId"] = *f.OwnerID
	}
	return filter
}

// occurrenceFilter matches id, and the expected version when one is given.
func occurrenceFilter(id string, expect *reminders.Snapshot) bson.M {
	filter := bson.M{"_id": id}
	if expect != nil {
		filter["status"] = string(expect.Status)
		filter["nextOccurrence"] = normalize(expect.NextOccurrence)
		filter["updatedAt"] = normalize(expect.UpdatedAt)
	}
	return filter
}

func editUpdate(r *models.Reminder) bson.M {
	return bson.M{"$set": bson.M{
		"title":          r.Title,
		"description":    r.Description,
		"eventAt":        normalize(r.EventAt),
		"notifyEmail":    r.NotifyEmail,
		"nextOccurrence": normalize(r.NextOccurrence),
		"rules":          r.Rules,
		"updatedAt":      normalize(r.UpdatedAt),
	}}
}

func occurrenceUpdate(upd reminders.OccurrenceUpdate) bson.M {
	set := bson.M{"status": string(upd.Status)}
	if upd.NextOccurrence != nil {
		set["nextOccurrence"] = normalize(*upd.NextOccurrence)
	}
	if upd.LastSentAt != nil {
		set["lastSentAt"] = normalize(*upd.LastSentAt)
		set["updatedAt"] = normalize(*upd.LastSentAt)
	}
	if upd.SentAt != nil {
		set["sentAt"] = normalize(*upd.SentAt)
		set["updatedAt"] = normalize(*upd.SentAt)
	}
	return bson.M{"$set": set}
}
