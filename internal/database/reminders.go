package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindr/internal/models"
	"remindr/shared/reminders"
)

const reminderColumns = `id, owner_id, title, description, event_at, notify_email, next_occurrence,
	rules, status, created_at, updated_at, last_sent_at, sent_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReminder(row rowScanner) (models.Reminder, error) {
	var (
		r                                                models.Reminder
		eventAt, next, rules, status, createdAt, updated string
		lastSent, sent                                   sql.NullString
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Description, &eventAt, &r.NotifyEmail, &next,
		&rules, &status, &createdAt, &updated, &lastSent, &sent)
	if err != nil {
		return r, err
	}
	r.Status = models.Status(status)

	if r.EventAt, err = parseTime(eventAt); err != nil {
		return r, err
	}
	if r.NextOccurrence, err = parseTime(next); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return r, err
	}
	if r.LastSentAt, err = parseNullTime(lastSent); err != nil {
		return r, err
	}
	if r.SentAt, err = parseNullTime(sent); err != nil {
		return r, err
	}
	for _, rule := range strings.Split(rules, ",") {
		if rule != "" {
			r.Rules = append(r.Rules, models.Rule(rule))
		}
	}
	return r, nil
}

func (db *DB) queryReminders(ctx context.Context, query string, args ...interface{}) ([]models.Reminder, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReminder inserts a new reminder.
func (db *DB) CreateReminder(ctx context.Context, r *models.Reminder) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.Title, r.Description, formatTime(r.EventAt), r.NotifyEmail,
		formatTime(r.NextOccurrence), r.Rules.String(), string(r.Status),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt), nullTime(r.LastSentAt), nullTime(r.SentAt))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// GetReminder returns the reminder with id owned by ownerID.
func (db *DB) GetReminder(ctx context.Context, ownerID, id string) (*models.Reminder, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ? AND owner_id = ?`, id, ownerID)
	r, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return &r, nil
}

// ListReminders returns all reminders of ownerID, newest first.
func (db *DB) ListReminders(ctx context.Context, ownerID string) ([]models.Reminder, error) {
	out, err := db.queryReminders(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return out, nil
}

// UpdateReminder stores the owner-editable fields of r.
func (db *DB) UpdateReminder(ctx context.Context, r *models.Reminder) error {
	res, err := db.ExecContext(ctx, `
		UPDATE reminders
		SET title = ?, description = ?, event_at = ?, notify_email = ?, next_occurrence = ?,
			rules = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		r.Title, r.Description, formatTime(r.EventAt), r.NotifyEmail, formatTime(r.NextOccurrence),
		r.Rules.String(), formatTime(r.UpdatedAt), r.ID, r.OwnerID)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return expectOne(res)
}

// DeleteReminder removes the reminder with id owned by ownerID.
func (db *DB) DeleteReminder(ctx context.Context, ownerID, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return expectOne(res)
}

// FindReminders returns reminders matching the filter, in creation order.
func (db *DB) FindReminders(ctx context.Context, filter reminders.ReminderFilter) ([]models.Reminder, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.DueAtOrBefore != nil {
		where = append(where, "next_occurrence <= ?")
		args = append(args, formatTime(*filter.DueAtOrBefore))
	}
	if filter.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, *filter.OwnerID)
	}

	query := `SELECT ` + reminderColumns + ` FROM reminders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	out, err := db.queryReminders(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find reminders: %w", err)
	}
	return out, nil
}

// UpdateOccurrence applies a post-send update. Nil fields are left as stored.
// With upd.Expect set the row must still hold the expected version.
func (db *DB) UpdateOccurrence(ctx context.Context, id string, upd reminders.OccurrenceUpdate) error {
	sets := []string{"status = ?"}
	args := []interface{}{string(upd.Status)}

	if upd.NextOccurrence != nil {
		sets = append(sets, "next_occurrence = ?")
		args = append(args, formatTime(*upd.NextOccurrence))
	}
	var touched *time.Time
	if upd.LastSentAt != nil {
		sets = append(sets, "last_sent_at = ?")
		args = append(args, formatTime(*upd.LastSentAt))
		touched = upd.LastSentAt
	}
	if upd.SentAt != nil {
		sets = append(sets, "sent_at = ?")
		args = append(args, formatTime(*upd.SentAt))
		touched = upd.SentAt
	}
	if touched != nil {
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(*touched))
	}
	where := "id = ?"
	args = append(args, id)
	if e := upd.Expect; e != nil {
		where += " AND status = ? AND next_occurrence = ? AND updated_at = ?"
		args = append(args, string(e.Status), formatTime(e.NextOccurrence), formatTime(e.UpdatedAt))
	}

	res, err := db.ExecContext(ctx, `UPDATE reminders SET `+strings.Join(sets, ", ")+` WHERE `+where, args...)
	if err != nil {
		return fmt.Errorf("update occurrence: %w", err)
	}
	err = expectOne(res)
	if upd.Expect != nil && errors.Is(err, models.ErrNotFound) {
		return reminders.ErrStale
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
