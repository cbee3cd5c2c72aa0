package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindr/internal/models"
	"remindr/shared/reminders"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedUser(t *testing.T, db *DB, id, email string) {
	t.Helper()
	require.NoError(t, db.CreateUser(context.Background(), &models.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    ts("2024-12-01T00:00"),
	}))
}

func newReminder(id, owner, next string, created string, rules ...models.Rule) *models.Reminder {
	return &models.Reminder{
		ID:             id,
		OwnerID:        owner,
		Title:          "Title " + id,
		Description:    "Description " + id,
		EventAt:        ts(next),
		NotifyEmail:    id + "@example.com",
		NextOccurrence: ts(next),
		Rules:          rules,
		Status:         models.StatusActive,
		CreatedAt:      ts(created),
		UpdatedAt:      ts(created),
	}
}

func TestUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "u1", "Alice@Example.com")

	u, err := db.GetUserByEmail(ctx, "alice@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, ts("2024-12-01T00:00"), u.CreatedAt)

	u, err = db.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	err = db.CreateUser(ctx, &models.User{ID: "u2", Name: "Dup", Email: "ALICE@example.com", PasswordHash: "x", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, models.ErrEmailTaken)

	_, err = db.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReminderCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1", "a@example.com")
	seedUser(t, db, "u2", "b@example.com")

	r := newReminder("r1", "u1", "2025-04-12T12:06", "2025-01-01T00:00", models.RuleOnce, models.RuleMonthly)
	require.NoError(t, db.CreateReminder(ctx, r))
	require.NoError(t, db.CreateReminder(ctx, newReminder("r2", "u1", "2025-04-13T12:06", "2025-01-02T00:00", models.RuleDaily)))

	got, err := db.GetReminder(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, models.Rules{models.RuleOnce, models.RuleMonthly}, got.Rules)
	assert.Equal(t, ts("2025-04-12T12:06"), got.NextOccurrence)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.LastSentAt)

	_, err = db.GetReminder(ctx, "u2", "r1")
	assert.ErrorIs(t, err, models.ErrNotFound, "foreign owner")

	list, err := db.ListReminders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID, "newest first")

	got.Title = "Renamed"
	got.Rules = models.Rules{models.RuleWeekly}
	got.UpdatedAt = ts("2025-02-01T00:00")
	require.NoError(t, db.UpdateReminder(ctx, got))

	got, err = db.GetReminder(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.Rules{models.RuleWeekly}, got.Rules)

	foreign := *got
	foreign.OwnerID = "u2"
	assert.ErrorIs(t, db.UpdateReminder(ctx, &foreign), models.ErrNotFound)

	assert.ErrorIs(t, db.DeleteReminder(ctx, "u2", "r1"), models.ErrNotFound)
	require.NoError(t, db.DeleteReminder(ctx, "u1", "r1"))
	_, err = db.GetReminder(ctx, "u1", "r1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFindRemindersAndUpdateOccurrence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1", "a@example.com")

	require.NoError(t, db.CreateReminder(ctx, newReminder("late", "u1", "2025-01-01T09:00", "2024-12-02T00:00", models.RuleDaily)))
	require.NoError(t, db.CreateReminder(ctx, newReminder("edge", "u1", "2025-01-01T10:00", "2024-12-01T00:00", models.RuleOnce)))
	require.NoError(t, db.CreateReminder(ctx, newReminder("future", "u1", "2025-01-01T10:01", "2024-12-01T00:00", models.RuleOnce)))

	now := ts("2025-01-01T10:00")
	due, err := reminders.FindDue(ctx, db, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "edge", due[0].ID)
	assert.Equal(t, "late", due[1].ID)

	sentAt := now
	require.NoError(t, db.UpdateOccurrence(ctx, "edge", reminders.OccurrenceUpdate{
		Status: models.StatusSent,
		SentAt: &sentAt,
	}))
	next := ts("2025-01-02T09:00")
	require.NoError(t, db.UpdateOccurrence(ctx, "late", reminders.OccurrenceUpdate{
		Status:         models.StatusActive,
		NextOccurrence: &next,
		LastSentAt:     &sentAt,
	}))

	edge, err := db.GetReminder(ctx, "u1", "edge")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, edge.Status)
	require.NotNil(t, edge.SentAt)
	assert.Equal(t, sentAt, *edge.SentAt)
	assert.Equal(t, ts("2025-01-01T10:00"), edge.NextOccurrence)

	late, err := db.GetReminder(ctx, "u1", "late")
	require.NoError(t, err)
	assert.Equal(t, next, late.NextOccurrence)
	require.NotNil(t, late.LastSentAt)
	assert.Equal(t, sentAt, late.UpdatedAt)

	due, err = reminders.FindDue(ctx, db, ts("2025-01-02T08:59"))
	require.NoError(t, err)
	assert.Empty(t, due)

	assert.ErrorIs(t, db.UpdateOccurrence(ctx, "missing", reminders.OccurrenceUpdate{Status: models.StatusSent}), models.ErrNotFound)

	owner := "u1"
	all, err := db.FindReminders(ctx, reminders.ReminderFilter{OwnerID: &owner})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateOccurrence_OwnerEditWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1", "a@example.com")
	require.NoError(t, db.CreateReminder(ctx, newReminder("r1", "u1", "2025-01-01T09:00", "2024-12-01T00:00", models.RuleOnce)))

	due, err := reminders.FindDue(ctx, db, ts("2025-01-01T10:00"))
	require.NoError(t, err)
	require.Len(t, due, 1)
	snapshot := due[0]

	edited := snapshot
	edited.Rules = models.Rules{models.RuleDaily}
	edited.NextOccurrence = ts("2025-03-01T09:00")
	edited.UpdatedAt = ts("2025-01-01T10:00")
	require.NoError(t, db.UpdateReminder(ctx, &edited))

	_, err = reminders.NewAdvancer(db).Advance(ctx, &snapshot, ts("2025-01-01T10:00"))
	assert.ErrorIs(t, err, reminders.ErrStale)

	got, err := db.GetReminder(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, models.Rules{models.RuleDaily}, got.Rules)
	assert.Equal(t, ts("2025-03-01T09:00"), got.NextOccurrence)
	assert.Nil(t, got.SentAt)
	require.NoError(t, got.Validate())

	t.Run("UnchangedSnapshotApplies", func(t *testing.T) {
		next, err := reminders.NewAdvancer(db).Advance(ctx, got, ts("2025-03-01T09:00"))
		require.NoError(t, err)
		assert.Equal(t, ts("2025-03-02T09:00"), next.NextOccurrence)

		stored, err := db.GetReminder(ctx, "u1", "r1")
		require.NoError(t, err)
		assert.Equal(t, ts("2025-03-02T09:00"), stored.NextOccurrence)
	})

	t.Run("DeletedIsStale", func(t *testing.T) {
		stored, err := db.GetReminder(ctx, "u1", "r1")
		require.NoError(t, err)
		require.NoError(t, db.DeleteReminder(ctx, "u1", "r1"))

		_, err = reminders.NewAdvancer(db).Advance(ctx, stored, ts("2025-03-02T09:00"))
		assert.ErrorIs(t, err, reminders.ErrStale)
	})
}

func TestStoredTimesAreUTC(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "u1", "a@example.com")

	r := newReminder("r1", "u1", "2025-01-01T09:00", "2024-12-01T00:00", models.RuleOnce)
	r.NextOccurrence = time.Date(2025, 1, 1, 12, 0, 30, 500, time.FixedZone("UTC+3", 3*3600))
	require.NoError(t, db.CreateReminder(ctx, r))

	got, err := db.GetReminder(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 9, 0, 30, 0, time.UTC), got.NextOccurrence)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	seedUser(t, db, "u1", "a@example.com")

	logger := zerolog.Nop()
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, BackupConfig{Enabled: true, Cron: "0 3 * * *", Dir: dir, Retention: 24 * time.Hour}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	snapshot, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer snapshot.Close()
	u, err := snapshot.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	old := filepath.Join(dir, "remindr_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(old, time.Now().Add(-48*time.Hour), time.Now().Add(-48*time.Hour)))
	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(unrelated, time.Now().Add(-48*time.Hour), time.Now().Add(-48*time.Hour)))

	deleted, err := svc.CleanupOldBackups(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, old)
	assert.FileExists(t, unrelated)
	assert.FileExists(t, path)
}
