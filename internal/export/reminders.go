package export

import (
	"io"
	"strings"
	"time"

	"remindr/internal/models"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var reminderColumns = []string{
	"ID", "Title", "Description", "Event Date", "Notify Email",
	"Next Occurrence", "Rules", "Status", "Last Sent", "Sent", "Created",
}

// WriteReminders writes rs as a workbook with a Reminders sheet and a
// Summary sheet counting reminders by status. Instants are rendered in UTC.
func WriteReminders(wr io.Writer, rs []models.Reminder) error {
	w := NewWriter()
	defer w.Close()

	if err := w.AddSheet("Reminders"); err != nil {
		return err
	}
	if err := w.WriteHeader(reminderColumns); err != nil {
		return err
	}

	counts := map[models.Status]int{}
	for i := range rs {
		r := &rs[i]
		counts[r.Status]++
		if err := w.WriteRow(reminderRow(r)); err != nil {
			return err
		}
	}

	if err := w.AddSheet("Summary"); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Status", "Count"}); err != nil {
		return err
	}
	for _, st := range []models.Status{models.StatusActive, models.StatusSent} {
		if err := w.WriteRow([]interface{}{string(st), counts[st]}); err != nil {
			return err
		}
	}
	if err := w.WriteRow([]interface{}{"total", len(rs)}); err != nil {
		return err
	}

	return w.Save(wr)
}

func reminderRow(r *models.Reminder) []interface{} {
	return []interface{}{
		r.ID,
		r.Title,
		r.Description,
		models.FormatDisplay(r.EventAt),
		r.NotifyEmail,
		models.FormatDisplay(r.NextOccurrence),
		strings.Join(r.Rules.Strings(), ", "),
		string(r.Status),
		formatOptional(r.LastSentAt),
		formatOptional(r.SentAt),
		models.FormatDisplay(r.CreatedAt),
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return models.FormatDisplay(*t)
}
