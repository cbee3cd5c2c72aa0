package reminders

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"remindr/internal/models"
)

var messageTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
  <head>
    <style>
      body { font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; }
      .header { background-color: #4F46E5; padding: 20px; border-radius: 8px 8px 0 0; }
      .header h1 { color: white; margin: 0; }
      .content { background-color: #f9fafb; padding: 30px; border-radius: 0 0 8px 8px; }
      .content h2 { color: #1f2937; margin-top: 0; }
      .content p { color: #4b5563; font-size: 16px; line-height: 1.6; }
      .date-box { background-color: white; padding: 15px; border-radius: 6px; margin-top: 20px; }
      .date-box p { margin: 0; color: #6b7280; font-size: 14px; }
      .date-box .date-value { margin: 5px 0 0 0; color: #1f2937; font-size: 18px; font-weight: bold; }
      .footer { margin-top: 30px; font-size: 12px; color: #9ca3af; border-top: 1px solid #e5e7eb; padding-top: 20px; }
    </style>
  </head>
  <body>
    <div class="header"><h1>Reminder Alert</h1></div>
    <div class="content">
      <h2>{{.Title}}</h2>
      <p>{{.Description}}</p>
      <div class="date-box">
        <p>Event Date:</p>
        <p class="date-value">{{.EventDate}}</p>
      </div>
      <div class="footer">
        This is an automated reminder from your Reminder App.<br>
        You are receiving this because you set up a reminder.
      </div>
    </div>
  </body>
</html>
`))

// Subject returns the subject line for a reminder notification.
func Subject(r *models.Reminder) string {
	return "Reminder: " + r.Title
}

// ComposeMessage renders the notification for r.
func ComposeMessage(from string, r *models.Reminder) (Message, error) {
	if strings.TrimSpace(r.NotifyEmail) == "" {
		return Message{}, fmt.Errorf("reminder %s has no recipient", r.ID)
	}

	var buf bytes.Buffer
	err := messageTemplate.Execute(&buf, struct {
		Title       string
		Description string
		EventDate   string
	}{
		Title:       r.Title,
		Description: r.Description,
		EventDate:   models.FormatDisplay(r.EventAt),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render reminder %s: %w", r.ID, err)
	}

	return Message{
		From:    from,
		To:      r.NotifyEmail,
		Subject: Subject(r),
		HTML:    buf.String(),
	}, nil
}
