package mailer

import (
	"context"
	"errors"

	"github.com/resend/resend-go/v2"

	"remindr/shared/reminders"
)

type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Resend delivers through the Resend HTTP API.
type Resend struct {
	emails resendEmails
}

func NewResend(apiKey string) *Resend {
	return &Resend{emails: resend.NewClient(apiKey).Emails}
}

func (r *Resend) Send(ctx context.Context, msg reminders.Message) error {
	resp, err := r.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		return &reminders.ProviderError{Provider: "resend", Message: err.Error()}
	}
	if resp == nil || resp.Id == "" {
		return &reminders.ProviderError{Provider: "resend", Message: "no message id in response"}
	}
	return nil
}
