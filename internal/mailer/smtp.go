package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"remindr/shared/reminders"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTP delivers through an SMTP relay with mandatory TLS.
type SMTP struct {
	config SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTP{config: cfg}
}

func (s *SMTP) Send(ctx context.Context, msg reminders.Message) error {
	m, err := buildMessage(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password))
	}

	client, err := mail.NewClient(s.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return &reminders.ProviderError{Provider: "smtp", Message: err.Error()}
	}
	return nil
}

func buildMessage(msg reminders.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}
