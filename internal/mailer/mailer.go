// Package mailer delivers rendered reminder messages through Resend, SMTP or
// the process log.
package mailer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"remindr/shared/reminders"
)

// Config selects and configures a provider.
type Config struct {
	Provider     string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// New builds the mailer named by cfg.Provider.
func New(cfg Config, logger zerolog.Logger) (reminders.Mailer, error) {
	switch cfg.Provider {
	case "resend":
		return NewResend(cfg.ResendAPIKey), nil
	case "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}), nil
	case "log", "":
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// Log writes messages to the logger instead of delivering them.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "mailer").Logger()}
}

func (l *Log) Send(ctx context.Context, msg reminders.Message) error {
	l.logger.Info().
		Str("from", msg.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("email not delivered, log provider in use")
	return nil
}
