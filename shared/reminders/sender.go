package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindr/internal/models"
)

// DefaultFrom is the sender identity used when none is configured.
const DefaultFrom = "Reminder App <reminders@example.com>"

// ProviderError is a rejection reported by the mail provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// IsProviderError checks if the error is a ProviderError.
func IsProviderError(err error) (*ProviderError, bool) {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr, true
	}
	return nil, false
}

// IsSandboxRejection reports whether err is the provider refusing a recipient
// because the account may only send test emails to its own address.
func IsSandboxRejection(err error) bool {
	pErr, ok := IsProviderError(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(pErr.Message), "testing emails")
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	From         string
	SendInterval time.Duration
}

// DefaultDispatcherConfig returns the default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		From:         DefaultFrom,
		SendInterval: DefaultSendInterval,
	}
}

// Dispatcher renders reminders and hands them to the mailer, one at a time
// and no faster than the configured interval.
type Dispatcher struct {
	mailer  Mailer
	pacer   *Pacer
	from    string
	logger  Logger
	metrics *Metrics
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(mailer Mailer, config DispatcherConfig, logger Logger, metrics *Metrics) *Dispatcher {
	if config.From == "" {
		config.From = DefaultFrom
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Dispatcher{
		mailer:  mailer,
		pacer:   NewPacer(config.SendInterval),
		from:    config.From,
		logger:  logger,
		metrics: metrics,
	}
}

// Send delivers one notification for r. A nil error means the provider
// accepted the message. The reminder itself is not modified.
func (d *Dispatcher) Send(ctx context.Context, r *models.Reminder) error {
	waited, err := d.pacer.Wait(ctx)
	if err != nil {
		return fmt.Errorf("pacer: %w", err)
	}
	if waited > time.Millisecond {
		d.metrics.IncPacingWaits()
	}

	msg, err := ComposeMessage(d.from, r)
	if err != nil {
		d.metrics.IncSent("failed")
		d.logger.Error("failed to compose reminder email",
			"reminder_id", r.ID,
			"error", err)
		return err
	}

	start := time.Now()
	err = d.mailer.Send(ctx, msg)
	d.metrics.ObserveSendDuration(time.Since(start).Seconds())
	if err != nil {
		d.metrics.IncSent("failed")
		d.logger.Error("failed to send reminder",
			"reminder_id", r.ID,
			"to", r.NotifyEmail,
			"error", err)
		if IsSandboxRejection(err) {
			d.logger.Warn("mail provider is in test mode and only delivers to the account owner's address",
				"reminder_id", r.ID,
				"to", r.NotifyEmail)
		}
		return fmt.Errorf("send reminder %s: %w", r.ID, err)
	}

	d.metrics.IncSent("sent")
	d.logger.Info("reminder email sent",
		"reminder_id", r.ID,
		"to", r.NotifyEmail,
		"title", r.Title)
	return nil
}
