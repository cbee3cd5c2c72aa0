package reminders

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSendInterval keeps successive sends under the provider's limit of
// two requests per second.
const DefaultSendInterval = 600 * time.Millisecond

// Pacer spaces successive send attempts at least interval apart. It holds a
// single token, so there is no burst: the first attempt goes immediately and
// every following one waits out the remainder of the interval.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer creates a pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait blocks until the next attempt may start or ctx is done. It returns how
// long it blocked.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// Interval returns the configured spacing.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}
