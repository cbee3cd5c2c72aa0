package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const recheckInterval = time.Minute

// Failover uses primary while it answers and fallback while it does not.
// After a primary failure it retries primary at most once per minute.
type Failover struct {
	primary   Limiter
	fallback  Limiter
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailover(primary, fallback Limiter, logger *zerolog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (f *Failover) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if f.usePrimary() {
		ok, err := f.primary.Allow(ctx, key, limit, window)
		if err == nil {
			if f.isDown.Swap(false) {
				f.logger.Info().Msg("rate limit backend recovered")
			}
			return ok, nil
		}
		f.markDown(err)
	}
	return f.fallback.Allow(ctx, key, limit, window)
}

func (f *Failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < recheckInterval {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *Failover) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("rate limit backend unavailable, using in-memory fallback")
	}
}
