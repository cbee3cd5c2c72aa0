// Package limiter counts attempts per key in fixed windows.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether another attempt for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

const keyPrefix = "remindr:ratelimit:"

// Redis is a fixed-window limiter shared by every process using the same
// Redis instance.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Allow creates the window key with its TTL and increments it in one
// MULTI/EXEC, so a counter never exists without an expiry.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := keyPrefix + key
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("count %s: %w", k, err)
	}
	return incr.Val() <= int64(limit), nil
}

type window struct {
	start time.Time
	count int
}

// Memory is a process-local fixed-window limiter.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (m *Memory) Allow(ctx context.Context, key string, limit int, win time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= win {
		w = &window{start: now}
		m.windows[key] = w
		m.sweep(now, win)
	}
	w.count++
	return w.count <= limit, nil
}

// sweep drops expired windows so the map does not grow without bound.
func (m *Memory) sweep(now time.Time, win time.Duration) {
	for k, w := range m.windows {
		if now.Sub(w.start) >= win {
			delete(m.windows, k)
		}
	}
}
