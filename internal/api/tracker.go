package api

import (
	"fmt"
	"sync"

	"remindr/internal/events"
	"remindr/shared/reminders"
)

// PassTracker remembers the outcome of the most recent scheduler pass.
type PassTracker struct {
	mu    sync.RWMutex
	last  *reminders.PassStats
	total int
}

func NewPassTracker() *PassTracker {
	return &PassTracker{}
}

// Subscribe attaches the tracker to pass completion events on bus.
func (t *PassTracker) Subscribe(bus *events.EventBus) {
	bus.Subscribe(reminders.EventPassCompleted, t.handle)
}

func (t *PassTracker) handle(ev events.Event) error {
	stats, ok := ev.Payload.(reminders.PassStats)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", ev.Payload, ev.Type)
	}
	t.Record(stats)
	return nil
}

// Record stores stats as the latest pass.
func (t *PassTracker) Record(stats reminders.PassStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &stats
	t.total++
}

// Last returns the latest pass, if any, and the number of passes seen.
func (t *PassTracker) Last() (*reminders.PassStats, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return nil, t.total
	}
	cp := *t.last
	return &cp, t.total
}
