package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindr/internal/models"
)

// DefaultCron fires a pass at the top of every hour.
const DefaultCron = "0 * * * *"

// Pass results reported to metrics and in PassStats.
const (
	PassCompleted = "completed"
	PassSkipped   = "skipped"
	PassFailed    = "failed"
)

// State is the state of the scheduling loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SchedulerConfig holds configuration for the reminder scheduler.
type SchedulerConfig struct {
	// Cron is a standard five-field cron expression, evaluated in UTC.
	Cron string
	// RunOnStart triggers one pass as soon as Start is called.
	RunOnStart bool
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Cron: DefaultCron,
	}
}

// PassStats summarizes one pass.
type PassStats struct {
	Trigger       string        `json:"trigger"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
	Due           int           `json:"due"`
	Sent          int           `json:"sent"`
	Failed        int           `json:"failed"`
	AdvanceFailed int           `json:"advanceFailed"`
	Stale         int           `json:"stale"`
	Result        string        `json:"result"`
	Err           string        `json:"error,omitempty"`
}

// Scheduler runs passes: find due reminders, send each one, advance the ones
// that were sent. At most one pass runs at a time.
type Scheduler struct {
	config     SchedulerConfig
	store      ReminderStore
	dispatcher *Dispatcher
	advancer   *Advancer
	metrics    *Metrics
	logger     Logger
	publisher  EventPublisher
	now        func() time.Time

	state atomic.Int32
	// idleMu guards transitions back to idle so Start can wait for them.
	idleMu sync.Mutex
	idle   *sync.Cond

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a new reminder scheduler.
func NewScheduler(
	config SchedulerConfig,
	store ReminderStore,
	dispatcher *Dispatcher,
	metrics *Metrics,
	logger Logger,
) (*Scheduler, error) {
	if config.Cron == "" {
		config.Cron = DefaultCron
	}
	if _, err := cron.ParseStandard(config.Cron); err != nil {
		return nil, fmt.Errorf("invalid scheduler cron %q: %w", config.Cron, err)
	}
	if logger == nil {
		logger = nopLogger{}
	}

	s := &Scheduler{
		config:     config,
		store:      store,
		dispatcher: dispatcher,
		advancer:   NewAdvancer(store),
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
	s.idle = sync.NewCond(&s.idleMu)
	return s, nil
}

// SetClock replaces the time source used to evaluate due reminders.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetPublisher sets the receiver of pass and send events.
func (s *Scheduler) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// State returns the current loop state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start arms the cron trigger and blocks until ctx is done. A pass that is in
// progress when ctx is cancelled, whatever triggered it, runs to completion
// before Start returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.config.Cron, func() { s.RunPass(ctx, "timer") }); err != nil {
		s.logger.Error("failed to schedule reminder pass", "cron", s.config.Cron, "error", err)
		return
	}
	c.Start()

	s.logger.Info("reminder scheduler started", "cron", s.config.Cron)

	if s.config.RunOnStart {
		go s.RunPass(ctx, "startup")
	}

	<-ctx.Done()
	<-c.Stop().Done()
	s.waitIdle()

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.logger.Info("reminder scheduler stopped")
}

// RunNow runs a pass immediately on behalf of an operator. It returns false
// without doing anything when a pass is already running.
func (s *Scheduler) RunNow(ctx context.Context) (PassStats, bool) {
	s.logger.Info("manual reminder pass triggered")
	return s.RunPass(ctx, "manual")
}

// RunPass executes one pass unless another is already running, in which case
// it returns false immediately. Cancellation of ctx does not interrupt a pass
// that has started. Failures are recorded in the returned stats and logs;
// RunPass never panics.
func (s *Scheduler) RunPass(ctx context.Context, trigger string) (PassStats, bool) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		s.logger.Info("reminder pass already running, trigger ignored", "trigger", trigger)
		s.metrics.ObservePass(PassSkipped, 0)
		return PassStats{Trigger: trigger, Result: PassSkipped}, false
	}
	defer s.setIdle()

	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	stats := PassStats{
		Trigger:   trigger,
		StartedAt: s.now().UTC(),
		Result:    PassCompleted,
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				stats.Result = PassFailed
				stats.Err = fmt.Sprintf("panic: %v", rec)
				s.logger.Error("reminder pass panicked", "panic", rec)
			}
		}()
		s.process(ctx, &stats)
	}()

	stats.Duration = time.Since(start)
	s.metrics.ObservePass(stats.Result, stats.Duration.Seconds())
	s.logger.Info("reminder pass finished",
		"trigger", trigger,
		"result", stats.Result,
		"due", stats.Due,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"advance_failed", stats.AdvanceFailed,
		"stale", stats.Stale,
		"duration", stats.Duration)
	s.publish(EventPassCompleted, stats)

	return stats, true
}

func (s *Scheduler) setIdle() {
	s.idleMu.Lock()
	s.state.Store(int32(StateIdle))
	s.idle.Broadcast()
	s.idleMu.Unlock()
}

// waitIdle blocks until no pass is running.
func (s *Scheduler) waitIdle() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	for s.State() == StateRunning {
		s.idle.Wait()
	}
}

func (s *Scheduler) process(ctx context.Context, stats *PassStats) {
	due, err := FindDue(ctx, s.store, stats.StartedAt)
	if err != nil {
		stats.Result = PassFailed
		stats.Err = err.Error()
		s.logger.Error("failed to fetch due reminders", "error", err)
		return
	}

	stats.Due = len(due)
	s.metrics.SetDueSetSize(len(due))
	if len(due) == 0 {
		s.logger.Debug("no reminders due")
		return
	}
	s.logger.Info("found due reminders", "count", len(due))

	for i := range due {
		s.processReminder(ctx, &due[i], stats)
	}
}

// processReminder sends one reminder and advances it. A panic is contained
// to this reminder.
func (s *Scheduler) processReminder(ctx context.Context, r *models.Reminder, stats *PassStats) {
	defer func() {
		if rec := recover(); rec != nil {
			stats.Failed++
			s.logger.Error("reminder processing panicked", "reminder_id", r.ID, "panic", rec)
		}
	}()

	if err := s.dispatcher.Send(ctx, r); err != nil {
		stats.Failed++
		return
	}
	stats.Sent++

	sentAt := s.now().UTC()
	next, err := s.advancer.Advance(ctx, r, sentAt)
	if errors.Is(err, ErrStale) {
		stats.Stale++
		s.logger.Warn("reminder changed during pass, advance skipped",
			"reminder_id", r.ID)
		return
	}
	if err != nil {
		stats.AdvanceFailed++
		s.metrics.IncAdvanceFailures()
		s.logger.Error("failed to update reminder after send",
			"reminder_id", r.ID,
			"error", err)
		return
	}

	if next.Status == models.StatusSent {
		s.logger.Info("one-time reminder completed", "reminder_id", r.ID)
	} else {
		s.logger.Info("recurring reminder rescheduled",
			"reminder_id", r.ID,
			"next_occurrence", next.NextOccurrence)
	}
	s.publish(EventReminderSent, next)
}

func (s *Scheduler) publish(evType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(evType, payload)
}
