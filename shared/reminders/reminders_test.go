package reminders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindr/internal/models"
)

// memStore implements ReminderStore for testing.
type memStore struct {
	mu         sync.Mutex
	reminders  map[string]*models.Reminder
	updates    map[string]int
	findErr    error
	updateErr  map[string]error
	lastFilter ReminderFilter
}

func newMemStore(rs ...models.Reminder) *memStore {
	s := &memStore{
		reminders: make(map[string]*models.Reminder),
		updates:   make(map[string]int),
		updateErr: make(map[string]error),
	}
	for i := range rs {
		r := rs[i]
		s.reminders[r.ID] = &r
	}
	return s
}

func (s *memStore) FindReminders(ctx context.Context, filter ReminderFilter) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastFilter = filter
	if s.findErr != nil {
		return nil, s.findErr
	}

	var out []models.Reminder
	for _, r := range s.reminders {
		if len(filter.Status) > 0 {
			found := false
			for _, st := range filter.Status {
				if r.Status == st {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.DueAtOrBefore != nil && r.NextOccurrence.After(*filter.DueAtOrBefore) {
			continue
		}
		out = append(out, *r)
	}
	// map order is random; the selector owns ordering
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) UpdateOccurrence(ctx context.Context, id string, upd OccurrenceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateErr[id]; err != nil {
		return err
	}
	r, ok := s.reminders[id]
	if e := upd.Expect; e != nil {
		if !ok || r.Status != e.Status || !r.NextOccurrence.Equal(e.NextOccurrence) || !r.UpdatedAt.Equal(e.UpdatedAt) {
			return ErrStale
		}
	}
	if !ok {
		return models.ErrNotFound
	}
	r.Status = upd.Status
	if upd.NextOccurrence != nil {
		r.NextOccurrence = *upd.NextOccurrence
	}
	if upd.LastSentAt != nil {
		r.LastSentAt = upd.LastSentAt
	}
	if upd.SentAt != nil {
		r.SentAt = upd.SentAt
		r.UpdatedAt = *upd.SentAt
	}
	if upd.LastSentAt != nil {
		r.UpdatedAt = *upd.LastSentAt
	}
	s.updates[id]++
	return nil
}

// edit applies an owner edit the way the service layer does.
func (s *memStore) edit(id string, fn func(r *models.Reminder)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.reminders[id])
}

func (s *memStore) get(id string) models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.reminders[id]
}

// fakeMailer records sent messages and fails for configured recipients.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []Message
	failTo  map[string]error
	block   chan struct{}
	entered chan struct{}
}

func (m *fakeMailer) Send(ctx context.Context, msg Message) error {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failTo[msg.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, msg := range m.sent {
		out[i] = msg.To
	}
	return out
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func reminder(id, next string, rules ...models.Rule) models.Reminder {
	return models.Reminder{
		ID:             id,
		OwnerID:        "owner-1",
		Title:          "Reminder " + id,
		Description:    "Description " + id,
		EventAt:        at(next),
		NotifyEmail:    id + "@example.com",
		NextOccurrence: at(next),
		Rules:          rules,
		Status:         models.StatusActive,
		CreatedAt:      at("2024-12-01T00:00"),
	}
}

func newTestScheduler(t *testing.T, store ReminderStore, mailer Mailer, now time.Time) *Scheduler {
	t.Helper()
	d := NewDispatcher(mailer, DispatcherConfig{SendInterval: 0}, nil, nil)
	s, err := NewScheduler(DefaultSchedulerConfig(), store, d, nil, nil)
	require.NoError(t, err)
	s.SetClock(func() time.Time { return now })
	return s
}

func TestFindDue(t *testing.T) {
	now := at("2025-01-01T10:00")

	a := reminder("a", "2025-01-01T10:00", models.RuleDaily)
	a.CreatedAt = at("2024-12-03T00:00")
	b := reminder("b", "2025-01-01T09:00", models.RuleOnce)
	b.CreatedAt = at("2024-12-02T00:00")
	future := reminder("future", "2025-01-01T10:01", models.RuleOnce)
	sent := reminder("sent", "2024-12-31T10:00", models.RuleOnce)
	sent.Status = models.StatusSent

	store := newMemStore(a, b, future, sent)
	due, err := FindDue(context.Background(), store, now)
	require.NoError(t, err)

	require.Len(t, due, 2)
	assert.Equal(t, "b", due[0].ID, "creation order")
	assert.Equal(t, "a", due[1].ID, "due exactly at now is included")
	assert.Equal(t, []models.Status{models.StatusActive}, store.lastFilter.Status)

	t.Run("StoreFailure", func(t *testing.T) {
		store := newMemStore()
		store.findErr = errors.New("connection refused")
		_, err := FindDue(context.Background(), store, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestNextState(t *testing.T) {
	sentAt := at("2025-01-01T10:00")

	t.Run("OnceBecomesSent", func(t *testing.T) {
		r := reminder("a", "2025-01-01T09:00", models.RuleOnce)
		next, upd, err := NextState(r, sentAt)
		require.NoError(t, err)

		assert.Equal(t, models.StatusSent, next.Status)
		require.NotNil(t, next.SentAt)
		assert.Equal(t, sentAt, *next.SentAt)
		assert.Equal(t, r.NextOccurrence, next.NextOccurrence)
		assert.Equal(t, models.StatusSent, upd.Status)
		assert.Nil(t, upd.NextOccurrence)
	})

	t.Run("RecurringAdvancesFromPreviousOccurrence", func(t *testing.T) {
		r := reminder("a", "2025-01-01T09:00", models.RuleDaily)
		next, upd, err := NextState(r, sentAt)
		require.NoError(t, err)

		assert.Equal(t, models.StatusActive, next.Status)
		assert.Equal(t, at("2025-01-02T09:00"), next.NextOccurrence)
		require.NotNil(t, upd.LastSentAt)
		assert.Equal(t, sentAt, *upd.LastSentAt)
		assert.Nil(t, upd.SentAt)
	})

	t.Run("OnceWithRecurringStaysActive", func(t *testing.T) {
		r := reminder("a", "2025-01-01T09:00", models.RuleOnce, models.RuleWeekly)
		next, _, err := NextState(r, sentAt)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, next.Status)
		assert.Equal(t, at("2025-01-08T09:00"), next.NextOccurrence)
	})

	t.Run("PriorityDailyOverMonthly", func(t *testing.T) {
		r := reminder("a", "2025-01-31T09:00", models.RuleMonthly, models.RuleDaily)
		next, _, err := NextState(r, sentAt)
		require.NoError(t, err)
		assert.Equal(t, at("2025-02-01T09:00"), next.NextOccurrence)
	})

	t.Run("OverdueAdvancesOneStep", func(t *testing.T) {
		r := reminder("a", "2024-12-25T09:00", models.RuleDaily)
		next, _, err := NextState(r, sentAt)
		require.NoError(t, err)
		assert.Equal(t, at("2024-12-26T09:00"), next.NextOccurrence)
	})
}

func TestScheduler_DailyScenario(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T09:00", models.RuleDaily))
	mailer := &fakeMailer{}
	s := newTestScheduler(t, store, mailer, at("2025-01-01T10:00"))

	stats, ran := s.RunPass(context.Background(), "test")
	require.True(t, ran)
	assert.Equal(t, PassCompleted, stats.Result)
	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.Sent)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, DefaultFrom, msg.From)
	assert.Equal(t, "Reminder: Reminder a", msg.Subject)
	assert.Contains(t, msg.HTML, "01/01/2025 09:00")

	got := store.get("a")
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, at("2025-01-02T09:00"), got.NextOccurrence)
	require.NotNil(t, got.LastSentAt)
	assert.Equal(t, at("2025-01-01T10:00"), *got.LastSentAt)

	// nothing is due until the next occurrence
	stats, ran = s.RunPass(context.Background(), "test")
	require.True(t, ran)
	assert.Equal(t, 0, stats.Due)
	assert.Len(t, mailer.sent, 1)
}

func TestScheduler_OnceScenario(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T09:00", models.RuleOnce))
	mailer := &fakeMailer{}
	now := at("2025-01-01T10:00")
	s := newTestScheduler(t, store, mailer, now)

	_, ran := s.RunPass(context.Background(), "test")
	require.True(t, ran)

	got := store.get("a")
	assert.Equal(t, models.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, now, *got.SentAt)

	for _, later := range []string{"2025-01-02T10:00", "2026-01-01T10:00"} {
		due, err := FindDue(context.Background(), store, at(later))
		require.NoError(t, err)
		assert.Empty(t, due)
	}
	assert.Len(t, mailer.sent, 1)
}

func TestScheduler_FailureIsolation(t *testing.T) {
	store := newMemStore(
		reminder("a", "2025-01-01T08:00", models.RuleDaily),
		reminder("b", "2025-01-01T09:00", models.RuleDaily),
	)
	mailer := &fakeMailer{failTo: map[string]error{
		"a@example.com": &ProviderError{Provider: "resend", StatusCode: 500, Message: "internal error"},
	}}
	s := newTestScheduler(t, store, mailer, at("2025-01-01T10:00"))

	stats, _ := s.RunPass(context.Background(), "test")
	assert.Equal(t, PassCompleted, stats.Result)
	assert.Equal(t, 2, stats.Due)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Failed)

	assert.Equal(t, []string{"b@example.com"}, mailer.recipients())

	a := store.get("a")
	assert.Equal(t, at("2025-01-01T08:00"), a.NextOccurrence, "failed reminder is left untouched")
	assert.Nil(t, a.LastSentAt)
	assert.Equal(t, 0, store.updates["a"])

	b := store.get("b")
	assert.Equal(t, at("2025-01-02T09:00"), b.NextOccurrence)

	// the failed reminder is retried on the next pass
	delete(mailer.failTo, "a@example.com")
	stats, _ = s.RunPass(context.Background(), "test")
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, at("2025-01-02T08:00"), store.get("a").NextOccurrence)
}

func TestScheduler_AdvanceFailure(t *testing.T) {
	store := newMemStore(
		reminder("a", "2025-01-01T08:00", models.RuleDaily),
		reminder("b", "2025-01-01T09:00", models.RuleOnce),
	)
	store.updateErr["a"] = errors.New("write conflict")
	mailer := &fakeMailer{}
	s := newTestScheduler(t, store, mailer, at("2025-01-01T10:00"))

	stats, _ := s.RunPass(context.Background(), "test")
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.AdvanceFailed)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, models.StatusSent, store.get("b").Status)
	assert.Equal(t, at("2025-01-01T08:00"), store.get("a").NextOccurrence)
}

func TestScheduler_StoreUnavailable(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T08:00", models.RuleDaily))
	store.findErr = errors.New("no reachable servers")
	mailer := &fakeMailer{}
	s := newTestScheduler(t, store, mailer, at("2025-01-01T10:00"))

	stats, ran := s.RunPass(context.Background(), "test")
	require.True(t, ran)
	assert.Equal(t, PassFailed, stats.Result)
	assert.Contains(t, stats.Err, "no reachable servers")
	assert.Empty(t, mailer.sent)
	assert.Equal(t, StateIdle, s.State())
}

type panicMailer struct{}

func (panicMailer) Send(ctx context.Context, msg Message) error {
	panic("boom")
}

func TestScheduler_PanicIsContained(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T08:00", models.RuleDaily))
	s := newTestScheduler(t, store, panicMailer{}, at("2025-01-01T10:00"))

	var stats PassStats
	require.NotPanics(t, func() {
		stats, _ = s.RunPass(context.Background(), "test")
	})
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, StateIdle, s.State())

	_, ran := s.RunPass(context.Background(), "test")
	assert.True(t, ran, "loop stays armed after a panic")
}

func TestScheduler_NoOverlap(t *testing.T) {
	store := newMemStore(
		reminder("a", "2025-01-01T08:00", models.RuleDaily),
		reminder("b", "2025-01-01T09:00", models.RuleOnce),
	)
	mailer := &fakeMailer{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	s := newTestScheduler(t, store, mailer, at("2025-01-01T10:00"))

	done := make(chan PassStats)
	go func() {
		stats, _ := s.RunPass(context.Background(), "timer")
		done <- stats
	}()

	// first pass is mid-send
	<-mailer.entered
	assert.Equal(t, StateRunning, s.State())

	stats, ran := s.RunPass(context.Background(), "timer")
	assert.False(t, ran)
	assert.Equal(t, PassSkipped, stats.Result)

	_, ran = s.RunNow(context.Background())
	assert.False(t, ran)

	close(mailer.block)
	first := <-done
	assert.Equal(t, 2, first.Sent)
	assert.Equal(t, StateIdle, s.State())

	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, mailer.recipients())
	assert.Equal(t, 1, store.updates["a"])
	assert.Equal(t, 1, store.updates["b"])
}

func TestScheduler_CancelDoesNotInterruptPass(t *testing.T) {
	store := newMemStore(
		reminder("a", "2025-01-01T08:00", models.RuleDaily),
		reminder("b", "2025-01-01T09:00", models.RuleDaily),
	)
	mailer := &fakeMailer{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	s := newTestScheduler(t, store, mailer, at("2025-01-01T10:00"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan PassStats)
	go func() {
		stats, _ := s.RunPass(ctx, "timer")
		done <- stats
	}()

	<-mailer.entered
	cancel()
	close(mailer.block)

	stats := <-done
	assert.Equal(t, 2, stats.Sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(evType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evType)
}

func TestScheduler_PublishesEvents(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T08:00", models.RuleDaily))
	s := newTestScheduler(t, store, &fakeMailer{}, at("2025-01-01T10:00"))
	pub := &recordingPublisher{}
	s.SetPublisher(pub)

	s.RunPass(context.Background(), "test")
	assert.Equal(t, []string{EventReminderSent, EventPassCompleted}, pub.events)
}

func TestNewScheduler_InvalidCron(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{Cron: "every hour"}, newMemStore(), nil, nil, nil)
	assert.Error(t, err)
}

func TestScheduler_EditDuringPassIsNotOverwritten(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T09:00", models.RuleOnce))
	mailer := &fakeMailer{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := newTestScheduler(t, store, mailer, at("2025-01-01T10:00"))

	done := make(chan PassStats)
	go func() {
		stats, _ := s.RunPass(context.Background(), "timer")
		done <- stats
	}()

	<-mailer.entered
	store.edit("a", func(r *models.Reminder) {
		r.Rules = models.Rules{models.RuleDaily}
		r.NextOccurrence = at("2025-03-01T09:00")
		r.UpdatedAt = at("2025-01-01T10:00")
	})
	close(mailer.block)

	stats := <-done
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Stale)
	assert.Zero(t, stats.AdvanceFailed)
	assert.Equal(t, PassCompleted, stats.Result)

	got := store.get("a")
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, models.Rules{models.RuleDaily}, got.Rules)
	assert.Equal(t, at("2025-03-01T09:00"), got.NextOccurrence)
	assert.Nil(t, got.SentAt)
	require.NoError(t, got.Validate())
}

func TestAdvancer_DeletedDuringPassIsStale(t *testing.T) {
	store := newMemStore()
	r := reminder("gone", "2025-01-01T09:00", models.RuleDaily)

	_, err := NewAdvancer(store).Advance(context.Background(), &r, at("2025-01-01T10:00"))
	assert.ErrorIs(t, err, ErrStale)
}

func TestScheduler_StartRunsOnStartAndWaitsForPass(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T08:00", models.RuleDaily))
	mailer := &fakeMailer{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	d := NewDispatcher(mailer, DispatcherConfig{}, nil, nil)
	s, err := NewScheduler(SchedulerConfig{Cron: DefaultCron, RunOnStart: true}, store, d, nil, nil)
	require.NoError(t, err)
	s.SetClock(func() time.Time { return at("2025-01-01T10:00") })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	<-mailer.entered
	assert.Equal(t, StateRunning, s.State())

	// a second Start is a no-op while the first is armed
	second := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(second)
	}()
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second Start did not return")
	}

	cancel()
	select {
	case <-stopped:
		t.Fatal("Start returned while the startup pass was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(mailer.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after the pass finished")
	}
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, store.updates["a"])
}

func TestScheduler_StartFiresOnCron(t *testing.T) {
	store := newMemStore(reminder("a", "2025-01-01T08:00", models.RuleDaily))
	d := NewDispatcher(&fakeMailer{}, DispatcherConfig{}, nil, nil)
	s, err := NewScheduler(SchedulerConfig{Cron: "@every 1s"}, store, d, nil, nil)
	require.NoError(t, err)
	s.SetClock(func() time.Time { return at("2025-01-01T10:00") })
	pub := &recordingPublisher{}
	s.SetPublisher(pub)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		for _, ev := range pub.events {
			if ev == EventPassCompleted {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
}
