package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reminder engine.
type Metrics struct {
	// RemindersSentTotal counts send attempts by outcome (sent, failed).
	RemindersSentTotal *prometheus.CounterVec

	// DueSetSize is the size of the last due set.
	DueSetSize prometheus.Gauge

	// ReminderSendDuration is the time spent in the mail provider per send.
	ReminderSendDuration prometheus.Histogram

	// PassDuration is the wall time of a complete pass.
	PassDuration prometheus.Histogram

	// PassesTotal counts triggers by result (completed, skipped, failed).
	PassesTotal *prometheus.CounterVec

	// AdvanceFailures counts sends whose post-send update could not be stored.
	AdvanceFailures prometheus.Counter

	// PacingWaits counts sends that had to wait for the pacing interval.
	PacingWaits prometheus.Counter
}

// NewMetrics creates and registers reminder metrics on reg. A nil reg uses
// the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RemindersSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Total number of reminder send attempts by outcome",
			},
			[]string{"status"},
		),

		DueSetSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_due",
				Help:      "Number of reminders found due in the last pass",
			},
		),

		ReminderSendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_send_duration_seconds",
				Help:      "Time to hand a reminder to the mail provider",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
		),

		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_pass_duration_seconds",
				Help:      "Time to complete a scheduling pass",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),

		PassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_passes_total",
				Help:      "Total number of scheduling triggers by result",
			},
			[]string{"result"},
		),

		AdvanceFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_advance_failures_total",
				Help:      "Total number of post-send updates that failed to persist",
			},
		),

		PacingWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_pacing_waits_total",
				Help:      "Total number of sends delayed by pacing",
			},
		),
	}
}

// IncSent increments the send counter for an outcome.
func (m *Metrics) IncSent(status string) {
	if m == nil {
		return
	}
	m.RemindersSentTotal.WithLabelValues(status).Inc()
}

// SetDueSetSize records the size of the current due set.
func (m *Metrics) SetDueSetSize(size int) {
	if m == nil {
		return
	}
	m.DueSetSize.Set(float64(size))
}

// ObserveSendDuration records the time taken to send a reminder.
func (m *Metrics) ObserveSendDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ReminderSendDuration.Observe(seconds)
}

// ObservePass records a finished pass.
func (m *Metrics) ObservePass(result string, seconds float64) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(result).Inc()
	if result != PassSkipped {
		m.PassDuration.Observe(seconds)
	}
}

// IncAdvanceFailures increments the advance failure counter.
func (m *Metrics) IncAdvanceFailures() {
	if m == nil {
		return
	}
	m.AdvanceFailures.Inc()
}

// IncPacingWaits increments the pacing wait counter.
func (m *Metrics) IncPacingWaits() {
	if m == nil {
		return
	}
	m.PacingWaits.Inc()
}
