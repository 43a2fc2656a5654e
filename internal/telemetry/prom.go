package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CycleStats is what one reminder poll cycle reports to ReminderMetrics.
type CycleStats struct {
	FetchFailures    int
	Matched          int
	Duplicates       int
	Delivered        int
	DeliveryFailures int
	DirectoryFailed  bool
}

// ReminderMetrics exposes the reminder poller on the bot's Prometheus endpoint.
// A nil *ReminderMetrics records nothing.
type ReminderMetrics struct {
	cycles            prometheus.Counter
	directoryFailures prometheus.Counter
	fetchFailures     prometheus.Counter
	matches           prometheus.Counter
	deliveries        *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
}

// NewReminderMetrics registers the poller collectors on reg.
func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	factory := promauto.With(reg)
	return &ReminderMetrics{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "reminder_poll_cycles_total",
			Help: "Total number of reminder poll cycles",
		}),
		directoryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "reminder_directory_failures_total",
			Help: "Poll cycles aborted because chat routes could not be listed",
		}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "reminder_fetch_failures_total",
			Help: "Task fetches that failed during a poll cycle",
		}),
		matches: factory.NewCounter(prometheus.CounterOpts{
			Name: "reminder_matches_total",
			Help: "Tasks whose reminder window matched",
		}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_deliveries_total",
			Help: "Reminder deliveries by result",
		}, []string{"result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_poll_duration_seconds",
			Help:    "Duration of reminder poll cycles in seconds",
			Buckets: []float64{0.05, 0.1, 0.3, 1, 3, 10, 30},
		}),
	}
}

// ObserveCycle records the outcome of one poll cycle.
func (m *ReminderMetrics) ObserveCycle(s CycleStats, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	if s.DirectoryFailed {
		m.directoryFailures.Inc()
		return
	}
	m.fetchFailures.Add(float64(s.FetchFailures))
	m.matches.Add(float64(s.Matched))
	m.deliveries.WithLabelValues("sent").Add(float64(s.Delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(s.DeliveryFailures))
	m.deliveries.WithLabelValues("duplicate").Add(float64(s.Duplicates))
}

// Cycles returns the poll cycle counter.
func (m *ReminderMetrics) Cycles() prometheus.Counter { return m.cycles }

// DirectoryFailures returns the counter of cycles aborted by the directory.
func (m *ReminderMetrics) DirectoryFailures() prometheus.Counter { return m.directoryFailures }

// FetchFailures returns the failed task fetch counter.
func (m *ReminderMetrics) FetchFailures() prometheus.Counter { return m.fetchFailures }

// Deliveries returns the delivery counter for result ("sent", "failed" or "duplicate").
func (m *ReminderMetrics) Deliveries(result string) prometheus.Counter {
	return m.deliveries.WithLabelValues(result)
}
