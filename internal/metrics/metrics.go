package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsEnqueued *prometheus.CounterVec
	NotificationsDropped  *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationsFailed   *prometheus.CounterVec
	DeliveryLatency       *prometheus.HistogramVec
	QueueWait             prometheus.Histogram
	QueueDepth            prometheus.Gauge
	DrainCycles           prometheus.Counter

	HealthReports  prometheus.Counter
	WorkersKnown   prometheus.Gauge
	WorkersOnline  prometheus.Gauge
	LedgerRecorded *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Notifications accepted into the pending buffer.",
		}, []string{"kind"}),

		NotificationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Notifications dropped before delivery (transport unconfigured or dispatcher stopped).",
		}, []string{"kind", "reason"}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications handed to the transport successfully.",
		}, []string{"kind"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notifications discarded after delivery failure.",
		}, []string{"kind"}),

		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_delivery_seconds",
			Help:    "Time spent in the transport for one delivery, including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_queue_wait_seconds",
			Help:    "Time between enqueue and the start of delivery.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Current number of notifications waiting for the next drain cycle.",
		}),

		DrainCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_drain_cycles_total",
			Help: "Completed drain cycles.",
		}),

		HealthReports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_health_reports_total",
			Help: "Liveness reports ingested from workers.",
		}),
		WorkersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workers_known",
			Help: "Workers with at least one retained liveness report.",
		}),
		WorkersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workers_online",
			Help: "Workers whose latest report is inside the online window, as of the last status query.",
		}),

		LedgerRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_ledger_records_total",
			Help: "Dedup ledger outcomes for notify-once sends.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		m.NotificationsEnqueued,
		m.NotificationsDropped,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.DeliveryLatency,
		m.QueueWait,
		m.QueueDepth,
		m.DrainCycles,
		m.HealthReports,
		m.WorkersKnown,
		m.WorkersOnline,
		m.LedgerRecorded,
	)

	return m
}

// DispatcherHooks returns the metric callbacks expected by dispatcher.Hooks.
// Centralises the prometheus observation calls so the dispatcher stays import-free.
func (m *Metrics) DispatcherHooks() (
	onEnqueued func(kind domain.Kind, depth int),
	onDropped func(kind domain.Kind, reason string),
	onSent func(kind domain.Kind, wait, latency time.Duration),
	onFailed func(kind domain.Kind),
	onCycle func(depth int),
) {
	onEnqueued = func(kind domain.Kind, depth int) {
		m.NotificationsEnqueued.WithLabelValues(string(kind)).Inc()
		m.QueueDepth.Set(float64(depth))
	}
	onDropped = func(kind domain.Kind, reason string) {
		m.NotificationsDropped.WithLabelValues(string(kind), reason).Inc()
	}
	onSent = func(kind domain.Kind, wait, latency time.Duration) {
		m.NotificationsSent.WithLabelValues(string(kind)).Inc()
		m.QueueWait.Observe(wait.Seconds())
		m.DeliveryLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
	}
	onFailed = func(kind domain.Kind) {
		m.NotificationsFailed.WithLabelValues(string(kind)).Inc()
	}
	onCycle = func(depth int) {
		m.DrainCycles.Inc()
		m.QueueDepth.Set(float64(depth))
	}
	return
}

// ObserveFleet records the outcome of a fleet status computation.
func (m *Metrics) ObserveFleet(known, online int) {
	m.WorkersKnown.Set(float64(known))
	m.WorkersOnline.Set(float64(online))
}

// LedgerHook returns the callback expected by service.Notifier.
func (m *Metrics) LedgerHook() func(kind domain.Kind, outcome string) {
	return func(kind domain.Kind, outcome string) {
		m.LedgerRecorded.WithLabelValues(string(kind), outcome).Inc()
	}
}
