package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ClientMetrics struct {
	registry *prometheus.Registry

	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec

	pollTicksTotal    *prometheus.CounterVec
	pollSessionsOpen  prometheus.Gauge
	pollCeilingsTotal prometheus.Counter

	sessionEventsTotal *prometheus.CounterVec
	sessionActive      prometheus.Gauge
}

func NewClientMetrics(service string) *ClientMetrics {
	registry := prometheus.NewRegistry()

	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetpath",
			Subsystem: "client",
			Name:      "uploads_total",
			Help:      "Upload attempts by terminal outcome.",
		},
		[]string{"service", "status"},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vetpath",
			Subsystem: "client",
			Name:      "upload_duration_seconds",
			Help:      "Time from submission to terminal state by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	pollTicksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetpath",
			Subsystem: "client",
			Name:      "poll_ticks_total",
			Help:      "Status poll ticks by result.",
		},
		[]string{"service", "result"},
	)
	pollSessionsOpen := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vetpath",
			Subsystem: "client",
			Name:      "poll_sessions_open",
			Help:      "Number of live poll sessions (0 or 1 per client).",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	pollCeilingsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vetpath",
			Subsystem: "client",
			Name:      "poll_ceilings_total",
			Help:      "Polls stopped by the wall-clock ceiling without a terminal status.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	sessionEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetpath",
			Subsystem: "client",
			Name:      "session_events_total",
			Help:      "Session lifecycle events by kind.",
		},
		[]string{"service", "event"},
	)
	sessionActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vetpath",
			Subsystem: "client",
			Name:      "session_active",
			Help:      "Whether an authenticated session is live.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		uploadsTotal,
		uploadDuration,
		pollTicksTotal,
		pollSessionsOpen,
		pollCeilingsTotal,
		sessionEventsTotal,
		sessionActive,
	)

	return &ClientMetrics{
		registry:           registry,
		uploadsTotal:       uploadsTotal,
		uploadDuration:     uploadDuration,
		pollTicksTotal:     pollTicksTotal,
		pollSessionsOpen:   pollSessionsOpen,
		pollCeilingsTotal:  pollCeilingsTotal,
		sessionEventsTotal: sessionEventsTotal,
		sessionActive:      sessionActive,
	}
}

func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ClientMetrics) ObserveUpload(service, status string, started time.Time) {
	m.uploadsTotal.WithLabelValues(service, status).Inc()
	m.uploadDuration.WithLabelValues(service, status).Observe(time.Since(started).Seconds())
}

func (m *ClientMetrics) PollTick(service, result string) {
	m.pollTicksTotal.WithLabelValues(service, result).Inc()
}

func (m *ClientMetrics) PollSessionStarted() {
	m.pollSessionsOpen.Inc()
}

func (m *ClientMetrics) PollSessionStopped() {
	m.pollSessionsOpen.Dec()
}

func (m *ClientMetrics) PollCeilingReached() {
	m.pollCeilingsTotal.Inc()
}

func (m *ClientMetrics) SessionEvent(service, event string) {
	m.sessionEventsTotal.WithLabelValues(service, event).Inc()
}

func (m *ClientMetrics) SetSessionActive(active bool) {
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}
