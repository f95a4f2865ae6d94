// Package metric holds Sangam's Prometheus collectors.
package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sangam"

// Metrics groups every collector the server updates.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ChatMessages      prometheus.Counter
	Notifications     *prometheus.CounterVec
	Redemptions       *prometheus.CounterVec
	Investments       prometheus.Counter
	WebSocketClients  *prometheus.GaugeVec
	RemindersSent     prometheus.Counter
	ReminderRuns      prometheus.Counter
	SnapshotsRecorded prometheus.Counter
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages persisted.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications created, by type.",
		}, []string{"type"}),
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Karma redemption attempts by outcome.",
		}, []string{"outcome"}),
		Investments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investments_total",
			Help:      "Syndicate investments recorded.",
		}),
		WebSocketClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients by channel.",
		}, []string{"channel"}),
		RemindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulse_reminders_sent_total",
			Help:      "Weekly pulse reminders sent.",
		}),
		ReminderRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulse_reminder_runs_total",
			Help:      "Pulse reminder sweeps performed.",
		}),
		SnapshotsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kpi_snapshots_total",
			Help:      "KPI snapshots recorded.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.ChatMessages,
		m.Notifications,
		m.Redemptions,
		m.Investments,
		m.WebSocketClients,
		m.RemindersSent,
		m.ReminderRuns,
		m.SnapshotsRecorded,
	)
	return m
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
