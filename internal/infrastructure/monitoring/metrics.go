package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// PTY metrics
	SessionsActive  prometheus.Gauge
	SessionsSpawned prometheus.Counter
	SessionsKilled  *prometheus.CounterVec
	OutputBytes     prometheus.Counter

	// Command metrics
	CommandCalls    *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Client metrics
	OverflowKills   prometheus.Counter
	ReconcileKills  prometheus.Counter
	StatusListeners prometheus.Gauge
}

// NewMetrics creates a new metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maestro_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		// PTY metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "maestro_pty_sessions_active",
				Help: "Number of live PTY sessions",
			},
		),
		SessionsSpawned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maestro_pty_sessions_spawned_total",
				Help: "Total number of PTY sessions spawned",
			},
		),
		SessionsKilled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_pty_sessions_killed_total",
				Help: "Total number of PTY sessions killed, by escalation outcome",
			},
			[]string{"outcome"},
		),
		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maestro_pty_output_bytes_total",
				Help: "Total bytes read from PTY masters",
			},
		),

		// Command metrics
		CommandCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_command_calls_total",
				Help: "Total number of backend command round trips",
			},
			[]string{"command", "status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maestro_command_duration_seconds",
				Help:    "Backend command duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3, 5},
			},
			[]string{"command"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "maestro_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_ws_messages_total",
				Help: "Total number of WebSocket frames",
			},
			[]string{"direction", "type"},
		),

		// Client metrics
		OverflowKills: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maestro_orchestrator_overflow_kills_total",
				Help: "Sessions spawned past the cap and killed instead of admitted",
			},
		),
		ReconcileKills: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maestro_orchestrator_reconcile_kills_total",
				Help: "Orphaned sessions re-killed by reconciliation",
			},
		),
		StatusListeners: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "maestro_registry_status_listeners",
				Help: "Underlying status-change listeners (0 or 1)",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCommand records one backend command round trip
func (m *Metrics) RecordCommand(command, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CommandCalls.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// SessionSpawned records a new PTY session
func (m *Metrics) SessionSpawned() {
	if m == nil {
		return
	}
	m.SessionsSpawned.Inc()
	m.SessionsActive.Inc()
}

// SessionKilled records a PTY teardown; outcome is "graceful" or "forced"
func (m *Metrics) SessionKilled(outcome string) {
	if m == nil {
		return
	}
	m.SessionsKilled.WithLabelValues(outcome).Inc()
	m.SessionsActive.Dec()
}

// AddOutputBytes records bytes read from a PTY
func (m *Metrics) AddOutputBytes(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

// RecordWSMessage records a WebSocket frame
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// IncOverflowKills records a session killed by the cap check
func (m *Metrics) IncOverflowKills() {
	if m == nil {
		return
	}
	m.OverflowKills.Inc()
}

// IncReconcileKills records an orphan killed by reconciliation
func (m *Metrics) IncReconcileKills() {
	if m == nil {
		return
	}
	m.ReconcileKills.Inc()
}

// SetStatusListeners sets the number of underlying status listeners
func (m *Metrics) SetStatusListeners(n int) {
	if m == nil {
		return
	}
	m.StatusListeners.Set(float64(n))
}
