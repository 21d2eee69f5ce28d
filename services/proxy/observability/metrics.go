// Package observability provides Prometheus metrics for the report proxy.
//
// # Description
//
// Tracks registry occupancy (active sessions, producer/consumer
// connections), fan-out volume (deltas enqueued), session state
// transitions, and session teardowns. Exposed via /metrics for Prometheus
// scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "reportproxy"
const proxySubsystem = "proxy"

// ProxyMetrics holds all Prometheus metrics for the report proxy.
//
// # Fields
//
//   - ActiveSessions: gauge of sessions currently present in the registry.
//   - ProducerConnections: gauge of currently attached producer connections.
//   - ConsumerConnections: gauge of currently attached consumer connections.
//   - DeltasTotal: counter of deltas fanned out to consumer queues.
//   - SessionTransitionsTotal: counter of session state transitions,
//     labeled by the event that drove them.
//   - SessionTeardownsTotal: counter of sessions torn down, labeled by
//     reason (consumer_close, producer_close, timeout, protocol_violation).
type ProxyMetrics struct {
	ActiveSessions          prometheus.Gauge
	ProducerConnections     prometheus.Gauge
	ConsumerConnections     prometheus.Gauge
	DeltasTotal             prometheus.Counter
	SessionTransitionsTotal *prometheus.CounterVec
	SessionTeardownsTotal   *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of ProxyMetrics, populated by
// InitMetrics.
var DefaultMetrics *ProxyMetrics

// InitMetrics creates and registers all proxy metrics. Call once at
// startup before the HTTP server accepts traffic.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration with the default
//     Prometheus registry).
func InitMetrics() *ProxyMetrics {
	DefaultMetrics = &ProxyMetrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: proxySubsystem,
			Name:      "active_sessions",
			Help:      "Number of report sessions currently registered",
		}),

		ProducerConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: proxySubsystem,
			Name:      "producer_connections",
			Help:      "Number of currently attached producer connections",
		}),

		ConsumerConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: proxySubsystem,
			Name:      "consumer_connections",
			Help:      "Number of currently attached consumer connections",
		}),

		DeltasTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: proxySubsystem,
			Name:      "deltas_total",
			Help:      "Total deltas fanned out from producers to consumer queues",
		}),

		SessionTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: proxySubsystem,
				Name:      "session_transitions_total",
				Help:      "Session state transitions by event",
			},
			[]string{"event"},
		),

		SessionTeardownsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: proxySubsystem,
				Name:      "session_teardowns_total",
				Help:      "Session teardowns by reason",
			},
			[]string{"reason"},
		),
	}

	return DefaultMetrics
}

// TeardownReason labels why a session left the registry.
type TeardownReason string

const (
	TeardownConsumerClose     TeardownReason = "consumer_close"
	TeardownProducerClose     TeardownReason = "producer_close"
	TeardownTimeout           TeardownReason = "timeout"
	TeardownProtocolViolation TeardownReason = "protocol_violation"
)

// TransitionEvent labels the event that drove a session state change,
// matching the LC-/LC+/CC-/CC+/T events of the session state machine.
type TransitionEvent string

const (
	EventProducerLeave TransitionEvent = "producer_leave"
	EventProducerJoin  TransitionEvent = "producer_join"
	EventConsumerLeave TransitionEvent = "consumer_leave"
	EventConsumerJoin  TransitionEvent = "consumer_join"
	EventTimeout       TransitionEvent = "timeout"
)

// RecordTransition increments the transition counter for event.
func (m *ProxyMetrics) RecordTransition(event TransitionEvent) {
	m.SessionTransitionsTotal.WithLabelValues(string(event)).Inc()
}

// RecordTeardown increments the teardown counter for reason.
func (m *ProxyMetrics) RecordTeardown(reason TeardownReason) {
	m.SessionTeardownsTotal.WithLabelValues(string(reason)).Inc()
}

// RecordDeltas adds n to the deltas-fanned-out counter.
func (m *ProxyMetrics) RecordDeltas(n int) {
	m.DeltasTotal.Add(float64(n))
}
