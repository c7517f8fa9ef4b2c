// Package metrics exposes Prometheus counters for the log watcher.
//
// All methods are safe to call on a nil *Metrics, so components can take an
// optional metrics handle without guarding every call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "kbelog"
	subsystem = "watcher"
)

// Frame kinds used as the "kind" label.
const (
	KindLog     = "log"
	KindUnknown = "unknown"
)

// Metrics holds the watcher collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	bytesReceived   prometheus.Counter
	framesReceived  *prometheus.CounterVec
	batches         prometheus.Counter
	heartbeats      prometheus.Counter
	logsSent        *prometheus.CounterVec
	commandsSent    *prometheus.CounterVec
	connected       prometheus.Gauge
	sinkWriteErrors *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg uses a fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Bytes read from the logger connection.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Complete inbound frames, by kind.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_dispatched_total",
			Help:      "Handler invocations with at least one log frame.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeats sent on idle ticks.",
		}),
		logsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logs_sent_total",
			Help:      "Write-log commands sent, by log type.",
		}, []string{"type"}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_sent_total",
			Help:      "Outbound commands, by command name.",
		}, []string{"command"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connected",
			Help:      "1 while connected to the logger service.",
		}),
		sinkWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sink_write_errors_total",
			Help:      "Failed sink writes, by sink name.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.bytesReceived,
		m.framesReceived,
		m.batches,
		m.heartbeats,
		m.logsSent,
		m.commandsSent,
		m.connected,
		m.sinkWriteErrors,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// BytesReceived adds n received bytes.
func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// FrameReceived counts one complete inbound frame of the given kind.
func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

// BatchDispatched counts one handler invocation.
func (m *Metrics) BatchDispatched() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// HeartbeatSent counts one idle-tick heartbeat.
func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}

// LogSent counts one write-log command.
func (m *Metrics) LogSent(logType string) {
	if m == nil {
		return
	}
	m.logsSent.WithLabelValues(logType).Inc()
}

// CommandSent counts one outbound command.
func (m *Metrics) CommandSent(command string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(command).Inc()
}

// SetConnected records the connection state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// SinkWriteFailed counts one failed sink write.
func (m *Metrics) SinkWriteFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkWriteErrors.WithLabelValues(sink).Inc()
}

// Handler serves the registry in the Prometheus text format.
// Falls back to the default gatherer when the registerer cannot gather.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
