package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/nbdgo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// commandMetrics is the Prometheus implementation of metrics.CommandMetrics.
type commandMetrics struct {
	requests            *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	requestsInFlight    *prometheus.GaugeVec
	bytesTransferred    *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
}

// NewCommandMetrics creates a new Prometheus-backed CommandMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCommandMetrics() metrics.CommandMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &commandMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbdgo_command_requests_total",
				Help: "Total number of NBD commands processed by command, export, and errno",
			},
			[]string{"command", "export", "errno"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nbdgo_command_duration_milliseconds",
				Help: "Duration of NBD command processing in milliseconds",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000,
				},
			},
			[]string{"command", "export"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nbdgo_command_requests_in_flight",
				Help: "Number of NBD commands currently being processed",
			},
			[]string{"command", "export"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbdgo_command_bytes_total",
				Help: "Total bytes transferred by command, export, and direction",
			},
			[]string{"command", "export", "direction"}, // direction: "read", "write"
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nbdgo_active_connections",
				Help: "Current number of open NBD client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nbdgo_connections_accepted_total",
				Help: "Total number of NBD connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nbdgo_connections_closed_total",
				Help: "Total number of NBD connections closed",
			},
		),
	}
}

func (m *commandMetrics) RecordRequest(command, export string, duration time.Duration, errno uint32) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, export, formatErrno(errno)).Inc()
	m.requestDuration.WithLabelValues(command, export).Observe(duration.Seconds() * 1000)
}

func (m *commandMetrics) RecordRequestStart(command, export string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(command, export).Inc()
}

func (m *commandMetrics) RecordRequestEnd(command, export string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(command, export).Dec()
}

func (m *commandMetrics) RecordBytesTransferred(command, export, direction string, bytes uint64) {
	if m == nil {
		return
	}
	m.bytesTransferred.WithLabelValues(command, export, direction).Add(float64(bytes))
}

func (m *commandMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *commandMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *commandMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

func formatErrno(errno uint32) string {
	return strconv.Itoa(int(errno))
}

func init() {
	metrics.RegisterCommandMetricsConstructor(NewCommandMetrics)
}
