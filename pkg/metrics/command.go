package metrics

import "time"

// CommandMetrics provides observability for the NBD server's request
// path, replacing the NFS procedure/share vocabulary of the original
// adapter metrics with NBD's command/export vocabulary. Implementations
// are optional — pass nil to disable collection with zero overhead.
type CommandMetrics interface {
	// RecordRequest records a completed request: its command (READ,
	// WRITE, TRIM, ...), export name, duration, and wire errno (0 on
	// success).
	RecordRequest(command string, export string, duration time.Duration, errno uint32)

	// RecordRequestStart/RecordRequestEnd track in-flight requests.
	RecordRequestStart(command string, export string)
	RecordRequestEnd(command string, export string)

	// RecordBytesTransferred records bytes read or written.
	RecordBytesTransferred(command string, export string, direction string, bytes uint64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted/RecordConnectionClosed track connection
	// lifecycle totals.
	RecordConnectionAccepted()
	RecordConnectionClosed()
}

// NewCommandMetrics returns a Prometheus-backed CommandMetrics, or nil if
// InitRegistry was never called.
func NewCommandMetrics() CommandMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusCommandMetrics()
}

// newPrometheusCommandMetrics is registered by pkg/metrics/prometheus/command.go.
var newPrometheusCommandMetrics func() CommandMetrics

func RegisterCommandMetricsConstructor(constructor func() CommandMetrics) {
	newPrometheusCommandMetrics = constructor
}

func RecordRequest(m CommandMetrics, command, export string, d time.Duration, errno uint32) {
	if m != nil {
		m.RecordRequest(command, export, d, errno)
	}
}

func RecordRequestStart(m CommandMetrics, command, export string) {
	if m != nil {
		m.RecordRequestStart(command, export)
	}
}

func RecordRequestEnd(m CommandMetrics, command, export string) {
	if m != nil {
		m.RecordRequestEnd(command, export)
	}
}

func RecordBytesTransferred(m CommandMetrics, command, export, direction string, bytes uint64) {
	if m != nil {
		m.RecordBytesTransferred(command, export, direction, bytes)
	}
}
