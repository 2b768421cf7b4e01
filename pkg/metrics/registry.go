// Package metrics defines the observability interfaces the server,
// plugins and filters report through, plus the Prometheus registry
// glue. Concrete Prometheus collectors live in pkg/metrics/prometheus to
// avoid that package's dependency from leaking into every metrics
// consumer; constructors here are wired to it via a registration
// indirection (see NewCommandMetrics) rather than a direct import, which
// would create an import cycle since the prometheus subpackage itself
// depends on this one for GetRegistry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the process-wide Prometheus registry and enables
// every NewXMetrics constructor in this package to return a real
// collector instead of nil.
func InitRegistry() *prometheus.Registry {
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// GetRegistry returns the active registry, creating an unused one if
// InitRegistry was never called (so callers never see a nil registry).
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool { return enabled }
