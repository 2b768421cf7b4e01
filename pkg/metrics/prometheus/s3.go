package prometheus

import (
	"time"

	"github.com/marmos91/nbdgo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// s3Metrics is the Prometheus implementation of metrics.S3Metrics.
type s3Metrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.HistogramVec
}

// NewS3Metrics creates a new Prometheus-backed S3Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewS3Metrics() metrics.S3Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &s3Metrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbdgo_s3_operations_total",
				Help: "Total number of S3 API calls by operation",
			},
			[]string{"operation"}, // "GetObject", "PutObject", "HeadObject", ...
		),
		errors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbdgo_s3_errors_total",
				Help: "Total number of failed S3 API calls by operation",
			},
			[]string{"operation"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nbdgo_s3_operation_duration_milliseconds",
				Help: "Duration of S3 API calls in milliseconds by operation",
				Buckets: []float64{
					1, 5, 10, 50, 100, 500, 1000, 5000, 10000,
				},
			},
			[]string{"operation"},
		),
		bytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nbdgo_s3_bytes",
				Help: "Distribution of bytes transferred per S3 operation",
				Buckets: []float64{
					4096, 32768, 131072, 524288, 1048576, 4194304,
				},
			},
			[]string{"operation"},
		),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
	if err != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(operation).Observe(float64(bytes))
}

func init() {
	metrics.RegisterS3MetricsConstructor(NewS3Metrics)
}
