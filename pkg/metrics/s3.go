package metrics

import "time"

// S3Metrics provides observability for the S3 plugin (pkg/plugin/s3).
// The original content-store S3Metrics interface it's adapted from lived
// on pkg/content/store/s3, whose FlushOperation/FlushPhase methods
// belonged to that store's incremental-upload pipeline; the plugin has
// no such pipeline (one block is one PutObject), so only the operation-
// and bytes-level methods carry over.
type S3Metrics interface {
	// ObserveOperation records an S3 API call's duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)
	// RecordBytes records bytes transferred for a get/put operation.
	RecordBytes(operation string, bytes int64)
}

// NewS3Metrics returns a Prometheus-backed S3Metrics, or nil if
// InitRegistry was never called.
func NewS3Metrics() S3Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusS3Metrics()
}

// newPrometheusS3Metrics is registered by pkg/metrics/prometheus/s3.go.
var newPrometheusS3Metrics func() S3Metrics

func RegisterS3MetricsConstructor(constructor func() S3Metrics) {
	newPrometheusS3Metrics = constructor
}

func ObserveOperation(m S3Metrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

func RecordBytes(m S3Metrics, operation string, bytes int64) {
	if m != nil {
		m.RecordBytes(operation, bytes)
	}
}
