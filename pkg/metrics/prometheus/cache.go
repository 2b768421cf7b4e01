package prometheus

import (
	"time"

	"github.com/marmos91/nbdgo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cacheMetrics is the Prometheus implementation of metrics.CacheMetrics.
type cacheMetrics struct {
	writeOperations prometheus.Counter
	writeDuration   prometheus.Histogram
	writeBytes      prometheus.Histogram
	readOperations  prometheus.Counter
	readDuration    prometheus.Histogram
	readBytes       prometheus.Histogram
	cacheSize       *prometheus.GaugeVec
	evictions       *prometheus.CounterVec
}

// NewCacheMetrics creates a new Prometheus-backed CacheMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() metrics.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		writeOperations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nbdgo_cache_write_operations_total",
				Help: "Total number of cache filter write-through operations",
			},
		),
		writeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "nbdgo_cache_write_duration_milliseconds",
				Help: "Duration of cache filter write operations in milliseconds",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000,
				},
			},
		),
		writeBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "nbdgo_cache_write_bytes",
				Help: "Distribution of bytes written through the cache filter",
				Buckets: []float64{
					4096, 32768, 131072, 524288, 1048576, 4194304,
				},
			},
		),
		readOperations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nbdgo_cache_read_operations_total",
				Help: "Total number of cache filter read operations",
			},
		),
		readDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "nbdgo_cache_read_duration_milliseconds",
				Help: "Duration of cache filter read operations in milliseconds",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000,
				},
			},
		),
		readBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "nbdgo_cache_read_bytes",
				Help: "Distribution of bytes read from the cache filter",
				Buckets: []float64{
					4096, 32768, 131072, 524288, 1048576, 4194304,
				},
			},
		),
		cacheSize: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nbdgo_cache_size_bytes",
				Help: "Current cache size in bytes by cache type",
			},
			[]string{"cache_type"},
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbdgo_cache_evictions_total",
				Help: "Total number of cache evictions by reason",
			},
			[]string{"reason"}, // "size_limit", "invalidate"
		),
	}
}

func (m *cacheMetrics) ObserveWrite(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.writeOperations.Inc()
	m.writeDuration.Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.writeBytes.Observe(float64(bytes))
	}
}

func (m *cacheMetrics) ObserveRead(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.readOperations.Inc()
	m.readDuration.Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.readBytes.Observe(float64(bytes))
	}
}

func (m *cacheMetrics) RecordCacheSize(cacheType string, bytes int64) {
	if m == nil {
		return
	}
	m.cacheSize.WithLabelValues(cacheType).Set(float64(bytes))
}

// RecordEviction records a cache eviction. reason is typically
// "size_limit" or "invalidate".
func (m *cacheMetrics) RecordEviction(reason string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(reason).Inc()
}

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
}
