package metrics

import "time"

// CacheMetrics provides observability for the cache filter
// (pkg/filter/cache). The interface previously lived on pkg/cache's
// content-addressed write buffer; it is redefined here directly since
// that package's durability-oriented design does not carry over to a
// block-granularity read cache.
type CacheMetrics interface {
	ObserveRead(bytes int64, duration time.Duration)
	ObserveWrite(bytes int64, duration time.Duration)
	RecordCacheSize(cacheType string, bytes int64)
	RecordEviction(reason string)
}

// NewCacheMetrics returns a Prometheus-backed CacheMetrics, or nil if
// InitRegistry was never called.
func NewCacheMetrics() CacheMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusCacheMetrics()
}

// newPrometheusCacheMetrics is registered by pkg/metrics/prometheus/cache.go.
var newPrometheusCacheMetrics func() CacheMetrics

func RegisterCacheMetricsConstructor(constructor func() CacheMetrics) {
	newPrometheusCacheMetrics = constructor
}

func ObserveRead(m CacheMetrics, bytes int64, d time.Duration) {
	if m != nil {
		m.ObserveRead(bytes, d)
	}
}

func ObserveWrite(m CacheMetrics, bytes int64, d time.Duration) {
	if m != nil {
		m.ObserveWrite(bytes, d)
	}
}

func RecordCacheSize(m CacheMetrics, cacheType string, bytes int64) {
	if m != nil {
		m.RecordCacheSize(cacheType, bytes)
	}
}

func RecordEviction(m CacheMetrics, reason string) {
	if m != nil {
		m.RecordEviction(reason)
	}
}
