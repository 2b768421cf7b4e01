package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyCommand   = "command"    // NBD command: READ, WRITE, TRIM, FLUSH, etc.
	KeyExport    = "export"     // Export name
	KeyBackend   = "backend"    // Plugin/filter name handling the request
	KeyStatus    = "status"     // Operation status code (NBD wire errno)
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// Block I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // Byte offset for read/write operations
	KeyCount        = "count"         // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written
	KeyFUA          = "fua"           // Force-unit-access flag
	KeyFlags        = "flags"         // Raw command flags bitmask

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientPort = "client_port" // Client source port

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeyConnID    = "conn_id"    // Per-connection identifier (google/uuid)
	KeyHandle    = "handle"     // NBD request handle
	KeyTLS       = "tls"        // TLS active indicator

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeySource     = "source"      // Data source: cache, plugin, filter
	KeyOperation  = "operation"   // Sub-operation type for complex operations

	// ========================================================================
	// Storage Backend (Plugins)
	// ========================================================================
	KeyPluginType = "plugin_type" // Plugin type: memory, file, s3, badger
	KeyBucket     = "bucket"      // Cloud bucket name (S3)
	KeyObjectKey  = "object_key"  // Object key in cloud storage
	KeyRegion     = "region"      // Cloud region
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Cache Filter
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheSize     = "cache_size"     // Current cache size
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity
	KeyEvicted       = "evicted"        // Number of entries evicted
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// Command returns a slog.Attr for the NBD command name
func Command(cmd string) slog.Attr { return slog.String(KeyCommand, cmd) }

// Export returns a slog.Attr for export name
func Export(name string) slog.Attr { return slog.String(KeyExport, name) }

// Backend returns a slog.Attr for the plugin/filter name
func Backend(name string) slog.Attr { return slog.String(KeyBackend, name) }

// Status returns a slog.Attr for operation status code
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

// StatusMsg returns a slog.Attr for human-readable status message
func StatusMsg(msg string) slog.Attr { return slog.String(KeyStatusMsg, msg) }

// Offset returns a slog.Attr for byte offset
func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }

// Count returns a slog.Attr for byte count requested
func Count(c uint32) slog.Attr { return slog.Any(KeyCount, c) }

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr { return slog.Int(KeyBytesRead, n) }

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr { return slog.Int(KeyBytesWritten, n) }

// FUA returns a slog.Attr for the force-unit-access flag
func FUA(fua bool) slog.Attr { return slog.Bool(KeyFUA, fua) }

// Flags returns a slog.Attr for a raw command flags bitmask
func Flags(f uint16) slog.Attr { return slog.Any(KeyFlags, f) }

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// ClientPort returns a slog.Attr for client source port
func ClientPort(port int) slog.Attr { return slog.Int(KeyClientPort, port) }

// ConnID returns a slog.Attr for the per-connection identifier
func ConnID(id string) slog.Attr { return slog.String(KeyConnID, id) }

// Handle returns a slog.Attr for the NBD request handle
func Handle(h uint64) slog.Attr { return slog.Uint64(KeyHandle, h) }

// TLS returns a slog.Attr for TLS active indicator
func TLS(active bool) slog.Attr { return slog.Bool(KeyTLS, active) }

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }

// Source returns a slog.Attr for data source
func Source(src string) slog.Attr { return slog.String(KeySource, src) }

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// PluginType returns a slog.Attr for plugin type
func PluginType(t string) slog.Attr { return slog.String(KeyPluginType, t) }

// Bucket returns a slog.Attr for cloud bucket name
func Bucket(name string) slog.Attr { return slog.String(KeyBucket, name) }

// ObjectKey returns a slog.Attr for object key in cloud storage
func ObjectKey(k string) slog.Attr { return slog.String(KeyObjectKey, k) }

// Region returns a slog.Attr for cloud region
func Region(r string) slog.Attr { return slog.String(KeyRegion, r) }

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr { return slog.Bool(KeyCacheHit, hit) }

// CacheSize returns a slog.Attr for current cache size
func CacheSize(size int64) slog.Attr { return slog.Int64(KeyCacheSize, size) }

// CacheCapacity returns a slog.Attr for maximum cache capacity
func CacheCapacity(capacity int64) slog.Attr { return slog.Int64(KeyCacheCapacity, capacity) }

// Evicted returns a slog.Attr for number of entries evicted
func Evicted(n int) slog.Attr { return slog.Int(KeyEvicted, n) }
