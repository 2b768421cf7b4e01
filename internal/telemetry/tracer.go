package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for protocol operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Protocol-agnostic keys use "fs." prefix, NBD-specific use "nbd.".
const (
	// ========================================================================
	// Client attributes (protocol-agnostic)
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"
	AttrClientHost = "client.host"

	// ========================================================================
	// Protocol attributes (protocol-agnostic)
	// ========================================================================
	AttrProtocol   = "protocol.name"    // nbd
	AttrOperation  = "fs.operation"     // Generic operation name
	AttrHandle     = "fs.handle"        // Opaque request handle
	AttrShare      = "fs.share"         // Export name
	AttrOffset     = "fs.offset"        // I/O offset
	AttrCount      = "fs.count"         // Byte count requested
	AttrSize       = "fs.size"          // Export/object size
	AttrStatus     = "fs.status"        // Operation status code
	AttrStatusMsg  = "fs.status_msg"    // Human-readable status
	AttrBytesRead  = "fs.bytes_read"    // Actual bytes read
	AttrBytesWrite = "fs.bytes_written" // Actual bytes written

	// ========================================================================
	// NBD-specific attributes
	// ========================================================================
	AttrNBDCommand   = "nbd.command"    // NBD_CMD_* name
	AttrNBDHandle    = "nbd.handle"     // Request handle (uint64)
	AttrNBDExport    = "nbd.export"     // Export name
	AttrNBDOffset    = "nbd.offset"     // Request offset
	AttrNBDCount     = "nbd.count"      // Request length
	AttrNBDFlags     = "nbd.flags"      // Request command flags
	AttrNBDErrno     = "nbd.errno"      // Reply error code
	AttrNBDStructRep = "nbd.structured" // Whether structured replies are active

	// ========================================================================
	// User/Auth attributes (protocol-agnostic)
	// ========================================================================
	AttrUID      = "user.uid"
	AttrGID      = "user.gid"
	AttrUsername = "user.name"
	AttrDomain   = "user.domain"
	AttrAuth     = "auth.method"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source"
	AttrCacheState  = "cache.state"
	AttrCacheSize   = "cache.size"

	// ========================================================================
	// Storage backend attributes (plugins/filters)
	// ========================================================================
	AttrContentID = "content.id"
	AttrStoreName = "store.name"
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrContainer = "storage.container"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for operations.
// Format: nbd.<command> for protocol spans, <component>.<operation> for
// internal plugin/filter operations.
const (
	// ========================================================================
	// NBD protocol spans
	// ========================================================================

	// SpanNBDRequest is the root span for one dispatched NBD request.
	SpanNBDRequest = "nbd.request"

	SpanNBDRead         = "nbd.READ"
	SpanNBDWrite        = "nbd.WRITE"
	SpanNBDDisc         = "nbd.DISC"
	SpanNBDFlush        = "nbd.FLUSH"
	SpanNBDTrim         = "nbd.TRIM"
	SpanNBDCache        = "nbd.CACHE"
	SpanNBDWriteZeroes  = "nbd.WRITE_ZEROES"
	SpanNBDBlockStatus  = "nbd.BLOCK_STATUS"
	SpanNBDHandshake    = "nbd.handshake"
	SpanNBDOptionNegotiate = "nbd.option_negotiate"

	// ========================================================================
	// Internal storage operations (protocol-agnostic, used by plugins/filters)
	// ========================================================================
	SpanCacheLookup  = "cache.lookup"
	SpanCacheWrite   = "cache.write"
	SpanCacheFlush   = "cache.flush"
	SpanCacheEvict   = "cache.evict"
	SpanContentRead  = "content.read"
	SpanContentWrite = "content.write"
	SpanContentStat  = "content.stat"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// NBDCommand returns an attribute for the NBD command name (e.g. "READ").
func NBDCommand(name string) attribute.KeyValue {
	return attribute.String(AttrNBDCommand, name)
}

// NBDHandle returns an attribute for the request handle.
func NBDHandle(handle uint64) attribute.KeyValue {
	return attribute.Int64(AttrNBDHandle, int64(handle))
}

// NBDExport returns an attribute for the export name.
func NBDExport(name string) attribute.KeyValue {
	return attribute.String(AttrNBDExport, name)
}

// NBDOffset returns an attribute for the request offset.
func NBDOffset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrNBDOffset, int64(offset))
}

// NBDCount returns an attribute for the request length.
func NBDCount(count uint32) attribute.KeyValue {
	return attribute.Int64(AttrNBDCount, int64(count))
}

// NBDFlags returns an attribute for the request command flags.
func NBDFlags(flags uint16) attribute.KeyValue {
	return attribute.Int64(AttrNBDFlags, int64(flags))
}

// NBDErrno returns an attribute for the reply error code.
func NBDErrno(errno uint32) attribute.KeyValue {
	return attribute.Int64(AttrNBDErrno, int64(errno))
}

// UID returns an attribute for user ID
func UID(uid uint32) attribute.KeyValue {
	return attribute.Int64(AttrUID, int64(uid))
}

// GID returns an attribute for group ID
func GID(gid uint32) attribute.KeyValue {
	return attribute.Int64(AttrGID, int64(gid))
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute for cache source
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// ContentID returns an attribute for content ID
func ContentID(id string) attribute.KeyValue {
	return attribute.String(AttrContentID, id)
}

// Bucket returns an attribute for S3 bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// StartNBDSpan starts a span for one dispatched NBD command. This is the
// span wrapped around internal/protocol/nbd.ExecuteRequest.
func StartNBDSpan(ctx context.Context, command string, handle uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		NBDCommand(command),
		NBDHandle(handle),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "nbd."+command, trace.WithAttributes(allAttrs...))
}

// StartContentSpan starts a span for a content store operation.
func StartContentSpan(ctx context.Context, operation string, contentID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		ContentID(contentID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "content."+operation, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a cache operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}

// ============================================================================
// Protocol-agnostic attribute helpers
// ============================================================================

// Protocol returns an attribute for protocol name
func Protocol(name string) attribute.KeyValue {
	return attribute.String(AttrProtocol, name)
}

// FSOperation returns an attribute for filesystem operation name
func FSOperation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// FSHandle returns an attribute for a request handle (generic)
func FSHandle(handle []byte) attribute.KeyValue {
	return attribute.String(AttrHandle, fmt.Sprintf("%x", handle))
}

// FSShare returns an attribute for export name (generic)
func FSShare(share string) attribute.KeyValue {
	return attribute.String(AttrShare, share)
}

// FSOffset returns an attribute for I/O offset (generic)
func FSOffset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// FSCount returns an attribute for byte count (generic)
func FSCount(count uint32) attribute.KeyValue {
	return attribute.Int64(AttrCount, int64(count))
}

// FSSize returns an attribute for export/object size (generic)
func FSSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// FSStatus returns an attribute for operation status (generic)
func FSStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrStatus, status)
}

// FSStatusMsg returns an attribute for status message (generic)
func FSStatusMsg(msg string) attribute.KeyValue {
	return attribute.String(AttrStatusMsg, msg)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Domain returns an attribute for domain name
func Domain(name string) attribute.KeyValue {
	return attribute.String(AttrDomain, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// CacheState returns an attribute for cache state
func CacheState(state string) attribute.KeyValue {
	return attribute.String(AttrCacheState, state)
}

// StoreName returns an attribute for store name
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StoreType returns an attribute for store type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Container returns an attribute for Azure container name
func Container(name string) attribute.KeyValue {
	return attribute.String(AttrContainer, name)
}

// Region returns an attribute for cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartProtocolSpan starts a span for a generic protocol operation.
func StartProtocolSpan(ctx context.Context, protocol, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Protocol(protocol),
		FSOperation(operation),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, protocol+"."+operation, trace.WithAttributes(allAttrs...))
}
