package backend

import "context"

// Backend is the data-path surface a request ultimately resolves to
// (spec §4.4): every plugin and every filter implements it identically,
// which is what lets filters compose transparently in front of a plugin
// or another filter (nbdkit's "a filter looks just like a plugin to the
// layer above it" design, mirrored here).
type Backend interface {
	// GetSize returns the export's current size in bytes.
	GetSize(ctx context.Context, bctx *Context) (uint64, error)

	// CanWrite, CanTrim, CanZero, CanFastZero, CanFUA, CanFlush,
	// CanMultiConn, CanCache and CanExtents report capability answers
	// (spec §4.4); the chain caches the resolved answer per Context so a
	// request's hot path never re-probes.
	CanWrite(ctx context.Context, bctx *Context) (bool, error)
	CanTrim(ctx context.Context, bctx *Context) (bool, error)
	CanZero(ctx context.Context, bctx *Context) (bool, error)
	// CanFastZero reports whether a zero-write without either NO_HOLE
	// or a data fallback can be completed instantly (NBD_CMD_FLAG_FAST_ZERO,
	// spec §4.2). Probed independently from CanZero: a backend can
	// support WRITE_ZEROES generally while being unable to promise the
	// "fast or ENOTSUP" contract FAST_ZERO requires.
	CanFastZero(ctx context.Context, bctx *Context) (bool, error)
	CanFUA(ctx context.Context, bctx *Context) (bool, error)
	CanFlush(ctx context.Context, bctx *Context) (bool, error)
	CanMultiConn(ctx context.Context, bctx *Context) (bool, error)
	CanCache(ctx context.Context, bctx *Context) (bool, error)
	CanExtents(ctx context.Context, bctx *Context) (bool, error)
	IsRotational(ctx context.Context, bctx *Context) (bool, error)

	// Pread reads length bytes at offset into the returned slice.
	Pread(ctx context.Context, bctx *Context, offset uint64, length uint32) ([]byte, error)
	// Pwrite writes data at offset. fua requests a durability barrier.
	Pwrite(ctx context.Context, bctx *Context, offset uint64, data []byte, fua bool) error
	// Trim discards length bytes at offset, a hint the backend may ignore.
	Trim(ctx context.Context, bctx *Context, offset uint64, length uint32, fua bool) error
	// Zero writes length zero bytes at offset. noHole requests the
	// backend avoid creating a sparse hole even when it could.
	Zero(ctx context.Context, bctx *Context, offset uint64, length uint32, fua, noHole, fastZero bool) error
	// Cache prefetches length bytes at offset without returning data.
	Cache(ctx context.Context, bctx *Context, offset uint64, length uint32) error
	// Flush commits any outstanding writes to stable storage.
	Flush(ctx context.Context, bctx *Context) error
	// Extents fills ext with the allocation status of [offset, offset+length).
	Extents(ctx context.Context, bctx *Context, offset uint64, length uint32, ext *Extents) error
}

// Link is a Backend plus the lifecycle and concurrency-declaration hooks
// every chain element needs, whether it is the terminal Plugin or a
// Filter stacked in front of one. A Filter is constructed already bound
// to its Next Link (see Passthrough), so neither Open, Close nor
// ThreadModel take a "next" argument per call.
type Link interface {
	Backend

	// Name identifies the link for logging and config diagnostics.
	Name() string
	// Open is called once per connection before any data-path call.
	Open(ctx context.Context, bctx *Context, readonly bool) error
	// Prepare runs once per connection, after Open succeeded on every
	// link in the chain, before any data-path request is served. Call
	// order is inner-to-outer (spec §4.4): a Filter overriding Prepare
	// must call its Next's Prepare before running its own setup, the
	// same way Passthrough's default does.
	Prepare(ctx context.Context, bctx *Context) error
	// Finalize runs once per connection, before Close, outer-to-inner:
	// a Filter overriding Finalize must run its own teardown before
	// calling its Next's Finalize. It is called at most as many times
	// as Open succeeded (spec §4.4's HANDLE_CONNECTED/HANDLE_FAILED
	// transitions), and — like Close — must not fail loudly.
	Finalize(ctx context.Context, bctx *Context) error
	// Close releases per-connection resources. It must not fail loudly:
	// errors are logged, never propagated to the client.
	Close(ctx context.Context, bctx *Context) error
	// ThreadModel declares this link's concurrency ceiling, already
	// folded together with everything behind it.
	ThreadModel() ThreadModel
}

// Plugin is the terminal backend of a chain: it owns the real storage
// (spec §3).
type Plugin interface {
	Link
}

// Filter wraps a Next Link, optionally rewriting a request or delegating
// it unchanged (spec §3's "outer-to-inner, inner-to-outer" call
// ordering).
type Filter interface {
	Link
}
