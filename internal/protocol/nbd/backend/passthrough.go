package backend

import "context"

// Passthrough implements Link by delegating every call unchanged to Next.
// Embed it by value in a concrete filter struct, set Next at construction,
// and override only the methods that need to intercept the request (spec
// §3: "a filter need only implement the hooks it cares about").
type Passthrough struct {
	Next Link
}

func (p Passthrough) Open(ctx context.Context, bctx *Context, readonly bool) error {
	return p.Next.Open(ctx, bctx, readonly)
}

func (p Passthrough) Close(ctx context.Context, bctx *Context) error {
	return p.Next.Close(ctx, bctx)
}

// Prepare delegates to Next first, so a filter overriding Prepare to add
// its own setup runs inner-to-outer for free: call Passthrough.Prepare
// (or p.Next.Prepare directly) before the filter's own logic.
func (p Passthrough) Prepare(ctx context.Context, bctx *Context) error {
	return p.Next.Prepare(ctx, bctx)
}

// Finalize delegates to Next last by default; a filter overriding
// Finalize to add its own teardown must run that teardown before
// calling p.Next.Finalize to preserve the outer-to-inner order.
func (p Passthrough) Finalize(ctx context.Context, bctx *Context) error {
	return p.Next.Finalize(ctx, bctx)
}

func (p Passthrough) ThreadModel() ThreadModel { return p.Next.ThreadModel() }

func (p Passthrough) GetSize(ctx context.Context, bctx *Context) (uint64, error) {
	return p.Next.GetSize(ctx, bctx)
}
func (p Passthrough) CanWrite(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanWrite(ctx, bctx)
}
func (p Passthrough) CanTrim(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanTrim(ctx, bctx)
}
func (p Passthrough) CanZero(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanZero(ctx, bctx)
}
func (p Passthrough) CanFastZero(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanFastZero(ctx, bctx)
}
func (p Passthrough) CanFUA(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanFUA(ctx, bctx)
}
func (p Passthrough) CanFlush(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanFlush(ctx, bctx)
}
func (p Passthrough) CanMultiConn(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanMultiConn(ctx, bctx)
}
func (p Passthrough) CanCache(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanCache(ctx, bctx)
}
func (p Passthrough) CanExtents(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.CanExtents(ctx, bctx)
}
func (p Passthrough) IsRotational(ctx context.Context, bctx *Context) (bool, error) {
	return p.Next.IsRotational(ctx, bctx)
}
func (p Passthrough) Pread(ctx context.Context, bctx *Context, offset uint64, length uint32) ([]byte, error) {
	return p.Next.Pread(ctx, bctx, offset, length)
}
func (p Passthrough) Pwrite(ctx context.Context, bctx *Context, offset uint64, data []byte, fua bool) error {
	return p.Next.Pwrite(ctx, bctx, offset, data, fua)
}
func (p Passthrough) Trim(ctx context.Context, bctx *Context, offset uint64, length uint32, fua bool) error {
	return p.Next.Trim(ctx, bctx, offset, length, fua)
}
func (p Passthrough) Zero(ctx context.Context, bctx *Context, offset uint64, length uint32, fua, noHole, fastZero bool) error {
	return p.Next.Zero(ctx, bctx, offset, length, fua, noHole, fastZero)
}
func (p Passthrough) Cache(ctx context.Context, bctx *Context, offset uint64, length uint32) error {
	return p.Next.Cache(ctx, bctx, offset, length)
}
func (p Passthrough) Flush(ctx context.Context, bctx *Context) error {
	return p.Next.Flush(ctx, bctx)
}
func (p Passthrough) Extents(ctx context.Context, bctx *Context, offset uint64, length uint32, ext *Extents) error {
	return p.Next.Extents(ctx, bctx, offset, length, ext)
}
