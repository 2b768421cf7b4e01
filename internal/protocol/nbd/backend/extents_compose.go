package backend

import (
	"context"
	"fmt"
	"math"
)

// ExtentsAligned queries link.Extents over [offset, offset+length)
// rounded outward to align, then projects the (possibly wider) answer
// back onto out's original [offset, offset+length) range, relying on
// Extents.Add's own boundary clamping to discard the padding (spec
// §4.4's "extents_aligned": plugins that only understand block-aligned
// queries can still answer a client's unaligned BLOCK_STATUS request).
func ExtentsAligned(ctx context.Context, link Link, bctx *Context, offset uint64, length uint32, align uint32, out *Extents) error {
	if align <= 1 {
		return link.Extents(ctx, bctx, offset, length, out)
	}
	a := uint64(align)
	alignedStart := (offset / a) * a
	alignedEnd := offset + uint64(length)
	if rem := alignedEnd % a; rem != 0 {
		alignedEnd += a - rem
	}

	padded, err := NewExtents(int64(alignedStart), int64(alignedEnd))
	if err != nil {
		return err
	}
	if err := link.Extents(ctx, bctx, alignedStart, uint32(alignedEnd-alignedStart), padded); err != nil {
		return err
	}

	pos := alignedStart
	for _, ext := range padded.List() {
		if err := out.Add(pos, ext.Length, ext.Flags); err != nil {
			return err
		}
		pos += ext.Length
	}
	return nil
}

// ExtentsFull repeatedly queries link.Extents, each call picking up
// where the last left off, until out covers its entire requested range
// or a query makes no progress (spec §4.4's "extents_full": a plugin
// whose Extents only ever appends one or a few entries per call — the
// natural shape for a REQ_ONE-style answer — still has its result
// stitched into a complete BLOCK_STATUS reply).
func ExtentsFull(ctx context.Context, link Link, bctx *Context, out *Extents) error {
	for out.Covered() < out.End() {
		before := out.Covered()
		remaining := out.End() - before
		if remaining > math.MaxUint32 {
			remaining = math.MaxUint32
		}
		if err := link.Extents(ctx, bctx, uint64(before), uint32(remaining), out); err != nil {
			return err
		}
		if out.Covered() == before {
			return fmt.Errorf("nbd: extents query made no progress at offset %d", before)
		}
	}
	return nil
}
