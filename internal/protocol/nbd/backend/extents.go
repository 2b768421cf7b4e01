package backend

import (
	"fmt"
	"math"
)

// ExtentFlag is the HOLE/ZERO bitmask carried per extent (spec §4.5).
type ExtentFlag uint32

const (
	ExtentHole ExtentFlag = 1 << 0
	ExtentZero ExtentFlag = 1 << 1
)

// Extent describes one contiguous run of identically-flagged bytes.
type Extent struct {
	Length uint64
	Flags  ExtentFlag
}

// MaxExtents bounds the number of extents a single BLOCK_STATUS answer
// may describe (spec §4.5), mirroring nbdkit's MAX_EXTENTS.
const MaxExtents = 1024 * 1024

// Extents is an ordered, non-overlapping, strictly-contiguous list of
// extents covering [start, end) of a device. Entries are appended via Add,
// which enforces the contiguity invariant the same way nbdkit's
// nbdkit_extents vector does: next tracks the expected next offset (-1
// before the first Add), and a gap or overlap is a programming error in
// the calling plugin, not a client-triggerable one.
type Extents struct {
	start, end int64
	next       int64
	list       []Extent
}

// NewExtents creates an extent list covering the half-open range
// [start, end). end is one byte beyond the described range, matching the
// C API's nbdkit_extents_new semantics.
func NewExtents(start, end int64) (*Extents, error) {
	if start < 0 || end < 0 || start > math.MaxInt64 || end > math.MaxInt64 {
		return nil, fmt.Errorf("nbd: extents range out of bounds [%d, %d)", start, end)
	}
	if end < start {
		return nil, fmt.Errorf("nbd: extents end %d precedes start %d", end, start)
	}
	return &Extents{start: start, end: end, next: -1}, nil
}

// Add appends an extent, silently clamping or dropping it to stay within
// [start, end) rather than erroring, the way nbdkit's own extents code
// tolerates a plugin whose blocks don't line up exactly with the query
// range (spec §4.5): a zero-length add is ignored; an add that falls
// entirely outside [start, end) is ignored; an add that crosses end is
// truncated to fit; an add that crosses start is left-truncated to fit;
// once the entry cap is reached, further adds are silently dropped. A
// non-contiguous offset (a gap before the next expected position) is
// still a plugin bug and returns an error — truncation only covers the
// boundary cases spec §4.5 names, never a missing middle.
func (e *Extents) Add(offset uint64, length uint64, flags ExtentFlag) error {
	if length == 0 {
		return nil
	}

	start := int64(offset)
	end := start + int64(length)

	if end <= e.start || start >= e.end {
		return nil
	}
	if start < e.start {
		start = e.start
	}
	if end > e.end {
		end = e.end
	}
	if end <= start {
		return nil
	}

	if len(e.list) >= MaxExtents {
		return nil
	}

	want := e.start
	if e.next != -1 {
		want = e.next
	}
	if start != want {
		return fmt.Errorf("nbd: non-contiguous extent at offset %d, expected %d", start, want)
	}

	e.list = append(e.list, Extent{Length: uint64(end - start), Flags: flags})
	e.next = end
	return nil
}

func (e *Extents) Start() int64 { return e.start }
func (e *Extents) End() int64   { return e.end }

// Covered is the offset up to which extents have been accumulated so
// far: Start() before the first Add, the end of the last accepted
// extent afterward.
func (e *Extents) Covered() int64 {
	if e.next == -1 {
		return e.start
	}
	return e.next
}

// List returns the accumulated extents in order.
func (e *Extents) List() []Extent {
	out := make([]Extent, len(e.list))
	copy(out, e.list)
	return out
}

// Full reports whether the extents cover the entire requested range.
func (e *Extents) Full() bool { return e.next == e.end }

// Descriptor is the wire representation of one extent in a
// NBD_REPLY_TYPE_BLOCK_STATUS chunk: a 32-bit length plus the flags
// (spec §6). A single logical extent whose length exceeds
// math.MaxUint32 is split across multiple descriptors here, resolving
// the limitation original_source/server/extents.c leaves unimplemented.
type Descriptor struct {
	Length uint32
	Flags  uint32
}

// ToDescriptors converts the accumulated extents into wire descriptors,
// optionally truncating to a single descriptor when reqOne is set
// (NBD_CMD_FLAG_REQ_ONE, spec §4.5).
func (e *Extents) ToDescriptors(reqOne bool) []Descriptor {
	var out []Descriptor
	for _, ext := range e.list {
		remaining := ext.Length
		for remaining > 0 {
			chunk := remaining
			if chunk > math.MaxUint32 {
				chunk = math.MaxUint32
			}
			out = append(out, Descriptor{Length: uint32(chunk), Flags: uint32(ext.Flags)})
			remaining -= chunk
			if reqOne {
				return out
			}
		}
	}
	return out
}
