package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

// HoleProber is implemented by a Store that can report whether a block
// was ever written without reading its full contents. Plugins that skip
// this (e.g. a plain object-storage Store) report the whole requested
// range as one allocated extent; see DESIGN.md for which plugins
// implement it.
type HoleProber interface {
	BlockExists(ctx context.Context, key string) (bool, error)
}

// ChunkedBackend implements backend.Link over a Store by mapping the
// device's flat byte address space onto fixed-size blocks, read-modify-
// write style, the way pkg/store/block's chunked content stores already
// address immutable 4MB chunks by key.
type ChunkedBackend struct {
	name        string
	store       Store
	size        uint64
	blockSize   uint32
	threadModel backend.ThreadModel
	readOnly    bool
}

func NewChunkedBackend(name string, store Store, size uint64, blockSize uint32, tm backend.ThreadModel, readOnly bool) *ChunkedBackend {
	return &ChunkedBackend{name: name, store: store, size: size, blockSize: blockSize, threadModel: tm, readOnly: readOnly}
}

func (c *ChunkedBackend) Name() string                   { return c.name }
func (c *ChunkedBackend) ThreadModel() backend.ThreadModel { return c.threadModel }

func (c *ChunkedBackend) Open(ctx context.Context, bctx *backend.Context, readonly bool) error {
	return c.store.HealthCheck(ctx)
}

func (c *ChunkedBackend) Close(ctx context.Context, bctx *backend.Context) error {
	return c.store.Close()
}

// Prepare is a no-op: a Store's health check already runs in Open, and
// chunked blocks need no further per-connection setup.
func (c *ChunkedBackend) Prepare(ctx context.Context, bctx *backend.Context) error { return nil }

// Finalize is a no-op for the same reason Prepare is.
func (c *ChunkedBackend) Finalize(ctx context.Context, bctx *backend.Context) error { return nil }

func (c *ChunkedBackend) GetSize(ctx context.Context, bctx *backend.Context) (uint64, error) {
	return c.size, nil
}

func (c *ChunkedBackend) CanWrite(ctx context.Context, bctx *backend.Context) (bool, error) {
	return !c.readOnly, nil
}
func (c *ChunkedBackend) CanTrim(ctx context.Context, bctx *backend.Context) (bool, error) {
	return !c.readOnly, nil
}
func (c *ChunkedBackend) CanZero(ctx context.Context, bctx *backend.Context) (bool, error) {
	return !c.readOnly, nil
}
func (c *ChunkedBackend) CanFastZero(ctx context.Context, bctx *backend.Context) (bool, error) {
	return !c.readOnly, nil
}
func (c *ChunkedBackend) CanFUA(ctx context.Context, bctx *backend.Context) (bool, error) {
	return true, nil
}
func (c *ChunkedBackend) CanFlush(ctx context.Context, bctx *backend.Context) (bool, error) {
	return true, nil
}
func (c *ChunkedBackend) CanMultiConn(ctx context.Context, bctx *backend.Context) (bool, error) {
	return c.threadModel == backend.Parallel, nil
}
func (c *ChunkedBackend) CanCache(ctx context.Context, bctx *backend.Context) (bool, error) {
	return true, nil
}
func (c *ChunkedBackend) CanExtents(ctx context.Context, bctx *backend.Context) (bool, error) {
	return true, nil
}
func (c *ChunkedBackend) IsRotational(ctx context.Context, bctx *backend.Context) (bool, error) {
	return false, nil
}

func (c *ChunkedBackend) blockKey(idx uint64) string {
	return fmt.Sprintf("%s/block-%d", c.name, idx)
}

// forEachBlock calls fn once for each block that [offset, offset+length)
// touches, in order, with the block index and the in-block [start,end)
// byte range; it stops at the first error fn returns.
func (c *ChunkedBackend) forEachBlock(offset uint64, length uint32, fn func(idx uint64, inBlockStart, inBlockEnd uint32) error) error {
	bs := uint64(c.blockSize)
	remaining := uint64(length)
	pos := offset
	for remaining > 0 {
		idx := pos / bs
		inBlockStart := uint32(pos % bs)
		avail := uint32(bs) - inBlockStart
		n := avail
		if uint64(n) > remaining {
			n = uint32(remaining)
		}
		if err := fn(idx, inBlockStart, inBlockStart+n); err != nil {
			return err
		}
		pos += uint64(n)
		remaining -= uint64(n)
	}
	return nil
}

func (c *ChunkedBackend) readBlockOrZero(ctx context.Context, idx uint64) ([]byte, error) {
	data, err := c.store.ReadBlock(ctx, c.blockKey(idx))
	if errors.Is(err, ErrBlockNotFound) {
		return make([]byte, c.blockSize), nil
	}
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) < c.blockSize {
		padded := make([]byte, c.blockSize)
		copy(padded, data)
		return padded, nil
	}
	return data, nil
}

func (c *ChunkedBackend) Pread(ctx context.Context, bctx *backend.Context, offset uint64, length uint32) ([]byte, error) {
	out := make([]byte, length)
	var written uint32
	err := c.forEachBlock(offset, length, func(idx uint64, start, end uint32) error {
		block, err := c.readBlockOrZero(ctx, idx)
		if err != nil {
			return nbd.NewBackendError("pread", nbd.CodeIO, err)
		}
		copy(out[written:], block[start:end])
		written += end - start
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChunkedBackend) Pwrite(ctx context.Context, bctx *backend.Context, offset uint64, data []byte, fua bool) error {
	if c.readOnly {
		return nbd.NewBackendError("pwrite", nbd.CodePermission, fmt.Errorf("backend %q is read-only", c.name))
	}
	var consumed uint32
	return c.forEachBlock(offset, uint32(len(data)), func(idx uint64, start, end uint32) error {
		block, err := c.readBlockOrZero(ctx, idx)
		if err != nil {
			return nbd.NewBackendError("pwrite", nbd.CodeIO, err)
		}
		copy(block[start:end], data[consumed:consumed+(end-start)])
		consumed += end - start
		if err := c.store.WriteBlock(ctx, c.blockKey(idx), block); err != nil {
			return nbd.NewBackendError("pwrite", nbd.CodeIO, err)
		}
		return nil
	})
}

func (c *ChunkedBackend) Zero(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua, noHole, fastZero bool) error {
	if c.readOnly {
		return nbd.NewBackendError("zero", nbd.CodePermission, fmt.Errorf("backend %q is read-only", c.name))
	}
	bs := uint64(c.blockSize)
	return c.forEachBlock(offset, length, func(idx uint64, start, end uint32) error {
		if !noHole && start == 0 && uint64(end) == bs {
			if err := c.store.DeleteBlock(ctx, c.blockKey(idx)); err != nil {
				return nbd.NewBackendError("zero", nbd.CodeIO, err)
			}
			return nil
		}
		block, err := c.readBlockOrZero(ctx, idx)
		if err != nil {
			return nbd.NewBackendError("zero", nbd.CodeIO, err)
		}
		for i := start; i < end; i++ {
			block[i] = 0
		}
		if err := c.store.WriteBlock(ctx, c.blockKey(idx), block); err != nil {
			return nbd.NewBackendError("zero", nbd.CodeIO, err)
		}
		return nil
	})
}

// Trim is advisory: fully block-aligned spans are discarded (freeing
// the underlying key), partial spans are left untouched since their
// post-trim content is undefined by the protocol.
func (c *ChunkedBackend) Trim(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua bool) error {
	if c.readOnly {
		return nbd.NewBackendError("trim", nbd.CodePermission, fmt.Errorf("backend %q is read-only", c.name))
	}
	bs := uint64(c.blockSize)
	return c.forEachBlock(offset, length, func(idx uint64, start, end uint32) error {
		if start == 0 && uint64(end) == bs {
			if err := c.store.DeleteBlock(ctx, c.blockKey(idx)); err != nil {
				return nbd.NewBackendError("trim", nbd.CodeIO, err)
			}
		}
		return nil
	})
}

func (c *ChunkedBackend) Cache(ctx context.Context, bctx *backend.Context, offset uint64, length uint32) error {
	return c.forEachBlock(offset, length, func(idx uint64, start, end uint32) error {
		_, err := c.readBlockOrZero(ctx, idx)
		if err != nil {
			return nbd.NewBackendError("cache", nbd.CodeIO, err)
		}
		return nil
	})
}

func (c *ChunkedBackend) Flush(ctx context.Context, bctx *backend.Context) error {
	return nil
}

func (c *ChunkedBackend) Extents(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, ext *backend.Extents) error {
	prober, ok := c.store.(HoleProber)
	if !ok {
		return ext.Add(offset, uint64(length), 0)
	}
	return c.forEachBlock(offset, length, func(idx uint64, start, end uint32) error {
		exists, err := prober.BlockExists(ctx, c.blockKey(idx))
		if err != nil {
			return nbd.NewBackendError("extents", nbd.CodeIO, err)
		}
		flags := backend.ExtentFlag(0)
		if !exists {
			flags = backend.ExtentHole | backend.ExtentZero
		}
		blockBase := idx * uint64(c.blockSize)
		return ext.Add(blockBase+uint64(start), uint64(end-start), flags)
	})
}

var _ backend.Link = (*ChunkedBackend)(nil)
