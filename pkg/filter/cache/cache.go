// Package cache implements a read-through block cache filter, the NBD
// equivalent of nbdkit's cache filter: reads are served from an
// in-memory LRU of fixed-size blocks when present, and writes, trims
// and zeroes drop every cached block they touch before reaching the
// wrapped plugin so subsequent reads stay consistent. Eviction follows
// the least-recently-used block, the same shape pkg/cache/eviction.go
// uses for payload blocks, simplified to a container/list LRU since a
// filter needs no durability guarantees of its own (the plugin behind
// it already owns that).
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/pkg/metrics"
)

const defaultBlockSize = 256 * 1024

// Config configures the cache filter.
type Config struct {
	// CapacityBytes bounds total cached bytes; 0 disables eviction.
	CapacityBytes uint64 `mapstructure:"capacity_bytes"`
	BlockSize     uint32 `mapstructure:"block_size"`
}

type entry struct {
	key  uint64
	data []byte
}

type Filter struct {
	backend.Passthrough
	name      string
	blockSize uint64
	capacity  uint64

	mu      sync.Mutex
	size    uint64
	ll      *list.List
	entries map[uint64]*list.Element

	metrics metrics.CacheMetrics
}

func New(next backend.Link, cfg Config) (backend.Filter, error) {
	bs := uint64(cfg.BlockSize)
	if bs == 0 {
		bs = defaultBlockSize
	}
	return &Filter{
		Passthrough: backend.Passthrough{Next: next},
		name:        "cache",
		blockSize:   bs,
		capacity:    cfg.CapacityBytes,
		ll:          list.New(),
		entries:     make(map[uint64]*list.Element),
		metrics:     metrics.NewCacheMetrics(),
	}, nil
}

func (f *Filter) Name() string { return f.name }

func (f *Filter) get(key uint64) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, ok := f.entries[key]
	if !ok {
		return nil, false
	}
	f.ll.MoveToFront(el)
	return el.Value.(*entry).data, true
}

func (f *Filter) put(key uint64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el, ok := f.entries[key]; ok {
		old := el.Value.(*entry)
		f.size -= uint64(len(old.data))
		old.data = data
		f.size += uint64(len(data))
		f.ll.MoveToFront(el)
		return
	}
	el := f.ll.PushFront(&entry{key: key, data: data})
	f.entries[key] = el
	f.size += uint64(len(data))

	for f.capacity > 0 && f.size > f.capacity && f.ll.Len() > 0 {
		back := f.ll.Back()
		ev := back.Value.(*entry)
		f.size -= uint64(len(ev.data))
		delete(f.entries, ev.key)
		f.ll.Remove(back)
		metrics.RecordEviction(f.metrics, "size_limit")
	}
	metrics.RecordCacheSize(f.metrics, "block", int64(f.size))
}

func (f *Filter) invalidate(offset uint64, length uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := offset / f.blockSize
	end := (offset + uint64(length) + f.blockSize - 1) / f.blockSize
	for k := start; k < end; k++ {
		if el, ok := f.entries[k]; ok {
			ev := el.Value.(*entry)
			f.size -= uint64(len(ev.data))
			delete(f.entries, k)
			f.ll.Remove(el)
		}
	}
}

// Pread only consults the cache for a request that is exactly one whole
// block (block-aligned offset, length equal to the block size); any
// other read, including one inside a single block, goes straight to Next.
func (f *Filter) Pread(ctx context.Context, bctx *backend.Context, offset uint64, length uint32) ([]byte, error) {
	key := offset / f.blockSize
	aligned := offset%f.blockSize == 0 && uint64(length) == f.blockSize
	start := time.Now()
	if aligned {
		if data, ok := f.get(key); ok {
			logger.DebugCtx(ctx, "cache hit", logger.Offset(offset), logger.CacheHit(true))
			metrics.ObserveRead(f.metrics, int64(length), time.Since(start))
			return data, nil
		}
	}
	data, err := f.Next.Pread(ctx, bctx, offset, length)
	if err != nil {
		return nil, err
	}
	if aligned {
		f.put(key, data)
	}
	logger.DebugCtx(ctx, "cache miss", logger.Offset(offset), logger.CacheHit(false))
	return data, nil
}

func (f *Filter) Pwrite(ctx context.Context, bctx *backend.Context, offset uint64, data []byte, fua bool) error {
	if err := f.Next.Pwrite(ctx, bctx, offset, data, fua); err != nil {
		return err
	}
	f.invalidate(offset, uint32(len(data)))
	return nil
}

func (f *Filter) Trim(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua bool) error {
	f.invalidate(offset, length)
	return f.Next.Trim(ctx, bctx, offset, length, fua)
}

func (f *Filter) Zero(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua, noHole, fastZero bool) error {
	f.invalidate(offset, length)
	return f.Next.Zero(ctx, bctx, offset, length, fua, noHole, fastZero)
}

var _ backend.Filter = (*Filter)(nil)
