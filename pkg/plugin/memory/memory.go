// Package memory provides an in-memory NBD plugin backend, primarily
// useful for testing clients and filter chains without touching disk.
// It is a direct adaptation of pkg/store/block/memory's in-memory
// block.Store onto the NBD backend.Link surface via common.ChunkedBackend.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/pkg/plugin/common"
)

const defaultBlockSize = 4 * 1024 * 1024

// Config configures the memory plugin.
type Config struct {
	// Size is the exported device size in bytes.
	Size uint64 `mapstructure:"size"`
	// BlockSize overrides the default 4MB chunk granularity.
	BlockSize uint32 `mapstructure:"block_size"`
	ReadOnly  bool   `mapstructure:"read_only"`
}

// store is an in-memory common.Store, a straight port of
// pkg/store/block/memory.Store's map-of-byte-slices design.
type store struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	closed bool
}

func newStore() *store {
	return &store{blocks: make(map[string][]byte)}
}

func (s *store) WriteBlock(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrBlockNotFound
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	s.blocks[key] = copied
	return nil
}

func (s *store) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[key]
	if !ok {
		return nil, common.ErrBlockNotFound
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (s *store) DeleteBlock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, key)
	return nil
}

func (s *store) BlockExists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[key]
	return ok, nil
}

func (s *store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return common.ErrBlockNotFound
	}
	return nil
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.blocks = nil
	return nil
}

var _ common.Store = (*store)(nil)
var _ common.HoleProber = (*store)(nil)

// New builds a memory-backed plugin. Every connection shares the same
// map, matching nbdkit's memory plugin default of one export per process
// rather than per-connection isolation.
func New(name string, cfg Config) backend.Plugin {
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	return common.NewChunkedBackend(name, newStore(), cfg.Size, blockSize, backend.Parallel, cfg.ReadOnly)
}
