// Package badger provides a BadgerDB-backed NBD plugin, following the
// same embedded-KV conventions as pkg/store/metadata/badger: one
// badger.DB per export, transactional Get/Set/Delete per block key.
package badger

import (
	"context"
	"errors"
	"fmt"

	bdg "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/pkg/plugin/common"
)

const defaultBlockSize = 256 * 1024

// Config configures the badger plugin.
type Config struct {
	// Dir is the on-disk directory for the badger database.
	Dir       string `mapstructure:"dir"`
	Size      uint64 `mapstructure:"size"`
	BlockSize uint32 `mapstructure:"block_size"`
	ReadOnly  bool   `mapstructure:"read_only"`
	// InMemory runs badger as a pure in-memory KV store (no Dir needed).
	InMemory bool `mapstructure:"in_memory"`
}

type store struct {
	db *bdg.DB
}

func openStore(cfg Config) (*store, error) {
	opts := bdg.DefaultOptions(cfg.Dir)
	opts = opts.WithLogger(nil) // badger's own logger is noisy; structured logging covers this instead
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithReadOnly(cfg.ReadOnly)
	db, err := bdg.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("nbd: opening badger db %q: %w", cfg.Dir, err)
	}
	return &store{db: db}, nil
}

func (s *store) WriteBlock(ctx context.Context, key string, data []byte) error {
	return s.db.Update(func(txn *bdg.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *store) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *bdg.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, bdg.ErrKeyNotFound) {
			return common.ErrBlockNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store) DeleteBlock(ctx context.Context, key string) error {
	return s.db.Update(func(txn *bdg.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, bdg.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *store) BlockExists(ctx context.Context, key string) (bool, error) {
	exists := false
	err := s.db.View(func(txn *bdg.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, bdg.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *store) HealthCheck(ctx context.Context) error {
	lsm, vlog := s.db.Size()
	logger.DebugCtx(ctx, "badger size check", logger.CacheSize(lsm+vlog))
	return nil
}

func (s *store) Close() error { return s.db.Close() }

var _ common.Store = (*store)(nil)
var _ common.HoleProber = (*store)(nil)

// New opens a badger database and wires it through common.ChunkedBackend.
func New(name string, cfg Config) (backend.Plugin, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	return common.NewChunkedBackend(name, st, cfg.Size, blockSize, backend.Parallel, cfg.ReadOnly), nil
}
