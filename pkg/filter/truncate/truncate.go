// Package truncate implements a filter that overrides the apparent size
// of the wrapped export, after nbdkit's truncate filter: GetSize reports
// the configured size, and a request reaching past it fails with an
// invalid-argument error. Requests within the configured size pass to
// the wrapped plugin unchanged; when the configured size is larger than
// the plugin's own, the range past the plugin's end is not zero-filled
// by this filter.
package truncate

import (
	"context"
	"fmt"

	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

// Config sets the overridden size.
type Config struct {
	Size uint64 `mapstructure:"size"`
}

type Filter struct {
	backend.Passthrough
	name string
	size uint64
}

func New(next backend.Link, cfg Config) (backend.Filter, error) {
	return &Filter{Passthrough: backend.Passthrough{Next: next}, name: "truncate", size: cfg.Size}, nil
}

func (f *Filter) Name() string { return f.name }

func (f *Filter) GetSize(ctx context.Context, bctx *backend.Context) (uint64, error) {
	return f.size, nil
}

func (f *Filter) boundsCheck(offset uint64, length uint32) error {
	if offset+uint64(length) > f.size {
		return nbd.NewBackendError("bounds", nbd.CodeInvalidArgument,
			fmt.Errorf("request [%d, %d) exceeds truncated size %d", offset, offset+uint64(length), f.size))
	}
	return nil
}

func (f *Filter) Pread(ctx context.Context, bctx *backend.Context, offset uint64, length uint32) ([]byte, error) {
	if err := f.boundsCheck(offset, length); err != nil {
		return nil, err
	}
	return f.Next.Pread(ctx, bctx, offset, length)
}

func (f *Filter) Pwrite(ctx context.Context, bctx *backend.Context, offset uint64, data []byte, fua bool) error {
	if err := f.boundsCheck(offset, uint32(len(data))); err != nil {
		return err
	}
	return f.Next.Pwrite(ctx, bctx, offset, data, fua)
}

func (f *Filter) Trim(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua bool) error {
	if err := f.boundsCheck(offset, length); err != nil {
		return err
	}
	return f.Next.Trim(ctx, bctx, offset, length, fua)
}

func (f *Filter) Zero(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua, noHole, fastZero bool) error {
	if err := f.boundsCheck(offset, length); err != nil {
		return err
	}
	return f.Next.Zero(ctx, bctx, offset, length, fua, noHole, fastZero)
}

func (f *Filter) Extents(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, ext *backend.Extents) error {
	if err := f.boundsCheck(offset, length); err != nil {
		return err
	}
	return f.Next.Extents(ctx, bctx, offset, length, ext)
}

var _ backend.Filter = (*Filter)(nil)
