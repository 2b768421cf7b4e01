// Package log implements a filter that logs every data-path call before
// delegating it, the same role nbdkit's log filter plays: observability
// bolted onto any plugin without that plugin needing to know about it.
package log

import (
	"context"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

type Filter struct {
	backend.Passthrough
	name string
}

func New(next backend.Link) (backend.Filter, error) {
	return &Filter{Passthrough: backend.Passthrough{Next: next}, name: "log"}, nil
}

func (f *Filter) Name() string { return f.name }

func (f *Filter) Pread(ctx context.Context, bctx *backend.Context, offset uint64, length uint32) ([]byte, error) {
	logger.DebugCtx(ctx, "read", logger.Backend(f.Next.Name()), logger.Offset(offset), logger.Count(length))
	data, err := f.Next.Pread(ctx, bctx, offset, length)
	if err != nil {
		logger.ErrorCtx(ctx, "read failed", logger.Backend(f.Next.Name()), logger.Err(err))
	}
	return data, err
}

func (f *Filter) Pwrite(ctx context.Context, bctx *backend.Context, offset uint64, data []byte, fua bool) error {
	logger.DebugCtx(ctx, "write", logger.Backend(f.Next.Name()), logger.Offset(offset),
		logger.Count(uint32(len(data))), logger.FUA(fua))
	err := f.Next.Pwrite(ctx, bctx, offset, data, fua)
	if err != nil {
		logger.ErrorCtx(ctx, "write failed", logger.Backend(f.Next.Name()), logger.Err(err))
	}
	return err
}

func (f *Filter) Trim(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua bool) error {
	logger.DebugCtx(ctx, "trim", logger.Backend(f.Next.Name()), logger.Offset(offset), logger.Count(length))
	return f.Next.Trim(ctx, bctx, offset, length, fua)
}

func (f *Filter) Zero(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua, noHole, fastZero bool) error {
	logger.DebugCtx(ctx, "zero", logger.Backend(f.Next.Name()), logger.Offset(offset), logger.Count(length))
	return f.Next.Zero(ctx, bctx, offset, length, fua, noHole, fastZero)
}

func (f *Filter) Flush(ctx context.Context, bctx *backend.Context) error {
	logger.DebugCtx(ctx, "flush", logger.Backend(f.Next.Name()))
	return f.Next.Flush(ctx, bctx)
}

var _ backend.Filter = (*Filter)(nil)
