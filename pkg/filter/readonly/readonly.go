// Package readonly implements a filter that forces an export read-only
// regardless of what the wrapped plugin would otherwise allow,
// mirroring nbdkit's readonly filter (original_source/filters list the
// same "deny the write-shaped commands, pass everything else through"
// shape for swab/partition).
package readonly

import (
	"context"
	"fmt"

	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

// Filter denies every write-shaped operation and reports CanWrite/
// CanTrim/CanZero as false, whatever the wrapped plugin supports.
type Filter struct {
	backend.Passthrough
	name string
}

func New(next backend.Link) (backend.Filter, error) {
	return &Filter{Passthrough: backend.Passthrough{Next: next}, name: "readonly"}, nil
}

func (f *Filter) Name() string { return f.name }

func (f *Filter) CanWrite(ctx context.Context, bctx *backend.Context) (bool, error) { return false, nil }
func (f *Filter) CanTrim(ctx context.Context, bctx *backend.Context) (bool, error)  { return false, nil }
func (f *Filter) CanZero(ctx context.Context, bctx *backend.Context) (bool, error)  { return false, nil }
func (f *Filter) CanFastZero(ctx context.Context, bctx *backend.Context) (bool, error) {
	return false, nil
}

func (f *Filter) Pwrite(ctx context.Context, bctx *backend.Context, offset uint64, data []byte, fua bool) error {
	return nbd.NewBackendError("pwrite", nbd.CodePermission, fmt.Errorf("export is read-only"))
}

func (f *Filter) Trim(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua bool) error {
	return nbd.NewBackendError("trim", nbd.CodePermission, fmt.Errorf("export is read-only"))
}

func (f *Filter) Zero(ctx context.Context, bctx *backend.Context, offset uint64, length uint32, fua, noHole, fastZero bool) error {
	return nbd.NewBackendError("zero", nbd.CodePermission, fmt.Errorf("export is read-only"))
}

var _ backend.Filter = (*Filter)(nil)
