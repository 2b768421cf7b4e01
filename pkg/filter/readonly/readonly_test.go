package readonly

import (
	"context"
	"testing"

	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/pkg/plugin/memory"
)

func TestFilter_DeniesWrites(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	next := memory.New("disk0", memory.Config{Size: 1 << 20, BlockSize: 4096})

	f, err := New(next)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if canWrite, _ := f.CanWrite(ctx, bctx); canWrite {
		t.Error("CanWrite returned true, want false")
	}
	if canTrim, _ := f.CanTrim(ctx, bctx); canTrim {
		t.Error("CanTrim returned true, want false")
	}
	if canZero, _ := f.CanZero(ctx, bctx); canZero {
		t.Error("CanZero returned true, want false")
	}

	if err := f.Pwrite(ctx, bctx, 0, []byte("x"), false); err == nil {
		t.Error("Pwrite should fail on a read-only filter")
	} else if nbd.ErrnoOf(err, 0) != nbd.EPerm {
		t.Errorf("Pwrite error = %v, want EPERM", nbd.ErrnoOf(err, 0))
	}

	if err := f.Trim(ctx, bctx, 0, 16, false); err == nil {
		t.Error("Trim should fail on a read-only filter")
	}

	if err := f.Zero(ctx, bctx, 0, 16, false, false, false); err == nil {
		t.Error("Zero should fail on a read-only filter")
	}
}

func TestFilter_PassesReadsThrough(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	next := memory.New("disk0", memory.Config{Size: 1 << 20, BlockSize: 4096})
	if err := next.Open(ctx, bctx, false); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := next.Pwrite(ctx, bctx, 0, []byte("hello"), false); err != nil {
		t.Fatalf("Pwrite on wrapped plugin failed: %v", err)
	}

	f, err := New(next)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	data, err := f.Pread(ctx, bctx, 0, 5)
	if err != nil {
		t.Fatalf("Pread through filter failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Pread returned %q, want %q", data, "hello")
	}
}
