package memory

import (
	"context"
	"testing"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

func TestMemoryPlugin_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	p := New("disk0", Config{Size: 1 << 20, BlockSize: 4096})

	if err := p.Open(ctx, bctx, false); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close(ctx, bctx)

	size, err := p.GetSize(ctx, bctx)
	if err != nil {
		t.Fatalf("GetSize failed: %v", err)
	}
	if size != 1<<20 {
		t.Errorf("GetSize returned %d, want %d", size, 1<<20)
	}

	data := []byte("hello world")
	if err := p.Pwrite(ctx, bctx, 100, data, false); err != nil {
		t.Fatalf("Pwrite failed: %v", err)
	}

	read, err := p.Pread(ctx, bctx, 100, uint32(len(data)))
	if err != nil {
		t.Fatalf("Pread failed: %v", err)
	}
	if string(read) != string(data) {
		t.Errorf("Pread returned %q, want %q", read, data)
	}
}

func TestMemoryPlugin_ReadUnwrittenIsZero(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	p := New("disk0", Config{Size: 1 << 20, BlockSize: 4096})

	read, err := p.Pread(ctx, bctx, 0, 16)
	if err != nil {
		t.Fatalf("Pread failed: %v", err)
	}
	for i, b := range read {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestMemoryPlugin_SpansMultipleBlocks(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	p := New("disk0", Config{Size: 1 << 20, BlockSize: 16})

	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}

	if err := p.Pwrite(ctx, bctx, 8, data, false); err != nil {
		t.Fatalf("Pwrite failed: %v", err)
	}

	read, err := p.Pread(ctx, bctx, 8, uint32(len(data)))
	if err != nil {
		t.Fatalf("Pread failed: %v", err)
	}
	for i := range data {
		if read[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, read[i], data[i])
		}
	}
}

func TestMemoryPlugin_ReadOnlyRejectsWrite(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	p := New("disk0", Config{Size: 1 << 20, BlockSize: 4096, ReadOnly: true})

	canWrite, err := p.CanWrite(ctx, bctx)
	if err != nil {
		t.Fatalf("CanWrite failed: %v", err)
	}
	if canWrite {
		t.Error("CanWrite returned true for read-only plugin")
	}

	if err := p.Pwrite(ctx, bctx, 0, []byte("x"), false); err == nil {
		t.Error("Pwrite on read-only plugin should fail")
	}
}

func TestMemoryPlugin_ZeroFullBlockFreesIt(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	p := New("disk0", Config{Size: 1 << 20, BlockSize: 16})

	data := make([]byte, 16)
	for i := range data {
		data[i] = 0xff
	}
	if err := p.Pwrite(ctx, bctx, 0, data, false); err != nil {
		t.Fatalf("Pwrite failed: %v", err)
	}

	if err := p.Zero(ctx, bctx, 0, 16, false, false, false); err != nil {
		t.Fatalf("Zero failed: %v", err)
	}

	read, err := p.Pread(ctx, bctx, 0, 16)
	if err != nil {
		t.Fatalf("Pread failed: %v", err)
	}
	for i, b := range read {
		if b != 0 {
			t.Fatalf("byte %d = %d after Zero, want 0", i, b)
		}
	}
}

func TestMemoryPlugin_Extents(t *testing.T) {
	ctx := context.Background()
	bctx := &backend.Context{}
	p := New("disk0", Config{Size: 64, BlockSize: 16})

	if err := p.Pwrite(ctx, bctx, 0, []byte("0123456789012345"), false); err != nil {
		t.Fatalf("Pwrite failed: %v", err)
	}

	ext, err := backend.NewExtents(0, 64)
	if err != nil {
		t.Fatalf("NewExtents failed: %v", err)
	}
	if err := p.Extents(ctx, bctx, 0, 64, ext); err != nil {
		t.Fatalf("Extents failed: %v", err)
	}

	list := ext.List()
	if len(list) == 0 {
		t.Fatal("Extents returned no entries")
	}
	if list[0].Flags&backend.ExtentHole != 0 {
		t.Error("first block should be allocated, not a hole")
	}

	found := false
	for _, e := range list[1:] {
		if e.Flags&backend.ExtentHole != 0 {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one hole extent for unwritten blocks")
	}
}

func TestMemoryPlugin_ThreadModelIsParallel(t *testing.T) {
	p := New("disk0", Config{Size: 1024, BlockSize: 16})
	if p.ThreadModel() != backend.Parallel {
		t.Errorf("ThreadModel() = %v, want Parallel", p.ThreadModel())
	}
}
