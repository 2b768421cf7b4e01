package nbd

import (
	"context"
	"fmt"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

// HandshakeMode selects between the legacy fixed-layout handshake and the
// modern option-negotiation handshake (spec §4.2).
type HandshakeMode int

const (
	HandshakeOldstyle HandshakeMode = iota
	HandshakeNewstyle
)

// ServerGlobalFlags is the gflags value this server advertises. Every
// deployment enables fixed-newstyle; NO_ZEROES is offered unconditionally
// since nothing in this server depends on the 124 zero-padding bytes.
const ServerGlobalFlags = FlagFixedNewstyle | FlagNoZeroes

// RunOldstyleHandshake performs the legacy fixed 152-byte handshake: it
// opens the list's default export (spec §C) and sends size/flags/padding
// with no further negotiation, matching
// original_source/server/protocol-handshake-oldstyle.c.
func RunOldstyleHandshake(ctx context.Context, s *Session) error {
	exp, ok := s.Exports.Lookup("")
	if !ok {
		return fmt.Errorf("nbd: oldstyle handshake requires a default export")
	}
	bctx := backend.NewContext()
	if err := exp.Chain.Head().Open(ctx, bctx, exp.ReadOnly); err != nil {
		return fmt.Errorf("nbd: opening default export: %w", err)
	}
	bctx.AddState(backend.StateOpen)
	if err := exp.Chain.Head().Prepare(ctx, bctx); err != nil {
		_ = exp.Chain.Head().Finalize(ctx, bctx)
		_ = exp.Chain.Head().Close(ctx, bctx)
		return fmt.Errorf("nbd: preparing default export: %w", err)
	}
	bctx.AddState(backend.StateConnected)
	s.SetExport(exp, bctx, exp.ReadOnly)

	size, err := exp.Chain.Head().GetSize(ctx, bctx)
	if err != nil {
		return fmt.Errorf("nbd: getting export size: %w", err)
	}

	w := s.Writer()
	if err := writeUint64(w, OldstyleMagic); err != nil {
		return err
	}
	if err := writeUint64(w, OldVersionMagic); err != nil {
		return err
	}
	if err := w.WriteUint64(size); err != nil {
		return err
	}
	eflags, err := exportFlags(ctx, exp.Chain.Head(), bctx, false)
	if err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(eflags)); err != nil {
		return err
	}
	// 124 bytes of zero padding, per the fixed oldstyle layout.
	return w.WriteBytes(make([]byte, 124))
}

func writeUint64(w *FramedWriter, v uint64) error { return w.WriteUint64(v) }

// RunNewstyleHandshake performs the modern option-negotiation handshake:
// gflags/cflags exchange followed by an option loop (spec §4.2).
func RunNewstyleHandshake(ctx context.Context, s *Session) error {
	w := s.Writer()
	r := s.Reader()

	if err := writeUint64(w, NewstyleMagic); err != nil {
		return err
	}
	if err := writeUint64(w, OptionMagic); err != nil {
		return err
	}
	if err := w.WriteUint16(ServerGlobalFlags); err != nil {
		return err
	}

	cflags, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("nbd: reading client flags: %w", err)
	}
	if uint32(cflags)&^uint32(ServerGlobalFlags) != 0 {
		return fmt.Errorf("nbd: client flags %#x not a subset of server flags %#x", cflags, ServerGlobalFlags)
	}
	s.SetFixedNewstyle(cflags&ClientFlagFixedNewstyle != 0)

	return runOptionLoop(ctx, s)
}

// exportFlags resolves the eflags value advertised for an export,
// consulting the chain's capability probes (spec §4.4/§6).
// structuredRepliesNegotiated gates EFlagSendDF: a client that never
// negotiated NBD_OPT_STRUCTURED_REPLY (including every oldstyle client,
// which has no opportunity to) cannot receive a structured
// NBD_REPLY_TYPE_ERROR/OFFSET_DATA chunk, so advertising DF to it would
// promise a reply shape the server can never produce.
func exportFlags(ctx context.Context, head backend.Link, bctx *backend.Context, structuredRepliesNegotiated bool) (uint16, error) {
	var flags uint16 = EFlagHasFlags
	var caps backend.Capabilities

	canWrite, err := head.CanWrite(ctx, bctx)
	if err != nil {
		return 0, err
	}
	caps.CanWrite = canWrite
	if !canWrite {
		flags |= EFlagReadOnly
	}
	if ok, err := head.CanFlush(ctx, bctx); err == nil && ok {
		caps.CanFlush = true
		flags |= EFlagSendFlush
	}
	if ok, err := head.CanFUA(ctx, bctx); err == nil && ok {
		caps.CanFUA = true
		flags |= EFlagSendFUA
	}
	if ok, err := head.IsRotational(ctx, bctx); err == nil && ok {
		flags |= EFlagRotational
	}
	if ok, err := head.CanTrim(ctx, bctx); err == nil && ok {
		caps.CanTrim = true
		flags |= EFlagSendTrim
	}
	if ok, err := head.CanZero(ctx, bctx); err == nil && ok {
		caps.CanZero = true
		flags |= EFlagSendWriteZeroes
	}
	// CanFastZero is probed independently of CanZero/WRITE_ZEROES: a
	// backend can support zero-writes in general while being unable to
	// promise FAST_ZERO's "instant or ENOTSUP" contract.
	if ok, err := head.CanFastZero(ctx, bctx); err == nil && ok {
		flags |= EFlagSendFastZero
	}
	if structuredRepliesNegotiated {
		flags |= EFlagSendDF
	}
	if ok, err := head.CanMultiConn(ctx, bctx); err == nil && ok {
		caps.CanMultiConn = true
		flags |= EFlagCanMultiConn
	}
	if ok, err := head.CanCache(ctx, bctx); err == nil && ok {
		caps.CanCache = true
		flags |= EFlagSendCache
	}
	// can_extents is probed but never advertised as an eflags bit: its
	// only purpose is priming the Context's capability cache ahead of
	// the first BLOCK_STATUS request (spec §4.4).
	if ok, err := head.CanExtents(ctx, bctx); err == nil {
		caps.CanExtents = ok
	}
	bctx.CacheCapabilities(caps)
	return flags, nil
}
