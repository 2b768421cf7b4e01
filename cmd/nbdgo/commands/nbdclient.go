package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/marmos91/nbdgo/internal/protocol/nbd"
)

// exportInfo is what a minimal client learns about an export from
// NBD_OPT_EXPORT_NAME: its size and advertised capability flags.
type exportInfo struct {
	Size  uint64
	Flags uint16
}

// probeExport dials address and performs just enough of the newstyle
// handshake (spec §4.2) to negotiate exportName via NBD_OPT_EXPORT_NAME
// and read back its size/flags trailer. It is the shared basis for both
// `nbdgo status` (liveness) and `nbdgo dial` (export inspection) — a
// small stand-in for a full nbd-client, grounded on the same wire codec
// the server itself uses, read in the opposite direction.
func probeExport(network, address, exportName string, timeout time.Duration) (exportInfo, error) {
	conn, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return exportInfo{}, err
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	return probeExportOn(conn, exportName)
}

// probeExportOn runs the same NBD_OPT_EXPORT_NAME negotiation as
// probeExport over an already-open connection, leaving it in the
// transmission phase on success so the caller can issue further
// requests (e.g. readBlock) without reconnecting.
func probeExportOn(conn net.Conn, exportName string) (exportInfo, error) {
	r := nbd.NewFramedReader(conn)
	w := nbd.NewFramedWriter(conn)

	magic, err := r.ReadUint64()
	if err != nil {
		return exportInfo{}, fmt.Errorf("reading server magic: %w", err)
	}
	if magic != nbd.NewstyleMagic {
		return exportInfo{}, fmt.Errorf("unexpected server magic %#x (oldstyle server?)", magic)
	}
	if _, err := r.ReadUint64(); err != nil { // NBD_OPT_MAGIC (IHAVEOPT)
		return exportInfo{}, fmt.Errorf("reading option magic: %w", err)
	}
	gflags, err := r.ReadUint16()
	if err != nil {
		return exportInfo{}, fmt.Errorf("reading global flags: %w", err)
	}

	cflags := uint32(nbd.ClientFlagFixedNewstyle)
	if gflags&nbd.FlagNoZeroes != 0 {
		cflags |= nbd.ClientFlagNoZeroes
	}
	if err := w.WriteUint32(cflags); err != nil {
		return exportInfo{}, fmt.Errorf("writing client flags: %w", err)
	}

	name := []byte(exportName)
	if err := w.WriteUint64(nbd.OptionMagic); err != nil {
		return exportInfo{}, err
	}
	if err := w.WriteUint32(nbd.OptExportName); err != nil {
		return exportInfo{}, err
	}
	if err := w.WriteUint32(uint32(len(name))); err != nil {
		return exportInfo{}, err
	}
	if len(name) > 0 {
		if err := w.WriteBytes(name); err != nil {
			return exportInfo{}, err
		}
	}

	size, err := r.ReadUint64()
	if err != nil {
		return exportInfo{}, fmt.Errorf("export %q not found or server closed connection: %w", exportName, err)
	}
	flags, err := r.ReadUint16()
	if err != nil {
		return exportInfo{}, fmt.Errorf("reading export flags: %w", err)
	}
	if gflags&nbd.FlagNoZeroes == 0 {
		if _, err := r.ReadPayload(124, 124); err != nil {
			return exportInfo{}, fmt.Errorf("reading zero padding: %w", err)
		}
	}

	return exportInfo{Size: size, Flags: flags}, nil
}

// readBlock issues a single NBD_CMD_READ against a connection already
// past the export-name handshake (the transmission phase) and returns
// the payload.
func readBlock(conn net.Conn, offset uint64, length uint32) ([]byte, error) {
	r := nbd.NewFramedReader(conn)
	w := nbd.NewFramedWriter(conn)

	if err := w.WriteUint32(nbd.RequestMagic); err != nil {
		return nil, err
	}
	if err := w.WriteUint16(0); err != nil { // flags
		return nil, err
	}
	if err := w.WriteUint16(nbd.CmdRead); err != nil {
		return nil, err
	}
	const handle = 1
	if err := w.WriteUint64(handle); err != nil {
		return nil, err
	}
	if err := w.WriteUint64(offset); err != nil {
		return nil, err
	}
	if err := w.WriteUint32(length); err != nil {
		return nil, err
	}

	replyMagic, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("reading reply magic: %w", err)
	}
	if replyMagic != nbd.SimpleReplyMagic {
		return nil, fmt.Errorf("unsupported reply type %#x (structured replies not handled by this client)", replyMagic)
	}
	errno, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadUint64(); err != nil { // handle
		return nil, err
	}
	if errno != 0 {
		return nil, fmt.Errorf("read failed: errno %d", errno)
	}
	return r.ReadPayload(length, nbd.MaxPayload)
}
