package nbd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/internal/telemetry"
)

var cmdNames = map[uint16]string{
	CmdRead:        "READ",
	CmdWrite:       "WRITE",
	CmdDisc:        "DISC",
	CmdFlush:       "FLUSH",
	CmdTrim:        "TRIM",
	CmdCache:       "CACHE",
	CmdWriteZeroes: "WRITE_ZEROES",
	CmdBlockStatus: "BLOCK_STATUS",
}

func cmdName(t uint16) string {
	if name, ok := cmdNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ErrDisconnect is returned by ReadRequestFrame when the client sent
// NBD_CMD_DISC, signaling the caller to close the connection cleanly.
var ErrDisconnect = errors.New("nbd: client requested disconnect")

// IncomingRequest is one fully-read request frame: the fixed header plus
// the write payload, if any, already drained from the socket. Reading a
// frame and executing it are split into two steps so a caller serving a
// Parallel-model connection can hold the read lock only across the
// former and the write lock only across the latter's reply (spec §5).
type IncomingRequest struct {
	Req       Request
	WriteData []byte
}

// ReadRequestFrame reads exactly one request frame, including any
// trailing write payload, off the session's reader. Call this under the
// connection's read lock.
func ReadRequestFrame(s *Session) (*IncomingRequest, error) {
	req, err := s.Reader().ReadRequest()
	if err != nil {
		return nil, err
	}
	if req.Type == CmdDisc {
		return &IncomingRequest{Req: req}, ErrDisconnect
	}
	if req.Type != CmdWrite {
		return &IncomingRequest{Req: req}, nil
	}
	if req.Length > MaxPayload {
		if _, err := io.CopyN(io.Discard, s.Reader().r, int64(req.Length)); err != nil {
			return nil, err
		}
		return &IncomingRequest{Req: req}, nil
	}
	data, err := s.Reader().ReadPayload(req.Length, MaxPayload)
	if err != nil {
		return nil, err
	}
	return &IncomingRequest{Req: req, WriteData: data}, nil
}

// ExecuteRequest runs the backend operation for an already-read frame
// and returns the fully framed reply bytes. Call this without holding
// the connection's read or write lock (the backend call may block on
// I/O); only the request-execution locks the thread model requires are
// held around it. Write the returned bytes to the socket under the
// connection's write lock.
func ExecuteRequest(ctx context.Context, s *Session, in *IncomingRequest) (out []byte, err error) {
	req := in.Req
	head := s.Export().Chain.Head()
	bctx := s.BackendContext()

	ctx, span := telemetry.StartNBDSpan(ctx, cmdName(req.Type), req.Handle,
		telemetry.NBDExport(s.Export().Name),
		telemetry.NBDOffset(req.Offset),
		telemetry.NBDCount(req.Length),
		telemetry.NBDFlags(req.Flags),
	)
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	var buf bytes.Buffer
	w := NewFramedWriter(&buf)

	if verr := validateRequest(ctx, s, head, bctx, req); verr != nil {
		if err := reply(w, s, req, verr); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	switch req.Type {
	case CmdRead:
		if err := serveRead(ctx, w, s, head, bctx, req); err != nil {
			return nil, err
		}

	case CmdWrite:
		err := head.Pwrite(ctx, bctx, req.Offset, in.WriteData, req.Flags&CmdFlagFUA != 0)
		if err := reply(w, s, req, err); err != nil {
			return nil, err
		}

	case CmdFlush:
		err := head.Flush(ctx, bctx)
		if err := reply(w, s, req, err); err != nil {
			return nil, err
		}

	case CmdTrim:
		err := head.Trim(ctx, bctx, req.Offset, req.Length, req.Flags&CmdFlagFUA != 0)
		if err := reply(w, s, req, err); err != nil {
			return nil, err
		}

	case CmdCache:
		err := head.Cache(ctx, bctx, req.Offset, req.Length)
		if err := reply(w, s, req, err); err != nil {
			return nil, err
		}

	case CmdWriteZeroes:
		err := head.Zero(ctx, bctx, req.Offset, req.Length,
			req.Flags&CmdFlagFUA != 0, req.Flags&CmdFlagNoHole != 0, req.Flags&CmdFlagFastZero != 0)
		if err := reply(w, s, req, err); err != nil {
			return nil, err
		}

	case CmdBlockStatus:
		if err := serveBlockStatus(ctx, w, s, head, bctx, req); err != nil {
			return nil, err
		}

	default:
		if err := writeSimpleReply(w, req.Handle, ENotSup, nil); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// validateRequest implements spec §4.3/§8's pre-dispatch checks, run
// before any backend call: export-bounds checking, FLUSH's
// offset==0/length==0 requirement, read-only rejection for every
// write-shaped command (not only WRITE), and per-flag applicability
// (a flag set on a command or in a negotiation state it doesn't belong
// to is a client bug, not a backend error).
func validateRequest(ctx context.Context, s *Session, head backend.Link, bctx *backend.Context, req Request) error {
	if _, known := cmdNames[req.Type]; !known {
		return nil // falls through to the default ENOTSUP reply
	}

	if req.Type == CmdRead || req.Type == CmdWrite {
		if req.Length > MaxPayload {
			return backendErr(CodeNoMemory, cmdName(req.Type)+" length exceeds maximum payload")
		}
	}

	size, err := head.GetSize(ctx, bctx)
	if err != nil {
		return err
	}
	offset, count := req.Offset, uint64(req.Length)

	switch req.Type {
	case CmdFlush:
		if offset != 0 || count != 0 {
			return backendErr(CodeInvalidArgument, "FLUSH requires offset and length of zero")
		}
	case CmdRead, CmdWrite, CmdTrim, CmdWriteZeroes, CmdCache, CmdBlockStatus:
		if offset == size && count == 0 {
			return backendErr(CodeInvalidArgument, "request at end-of-device with zero length")
		}
		if offset+count > size {
			switch req.Type {
			case CmdWrite, CmdTrim, CmdWriteZeroes:
				return backendErr(CodeNoSpace, "request extends past the end of the export")
			default:
				return backendErr(CodeInvalidArgument, "request extends past the end of the export")
			}
		}
	}

	if s.ReadOnly() {
		switch req.Type {
		case CmdWrite, CmdTrim, CmdWriteZeroes:
			return backendErr(CodePermission, "export is read-only")
		}
	}

	if req.Flags&CmdFlagFUA != 0 {
		canFUA, err := head.CanFUA(ctx, bctx)
		if err != nil {
			return err
		}
		if !canFUA {
			return backendErr(CodeInvalidArgument, "FUA requires NBD_FLAG_SEND_FUA")
		}
	}

	if req.Flags&(CmdFlagNoHole|CmdFlagFastZero) != 0 && req.Type != CmdWriteZeroes {
		return backendErr(CodeInvalidArgument, "NO_HOLE/FAST_ZERO are only valid on WRITE_ZEROES")
	}
	if req.Flags&CmdFlagFastZero != 0 {
		canFastZero, err := head.CanFastZero(ctx, bctx)
		if err != nil {
			return err
		}
		if !canFastZero {
			return NewBackendError("dispatch", CodeNotSupported, fmt.Errorf("FAST_ZERO not supported"))
		}
	}

	if req.Flags&CmdFlagDF != 0 {
		if req.Type != CmdRead {
			return backendErr(CodeInvalidArgument, "DF is only valid on READ")
		}
		if !s.StructuredReplyEnabled() {
			return backendErr(CodeInvalidArgument, "DF requires structured replies")
		}
	}

	if req.Flags&CmdFlagReqOne != 0 && req.Type != CmdBlockStatus {
		return backendErr(CodeInvalidArgument, "REQ_ONE is only valid on BLOCK_STATUS")
	}

	return nil
}

func reply(w *FramedWriter, s *Session, req Request, err error) error {
	if err != nil && s.StructuredReplyEnabled() {
		return writeStructuredReplyError(w, req.Handle, ErrnoOf(err, req.Flags), err.Error())
	}
	return writeSimpleReply(w, req.Handle, ErrnoOf(err, req.Flags), nil)
}

func serveRead(ctx context.Context, w *FramedWriter, s *Session, head backend.Link, bctx *backend.Context, req Request) error {
	data, err := head.Pread(ctx, bctx, req.Offset, req.Length)
	if err != nil {
		return reply(w, s, req, err)
	}
	if s.StructuredReplyEnabled() {
		return writeStructuredReplyOffsetData(w, req.Handle, req.Offset, data)
	}
	return writeSimpleReply(w, req.Handle, ESuccess, data)
}

func serveBlockStatus(ctx context.Context, w *FramedWriter, s *Session, head backend.Link, bctx *backend.Context, req Request) error {
	if !s.StructuredReplyEnabled() {
		return reply(w, s, req, backendErr(CodeNotSupported, "BLOCK_STATUS requires structured replies"))
	}
	ext, err := backend.NewExtents(int64(req.Offset), int64(req.Offset)+int64(req.Length))
	if err != nil {
		return reply(w, s, req, backendErr(CodeInvalidArgument, err.Error()))
	}
	reqOne := req.Flags&CmdFlagReqOne != 0
	if reqOne {
		// The client only wants the first extent: one call is enough,
		// however short the plugin's answer falls of the full range.
		if err := head.Extents(ctx, bctx, req.Offset, req.Length, ext); err != nil {
			return reply(w, s, req, err)
		}
	} else {
		// Without REQ_ONE the client expects the reply to describe the
		// whole requested range; keep calling the plugin until it does
		// (spec §4.4's extents_full), rather than returning whatever a
		// single short answer happened to cover.
		if err := backend.ExtentsFull(ctx, head, bctx, ext); err != nil {
			return reply(w, s, req, err)
		}
	}
	descriptors := ext.ToDescriptors(reqOne)
	contextID, _ := s.MetaContextID("base:allocation")
	return writeStructuredReplyBlockStatus(w, req.Handle, contextID, descriptors)
}

func backendErr(code Code, msg string) error {
	return NewBackendError("dispatch", code, fmt.Errorf("%s", msg))
}
