package nbd

import (
	"context"
	"fmt"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

// optionHeader is the fixed 16-byte option request header (spec §6):
// magic, option code, then a length-prefixed payload.
type optionHeader struct {
	Option uint32
	Length uint32
}

func readOptionHeader(r *FramedReader) (optionHeader, error) {
	var h optionHeader
	magic, err := r.ReadUint64()
	if err != nil {
		return h, err
	}
	if magic != OptionMagic {
		return h, fmt.Errorf("nbd: bad option magic %#x", magic)
	}
	if h.Option, err = r.ReadUint32(); err != nil {
		return h, err
	}
	if h.Length, err = r.ReadUint32(); err != nil {
		return h, err
	}
	return h, nil
}

func writeOptionReply(w *FramedWriter, option, replyType uint32, payload []byte) error {
	if err := w.WriteUint64(OptionReplyMagic); err != nil {
		return err
	}
	if err := w.WriteUint32(option); err != nil {
		return err
	}
	if err := w.WriteUint32(replyType); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(len(payload))); err != nil {
		return err
	}
	return w.WriteBytes(payload)
}

func writeAck(w *FramedWriter, option uint32) error {
	return writeOptionReply(w, option, RepAck, nil)
}

func writeOptionError(w *FramedWriter, option, errCode uint32, msg string) error {
	return writeOptionReply(w, option, errCode, []byte(msg))
}

// errOptionDone signals the option loop to stop (NBD_OPT_ABORT, or a
// successful NBD_OPT_EXPORT_NAME/NBD_OPT_GO entering the transmission
// phase).
type errOptionDone struct{ startTransmission bool }

func (e *errOptionDone) Error() string { return "nbd: option loop terminated" }

// optionLegalBeforeFixedNewstyle is the set of options a client lacking
// NBD_FLAG_C_FIXED_NEWSTYLE may still send (spec §4.2): such a client
// predates the option-reply framing the rest of the newstyle protocol
// depends on, so EXPORT_NAME (which replies with no framing at all) and
// ABORT are the only options it can legally use.
func optionLegalBeforeFixedNewstyle(option uint32) bool {
	return option == OptExportName || option == OptAbort
}

// runOptionLoop processes options until the client selects an export
// (entering the transmission phase) or aborts/disconnects. A client that
// never terminates the loop within MaxOptionLoop iterations is
// disconnected (spec §4.2, a defensive bound not named explicitly by the
// C source but consistent with its "never trust option length" stance).
func runOptionLoop(ctx context.Context, s *Session) error {
	for i := 0; i < MaxOptionLoop; i++ {
		hdr, err := readOptionHeader(s.Reader())
		if err != nil {
			return fmt.Errorf("nbd: reading option: %w", err)
		}

		if s.TLS != nil && s.TLS.Required && !s.TLSActive() &&
			hdr.Option != OptStartTLS && hdr.Option != OptAbort {
			if err := drainAndReject(s, hdr, RepErrTLSReqd, "TLS required"); err != nil {
				return err
			}
			continue
		}

		if !s.FixedNewstyle() && !optionLegalBeforeFixedNewstyle(hdr.Option) {
			if err := drainAndReject(s, hdr, RepErrInvalid, "fixed newstyle required for this option"); err != nil {
				return err
			}
			continue
		}

		done, err := handleOption(ctx, s, hdr)
		if err != nil {
			return err
		}
		if done != nil {
			if done.startTransmission {
				return nil
			}
			return fmt.Errorf("nbd: client aborted negotiation")
		}
	}
	return fmt.Errorf("nbd: exceeded maximum option loop iterations (%d)", MaxOptionLoop)
}

func drainAndReject(s *Session, hdr optionHeader, rep uint32, msg string) error {
	if _, err := s.Reader().ReadPayload(hdr.Length, MaxOptionPayload); err != nil {
		return err
	}
	return writeOptionError(s.Writer(), hdr.Option, rep, msg)
}

func handleOption(ctx context.Context, s *Session, hdr optionHeader) (*errOptionDone, error) {
	switch hdr.Option {
	case OptExportName:
		return handleExportName(ctx, s, hdr)
	case OptAbort:
		if _, err := s.Reader().ReadPayload(hdr.Length, MaxOptionPayload); err != nil {
			return nil, err
		}
		_ = writeAck(s.Writer(), hdr.Option)
		return &errOptionDone{}, nil
	case OptList:
		return nil, handleList(s, hdr)
	case OptStartTLS:
		return nil, handleStartTLS(s, hdr)
	case OptStructuredReply:
		return nil, handleStructuredReply(s, hdr)
	case OptListMetaContext:
		return nil, handleMetaContextQuery(s, hdr, false)
	case OptSetMetaContext:
		return nil, handleMetaContextQuery(s, hdr, true)
	case OptInfo:
		return nil, handleInfoOrGo(ctx, s, hdr, false)
	case OptGo:
		done, err := handleInfoOrGoReturningDone(ctx, s, hdr)
		return done, err
	default:
		if err := drainAndReject(s, hdr, RepErrUnsup, "unsupported option"); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// handleExportName implements the legacy NBD_OPT_EXPORT_NAME: on success
// it does not reply at all, it immediately enters the transmission phase
// by sending the fixed export-info trailer (spec §4.2).
func handleExportName(ctx context.Context, s *Session, hdr optionHeader) (*errOptionDone, error) {
	payload, err := s.Reader().ReadPayload(hdr.Length, MaxOptionPayload)
	if err != nil {
		return nil, err
	}
	name := string(payload)
	exp, ok := s.Exports.Lookup(name)
	if !ok {
		// No clean error path exists for this legacy option: the
		// client expects either the trailer or a dropped connection.
		return nil, fmt.Errorf("nbd: unknown export %q", name)
	}

	bctx := backend.NewContext()
	if err := exp.Chain.Head().Open(ctx, bctx, exp.ReadOnly); err != nil {
		return nil, fmt.Errorf("nbd: opening export %q: %w", name, err)
	}
	bctx.AddState(backend.StateOpen)
	if err := exp.Chain.Head().Prepare(ctx, bctx); err != nil {
		_ = exp.Chain.Head().Finalize(ctx, bctx)
		_ = exp.Chain.Head().Close(ctx, bctx)
		return nil, fmt.Errorf("nbd: preparing export %q: %w", name, err)
	}
	bctx.AddState(backend.StateConnected)
	s.DiscardMetaContextsIfExportMismatch(name)
	s.SetExport(exp, bctx, exp.ReadOnly)

	size, err := exp.Chain.Head().GetSize(ctx, bctx)
	if err != nil {
		return nil, err
	}
	eflags, err := exportFlags(ctx, exp.Chain.Head(), bctx, s.StructuredReplyEnabled())
	if err != nil {
		return nil, err
	}

	w := s.Writer()
	if err := w.WriteUint64(size); err != nil {
		return nil, err
	}
	if err := w.WriteUint16(eflags); err != nil {
		return nil, err
	}
	return &errOptionDone{startTransmission: true}, nil
}

// handleList implements NBD_OPT_LIST. NBD_OPT_LIST carries no payload; a
// client sending one anyway is rejected with NBD_REP_ERR_INVALID and the
// connection stays open (spec §8 scenario #2). NBD_OPT_LIST never
// exposes the default export implicitly: the use_default bit is
// resolved here, at reply time, by asking the list to resolve the empty
// name the same way EXPORT_NAME/INFO/GO would (spec §4.6).
func handleList(s *Session, hdr optionHeader) error {
	if hdr.Length != 0 {
		return drainAndReject(s, hdr, RepErrInvalid, "NBD_OPT_LIST takes no payload")
	}
	for _, e := range s.Exports.All() {
		if err := writeListEntry(s, hdr.Option, e.Name); err != nil {
			return err
		}
	}
	if s.Exports.UsesDefault() {
		if _, ok := s.Exports.Lookup(""); ok {
			if err := writeListEntry(s, hdr.Option, ""); err != nil {
				return err
			}
		}
	}
	return writeAck(s.Writer(), hdr.Option)
}

func writeListEntry(s *Session, option uint32, name string) error {
	payload := make([]byte, 4+len(name))
	payload[0] = byte(len(name) >> 24)
	payload[1] = byte(len(name) >> 16)
	payload[2] = byte(len(name) >> 8)
	payload[3] = byte(len(name))
	copy(payload[4:], name)
	return writeOptionReply(s.Writer(), option, RepServer, payload)
}

func handleStartTLS(s *Session, hdr optionHeader) error {
	if _, err := s.Reader().ReadPayload(hdr.Length, MaxOptionPayload); err != nil {
		return err
	}
	if s.TLS == nil || s.TLS.Config == nil {
		return writeOptionError(s.Writer(), hdr.Option, RepErrPolicy, "TLS not available")
	}
	if s.TLSActive() {
		return writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "TLS already active")
	}
	if err := writeAck(s.Writer(), hdr.Option); err != nil {
		return err
	}
	return s.UpgradeTLS()
}

// handleStructuredReply enables structured replies. A second occurrence
// is rejected with NBD_REP_ERR_INVALID, a deliberate redesign of the
// idempotent C behavior (spec §C).
func handleStructuredReply(s *Session, hdr optionHeader) error {
	if _, err := s.Reader().ReadPayload(hdr.Length, MaxOptionPayload); err != nil {
		return err
	}
	if s.StructuredReplyEnabled() {
		return writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "structured reply already negotiated")
	}
	s.EnableStructuredReply()
	return writeAck(s.Writer(), hdr.Option)
}

// handleMetaContextQuery implements NBD_OPT_LIST_META_CONTEXT and
// NBD_OPT_SET_META_CONTEXT, which share a payload layout (export name,
// then a list of queries). Both require structured replies to have
// already been negotiated (spec §4.2): meta-context ids are only ever
// delivered inside a structured NBD_REPLY_TYPE_BLOCK_STATUS chunk, so a
// client that can never receive one has nothing to do with a context id.
func handleMetaContextQuery(s *Session, hdr optionHeader, set bool) error {
	payload, err := s.Reader().ReadPayload(hdr.Length, MaxOptionPayload)
	if err != nil {
		return err
	}
	if !s.StructuredReplyEnabled() {
		return writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "structured replies required")
	}
	if len(payload) < 4 {
		return writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "truncated query")
	}
	exportNameLen := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	pos := 4
	if pos+exportNameLen > len(payload) {
		return writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "truncated export name")
	}
	exportName := string(payload[pos : pos+exportNameLen])
	if set {
		s.RememberMetaContextExport(exportName)
	}
	pos += exportNameLen
	if pos+4 > len(payload) {
		return writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "truncated query count")
	}
	count := int(payload[pos])<<24 | int(payload[pos+1])<<16 | int(payload[pos+2])<<8 | int(payload[pos+3])
	pos += 4

	matched := false
	for i := 0; i < count && pos < len(payload); i++ {
		if pos+4 > len(payload) {
			break
		}
		qlen := int(payload[pos])<<24 | int(payload[pos+1])<<16 | int(payload[pos+2])<<8 | int(payload[pos+3])
		pos += 4
		if pos+qlen > len(payload) {
			break
		}
		query := string(payload[pos : pos+qlen])
		pos += qlen
		if query == "base:allocation" || query == "base:" {
			matched = true
			id := MetaContextBaseAllocationID
			if set {
				id = s.RegisterMetaContext("base:allocation")
			}
			rp := make([]byte, 4+len("base:allocation"))
			rp[0] = byte(id >> 24)
			rp[1] = byte(id >> 16)
			rp[2] = byte(id >> 8)
			rp[3] = byte(id)
			copy(rp[4:], "base:allocation")
			if err := writeOptionReply(s.Writer(), hdr.Option, RepMetaContext, rp); err != nil {
				return err
			}
		}
	}
	_ = matched
	return writeAck(s.Writer(), hdr.Option)
}

func handleInfoOrGo(ctx context.Context, s *Session, hdr optionHeader, isGo bool) error {
	_, err := infoOrGoCommon(ctx, s, hdr, isGo)
	return err
}

func handleInfoOrGoReturningDone(ctx context.Context, s *Session, hdr optionHeader) (*errOptionDone, error) {
	ok, err := infoOrGoCommon(ctx, s, hdr, true)
	if err != nil || !ok {
		return nil, err
	}
	return &errOptionDone{startTransmission: true}, nil
}

// infoOrGoCommon implements NBD_OPT_INFO and NBD_OPT_GO, which share a
// payload layout and a sequence of NBD_REP_INFO replies followed by a
// terminating ACK (info) or entering the transmission phase (go),
// per spec §4.2.
func infoOrGoCommon(ctx context.Context, s *Session, hdr optionHeader, isGo bool) (bool, error) {
	payload, err := s.Reader().ReadPayload(hdr.Length, MaxOptionPayload)
	if err != nil {
		return false, err
	}
	if len(payload) < 4 {
		return false, writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "truncated query")
	}
	nameLen := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	pos := 4
	if pos+nameLen > len(payload) {
		return false, writeOptionError(s.Writer(), hdr.Option, RepErrInvalid, "truncated export name")
	}
	name := string(payload[pos : pos+nameLen])
	pos += nameLen

	exp, ok := s.Exports.Lookup(name)
	if !ok {
		return false, writeOptionError(s.Writer(), hdr.Option, RepErrUnknown, "unknown export")
	}

	bctx := backend.NewContext()
	if isGo {
		if err := exp.Chain.Head().Open(ctx, bctx, exp.ReadOnly); err != nil {
			return false, writeOptionError(s.Writer(), hdr.Option, RepErrUnknown, "failed to open export")
		}
		bctx.AddState(backend.StateOpen)
		if err := exp.Chain.Head().Prepare(ctx, bctx); err != nil {
			_ = exp.Chain.Head().Finalize(ctx, bctx)
			_ = exp.Chain.Head().Close(ctx, bctx)
			return false, writeOptionError(s.Writer(), hdr.Option, RepErrUnknown, "failed to prepare export")
		}
		bctx.AddState(backend.StateConnected)
		s.DiscardMetaContextsIfExportMismatch(name)
	}

	size, err := exp.Chain.Head().GetSize(ctx, bctx)
	if err != nil {
		if isGo {
			_ = exp.Chain.Head().Finalize(ctx, bctx)
			_ = exp.Chain.Head().Close(ctx, bctx)
		}
		return false, err
	}
	eflags, err := exportFlags(ctx, exp.Chain.Head(), bctx, s.StructuredReplyEnabled())
	if err != nil {
		if isGo {
			_ = exp.Chain.Head().Finalize(ctx, bctx)
			_ = exp.Chain.Head().Close(ctx, bctx)
		}
		return false, err
	}

	infoPayload := make([]byte, 2+8+2)
	infoPayload[0] = byte(InfoExport >> 8)
	infoPayload[1] = byte(InfoExport)
	be64(infoPayload[2:10], size)
	infoPayload[10] = byte(eflags >> 8)
	infoPayload[11] = byte(eflags)
	if err := writeOptionReply(s.Writer(), hdr.Option, RepInfo, infoPayload); err != nil {
		return false, err
	}

	if isGo {
		s.SetExport(exp, bctx, exp.ReadOnly)
	}
	return true, writeAck(s.Writer(), hdr.Option)
}

func be64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}
