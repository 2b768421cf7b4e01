package nbd

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/exports"
)

// TLSConfig is the external collaborator the handshake upgrades to on a
// successful NBD_OPT_STARTTLS (spec §4.2's TLS boundary). Supplying nil
// disables STARTTLS advertisement entirely.
type TLSConfig struct {
	Config *tls.Config
	// Required forces every non-TLS option other than STARTTLS/ABORT to
	// fail with NBD_REP_ERR_TLS_REQD until the upgrade completes.
	Required bool
}

// Session holds one client connection's negotiated protocol state across
// the handshake and request-serving phases. It owns the current
// reader/writer pair so a STARTTLS upgrade can rebind both to a
// *tls.Conn without the caller needing to track which layer is active
// (spec §4.2's "rebinding recv/send/close").
type Session struct {
	conn net.Conn
	r    *FramedReader
	w    *FramedWriter

	Exports *exports.List
	TLS     *TLSConfig

	// Negotiated state.
	structuredReplyEnabled bool
	fixedNewstyle          bool
	tlsActive               bool
	metaContexts            map[string]uint32
	nextMetaContextID       uint32
	// metaContextExport remembers the export name the most recent
	// NBD_OPT_SET_META_CONTEXT was issued against, so a later
	// NBD_OPT_GO/NBD_OPT_EXPORT_NAME for a different export can discard
	// the stale meta_context_base_allocation (spec §4.2: "contexts are
	// per-export").
	metaContextExport   string
	metaContextExportSet bool

	export *exports.Export
	bctx   *backend.Context

	readOnly bool
}

func NewSession(conn net.Conn, exportList *exports.List, tlsCfg *TLSConfig) *Session {
	return &Session{
		conn:              conn,
		r:                 NewFramedReader(conn),
		w:                 NewFramedWriter(conn),
		Exports:           exportList,
		TLS:               tlsCfg,
		metaContexts:      make(map[string]uint32),
		nextMetaContextID: MetaContextBaseAllocationID + 1,
	}
}

func (s *Session) Reader() *FramedReader { return s.r }
func (s *Session) Writer() *FramedWriter { return s.w }

// UpgradeTLS performs the server-side handshake on the raw connection and
// rebinds the session's reader/writer to the resulting *tls.Conn. Once
// called, every subsequent frame is encrypted (spec §4.2).
func (s *Session) UpgradeTLS() error {
	if s.TLS == nil || s.TLS.Config == nil {
		return fmt.Errorf("nbd: TLS not configured")
	}
	tlsConn := tls.Server(s.conn, s.TLS.Config)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("nbd: TLS handshake: %w", err)
	}
	s.conn = tlsConn
	s.r = NewFramedReader(tlsConn)
	s.w = NewFramedWriter(tlsConn)
	s.tlsActive = true

	// A successful STARTTLS resets every negotiation-scoped bit of state
	// established before the upgrade (spec §4.2): the client must
	// re-negotiate structured replies and meta contexts over the now-
	// encrypted channel rather than inherit state from the plaintext
	// phase an eavesdropper could have influenced.
	s.structuredReplyEnabled = false
	s.metaContexts = make(map[string]uint32)
	s.nextMetaContextID = MetaContextBaseAllocationID + 1
	s.metaContextExport = ""
	s.metaContextExportSet = false

	return nil
}

func (s *Session) TLSActive() bool { return s.tlsActive }

// SetFixedNewstyle records whether the client's cflags included
// NBD_FLAG_C_FIXED_NEWSTYLE (spec §4.2). A client lacking it may only
// send NBD_OPT_EXPORT_NAME before the connection moves to the
// transmission phase.
func (s *Session) SetFixedNewstyle(v bool) { s.fixedNewstyle = v }

func (s *Session) FixedNewstyle() bool { return s.fixedNewstyle }

// Close tears down the connection, closing whichever layer (plain or
// TLS) is currently bound.
func (s *Session) Close() error { return s.conn.Close() }

// EnableStructuredReply records that NBD_OPT_STRUCTURED_REPLY succeeded.
// A second request is rejected by the option handler itself (spec §C),
// so this setter runs at most once before a STARTTLS upgrade;
// UpgradeTLS clears the flag, after which it may be set again.
func (s *Session) EnableStructuredReply() { s.structuredReplyEnabled = true }

func (s *Session) StructuredReplyEnabled() bool { return s.structuredReplyEnabled }

// RegisterMetaContext assigns (or returns the existing) id for a context
// name requested via NBD_OPT_SET_META_CONTEXT (spec §4.2).
func (s *Session) RegisterMetaContext(name string) uint32 {
	if name == "base:allocation" {
		s.metaContexts[name] = MetaContextBaseAllocationID
		return MetaContextBaseAllocationID
	}
	if id, ok := s.metaContexts[name]; ok {
		return id
	}
	id := s.nextMetaContextID
	s.nextMetaContextID++
	s.metaContexts[name] = id
	return id
}

func (s *Session) MetaContextID(name string) (uint32, bool) {
	id, ok := s.metaContexts[name]
	return id, ok
}

func (s *Session) HasMetaContext(name string) bool {
	_, ok := s.metaContexts[name]
	return ok
}

// RememberMetaContextExport records the export name an
// NBD_OPT_SET_META_CONTEXT was issued against.
func (s *Session) RememberMetaContextExport(name string) {
	s.metaContextExport = name
	s.metaContextExportSet = true
}

// DiscardMetaContextsIfExportMismatch drops every registered meta
// context when the export actually opened differs from the one
// NBD_OPT_SET_META_CONTEXT was last issued against, since contexts are
// scoped per-export (spec §4.2). A no-op if SET_META_CONTEXT was never
// sent.
func (s *Session) DiscardMetaContextsIfExportMismatch(openedExport string) {
	if !s.metaContextExportSet || s.metaContextExport == openedExport {
		return
	}
	s.metaContexts = make(map[string]uint32)
	s.nextMetaContextID = MetaContextBaseAllocationID + 1
}

func (s *Session) SetExport(e *exports.Export, bctx *backend.Context, readOnly bool) {
	s.export = e
	s.bctx = bctx
	s.readOnly = readOnly
}

func (s *Session) Export() *exports.Export    { return s.export }
func (s *Session) BackendContext() *backend.Context { return s.bctx }
func (s *Session) ReadOnly() bool             { return s.readOnly }

var _ io.Closer = (*Session)(nil)
