// Package nbd implements the Network Block Device wire protocol: handshake,
// option negotiation, request dispatch, and reply framing. The wire is
// big-endian throughout.
package nbd

// Magic numbers, per the NBD protocol specification.
const (
	OldstyleMagic  uint64 = 0x4e42444d41474943 // "NBDMAGIC"
	OldVersionMagic uint64 = 0x00420281861253
	NewstyleMagic  uint64 = 0x49484156454f5054

	OptionMagic      uint64 = 0x49484156454f5054
	OptionReplyMagic uint64 = 0x0003e889045565a9

	RequestMagic         uint32 = 0x25609513
	SimpleReplyMagic     uint32 = 0x67446698
	StructuredReplyMagic uint32 = 0x668e33ef
)

// Global flags (gflags), sent by the server before cflags.
const (
	FlagFixedNewstyle uint16 = 1 << 0
	FlagNoZeroes      uint16 = 1 << 1
)

// Client flags (cflags), must be a subset of gflags.
const (
	ClientFlagFixedNewstyle uint32 = 1 << 0
	ClientFlagNoZeroes      uint32 = 1 << 1
)

// Export flags (eflags), sent with the export size.
const (
	EFlagHasFlags    uint16 = 1 << 0
	EFlagReadOnly    uint16 = 1 << 1
	EFlagSendFlush   uint16 = 1 << 2
	EFlagSendFUA     uint16 = 1 << 3
	EFlagRotational  uint16 = 1 << 4
	EFlagSendTrim    uint16 = 1 << 5
	EFlagSendWriteZeroes uint16 = 1 << 6
	EFlagSendDF      uint16 = 1 << 7
	EFlagCanMultiConn uint16 = 1 << 8
	EFlagSendCache   uint16 = 1 << 9
	EFlagSendFastZero uint16 = 1 << 10
)

// Newstyle option codes (client -> server).
const (
	OptExportName       uint32 = 1
	OptAbort             uint32 = 2
	OptList              uint32 = 3
	OptStartTLS          uint32 = 5
	OptInfo              uint32 = 6
	OptGo                uint32 = 7
	OptStructuredReply   uint32 = 8
	OptListMetaContext   uint32 = 9
	OptSetMetaContext    uint32 = 10
)

// Option reply codes (server -> client).
const (
	RepAck          uint32 = 1
	RepServer       uint32 = 2
	RepInfo         uint32 = 3
	RepMetaContext  uint32 = 4

	repErrBase           uint32 = 1 << 31
	RepErrUnsup          uint32 = repErrBase | 1
	RepErrPolicy         uint32 = repErrBase | 2
	RepErrInvalid        uint32 = repErrBase | 3
	RepErrPlatform       uint32 = repErrBase | 4
	RepErrTLSReqd        uint32 = repErrBase | 5
	RepErrUnknown        uint32 = repErrBase | 6
	RepErrShutdown       uint32 = repErrBase | 7
	RepErrBlockSizeReqd  uint32 = repErrBase | 8
	RepErrTooBig         uint32 = repErrBase | 9
)

// NBD_INFO_* sub-types carried by NBD_OPT_INFO / NBD_OPT_GO replies.
const (
	InfoExport      uint16 = 0
	InfoName        uint16 = 1
	InfoDescription uint16 = 2
	InfoBlockSize   uint16 = 3
)

// Request command types.
const (
	CmdRead         uint16 = 0
	CmdWrite        uint16 = 1
	CmdDisc         uint16 = 2
	CmdFlush        uint16 = 3
	CmdTrim         uint16 = 4
	CmdCache        uint16 = 5
	CmdWriteZeroes  uint16 = 6
	CmdBlockStatus  uint16 = 7
)

// Request command flags.
const (
	CmdFlagFUA       uint16 = 1 << 0
	CmdFlagNoHole    uint16 = 1 << 1
	CmdFlagDF        uint16 = 1 << 2
	CmdFlagReqOne    uint16 = 1 << 3
	CmdFlagFastZero  uint16 = 1 << 4
)

// Structured reply chunk flags and types.
const (
	StructuredReplyFlagDone uint16 = 1 << 0

	ChunkOffsetData   uint16 = 1
	ChunkOffsetHole   uint16 = 2
	ChunkBlockStatus  uint16 = 5
	ChunkError        uint16 = 0x8001
)

// NBD wire error codes (carried in simple/structured replies), distinct
// from the option negotiation NBD_REP_ERR_* codes above.
const (
	ESuccess      uint32 = 0
	EPerm         uint32 = 1
	EIO           uint32 = 5
	ENoMem        uint32 = 12
	EInval        uint32 = 22
	ENoSpc        uint32 = 28
	EOverflow     uint32 = 75
	EShutdown     uint32 = 108
	ENotSup       uint32 = 95
)

// Size limits enforced by the protocol engine.
const (
	// MaxPayload bounds a single READ/WRITE data transfer.
	MaxPayload = 64 * 1024 * 1024

	// MaxOptionPayload bounds a handshake option's payload.
	MaxOptionPayload = 16 * 1024 * 1024

	// MaxOptionLoop bounds the number of options processed per connection
	// before the server gives up and disconnects (spec §4.2).
	MaxOptionLoop = 32

	// ExportNameMaxLen bounds the length of export/description strings
	// carried in LIST and INFO/GO replies (spec §4.6).
	ExportNameMaxLen = 4096

	// MaxExports bounds the exports list (spec §4.6).
	MaxExports = 10000

	// MaxExtents bounds an extents list (spec §4.5 / §3).
	MaxExtents = 1024 * 1024

	// MetaContextBaseAllocationID is the fixed context id this server
	// assigns to "base:allocation" (spec §4.2).
	MetaContextBaseAllocationID uint32 = 1
)
