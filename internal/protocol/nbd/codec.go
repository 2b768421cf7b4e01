package nbd

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ErrPayloadTooLarge is returned when a peer announces a payload length
// beyond the bound the caller passed to readPayload.
var ErrPayloadTooLarge = fmt.Errorf("nbd: payload exceeds maximum allowed size")

// FramedReader wraps an io.Reader with the big-endian fixed-width helpers
// the handshake and request paths need. It is not safe for concurrent use;
// callers serialize reads per connection (spec §5's "read lock").
type FramedReader struct {
	r io.Reader
}

func NewFramedReader(r io.Reader) *FramedReader { return &FramedReader{r: r} }

func (f *FramedReader) ReadUint8() (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(f.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f *FramedReader) ReadUint16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(f.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (f *FramedReader) ReadUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(f.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (f *FramedReader) ReadUint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(f.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// ReadPayload reads exactly n bytes, rejecting n beyond max. A caller that
// has already announced n to the peer (e.g. an option or request length)
// must bound it before calling this, so the error path below is defensive
// against a peer that lies about its own framing.
func (f *FramedReader) ReadPayload(n, max uint32) ([]byte, error) {
	if n > max {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// FramedWriter wraps an io.Writer with the matching big-endian helpers.
// Not safe for concurrent use; callers serialize writes per connection
// (spec §5's "write lock").
type FramedWriter struct {
	w io.Writer
}

func NewFramedWriter(w io.Writer) *FramedWriter { return &FramedWriter{w: w} }

func (f *FramedWriter) WriteUint8(v uint8) error {
	_, err := f.w.Write([]byte{v})
	return err
}

func (f *FramedWriter) WriteUint16(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := f.w.Write(b[:])
	return err
}

func (f *FramedWriter) WriteUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := f.w.Write(b[:])
	return err
}

func (f *FramedWriter) WriteUint64(v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := f.w.Write(b[:])
	return err
}

func (f *FramedWriter) WriteBytes(b []byte) error {
	_, err := f.w.Write(b)
	return err
}

// Request is the fixed 28-byte request header (spec §6).
type Request struct {
	Magic  uint32
	Flags  uint16
	Type   uint16
	Handle uint64
	Offset uint64
	Length uint32
}

func (f *FramedReader) ReadRequest() (Request, error) {
	var req Request
	var err error
	if req.Magic, err = f.ReadUint32(); err != nil {
		return req, err
	}
	if req.Magic != RequestMagic {
		return req, fmt.Errorf("nbd: bad request magic %#x", req.Magic)
	}
	if req.Flags, err = f.ReadUint16(); err != nil {
		return req, err
	}
	if req.Type, err = f.ReadUint16(); err != nil {
		return req, err
	}
	if req.Handle, err = f.ReadUint64(); err != nil {
		return req, err
	}
	if req.Offset, err = f.ReadUint64(); err != nil {
		return req, err
	}
	if req.Length, err = f.ReadUint32(); err != nil {
		return req, err
	}
	return req, nil
}

// SimpleReply is the fixed 16-byte simple-reply header (spec §6), followed
// by payload data for NBD_CMD_READ.
type SimpleReply struct {
	Magic  uint32
	Error  uint32
	Handle uint64
}

func (f *FramedWriter) WriteSimpleReplyHeader(r SimpleReply) error {
	if err := f.WriteUint32(SimpleReplyMagic); err != nil {
		return err
	}
	if err := f.WriteUint32(r.Error); err != nil {
		return err
	}
	return f.WriteUint64(r.Handle)
}

// StructuredReplyChunkHeader is the fixed 20-byte structured-reply chunk
// header (spec §6), followed by a chunk-type-specific payload.
type StructuredReplyChunkHeader struct {
	Flags  uint16
	Type   uint16
	Handle uint64
	Length uint32
}

func (f *FramedWriter) WriteStructuredReplyChunkHeader(h StructuredReplyChunkHeader) error {
	if err := f.WriteUint32(StructuredReplyMagic); err != nil {
		return err
	}
	if err := f.WriteUint16(h.Flags); err != nil {
		return err
	}
	if err := f.WriteUint16(h.Type); err != nil {
		return err
	}
	if err := f.WriteUint64(h.Handle); err != nil {
		return err
	}
	return f.WriteUint32(h.Length)
}
