package nbd

import "github.com/marmos91/nbdgo/internal/protocol/nbd/backend"

// writeSimpleReply sends a non-structured reply: header, then payload
// for a successful read (spec §6).
func writeSimpleReply(w *FramedWriter, handle uint64, errno uint32, payload []byte) error {
	if err := w.WriteSimpleReplyHeader(SimpleReply{Error: errno, Handle: handle}); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return w.WriteBytes(payload)
}

// writeStructuredReplyError sends a single NBD_REPLY_TYPE_ERROR chunk
// marked done (spec §6).
func writeStructuredReplyError(w *FramedWriter, handle uint64, errno uint32, msg string) error {
	payload := make([]byte, 4+2+len(msg))
	payload[0] = byte(errno >> 24)
	payload[1] = byte(errno >> 16)
	payload[2] = byte(errno >> 8)
	payload[3] = byte(errno)
	payload[4] = byte(len(msg) >> 8)
	payload[5] = byte(len(msg))
	copy(payload[6:], msg)
	if err := w.WriteStructuredReplyChunkHeader(StructuredReplyChunkHeader{
		Flags: StructuredReplyFlagDone, Type: ChunkError, Handle: handle, Length: uint32(len(payload)),
	}); err != nil {
		return err
	}
	return w.WriteBytes(payload)
}

// writeStructuredReplyOffsetData sends one NBD_REPLY_TYPE_OFFSET_DATA
// chunk marked done, used for NBD_CMD_READ replies once structured
// replies have been negotiated (spec §6).
func writeStructuredReplyOffsetData(w *FramedWriter, handle, offset uint64, data []byte) error {
	length := uint32(8 + len(data))
	if err := w.WriteStructuredReplyChunkHeader(StructuredReplyChunkHeader{
		Flags: StructuredReplyFlagDone, Type: ChunkOffsetData, Handle: handle, Length: length,
	}); err != nil {
		return err
	}
	if err := w.WriteUint64(offset); err != nil {
		return err
	}
	return w.WriteBytes(data)
}

// writeStructuredReplyBlockStatus sends one NBD_REPLY_TYPE_BLOCK_STATUS
// chunk marked done, carrying the context id and the descriptor list
// produced by backend.Extents.ToDescriptors (spec §4.5, §6).
func writeStructuredReplyBlockStatus(w *FramedWriter, handle uint64, contextID uint32, descriptors []backend.Descriptor) error {
	length := uint32(4 + 8*len(descriptors))
	if err := w.WriteStructuredReplyChunkHeader(StructuredReplyChunkHeader{
		Flags: StructuredReplyFlagDone, Type: ChunkBlockStatus, Handle: handle, Length: length,
	}); err != nil {
		return err
	}
	if err := w.WriteUint32(contextID); err != nil {
		return err
	}
	for _, d := range descriptors {
		if err := w.WriteUint32(d.Length); err != nil {
			return err
		}
		if err := w.WriteUint32(d.Flags); err != nil {
			return err
		}
	}
	return nil
}
