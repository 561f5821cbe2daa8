package clientcache

import (
	"github.com/bfsfs/bfs/pkg/wire"
)

// OpType enumerates the filesystem-boundary operations a client RPC frame
// may carry. Bodies are encoded/decoded here only for INIT/INIT_MKFS,
// READ, WRITE and TRUNCATE; the rest are named for stability of the wire
// identifiers across client and server builds.
type OpType int32

const (
	OpInit OpType = iota
	OpInitMkfs
	OpDestroy
	OpGetattr
	OpMkdir
	OpUnlink
	OpRmdir
	OpRename
	OpChmod
	OpOpen
	OpOpendir
	OpCreate
	OpRead
	OpWrite
	OpRelease
	OpReaddir
	OpTruncate
)

// MsgType distinguishes a request frame from its response.
type MsgType int32

const (
	MsgRequest MsgType = iota
	MsgResponse
)

// Conn is the framed, encrypted transport the cache sends RPCs over.
// *channel.Channel satisfies it.
type Conn interface {
	Send(plaintext []byte) error
	Recv() ([]byte, error)
}

func encodeHeader(w *wire.Writer, op OpType, msg MsgType) {
	w.WriteInt32(int32(op))
	w.WriteInt32(int32(msg))
}

func decodeHeader(r *wire.Reader) (OpType, MsgType) {
	op := r.ReadInt32()
	msg := r.ReadInt32()
	return OpType(op), MsgType(msg)
}

// EncodeInitRequest builds the mount-time handshake frame: INIT_MKFS when
// mkfs requests the server zero-initialize its backing store before this
// session begins, INIT otherwise. Envelope only; the core defines no body
// for either op.
func EncodeInitRequest(mkfs bool) []byte {
	w := wire.NewWriter(8)
	op := OpInit
	if mkfs {
		op = OpInitMkfs
	}
	encodeHeader(w, op, MsgRequest)
	return w.Bytes()
}

// DecodeInitResponse parses the {result} reply to an INIT/INIT_MKFS request.
func DecodeInitResponse(frame []byte) (result int32, err error) {
	r := wire.NewReader(frame)
	_, _ = decodeHeader(r)
	result = r.ReadInt32()
	return result, r.Err()
}

// EncodeWriteRequest builds a WRITE op frame: {handle, size, offset, data}.
func EncodeWriteRequest(handle, offset uint64, data []byte) []byte {
	w := wire.NewWriter(24 + len(data))
	encodeHeader(w, OpWrite, MsgRequest)
	w.WriteUint64(handle)
	w.WriteUint64(uint64(len(data)))
	w.WriteUint64(offset)
	w.WriteBytes(data)
	return w.Bytes()
}

// DecodeWriteRequest parses a WRITE request frame.
func DecodeWriteRequest(frame []byte) (handle, offset uint64, data []byte, err error) {
	r := wire.NewReader(frame)
	_, _ = decodeHeader(r)
	handle = r.ReadUint64()
	size := r.ReadUint64()
	offset = r.ReadUint64()
	data = r.ReadBytes(int(size))
	return handle, offset, data, r.Err()
}

// EncodeWriteResponse builds the {bytes_written} reply to a WRITE request.
func EncodeWriteResponse(bytesWritten uint64) []byte {
	w := wire.NewWriter(16)
	encodeHeader(w, OpWrite, MsgResponse)
	w.WriteUint64(bytesWritten)
	return w.Bytes()
}

// DecodeWriteResponse parses a WRITE response frame.
func DecodeWriteResponse(frame []byte) (bytesWritten uint64, err error) {
	r := wire.NewReader(frame)
	_, _ = decodeHeader(r)
	bytesWritten = r.ReadUint64()
	return bytesWritten, r.Err()
}

// EncodeReadRequest builds a READ op frame: {handle, size, offset}.
func EncodeReadRequest(handle, offset, size uint64) []byte {
	w := wire.NewWriter(24)
	encodeHeader(w, OpRead, MsgRequest)
	w.WriteUint64(handle)
	w.WriteUint64(size)
	w.WriteUint64(offset)
	return w.Bytes()
}

// DecodeReadResponse parses a READ response frame carrying the data read.
func DecodeReadResponse(frame []byte) (data []byte, err error) {
	r := wire.NewReader(frame)
	_, _ = decodeHeader(r)
	size := r.ReadUint64()
	data = r.ReadBytes(int(size))
	return data, r.Err()
}

// EncodeTruncateRequest builds a TRUNCATE op frame: {handle, size}.
func EncodeTruncateRequest(handle, size uint64) []byte {
	w := wire.NewWriter(16)
	encodeHeader(w, OpTruncate, MsgRequest)
	w.WriteUint64(handle)
	w.WriteUint64(size)
	return w.Bytes()
}

// DecodeTruncateResponse parses the {result} reply to a TRUNCATE request.
func DecodeTruncateResponse(frame []byte) (result int32, err error) {
	r := wire.NewReader(frame)
	_, _ = decodeHeader(r)
	result = r.ReadInt32()
	return result, r.Err()
}
