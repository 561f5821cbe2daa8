// Package device implements the BFS remote block-device protocol (C2):
// the request/response state machine for GET_TOPO / GET_BLOCK / PUT_BLOCK /
// GET_BLOCKS / PUT_BLOCKS, a local memory-mapped device, a remote device
// client speaking the protocol over a secure channel, and the storage
// daemon's listen/accept/dispatch event loop.
package device

import (
	"errors"
	"fmt"

	"github.com/bfsfs/bfs/pkg/wire"
)

// BlockSize is the fixed physical/virtual block payload size.
const BlockSize = 4096

// Command identifies a block-device protocol operation.
type Command uint8

const (
	CmdGetTopo   Command = 0
	CmdGetBlock  Command = 1
	CmdPutBlock  Command = 2
	CmdGetBlocks Command = 3
	CmdPutBlocks Command = 4
)

func (c Command) String() string {
	switch c {
	case CmdGetTopo:
		return "GET_TOPO"
	case CmdGetBlock:
		return "GET_BLOCK"
	case CmdPutBlock:
		return "PUT_BLOCK"
	case CmdGetBlocks:
		return "GET_BLOCKS"
	case CmdPutBlocks:
		return "PUT_BLOCKS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
	}
}

// HeaderSize is the encoded size of Header.
const HeaderSize = 8 + 4 + 1 + 1 + 4

// Header is the device-protocol frame header, present on every request and
// response frame. Ack is 0 on request, 1 on response.
type Header struct {
	UserID     uint64
	DeviceID   uint32
	Command    Command
	Ack        uint8
	BodyLength uint32
}

// Encode serializes the header followed by body into a single plaintext
// buffer suitable for Channel.Send.
func Encode(h Header, body []byte) []byte {
	w := wire.NewWriter(HeaderSize + len(body))
	w.WriteUint64(h.UserID)
	w.WriteUint32(h.DeviceID)
	w.WriteUint8(uint8(h.Command))
	w.WriteUint8(h.Ack)
	w.WriteUint32(uint32(len(body)))
	w.WriteBytes(body)
	return w.Bytes()
}

// ErrShortFrame is returned when a plaintext payload is too small to
// contain a Header.
var ErrShortFrame = errors.New("device: short frame")

// Decode splits a plaintext payload into its Header and body.
func Decode(payload []byte) (Header, []byte, error) {
	r := wire.NewReader(payload)
	h := Header{
		UserID:   r.ReadUint64(),
		DeviceID: r.ReadUint32(),
		Command:  Command(r.ReadUint8()),
		Ack:      r.ReadUint8(),
	}
	h.BodyLength = r.ReadUint32()
	if r.Err() != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrShortFrame, r.Err())
	}
	body := r.ReadBytes(int(h.BodyLength))
	if r.Err() != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrShortFrame, r.Err())
	}
	return h, body, nil
}

// EncodeGetBlockRequest builds the GET_BLOCK request body: physical-block-id.
func EncodeGetBlockRequest(pbid uint64) []byte {
	w := wire.NewWriter(8)
	w.WriteUint64(pbid)
	return w.Bytes()
}

// DecodeGetBlockRequest parses a GET_BLOCK request body.
func DecodeGetBlockRequest(body []byte) (uint64, error) {
	r := wire.NewReader(body)
	pbid := r.ReadUint64()
	return pbid, r.Err()
}

// EncodeGetBlockResponse builds the GET_BLOCK response body: data || pbid.
func EncodeGetBlockResponse(data []byte, pbid uint64) []byte {
	w := wire.NewWriter(BlockSize + 8)
	w.WriteBytes(data)
	w.WriteUint64(pbid)
	return w.Bytes()
}

// DecodeGetBlockResponse parses a GET_BLOCK response body.
func DecodeGetBlockResponse(body []byte) (data []byte, pbid uint64, err error) {
	r := wire.NewReader(body)
	data = r.ReadBytes(BlockSize)
	pbid = r.ReadUint64()
	return data, pbid, r.Err()
}

// EncodePutBlockRequest builds the PUT_BLOCK request body: data || pbid.
func EncodePutBlockRequest(data []byte, pbid uint64) []byte {
	w := wire.NewWriter(BlockSize + 8)
	w.WriteBytes(data)
	w.WriteUint64(pbid)
	return w.Bytes()
}

// DecodePutBlockRequest parses a PUT_BLOCK request body.
func DecodePutBlockRequest(body []byte) (data []byte, pbid uint64, err error) {
	r := wire.NewReader(body)
	data = r.ReadBytes(BlockSize)
	pbid = r.ReadUint64()
	return data, pbid, r.Err()
}

// EncodePutBlockResponse builds the PUT_BLOCK response body: pbid.
func EncodePutBlockResponse(pbid uint64) []byte {
	w := wire.NewWriter(8)
	w.WriteUint64(pbid)
	return w.Bytes()
}

// DecodePutBlockResponse parses a PUT_BLOCK response body.
func DecodePutBlockResponse(body []byte) (uint64, error) {
	r := wire.NewReader(body)
	pbid := r.ReadUint64()
	return pbid, r.Err()
}

// EncodeTopoResponse builds the GET_TOPO response body: {device-id, num-blocks}.
func EncodeTopoResponse(deviceID uint32, numBlocks uint64) []byte {
	w := wire.NewWriter(12)
	w.WriteUint32(deviceID)
	w.WriteUint64(numBlocks)
	return w.Bytes()
}

// DecodeTopoResponse parses a GET_TOPO response body.
func DecodeTopoResponse(body []byte) (deviceID uint32, numBlocks uint64, err error) {
	r := wire.NewReader(body)
	deviceID = r.ReadUint32()
	numBlocks = r.ReadUint64()
	return deviceID, numBlocks, r.Err()
}

// EncodeBlockIDList builds a `count || [id]×count` body, used by GET_BLOCKS
// requests and PUT_BLOCKS responses.
func EncodeBlockIDList(ids []uint64) []byte {
	w := wire.NewWriter(4 + 8*len(ids))
	w.WriteUint32(uint32(len(ids)))
	for _, id := range ids {
		w.WriteUint64(id)
	}
	return w.Bytes()
}

// DecodeBlockIDList parses a `count || [id]×count` body.
func DecodeBlockIDList(body []byte) ([]uint64, error) {
	r := wire.NewReader(body)
	count := r.ReadUint32()
	ids := make([]uint64, count)
	for i := range ids {
		ids[i] = r.ReadUint64()
	}
	return ids, r.Err()
}

// IDBlock pairs a physical-block-id with its 4 KiB payload, the unit used by
// GET_BLOCKS responses and PUT_BLOCKS requests.
type IDBlock struct {
	ID   uint64
	Data []byte
}

// EncodeIDBlockList builds a `count || ([id || 4 KiB])×count` body.
func EncodeIDBlockList(blocks []IDBlock) []byte {
	w := wire.NewWriter(4 + len(blocks)*(8+BlockSize))
	w.WriteUint32(uint32(len(blocks)))
	for _, b := range blocks {
		w.WriteUint64(b.ID)
		w.WriteBytes(b.Data)
	}
	return w.Bytes()
}

// DecodeIDBlockList parses a `count || ([id || 4 KiB])×count` body.
func DecodeIDBlockList(body []byte) ([]IDBlock, error) {
	r := wire.NewReader(body)
	count := r.ReadUint32()
	blocks := make([]IDBlock, count)
	for i := range blocks {
		blocks[i].ID = r.ReadUint64()
		blocks[i].Data = r.ReadBytes(BlockSize)
	}
	return blocks, r.Err()
}
