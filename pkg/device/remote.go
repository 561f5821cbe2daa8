package device

import (
	"fmt"
	"sync"

	"github.com/bfsfs/bfs/pkg/channel"
)

// RemoteDevice speaks the block-device protocol over a secure channel to a
// storage daemon. Every call is a synchronous request/response pair: the
// rpc mutex spans send-then-recv so that concurrent callers never interleave
// their requests and responses on the same channel.
type RemoteDevice struct {
	DeviceID uint32
	UserID   uint64

	ch *channel.Channel

	mu sync.Mutex
}

// NewRemoteDevice wraps an already-established channel as a remote device
// peering, identified by deviceID and the userID this side presents.
func NewRemoteDevice(ch *channel.Channel, deviceID uint32, userID uint64) *RemoteDevice {
	return &RemoteDevice{DeviceID: deviceID, UserID: userID, ch: ch}
}

func (d *RemoteDevice) roundTrip(cmd Command, body []byte) (Header, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := Encode(Header{UserID: d.UserID, DeviceID: d.DeviceID, Command: cmd, Ack: 0}, body)
	if err := d.ch.Send(req); err != nil {
		return Header{}, nil, err
	}

	plaintext, err := d.ch.Recv()
	if err != nil {
		return Header{}, nil, err
	}

	respHeader, respBody, err := Decode(plaintext)
	if err != nil {
		return Header{}, nil, err
	}
	if respHeader.Command != cmd {
		return Header{}, nil, fmt.Errorf("%w: response command %s != request command %s", channel.ErrProtocol, respHeader.Command, cmd)
	}
	if respHeader.Ack != 1 {
		return Header{}, nil, fmt.Errorf("%w: response ack-flag %d != 1", channel.ErrProtocol, respHeader.Ack)
	}
	return respHeader, respBody, nil
}

// Topology issues GET_TOPO and returns the device's id and block count.
func (d *RemoteDevice) Topology() (deviceID uint32, numBlocks uint64, err error) {
	_, body, err := d.roundTrip(CmdGetTopo, nil)
	if err != nil {
		return 0, 0, err
	}
	return DecodeTopoResponse(body)
}

// GetBlock issues GET_BLOCK for pbid and copies the returned payload into dst.
func (d *RemoteDevice) GetBlock(pbid uint64, dst []byte) error {
	_, body, err := d.roundTrip(CmdGetBlock, EncodeGetBlockRequest(pbid))
	if err != nil {
		return err
	}
	data, gotPbid, err := DecodeGetBlockResponse(body)
	if err != nil {
		return err
	}
	if gotPbid != pbid {
		return fmt.Errorf("%w: GET_BLOCK returned pbid %d, requested %d", channel.ErrProtocol, gotPbid, pbid)
	}
	copy(dst, data)
	return nil
}

// PutBlock issues PUT_BLOCK for pbid with the contents of src.
func (d *RemoteDevice) PutBlock(pbid uint64, src []byte) error {
	_, body, err := d.roundTrip(CmdPutBlock, EncodePutBlockRequest(src, pbid))
	if err != nil {
		return err
	}
	gotPbid, err := DecodePutBlockResponse(body)
	if err != nil {
		return err
	}
	if gotPbid != pbid {
		return fmt.Errorf("%w: PUT_BLOCK acked pbid %d, requested %d", channel.ErrProtocol, gotPbid, pbid)
	}
	return nil
}

// GetBlocks issues a single GET_BLOCKS for the given ids.
func (d *RemoteDevice) GetBlocks(ids []uint64) ([]IDBlock, error) {
	_, body, err := d.roundTrip(CmdGetBlocks, EncodeBlockIDList(ids))
	if err != nil {
		return nil, err
	}
	return DecodeIDBlockList(body)
}

// PutBlocks issues a single PUT_BLOCKS for the given blocks.
func (d *RemoteDevice) PutBlocks(blocks []IDBlock) ([]uint64, error) {
	_, body, err := d.roundTrip(CmdPutBlocks, EncodeIDBlockList(blocks))
	if err != nil {
		return nil, err
	}
	return DecodeBlockIDList(body)
}
