package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bfsfs/bfs/internal/logger"
	"github.com/bfsfs/bfs/pkg/channel"
	"github.com/bfsfs/bfs/pkg/crypto"
)

// State is the storage daemon's lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReady:
		return "READY"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Daemon owns one LocalDevice and services the block-device protocol for a
// single configured peer (one user-id) over any number of accepted
// connections. It is single-threaded by design: one goroutine runs the
// accept-and-dispatch loop, multiplexed over the listen socket and all
// accepted client sockets via pkg/channel's Select primitive.
type Daemon struct {
	local      *LocalDevice
	sa         *crypto.SecurityAssociation
	peerUserID uint64

	state atomicState

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// atomicState is an atomic wrapper around State.
type atomicState struct{ v atomic.Int32 }

func (s *atomicState) Load() State      { return State(s.v.Load()) }
func (s *atomicState) Store(state State) { s.v.Store(int32(state)) }

// NewDaemon constructs a Daemon bound to local, authenticating every frame
// against sa and accepting only frames whose user-id matches peerUserID.
func NewDaemon(local *LocalDevice, sa *crypto.SecurityAssociation, peerUserID uint64) *Daemon {
	d := &Daemon{
		local:      local,
		sa:         sa,
		peerUserID: peerUserID,
		shutdownCh: make(chan struct{}),
	}
	d.state.Store(StateUninitialized)
	return d
}

// Shutdown requests a clean shutdown; Serve observes it at the next loop
// iteration and drains. Safe to call more than once or concurrently.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

func (d *Daemon) shuttingDown() bool {
	select {
	case <-d.shutdownCh:
		return true
	default:
		return false
	}
}

// NotifyShutdownOnSignal arranges for SIGINT to call Shutdown, matching the
// daemon's documented "a flag observed at loop head" shutdown contract. It
// returns a stop function that releases the signal handler.
func (d *Daemon) NotifyShutdownOnSignal() (stop func()) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT)
	go func() {
		<-ctx.Done()
		d.Shutdown()
	}()
	return cancel
}

// State returns the daemon's current lifecycle state.
func (d *Daemon) State() State { return d.state.Load() }

// Serve accepts connections on listener and runs the dispatch loop until
// Shutdown is called or a mapping/IO error occurs. It returns nil on clean
// shutdown and a non-nil error if the daemon transitioned to ERRORED.
func (d *Daemon) Serve(listener net.Listener) error {
	d.state.Store(StateReady)

	newConns := make(chan net.Conn)
	acceptErrs := make(chan error, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				acceptErrs <- err
				return
			}
			newConns <- conn
		}
	}()

	var channels []*channel.Channel
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
		listener.Close()
	}()

	for {
		if d.shuttingDown() {
			return nil
		}

		select {
		case conn := <-newConns:
			ch := channel.Accept(conn, d.sa)
			channels = append(channels, ch)
			logger.Info("device: accepted connection", logger.DeviceID(d.local.DeviceID))
		case err := <-acceptErrs:
			d.state.Store(StateErrored)
			return fmt.Errorf("%w: accept: %v", ErrIO, err)
		default:
		}

		ready := channel.Select(channels, 200*time.Millisecond)
		for _, ch := range ready {
			if fatal := d.handleFrame(ch); fatal {
				d.state.Store(StateErrored)
				return ErrIO
			}
		}
		channels = pruneClosed(channels)
	}
}

// handleFrame processes exactly one ready frame on ch. It returns true if
// the error is a mapping/IO failure that must take down the whole daemon;
// any other protocol or decode failure closes only this connection.
func (d *Daemon) handleFrame(ch *channel.Channel) bool {
	plaintext, err := ch.Recv()
	if err != nil {
		ch.Close()
		return false
	}

	hdr, body, err := Decode(plaintext)
	if err != nil {
		logger.Warn("device: malformed frame", logger.Err(err))
		ch.Close()
		return false
	}

	if hdr.Ack != 0 || hdr.DeviceID != d.local.DeviceID || hdr.UserID != d.peerUserID {
		logger.Warn("device: rejected frame",
			"command", hdr.Command.String(), "ack", hdr.Ack, "device_id", hdr.DeviceID)
		ch.Close()
		return false
	}

	start := time.Now()
	respBody, err := d.dispatch(hdr.Command, body)
	logger.Debug("device: dispatched command",
		logger.DeviceID(hdr.DeviceID), "command", hdr.Command.String(),
		logger.Err(err), "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		if errors.Is(err, ErrIO) {
			logger.Error("device: mapping/io error, shutting down", logger.Err(err))
			return true
		}
		logger.Warn("device: command failed", "command", hdr.Command.String(), logger.Err(err))
		ch.Close()
		return false
	}

	resp := Encode(Header{UserID: hdr.UserID, DeviceID: hdr.DeviceID, Command: hdr.Command, Ack: 1}, respBody)
	if err := ch.Send(resp); err != nil {
		ch.Close()
	}
	return false
}

func (d *Daemon) dispatch(cmd Command, body []byte) ([]byte, error) {
	switch cmd {
	case CmdGetTopo:
		id, n := d.local.Topology()
		return EncodeTopoResponse(id, n), nil

	case CmdGetBlock:
		pbid, err := DecodeGetBlockRequest(body)
		if err != nil {
			return nil, err
		}
		data := make([]byte, BlockSize)
		if err := d.local.GetBlock(pbid, data); err != nil {
			return nil, err
		}
		return EncodeGetBlockResponse(data, pbid), nil

	case CmdPutBlock:
		data, pbid, err := DecodePutBlockRequest(body)
		if err != nil {
			return nil, err
		}
		if err := d.local.PutBlock(pbid, data); err != nil {
			return nil, err
		}
		return EncodePutBlockResponse(pbid), nil

	case CmdGetBlocks:
		ids, err := DecodeBlockIDList(body)
		if err != nil {
			return nil, err
		}
		blocks, err := d.local.GetBlocks(ids)
		if err != nil {
			return nil, err
		}
		return EncodeIDBlockList(blocks), nil

	case CmdPutBlocks:
		blocks, err := DecodeIDBlockList(body)
		if err != nil {
			return nil, err
		}
		ids, err := d.local.PutBlocks(blocks)
		if err != nil {
			return nil, err
		}
		return EncodeBlockIDList(ids), nil

	default:
		return nil, fmt.Errorf("%w: unknown command %d", channel.ErrProtocol, cmd)
	}
}

func pruneClosed(channels []*channel.Channel) []*channel.Channel {
	out := channels[:0]
	for _, ch := range channels {
		if err := ch.ErrSnapshot(); err == nil {
			out = append(out, ch)
		}
	}
	return out
}
