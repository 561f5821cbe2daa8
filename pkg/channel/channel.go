// Package channel implements the BFS secure message channel (C1):
// length-prefixed framed transport with a per-direction AEAD session and
// replay protection via strictly increasing sequence counters.
//
// A Channel wraps a single net.Conn and a single security association. Send
// and receive are independent operations, each guarded by its own mutex, so
// a frame is always written or read atomically with respect to concurrent
// callers on the same side. Callers that issue request/response pairs must
// hold a higher-level lock spanning send-then-recv to preserve ordering.
package channel

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/bfsfs/bfs/internal/logger"
	"github.com/bfsfs/bfs/pkg/crypto"
)

// DefaultMaxFrameSize bounds the largest encrypted frame a Channel will
// accept. A bulk GET_BLOCKS/PUT_BLOCKS response can carry many 4 KiB blocks;
// 8 MiB comfortably covers the bulk operations this protocol defines.
const DefaultMaxFrameSize = 8 << 20

// Channel is one framed, encrypted, replay-protected transport endpoint
// bound to a single SecurityAssociation.
type Channel struct {
	conn net.Conn
	sa   *crypto.SecurityAssociation

	maxFrameSize uint32

	sendMu sync.Mutex

	mu    sync.Mutex
	queue [][]byte
	err   error
	sig   chan struct{}

	traceID  string
	peerAddr string
}

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithMaxFrameSize overrides DefaultMaxFrameSize.
func WithMaxFrameSize(n uint32) Option {
	return func(c *Channel) { c.maxFrameSize = n }
}

func newChannel(conn net.Conn, sa *crypto.SecurityAssociation, opts ...Option) *Channel {
	c := &Channel{
		conn:         conn,
		sa:           sa,
		maxFrameSize: DefaultMaxFrameSize,
		sig:          make(chan struct{}),
		traceID:      uuid.NewString(),
		peerAddr:     conn.RemoteAddr().String(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.pump()
	return c
}

// Connect dials address, disables Nagle's algorithm, and returns a Channel
// bound to sa acting as the session initiator.
func Connect(address string, sa *crypto.SecurityAssociation, opts ...Option) (*Channel, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrIO, address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return newChannel(conn, sa, opts...), nil
}

// Accept wraps an already-accepted connection (e.g. from a listener's
// Accept()) as a Channel bound to sa acting as the session responder.
func Accept(conn net.Conn, sa *crypto.SecurityAssociation, opts ...Option) *Channel {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return newChannel(conn, sa, opts...)
}

// LogContext returns a logger.LogContext describing this session, suitable
// for WithContext/FromContext propagation through handler goroutines.
func (c *Channel) LogContext() *logger.LogContext {
	lc := logger.NewLogContext(c.peerAddr)
	lc.TraceID = c.traceID
	lc.Session = c.sa.Initiator + "/" + c.sa.Responder
	return lc
}

// Send atomically transmits a framed, encrypted message.
func (c *Channel) Send(plaintext []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	payload, err := c.sa.Encrypt(plaintext)
	if err != nil {
		return c.fail(err)
	}
	if uint32(len(payload)) > c.maxFrameSize {
		return fmt.Errorf("%w: %d exceeds %d", ErrFrameTooLarge, len(payload), c.maxFrameSize)
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	if _, err := c.conn.Write(frame); err != nil {
		return c.fail(fmt.Errorf("%w: write: %v", ErrIO, err))
	}
	return nil
}

// Recv blocks until a complete frame is available and returns its decrypted
// plaintext payload, or the session's terminal error once one has occurred.
func (c *Channel) Recv() ([]byte, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			frame := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return frame, nil
		}
		if c.err != nil {
			err := c.err
			c.mu.Unlock()
			return nil, err
		}
		sig := c.sig
		c.mu.Unlock()
		<-sig
	}
}

// Close tears down the underlying connection. Safe to call more than once.
func (c *Channel) Close() error {
	_ = c.fail(ErrClosed)
	return c.conn.Close()
}

// pump continuously reads frames off the wire, decrypting each one in
// sequence, and feeds them to Recv via the internal queue. Any IO, protocol,
// or crypto failure is session-fatal: the pump records the error, closes
// the connection, and exits without retrying.
func (c *Channel) pump() {
	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(c.conn, lenBuf); err != nil {
			c.fail(fmt.Errorf("%w: read length prefix: %v", ErrIO, err))
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if n > c.maxFrameSize {
			c.fail(fmt.Errorf("%w: frame length %d exceeds bound %d", ErrProtocol, n, c.maxFrameSize))
			return
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			c.fail(fmt.Errorf("%w: read payload: %v", ErrIO, err))
			return
		}

		plaintext, err := c.sa.Decrypt(payload)
		if err != nil {
			c.fail(err)
			return
		}

		c.enqueue(plaintext)
	}
}

func (c *Channel) enqueue(frame []byte) {
	c.mu.Lock()
	c.queue = append(c.queue, frame)
	c.broadcast()
	c.mu.Unlock()
}

// fail records the session's terminal error (first one wins), wakes any
// blocked Recv/Select callers, and closes the socket. It returns the error
// passed in so call sites can `return c.fail(err)`.
func (c *Channel) fail(err error) error {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.broadcast()
	c.mu.Unlock()
	_ = c.conn.Close()
	return err
}

// broadcast closes the current signal channel and installs a fresh one,
// waking every current waiter without risk of a single waiter stealing the
// wakeup meant for others. Must be called with c.mu held.
func (c *Channel) broadcast() {
	close(c.sig)
	c.sig = make(chan struct{})
}

// sigChan returns the current wakeup channel for use by the multiplexer.
func (c *Channel) sigChan() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sig
}

// hasPending reports whether Recv would currently return without blocking.
func (c *Channel) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0 || c.err != nil
}

// ErrSnapshot returns the session's terminal error, if any has occurred.
func (c *Channel) ErrSnapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
