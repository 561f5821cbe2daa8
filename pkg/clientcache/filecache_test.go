package clientcache

import (
	"bytes"
	"sync"
	"testing"

	"github.com/bfsfs/bfs/pkg/wire"
)

// fakeConn is an in-memory stand-in for *channel.Channel, recording every
// WRITE RPC it observes so tests can assert on RPC traffic without a
// socket.
type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	shortAck bool
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, frame)
	return nil
}

func (c *fakeConn) Recv() ([]byte, error) {
	c.mu.Lock()
	frame := c.writes[len(c.writes)-1]
	c.mu.Unlock()

	handle, offset, data, err := DecodeWriteRequest(frame)
	_ = handle
	_ = offset
	if err != nil {
		return nil, err
	}
	n := uint64(len(data))
	if c.shortAck && n > 0 {
		n--
	}
	return EncodeWriteResponse(n), nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func TestFileCacheWriteThenReadIsReadYourWrites(t *testing.T) {
	dir := t.TempDir()
	conn := &fakeConn{}
	c := New(conn, dir, false, nil)

	if err := c.Open(1); err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := []byte("hello write-back cache")
	if _, err := c.Write(1, 0, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := c.Read(1, 0, len(want))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Read mismatch: got %q want %q", got, want)
	}
	if conn.writeCount() != 0 {
		t.Fatalf("write path must not contact the server directly, got %d RPCs", conn.writeCount())
	}
}

func TestFileCacheDirtyCountMonotonicity(t *testing.T) {
	dir := t.TempDir()
	conn := &fakeConn{}
	c := New(conn, dir, false, nil)

	if err := c.Open(1); err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := bytes.Repeat([]byte{0x1}, ChunkSize)
	if _, err := c.Write(1, 0, data); err != nil {
		t.Fatalf("Write chunk 0: %v", err)
	}
	if got := c.TotalDirtyChunks(); got != 1 {
		t.Fatalf("TotalDirtyChunks after first write: got %d want 1", got)
	}

	// A second write into the same chunk must not increment again.
	if _, err := c.Write(1, 10, []byte{0x2}); err != nil {
		t.Fatalf("Write within same chunk: %v", err)
	}
	if got := c.TotalDirtyChunks(); got != 1 {
		t.Fatalf("TotalDirtyChunks after overlapping write: got %d want 1", got)
	}

	// A write into a second chunk increments again.
	if _, err := c.Write(1, ChunkSize, []byte{0x3}); err != nil {
		t.Fatalf("Write chunk 1: %v", err)
	}
	if got := c.TotalDirtyChunks(); got != 2 {
		t.Fatalf("TotalDirtyChunks after second chunk: got %d want 2", got)
	}

	if err := c.Release(1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := c.TotalDirtyChunks(); got != 0 {
		t.Fatalf("TotalDirtyChunks after release: got %d want 0", got)
	}
	if conn.writeCount() != 2 {
		t.Fatalf("Release should have flushed exactly 2 chunks, got %d RPCs", conn.writeCount())
	}
}

func TestFileCacheFlushRejectsShortWrite(t *testing.T) {
	dir := t.TempDir()
	conn := &fakeConn{shortAck: true}
	c := New(conn, dir, false, nil)

	if err := c.Open(1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.Write(1, 0, []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Flush(1); err != ErrShortWrite {
		t.Fatalf("Flush: got %v want ErrShortWrite", err)
	}
}

func TestFileCacheCongestionSweepFlushesUntilLowWatermark(t *testing.T) {
	dir := t.TempDir()
	conn := &fakeConn{}
	c := New(conn, dir, false, nil)

	if err := c.Open(1); err != nil {
		t.Fatalf("Open: %v", err)
	}

	const chunks = 10
	for i := 0; i < chunks; i++ {
		if _, err := c.Write(1, uint64(i)*ChunkSize, []byte{byte(i)}); err != nil {
			t.Fatalf("Write chunk %d: %v", i, err)
		}
	}
	if got := c.TotalDirtyChunks(); got != chunks {
		t.Fatalf("TotalDirtyChunks: got %d want %d", got, chunks)
	}

	// Threshold of 5, low ratio 0.5: the low watermark is int(0.5*5) = 2,
	// so the sweep flushes until dirty < 2.
	if err := c.congestionSweep(5, 0.5); err != nil {
		t.Fatalf("congestionSweep: %v", err)
	}
	if got := c.TotalDirtyChunks(); got >= 2 {
		t.Fatalf("TotalDirtyChunks after sweep: got %d, want below low watermark", got)
	}
	if conn.writeCount() == 0 {
		t.Fatalf("expected at least one chunk flushed by congestion sweep")
	}
}

func TestFileCacheTruncate(t *testing.T) {
	dir := t.TempDir()
	// fakeConn's Recv assumes a WRITE frame was last sent; truncate needs
	// its own fixed-response connection.
	conn := &truncateConn{}
	c := New(conn, dir, false, nil)

	if err := c.Open(1); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.Write(1, 0, []byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Truncate(1, 4); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	got, err := c.Read(1, 0, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Read after truncate: got %d bytes want 4", len(got))
	}
}

type truncateConn struct{}

func (truncateConn) Send(frame []byte) error { return nil }
func (truncateConn) Recv() ([]byte, error)   { return EncodeTruncateResponseForTest(0), nil }

// EncodeTruncateResponseForTest builds a TRUNCATE response frame for tests
// that need a fixed result code without going through a real server.
func EncodeTruncateResponseForTest(result int32) []byte {
	w := wire.NewWriter(8)
	encodeHeader(w, OpTruncate, MsgResponse)
	w.WriteInt32(result)
	return w.Bytes()
}
