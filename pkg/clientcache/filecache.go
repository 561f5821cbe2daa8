// Package clientcache implements the client-side write-back file cache:
// one local staging file per open server handle, per-chunk dirty
// tracking, and a reader/writer lock discipline between foreground calls
// and the background flusher.
package clientcache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bfsfs/bfs/pkg/metrics"
)

// FileCache is the write-back cache for one client's open file handles.
type FileCache struct {
	conn       Conn
	stagingDir string
	directIO   bool
	metrics    *metrics.ClientMetrics

	mu         sync.RWMutex
	handles    map[uint64]*fileHandle
	totalDirty int
}

// New creates a FileCache. When directIO is true, Read and Write bypass
// the local staging files entirely and round-trip straight through conn.
// m may be nil, disabling instrumentation.
func New(conn Conn, stagingDir string, directIO bool, m *metrics.ClientMetrics) *FileCache {
	return &FileCache{
		conn:       conn,
		stagingDir: stagingDir,
		directIO:   directIO,
		metrics:    m,
		handles:    make(map[uint64]*fileHandle),
	}
}

// TotalDirtyChunks reports the aggregate dirty-chunk count across all
// open handles.
func (c *FileCache) TotalDirtyChunks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalDirty
}

// Open creates (or reopens) the local staging file backing handle.
func (c *FileCache) Open(handle uint64) error {
	if c.directIO {
		c.mu.Lock()
		c.handles[handle] = newFileHandle(handle, nil)
		c.mu.Unlock()
		return nil
	}

	path := filepath.Join(c.stagingDir, strconv.FormatUint(handle, 10))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("clientcache: open staging file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("clientcache: stat staging file: %w", err)
	}

	c.mu.Lock()
	h := newFileHandle(handle, f)
	h.size = uint64(info.Size())
	c.handles[handle] = h
	c.mu.Unlock()
	return nil
}

// Read satisfies a foreground read, acquiring the rw-lock in shared mode.
func (c *FileCache) Read(handle, offset uint64, size int) ([]byte, error) {
	if c.directIO {
		frame := EncodeReadRequest(handle, offset, uint64(size))
		if err := c.conn.Send(frame); err != nil {
			return nil, err
		}
		resp, err := c.conn.Recv()
		if err != nil {
			return nil, err
		}
		return DecodeReadResponse(resp)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.handles[handle]
	if !ok {
		return nil, ErrHandleNotOpen
	}
	buf := make([]byte, size)
	n, err := h.file.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Write satisfies a foreground write, acquiring the rw-lock exclusively.
// It never contacts the server directly.
func (c *FileCache) Write(handle, offset uint64, data []byte) (int, error) {
	if c.directIO {
		frame := EncodeWriteRequest(handle, offset, data)
		if err := c.conn.Send(frame); err != nil {
			return 0, err
		}
		resp, err := c.conn.Recv()
		if err != nil {
			return 0, err
		}
		n, err := DecodeWriteResponse(resp)
		return int(n), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handles[handle]
	if !ok {
		return 0, ErrHandleNotOpen
	}
	n, err := h.file.WriteAt(data, int64(offset))
	if err != nil {
		return n, err
	}
	if end := offset + uint64(n); end > h.size {
		h.size = end
	}
	for _, chunk := range chunksInRange(offset, n) {
		if h.markDirty(chunk) {
			c.totalDirty++
		}
	}
	c.metrics.SetDirtyChunks(c.totalDirty)
	return n, nil
}

// Flush drains every dirty chunk of handle to the server, acquiring the
// rw-lock exclusively for the duration.
func (c *FileCache) Flush(handle uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handles[handle]
	if !ok {
		return ErrHandleNotOpen
	}
	return c.flushAllLocked(h)
}

func (c *FileCache) flushAllLocked(h *fileHandle) error {
	for len(h.dirty) > 0 {
		var chunk uint32
		for ch := range h.dirty {
			chunk = ch
			break
		}
		if err := c.flushChunkLocked(h, chunk); err != nil {
			return err
		}
	}
	return nil
}

// flushChunkLocked sends one dirty chunk to the server and, on success,
// clears it from the handle's dirty set. Caller holds c.mu exclusively.
func (c *FileCache) flushChunkLocked(h *fileHandle, chunk uint32) error {
	start := uint64(chunk) * ChunkSize
	length := ChunkSize
	if start+uint64(length) > h.size {
		length = int(h.size - start)
	}
	if length <= 0 {
		delete(h.dirty, chunk)
		c.totalDirty--
		c.metrics.SetDirtyChunks(c.totalDirty)
		return nil
	}

	buf := make([]byte, length)
	if _, err := h.file.ReadAt(buf, int64(start)); err != nil && err != io.EOF {
		return err
	}

	if err := c.conn.Send(EncodeWriteRequest(h.handle, start, buf)); err != nil {
		return err
	}
	resp, err := c.conn.Recv()
	if err != nil {
		return err
	}
	written, err := DecodeWriteResponse(resp)
	if err != nil {
		return err
	}
	if written != uint64(len(buf)) {
		c.metrics.RecordShortWrite()
		return ErrShortWrite
	}

	delete(h.dirty, chunk)
	c.totalDirty--
	c.metrics.SetDirtyChunks(c.totalDirty)
	return nil
}

// Release flushes and closes handle, removing all of its cache state.
// total-dirty-chunks reflects zero contribution from handle once Release
// returns.
func (c *FileCache) Release(handle uint64) error {
	if err := c.Flush(handle); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.handles[handle]
	if !ok {
		return ErrHandleNotOpen
	}
	delete(c.handles, handle)
	if h.file == nil {
		return nil
	}
	path := h.file.Name()
	if err := h.file.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// Truncate issues the TRUNCATE RPC and then ftruncates the local file,
// holding the rw-lock shared for the local truncate as prescribed by the
// cache's locking discipline.
func (c *FileCache) Truncate(handle, size uint64) error {
	if err := c.conn.Send(EncodeTruncateRequest(handle, size)); err != nil {
		return err
	}
	resp, err := c.conn.Recv()
	if err != nil {
		return err
	}
	if _, err := DecodeTruncateResponse(resp); err != nil {
		return err
	}

	if c.directIO {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.handles[handle]
	if !ok {
		return ErrHandleNotOpen
	}
	if err := h.file.Truncate(int64(size)); err != nil {
		return err
	}
	h.size = size
	return nil
}

// congestionSweep is the background writer's unit of work: if
// total-dirty-chunks is at or above threshold, it flushes chunks from any
// handle with a non-empty dirty set until the total drops below
// lowRatio*threshold, always flushing at least one chunk.
func (c *FileCache) congestionSweep(threshold int, lowRatio float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.totalDirty < threshold {
		return nil
	}
	low := int(lowRatio * float64(threshold))

	flushedAny := false
	for c.totalDirty >= low || !flushedAny {
		h := c.pickDirtyHandleLocked()
		if h == nil {
			return nil
		}
		var chunk uint32
		for ch := range h.dirty {
			chunk = ch
			break
		}
		if err := c.flushChunkLocked(h, chunk); err != nil {
			return err
		}
		flushedAny = true
	}
	return nil
}

func (c *FileCache) pickDirtyHandleLocked() *fileHandle {
	for _, h := range c.handles {
		if len(h.dirty) > 0 {
			return h
		}
	}
	return nil
}
