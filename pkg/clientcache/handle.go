package clientcache

import "os"

// ChunkSize is the granularity at which dirty tracking and background
// flushing operate.
const ChunkSize = 1 << 20 // 1 MiB

// chunkIndex returns the chunk a given byte offset falls into.
func chunkIndex(offset uint64) uint32 {
	return uint32(offset / ChunkSize)
}

// fileHandle is the local staging state for one open server handle.
type fileHandle struct {
	handle uint64
	file   *os.File
	size   uint64
	dirty  map[uint32]struct{}
}

func newFileHandle(handle uint64, f *os.File) *fileHandle {
	return &fileHandle{handle: handle, file: f, dirty: make(map[uint32]struct{})}
}

func (h *fileHandle) markDirty(chunk uint32) (isNew bool) {
	if _, ok := h.dirty[chunk]; ok {
		return false
	}
	h.dirty[chunk] = struct{}{}
	return true
}

// chunksInRange returns every chunk index touched by [offset, offset+n).
func chunksInRange(offset uint64, n int) []uint32 {
	if n <= 0 {
		return nil
	}
	first := chunkIndex(offset)
	last := chunkIndex(offset + uint64(n) - 1)
	chunks := make([]uint32, 0, last-first+1)
	for c := first; c <= last; c++ {
		chunks = append(chunks, c)
	}
	return chunks
}
