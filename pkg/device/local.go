package device

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// LocalDevice owns one backing file of exactly numBlocks*BlockSize bytes,
// memory-mapped read/write into a single contiguous region. GetBlock and
// PutBlock perform direct memory copies against the map; no msync is issued
// on the fast path, matching the daemon's documented durability model
// (OS-managed).
type LocalDevice struct {
	DeviceID  uint32
	NumBlocks uint64

	mu   sync.RWMutex
	file *os.File
	data []byte
}

// OpenLocalDevice creates or truncates path to numBlocks*BlockSize zeros if
// it is absent or the wrong size, then memory-maps it.
func OpenLocalDevice(deviceID uint32, path string, numBlocks uint64) (*LocalDevice, error) {
	wantSize := int64(numBlocks) * BlockSize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	if info.Size() != wantSize {
		// Truncating to zero first discards the old contents, so the
		// resized file reads as zeros throughout.
		err = f.Truncate(0)
		if err == nil {
			err = f.Truncate(wantSize)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: truncate %s to %d: %v", ErrIO, path, wantSize, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(wantSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrIO, path, err)
	}

	return &LocalDevice{
		DeviceID:  deviceID,
		NumBlocks: numBlocks,
		file:      f,
		data:      data,
	}, nil
}

// Topology returns the device's id and block count, as served by GET_TOPO.
func (d *LocalDevice) Topology() (deviceID uint32, numBlocks uint64) {
	return d.DeviceID, d.NumBlocks
}

func (d *LocalDevice) blockOffset(pbid uint64) (int64, error) {
	if pbid >= d.NumBlocks {
		return 0, fmt.Errorf("%w: pbid %d >= %d", ErrOutOfRange, pbid, d.NumBlocks)
	}
	return int64(pbid) * BlockSize, nil
}

// GetBlock copies the physical block pbid into dst, which must be exactly
// BlockSize bytes.
func (d *LocalDevice) GetBlock(pbid uint64, dst []byte) error {
	off, err := d.blockOffset(pbid)
	if err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.data == nil {
		return ErrUnmapped
	}
	copy(dst, d.data[off:off+BlockSize])
	return nil
}

// PutBlock copies src into the physical block pbid. src must be exactly
// BlockSize bytes.
func (d *LocalDevice) PutBlock(pbid uint64, src []byte) error {
	off, err := d.blockOffset(pbid)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data == nil {
		return ErrUnmapped
	}
	copy(d.data[off:off+BlockSize], src)
	return nil
}

// GetBlocks reads each requested physical block and returns them in the
// same order as ids.
func (d *LocalDevice) GetBlocks(ids []uint64) ([]IDBlock, error) {
	out := make([]IDBlock, len(ids))
	for i, id := range ids {
		data := make([]byte, BlockSize)
		if err := d.GetBlock(id, data); err != nil {
			return nil, err
		}
		out[i] = IDBlock{ID: id, Data: data}
	}
	return out, nil
}

// PutBlocks writes each given block and returns the list of ids written, in
// the same order as blocks.
func (d *LocalDevice) PutBlocks(blocks []IDBlock) ([]uint64, error) {
	ids := make([]uint64, len(blocks))
	for i, b := range blocks {
		if err := d.PutBlock(b.ID, b.Data); err != nil {
			return nil, err
		}
		ids[i] = b.ID
	}
	return ids, nil
}

// Sync flushes the mapped region to the backing file synchronously. The
// daemon's request path does not call this; it exists for explicit
// checkpoints (e.g. before a graceful shutdown).
func (d *LocalDevice) Sync() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.data == nil {
		return ErrUnmapped
	}
	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync: %v", ErrIO, err)
	}
	return nil
}

// Close unmaps the region and closes the backing file.
func (d *LocalDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data == nil {
		return nil
	}
	if err := unix.Munmap(d.data); err != nil {
		return fmt.Errorf("%w: munmap: %v", ErrIO, err)
	}
	d.data = nil
	return d.file.Close()
}
