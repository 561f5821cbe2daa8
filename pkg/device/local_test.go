package device

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestLocalDeviceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backing.img")

	dev, err := OpenLocalDevice(1, path, 16)
	if err != nil {
		t.Fatalf("OpenLocalDevice: %v", err)
	}
	defer dev.Close()

	want := bytes.Repeat([]byte{0xAA}, BlockSize)
	if err := dev.PutBlock(3, want); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got := make([]byte, BlockSize)
	if err := dev.GetBlock(3, got); err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("GetBlock mismatch")
	}
}

func TestLocalDeviceRejectsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backing.img")

	dev, err := OpenLocalDevice(1, path, 4)
	if err != nil {
		t.Fatalf("OpenLocalDevice: %v", err)
	}
	defer dev.Close()

	buf := make([]byte, BlockSize)
	if err := dev.GetBlock(4, buf); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("GetBlock(4): got err %v want %v", err, ErrOutOfRange)
	}
}

func TestLocalDeviceRecreatesWrongSizeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backing.img")

	dev, err := OpenLocalDevice(1, path, 16)
	if err != nil {
		t.Fatalf("OpenLocalDevice: %v", err)
	}
	if err := dev.PutBlock(0, bytes.Repeat([]byte{0xFF}, BlockSize)); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen with a different block count: the existing file is the wrong
	// size and must be recreated (zeroed), per the backing-file contract.
	dev2, err := OpenLocalDevice(1, path, 32)
	if err != nil {
		t.Fatalf("OpenLocalDevice (resize): %v", err)
	}
	defer dev2.Close()

	got := make([]byte, BlockSize)
	if err := dev2.GetBlock(0, got); err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if !bytes.Equal(got, make([]byte, BlockSize)) {
		t.Fatalf("expected zeroed block after recreation, got non-zero data")
	}
}

func TestLocalDeviceBulkOperations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backing.img")

	dev, err := OpenLocalDevice(1, path, 16)
	if err != nil {
		t.Fatalf("OpenLocalDevice: %v", err)
	}
	defer dev.Close()

	blocks := []IDBlock{
		{ID: 0, Data: bytes.Repeat([]byte{0x01}, BlockSize)},
		{ID: 1, Data: bytes.Repeat([]byte{0x02}, BlockSize)},
	}
	ids, err := dev.PutBlocks(blocks)
	if err != nil {
		t.Fatalf("PutBlocks: %v", err)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("PutBlocks ids: got %v", ids)
	}

	got, err := dev.GetBlocks([]uint64{1, 0})
	if err != nil {
		t.Fatalf("GetBlocks: %v", err)
	}
	if got[0].ID != 1 || !bytes.Equal(got[0].Data, blocks[1].Data) {
		t.Fatalf("GetBlocks[0] mismatch: %+v", got[0])
	}
	if got[1].ID != 0 || !bytes.Equal(got[1].Data, blocks[0].Data) {
		t.Fatalf("GetBlocks[1] mismatch: %+v", got[1])
	}
}
