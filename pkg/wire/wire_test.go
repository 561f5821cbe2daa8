package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(32)
	w.WriteUint64(1)
	w.WriteUint32(2)
	w.WriteUint32BE(3)
	w.WriteUint8(4)
	w.WriteInt32(-5)
	w.WriteBytes([]byte("payload"))

	r := NewReader(w.Bytes())
	if got := r.ReadUint64(); got != 1 {
		t.Fatalf("ReadUint64: got %d want 1", got)
	}
	if got := r.ReadUint32(); got != 2 {
		t.Fatalf("ReadUint32: got %d want 2", got)
	}
	if got := r.ReadUint32BE(); got != 3 {
		t.Fatalf("ReadUint32BE: got %d want 3", got)
	}
	if got := r.ReadUint8(); got != 4 {
		t.Fatalf("ReadUint8: got %d want 4", got)
	}
	if got := r.ReadInt32(); got != -5 {
		t.Fatalf("ReadInt32: got %d want -5", got)
	}
	if got := r.ReadBytes(len("payload")); !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("ReadBytes: got %q want %q", got, "payload")
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReaderShortReadAccumulatesError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.ReadUint32()
	if !errors.Is(r.Err(), ErrShortRead) {
		t.Fatalf("got err %v want %v", r.Err(), ErrShortRead)
	}

	// Subsequent reads must become no-ops once an error is set.
	if got := r.ReadUint8(); got != 0 {
		t.Fatalf("ReadUint8 after error: got %d want 0", got)
	}
	if !errors.Is(r.Err(), ErrShortRead) {
		t.Fatalf("error changed after subsequent read: %v", r.Err())
	}
}

func TestReaderRemaining(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	if got := r.Remaining(); got != 8 {
		t.Fatalf("Remaining: got %d want 8", got)
	}
	r.ReadUint32()
	if got := r.Remaining(); got != 4 {
		t.Fatalf("Remaining after read: got %d want 4", got)
	}
}
