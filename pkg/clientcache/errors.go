package clientcache

import "errors"

// ErrShortWrite is raised when the server acknowledges fewer bytes than
// were sent during a flush. Fatal for the background writer.
var ErrShortWrite = errors.New("clientcache: short write during flush")

// ErrHandleNotOpen is raised by read/write/flush/truncate against a
// handle that has no local staging file.
var ErrHandleNotOpen = errors.New("clientcache: handle not open")

// ErrClosed is returned by operations on a cache that has been closed.
var ErrClosed = errors.New("clientcache: closed")
