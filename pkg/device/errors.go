package device

import "errors"

// ErrOutOfRange is returned when a physical-block-id exceeds the device's
// configured block count.
var ErrOutOfRange = errors.New("device: physical-block-id out of range")

// ErrIO wraps a backing-file or mmap failure.
var ErrIO = errors.New("device: io error")

// ErrMapped is returned when Open is called on an already-open LocalDevice.
var ErrMapped = errors.New("device: already mapped")

// ErrUnmapped is returned when GetBlock/PutBlock is called before Open or
// after Close.
var ErrUnmapped = errors.New("device: not mapped")
