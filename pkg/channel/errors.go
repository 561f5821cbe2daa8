package channel

import "errors"

// ErrIO is returned for socket read/write failures. Never retried.
var ErrIO = errors.New("channel: io error")

// ErrProtocol is returned for a bad length prefix or other framing
// violation. Fatal for the session.
var ErrProtocol = errors.New("channel: protocol error")

// ErrClosed is the terminal error Recv returns once Close has torn the
// channel down, unless another failure was recorded first. Send on a
// closed channel reports the failed socket write as ErrIO.
var ErrClosed = errors.New("channel: closed")

// ErrFrameTooLarge is returned when an outgoing frame would exceed the
// channel's configured maximum frame size.
var ErrFrameTooLarge = errors.New("channel: frame too large")
