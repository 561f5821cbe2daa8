package crypto

import "errors"

// ErrAuthFailed is returned when AEAD decryption or MAC verification fails.
// Callers must treat this as fatal for the owning session.
var ErrAuthFailed = errors.New("crypto: authentication failed")

// ErrBadPadding is returned when PKCS#7 padding cannot be removed cleanly.
var ErrBadPadding = errors.New("crypto: bad padding")

// ErrShortInput is returned when a buffer is too small to contain the
// IV/tag/ciphertext layout a SecurityAssociation expects.
var ErrShortInput = errors.New("crypto: input too short")

// ErrKeySize is returned when a key is not exactly 16 bytes (AES-128).
var ErrKeySize = errors.New("crypto: key must be 16 bytes")
