// Package crypto implements the BFS security association: AES-128-GCM
// authenticated encryption over a PKCS#7-padded plaintext, with the
// sequence number carried as additional authenticated data.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

const (
	// IVSize is the AES-GCM nonce length used on the wire.
	IVSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
	// KeySize is the AES-128 key length.
	KeySize = 16
)

// SecurityAssociation is a symmetric-keyed peering between two named
// endpoints, carrying independent monotonically increasing send/receive
// sequence counters. One association exists per client<->server pairing
// and per server<->device pairing.
type SecurityAssociation struct {
	Initiator string
	Responder string

	aead cipher.AEAD

	sendSeq atomic.Uint32
	recvSeq atomic.Uint32
}

// NewSecurityAssociation builds an association from a 16-byte AES-128 key.
// Sequence counters start at zero per §4.1.
func NewSecurityAssociation(initiator, responder string, key []byte) (*SecurityAssociation, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return &SecurityAssociation{
		Initiator: initiator,
		Responder: responder,
		aead:      aead,
	}, nil
}

// SendSeq returns the current send sequence counter without advancing it.
func (sa *SecurityAssociation) SendSeq() uint32 { return sa.sendSeq.Load() }

// RecvSeq returns the current receive sequence counter without advancing it.
func (sa *SecurityAssociation) RecvSeq() uint32 { return sa.recvSeq.Load() }

// seqAAD renders a sequence number as the 4-byte little-endian AAD the
// framing layer authenticates.
func seqAAD(seq uint32) []byte {
	aad := make([]byte, 4)
	binary.LittleEndian.PutUint32(aad, seq)
	return aad
}

// Encrypt pads plaintext to the AEAD block size, generates a fresh IV,
// encrypts under the association's key with the current send sequence
// number as AAD, and returns iv || ciphertext || tag. On success the send
// sequence counter is advanced by one.
func (sa *SecurityAssociation) Encrypt(plaintext []byte) ([]byte, error) {
	padded := padPKCS7(plaintext)

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("crypto: read iv: %w", err)
	}

	seq := sa.sendSeq.Load()
	sealed := sa.aead.Seal(nil, iv, padded, seqAAD(seq))

	out := make([]byte, 0, len(iv)+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)

	sa.sendSeq.Add(1)
	return out, nil
}

// Decrypt splits the wire payload into iv/ciphertext/tag, verifies and
// decrypts against the current receive sequence number, strips padding,
// and advances the receive sequence counter on success. Authentication or
// padding failure is fatal for the owning session and is never retried.
func (sa *SecurityAssociation) Decrypt(payload []byte) ([]byte, error) {
	if len(payload) < IVSize+TagSize {
		return nil, ErrShortInput
	}
	iv := payload[:IVSize]
	sealed := payload[IVSize:]

	seq := sa.recvSeq.Load()
	padded, err := sa.aead.Open(nil, iv, sealed, seqAAD(seq))
	if err != nil {
		return nil, ErrAuthFailed
	}

	plaintext, err := unpadPKCS7(padded)
	if err != nil {
		return nil, err
	}

	sa.recvSeq.Add(1)
	return plaintext, nil
}
