// Package envelope opens inbound ciphertext envelopes and authenticates
// their senders. Two protocols are supported: the direct sealed-box
// protocol used for one-to-one and group delivery, and the blinded
// variant used for community-scoped pseudonymous senders.
//
// Decryption is stateless; envelopes may be opened concurrently. A
// failure is terminal for that envelope and is reported to the caller,
// never retried here.
package envelope

import (
	"crypto/ed25519"
	"errors"
)

var (
	// ErrDecryptionFailed means the envelope could not be opened: bad
	// ciphertext, wrong recipient, truncated payload, or an unconvertible
	// sender key.
	ErrDecryptionFailed = errors.New("envelope: decryption failed")

	// ErrInvalidSignature means the envelope opened but the sender's
	// claimed identity did not authenticate. Worth logging loudly: it is
	// either corruption or an active attack.
	ErrInvalidSignature = errors.New("envelope: invalid signature")
)

const (
	senderKeySize = ed25519.PublicKeySize
	signatureSize = ed25519.SignatureSize

	blindedVersion = 0x00
)

// Opened is the result of a successful decryption: the inner plaintext
// and the sender's verified X25519 public key for session addressing.
type Opened struct {
	Plaintext []byte
	SenderKey []byte // 32-byte X25519 public key
}
