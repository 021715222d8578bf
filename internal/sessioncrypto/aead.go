package sessioncrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"
)

// NonceSize is the XChaCha20-Poly1305 nonce length used throughout.
const NonceSize = chacha20poly1305.NonceSizeX

// AEADSeal encrypts plaintext with XChaCha20-Poly1305 under a 32-byte key
// using a fresh random nonce. Output layout: ciphertext ‖ nonce.
func AEADSeal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: aead seal: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sessioncrypto: aead nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(ct, nonce...), nil
}

// AEADOpen decrypts data produced by AEADSeal (ciphertext ‖ trailing nonce).
func AEADOpen(key, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: aead open: %w", err)
	}
	if len(data) < NonceSize+aead.Overhead() {
		return nil, fmt.Errorf("sessioncrypto: aead open: input too short (%d bytes)", len(data))
	}
	nonce := data[len(data)-NonceSize:]
	ct := data[:len(data)-NonceSize]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: aead open: %w", err)
	}
	return pt, nil
}

// SealedBoxOpen opens an anonymous-sender sealed box addressed to the
// given ed25519 identity. The identity is converted to its X25519 form
// before opening.
func SealedBoxOpen(ciphertext []byte, recipient KeyPair) ([]byte, error) {
	pubX, err := PublicEd25519ToX25519(recipient.Public)
	if err != nil {
		return nil, err
	}
	privX, err := PrivateEd25519ToX25519(recipient.Private)
	if err != nil {
		return nil, err
	}
	var pub, priv [32]byte
	copy(pub[:], pubX)
	copy(priv[:], privX)
	pt, ok := box.OpenAnonymous(nil, ciphertext, &pub, &priv)
	if !ok {
		return nil, fmt.Errorf("sessioncrypto: sealed box open failed")
	}
	return pt, nil
}

// SealedBoxSeal seals plaintext to the given ed25519 public key with an
// anonymous sender. Inverse of SealedBoxOpen; used by tests and the
// outbound path.
func SealedBoxSeal(plaintext []byte, recipientPub ed25519.PublicKey) ([]byte, error) {
	pubX, err := PublicEd25519ToX25519(recipientPub)
	if err != nil {
		return nil, err
	}
	var pub [32]byte
	copy(pub[:], pubX)
	ct, err := box.SealAnonymous(nil, plaintext, &pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: sealed box seal: %w", err)
	}
	return ct, nil
}
