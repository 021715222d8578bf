// Package sessioncrypto implements the key operations the group protocol
// depends on: ed25519 signing identities, their X25519 session form, the
// sealed-box envelope primitive, and the blinded pseudonymous keys used
// with community servers.
package sessioncrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	// SeedSize is the ed25519 seed length accepted by KeyPairFromSeed.
	SeedSize = ed25519.SeedSize

	// AccountIDPrefix marks a hex account ID derived from an X25519 key.
	AccountIDPrefix = "05"
	// BlindedIDPrefix marks a hex ID derived from a blinded key.
	BlindedIDPrefix = "15"
	// GroupIDPrefix marks a hex ID naming a group's identity key.
	GroupIDPrefix = "03"
)

// KeyPair holds an ed25519 signing key pair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh random ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("sessioncrypto: generate key pair: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromSeed derives an ed25519 key pair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != SeedSize {
		return KeyPair{}, fmt.Errorf("sessioncrypto: seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Seed returns the 32-byte seed of the pair's private key.
func (kp KeyPair) Seed() []byte {
	return kp.Private.Seed()
}

// Sign signs message with the pair's private key.
func (kp KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// Verify reports whether sig is a valid ed25519 signature of message by pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// PublicEd25519ToX25519 converts an ed25519 public key to its X25519
// (montgomery) form. Fails if the input is not a valid curve point.
func PublicEd25519ToX25519(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("sessioncrypto: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: convert public key: %w", err)
	}
	return p.BytesMontgomery(), nil
}

// PrivateEd25519ToX25519 converts an ed25519 private key to the X25519
// scalar used for sealed-box decryption.
func PrivateEd25519ToX25519(priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("sessioncrypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	h := sha512.Sum512(priv.Seed())
	out := make([]byte, 32)
	copy(out, h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out, nil
}

// AccountID renders an X25519 public key as a prefixed hex account ID.
func AccountID(x25519Pub []byte) string {
	return AccountIDPrefix + hex.EncodeToString(x25519Pub)
}

// BlindedID renders a blinded public key as a prefixed hex ID.
func BlindedID(blindedPub []byte) string {
	return BlindedIDPrefix + hex.EncodeToString(blindedPub)
}

// GroupID renders a group's ed25519 identity key as a prefixed hex ID.
func GroupID(pub ed25519.PublicKey) string {
	return GroupIDPrefix + hex.EncodeToString(pub)
}

// ParseGroupID recovers the ed25519 identity key from a group ID.
func ParseGroupID(id string) (ed25519.PublicKey, error) {
	if len(id) != 2+2*ed25519.PublicKeySize || id[:2] != GroupIDPrefix {
		return nil, fmt.Errorf("sessioncrypto: malformed group ID %q", id)
	}
	raw, err := hex.DecodeString(id[2:])
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: malformed group ID: %w", err)
	}
	return ed25519.PublicKey(raw), nil
}
