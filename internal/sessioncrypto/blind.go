package sessioncrypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// BlindedKeyPair is a per-server pseudonymous key pair: the blinded scalar
// ka = k*a and its public point kA = ka*G.
type BlindedKeyPair struct {
	Scalar *edwards25519.Scalar
	Public []byte // 32 bytes
}

// Blinder derives and caches per-server blinding factors. Deriving a
// factor costs a BLAKE2b-512 plus a scalar reduction, so factors are kept
// in a small LRU keyed by server public key.
type Blinder struct {
	factors *lru.Cache[string, *edwards25519.Scalar]
}

// NewBlinder creates a Blinder with an LRU of the given size (minimum 1).
func NewBlinder(cacheSize int) (*Blinder, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	c, err := lru.New[string, *edwards25519.Scalar](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: blinding cache: %w", err)
	}
	return &Blinder{factors: c}, nil
}

// BlindingFactor returns the scalar k for the given server public key:
// BLAKE2b-512 of the key, reduced mod L.
func (b *Blinder) BlindingFactor(serverPub []byte) (*edwards25519.Scalar, error) {
	key := hex.EncodeToString(serverPub)
	if k, ok := b.factors.Get(key); ok {
		return k, nil
	}
	wide := blake2b.Sum512(serverPub)
	k, err := new(edwards25519.Scalar).SetUniformBytes(wide[:])
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: blinding factor: %w", err)
	}
	b.factors.Add(key, k)
	return k, nil
}

// BlindedKeyPair derives the pseudonymous key pair (ka, kA) this identity
// uses on the server identified by serverPub.
func (b *Blinder) BlindedKeyPair(serverPub []byte, priv ed25519.PrivateKey) (BlindedKeyPair, error) {
	k, err := b.BlindingFactor(serverPub)
	if err != nil {
		return BlindedKeyPair{}, err
	}
	a, err := privateScalar(priv)
	if err != nil {
		return BlindedKeyPair{}, err
	}
	ka := new(edwards25519.Scalar).Multiply(k, a)
	kA := new(edwards25519.Point).ScalarBaseMult(ka)
	return BlindedKeyPair{Scalar: ka, Public: kA.Bytes()}, nil
}

// BlindPublicKey applies the server's blinding factor to an unblinded
// ed25519 public key, yielding the key the server knows that identity by.
func (b *Blinder) BlindPublicKey(serverPub []byte, pub ed25519.PublicKey) ([]byte, error) {
	k, err := b.BlindingFactor(serverPub)
	if err != nil {
		return nil, err
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: blind public key: %w", err)
	}
	return new(edwards25519.Point).ScalarMult(k, p).Bytes(), nil
}

// SharedBlindedKey derives the symmetric key for a blinded conversation:
// BLAKE2b-256 of (ka * otherBlindedPub) followed by the sender and
// recipient blinded public keys in that order. The DH secret is symmetric
// ((k*a)*(k*b*G) == (k*b)*(k*a*G)), so both directions derive the same key
// when given the same sender/recipient ordering.
func SharedBlindedKey(ours BlindedKeyPair, otherBlindedPub, senderBlindedPub, recipientBlindedPub []byte) ([]byte, error) {
	other, err := new(edwards25519.Point).SetBytes(otherBlindedPub)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: shared blinded key: %w", err)
	}
	secret := new(edwards25519.Point).ScalarMult(ours.Scalar, other)

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: shared blinded key: %w", err)
	}
	h.Write(secret.Bytes())
	h.Write(senderBlindedPub)
	h.Write(recipientBlindedPub)
	return h.Sum(nil), nil
}

// privateScalar extracts the clamped ed25519 signing scalar from priv.
func privateScalar(priv ed25519.PrivateKey) (*edwards25519.Scalar, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("sessioncrypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	h := sha512.Sum512(priv.Seed())
	s, err := new(edwards25519.Scalar).SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, fmt.Errorf("sessioncrypto: private scalar: %w", err)
	}
	return s, nil
}
