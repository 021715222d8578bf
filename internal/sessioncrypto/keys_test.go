package sessioncrypto

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/curve25519"
)

func TestKeyPairFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, SeedSize)
	a, err := KeyPairFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	b, err := KeyPairFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Public, b.Public) {
		t.Fatal("same seed should derive same public key")
	}
	if !bytes.Equal(a.Seed(), seed) {
		t.Fatal("seed round-trip mismatch")
	}
}

func TestKeyPairFromSeedRejectsBadLength(t *testing.T) {
	if _, err := KeyPairFromSeed([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short seed")
	}
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("group control message")
	sig := kp.Sign(msg)
	if !Verify(kp.Public, msg, sig) {
		t.Fatal("signature should verify")
	}
	if Verify(kp.Public, []byte("other"), sig) {
		t.Fatal("signature over other message should not verify")
	}
	if Verify(kp.Public[:16], msg, sig) {
		t.Fatal("truncated key should not verify")
	}
}

// The converted key pair must agree with itself: the X25519 public key
// derived from the ed25519 public key must equal the base-point product of
// the converted private scalar.
func TestX25519ConversionConsistency(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pubX, err := PublicEd25519ToX25519(kp.Public)
	if err != nil {
		t.Fatal(err)
	}
	privX, err := PrivateEd25519ToX25519(kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	derived, err := curve25519.X25519(privX, curve25519.Basepoint)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pubX, derived) {
		t.Fatalf("converted keys disagree: pub %x, derived %x", pubX, derived)
	}
}

func TestAccountIDPrefix(t *testing.T) {
	id := AccountID(bytes.Repeat([]byte{0xab}, 32))
	if len(id) != 66 {
		t.Fatalf("account ID length: got %d, want 66", len(id))
	}
	if id[:2] != AccountIDPrefix {
		t.Fatalf("account ID prefix: got %s, want %s", id[:2], AccountIDPrefix)
	}
}
