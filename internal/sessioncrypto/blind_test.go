package sessioncrypto

import (
	"bytes"
	"testing"
)

func testServerPub(t *testing.T) []byte {
	t.Helper()
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return kp.Public
}

func TestBlindingFactorCached(t *testing.T) {
	b, err := NewBlinder(4)
	if err != nil {
		t.Fatal(err)
	}
	server := testServerPub(t)
	k1, err := b.BlindingFactor(server)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := b.BlindingFactor(server)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatal("second lookup should return the cached scalar")
	}
}

func TestBlindedKeyPairMatchesBlindPublicKey(t *testing.T) {
	b, err := NewBlinder(4)
	if err != nil {
		t.Fatal(err)
	}
	server := testServerPub(t)
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	pair, err := b.BlindedKeyPair(server, kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	blinded, err := b.BlindPublicKey(server, kp.Public)
	if err != nil {
		t.Fatal(err)
	}
	// k*(a*G) and (k*a)*G must be the same point.
	if !bytes.Equal(pair.Public, blinded) {
		t.Fatalf("blinded keys disagree: %x vs %x", pair.Public, blinded)
	}
}

func TestSharedBlindedKeySymmetric(t *testing.T) {
	b, err := NewBlinder(4)
	if err != nil {
		t.Fatal(err)
	}
	server := testServerPub(t)

	alice, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	alicePair, err := b.BlindedKeyPair(server, alice.Private)
	if err != nil {
		t.Fatal(err)
	}
	bobPair, err := b.BlindedKeyPair(server, bob.Private)
	if err != nil {
		t.Fatal(err)
	}

	// Alice sends to Bob: sender=alice, recipient=bob, on both sides.
	sendKey, err := SharedBlindedKey(alicePair, bobPair.Public, alicePair.Public, bobPair.Public)
	if err != nil {
		t.Fatal(err)
	}
	recvKey, err := SharedBlindedKey(bobPair, alicePair.Public, alicePair.Public, bobPair.Public)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sendKey, recvKey) {
		t.Fatal("shared blinded key should be symmetric")
	}

	// Reversed ordering derives a different key.
	other, err := SharedBlindedKey(alicePair, bobPair.Public, bobPair.Public, alicePair.Public)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(sendKey, other) {
		t.Fatal("direction must be bound into the key")
	}
}

func TestAEADRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	pt := []byte("hello group")
	sealed, err := AEADSeal(key, pt)
	if err != nil {
		t.Fatal(err)
	}
	opened, err := AEADOpen(key, sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened, pt) {
		t.Fatalf("round trip: got %q, want %q", opened, pt)
	}
	if _, err := AEADOpen(key, sealed[:NonceSize]); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestSealedBoxRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	ct, err := SealedBoxSeal([]byte("sealed"), kp.Public)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := SealedBoxOpen(ct, kp)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "sealed" {
		t.Fatalf("got %q, want %q", pt, "sealed")
	}

	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SealedBoxOpen(ct, other); err == nil {
		t.Fatal("wrong recipient should fail to open")
	}
}
