package envelope

import (
	"bytes"
	"fmt"

	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
)

// DecryptBlinded opens an envelope from a blinded community sender.
//
// Wire layout: version(1, must be 0) ‖ AEAD ciphertext ‖ nonce(24).
// The decryption key is the shared blinded encryption key between the
// sender's blinded key and our own blinded pair for that server. The
// opened plaintext carries the claimed sender's unblinded ed25519 public
// key in its trailing 32 bytes; re-blinding that key with the server's
// blinding factor must reproduce senderBlindedPub exactly.
func DecryptBlinded(ciphertext []byte, recipient sessioncrypto.KeyPair, serverPub, senderBlindedPub []byte, blinder *sessioncrypto.Blinder) (Opened, error) {
	if len(ciphertext) < 1 {
		return Opened{}, fmt.Errorf("%w: empty envelope", ErrDecryptionFailed)
	}
	if ciphertext[0] != blindedVersion {
		return Opened{}, fmt.Errorf("%w: unsupported blinded version 0x%02x", ErrDecryptionFailed, ciphertext[0])
	}

	ours, err := blinder.BlindedKeyPair(serverPub, recipient.Private)
	if err != nil {
		return Opened{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	// Inbound direction: the other party is the sender, we are the recipient.
	key, err := sessioncrypto.SharedBlindedKey(ours, senderBlindedPub, senderBlindedPub, ours.Public)
	if err != nil {
		return Opened{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	opened, err := sessioncrypto.AEADOpen(key, ciphertext[1:])
	if err != nil {
		return Opened{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(opened) < senderKeySize {
		return Opened{}, fmt.Errorf("%w: opened payload too short (%d bytes)", ErrDecryptionFailed, len(opened))
	}

	message := opened[:len(opened)-senderKeySize]
	senderEd := opened[len(opened)-senderKeySize:]

	reblinded, err := blinder.BlindPublicKey(serverPub, senderEd)
	if err != nil {
		return Opened{}, fmt.Errorf("%w: reblind sender key: %v", ErrDecryptionFailed, err)
	}
	if !bytes.Equal(reblinded, senderBlindedPub) {
		return Opened{}, fmt.Errorf("%w: sender key does not match blinded identity", ErrInvalidSignature)
	}

	senderX, err := sessioncrypto.PublicEd25519ToX25519(senderEd)
	if err != nil {
		return Opened{}, fmt.Errorf("%w: sender key conversion: %v", ErrDecryptionFailed, err)
	}

	return Opened{Plaintext: message, SenderKey: senderX}, nil
}
