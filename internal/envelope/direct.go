package envelope

import (
	"fmt"

	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
)

// DecryptDirect opens an anonymous-sender sealed box addressed to the
// recipient identity and authenticates the sender embedded in it.
//
// Opened layout: message ‖ senderEd25519Pub(32) ‖ signature(64), where the
// signature covers message ‖ senderEd25519Pub.
func DecryptDirect(ciphertext []byte, recipient sessioncrypto.KeyPair) (Opened, error) {
	opened, err := sessioncrypto.SealedBoxOpen(ciphertext, recipient)
	if err != nil {
		return Opened{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	suffix := senderKeySize + signatureSize
	if len(opened) <= suffix {
		return Opened{}, fmt.Errorf("%w: opened payload too short (%d bytes)", ErrDecryptionFailed, len(opened))
	}

	message := opened[:len(opened)-suffix]
	senderEd := opened[len(opened)-suffix : len(opened)-signatureSize]
	sig := opened[len(opened)-signatureSize:]

	signed := make([]byte, 0, len(message)+senderKeySize)
	signed = append(signed, message...)
	signed = append(signed, senderEd...)
	if !sessioncrypto.Verify(senderEd, signed, sig) {
		return Opened{}, fmt.Errorf("%w: sender signature rejected", ErrInvalidSignature)
	}

	senderX, err := sessioncrypto.PublicEd25519ToX25519(senderEd)
	if err != nil {
		return Opened{}, fmt.Errorf("%w: sender key conversion: %v", ErrDecryptionFailed, err)
	}

	return Opened{Plaintext: message, SenderKey: senderX}, nil
}
