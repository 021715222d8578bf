package envelope

import (
	"crypto/ed25519"
	"fmt"

	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
)

// EncryptDirect seals message to the recipient's ed25519 identity with an
// anonymous sealed box, embedding the sender identity and a signature so
// DecryptDirect can authenticate it.
func EncryptDirect(message []byte, sender sessioncrypto.KeyPair, recipientPub ed25519.PublicKey) ([]byte, error) {
	signed := make([]byte, 0, len(message)+senderKeySize)
	signed = append(signed, message...)
	signed = append(signed, sender.Public...)
	sig := sender.Sign(signed)

	payload := make([]byte, 0, len(signed)+signatureSize)
	payload = append(payload, signed...)
	payload = append(payload, sig...)

	ct, err := sessioncrypto.SealedBoxSeal(payload, recipientPub)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt direct: %w", err)
	}
	return ct, nil
}

// EncryptBlinded encrypts message for a blinded recipient on the given
// community server. Inverse of DecryptBlinded.
func EncryptBlinded(message []byte, sender sessioncrypto.KeyPair, serverPub, recipientBlindedPub []byte, blinder *sessioncrypto.Blinder) ([]byte, error) {
	ours, err := blinder.BlindedKeyPair(serverPub, sender.Private)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt blinded: %w", err)
	}

	// Outbound direction: we are the sender.
	key, err := sessioncrypto.SharedBlindedKey(ours, recipientBlindedPub, ours.Public, recipientBlindedPub)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt blinded: %w", err)
	}

	payload := make([]byte, 0, len(message)+senderKeySize)
	payload = append(payload, message...)
	payload = append(payload, sender.Public...)

	sealed, err := sessioncrypto.AEADSeal(key, payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt blinded: %w", err)
	}

	out := make([]byte, 0, 1+len(sealed))
	out = append(out, blindedVersion)
	out = append(out, sealed...)
	return out, nil
}
