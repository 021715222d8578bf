package engine

import (
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// validateHeader checks the fields every control message must carry.
// Pure; runs to completion before any store write begins.
func validateHeader(msg wire.Message) error {
	if msg.Sender == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if msg.SentAtMs <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidMessage)
	}
	if msg.Body == nil {
		return fmt.Errorf("%w: missing body", ErrInvalidMessage)
	}
	return nil
}

// verifyAdminSignature checks an authority-changing message's signature
// against the group's identity key, which every admin signs with.
func verifyAdminSignature(groupID string, payload, sig []byte) error {
	pub, err := configstore.GroupPublicKey(groupID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if !sessioncrypto.Verify(pub, payload, sig) {
		return fmt.Errorf("%w: admin signature rejected", ErrInvalidMessage)
	}
	return nil
}
