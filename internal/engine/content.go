package engine

import (
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/store"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// handleDeleteMemberContent blanks content in the mirror. An admin-signed
// request may target any authors and hashes; an unsigned request is
// restricted to content the sender authored. Only messages at or before
// the request's own timestamp are affected, so content that arrives later
// survives a replayed deletion.
func (e *Engine) handleDeleteMemberContent(tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, v wire.DeleteMemberContent, fx *effects) error {
	groupID := routing.ThreadID
	if len(v.MemberIDs) == 0 && len(v.MessageHashes) == 0 {
		return fmt.Errorf("%w: delete request without targets", ErrInvalidMessage)
	}

	group, err := tx.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: delete request for unknown group %s", ErrInvalidMessage, groupID)
	}

	onlyAuthor := ""
	if len(v.AdminSignature) > 0 {
		if err := verifyAdminSignature(groupID, v.SigningPayload(msg.SentAtMs), v.AdminSignature); err != nil {
			return err
		}
	} else {
		onlyAuthor = msg.Sender
	}

	if group.IsAdmin() {
		authors := v.MemberIDs
		if onlyAuthor != "" {
			// Self-serve scope: only the sender's own hashes leave the swarm.
			authors = []string{onlyAuthor}
		}
		hashes, err := tx.ServerHashesMatching(groupID, v.MessageHashes, authors, msg.SentAtMs)
		if err != nil {
			return err
		}
		if len(hashes) > 0 {
			fx.add(DeleteFromSwarm{GroupID: groupID, Hashes: hashes})
		}
	}

	if _, err := tx.BlankInteractions(groupID, v.MessageHashes, v.MemberIDs, msg.SentAtMs, onlyAuthor); err != nil {
		return err
	}
	return nil
}
