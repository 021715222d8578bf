package engine

import (
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/store"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// handleInfoChange applies an admin-signed group metadata change and
// renders the matching info line.
func (e *Engine) handleInfoChange(tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, v wire.InfoChange, fx *effects) error {
	groupID := routing.ThreadID
	if err := verifyAdminSignature(groupID, v.SigningPayload(msg.SentAtMs), v.AdminSignature); err != nil {
		return err
	}

	group, err := tx.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: info change for unknown group %s", ErrInvalidMessage, groupID)
	}

	switch v.ChangeType {
	case wire.InfoChangeName:
		if v.UpdatedName == "" {
			return fmt.Errorf("%w: name change without a name", ErrInvalidMessage)
		}
		staged.Info.SetName(v.UpdatedName)
		group.Name = v.UpdatedName
		if err := tx.UpsertGroup(group); err != nil {
			return err
		}
		return e.insertInfoLine(tx, groupID, msg, store.InfoNameChanged,
			fmt.Sprintf("Group name is now %q", v.UpdatedName))

	case wire.InfoChangeAvatar:
		return e.insertInfoLine(tx, groupID, msg, store.InfoAvatarChanged,
			"Group display picture was updated")

	case wire.InfoChangeDisappearingMessages:
		staged.Info.SetExpirySeconds(v.UpdatedExpirySeconds)
		group.ExpirySeconds = v.UpdatedExpirySeconds
		if err := tx.UpsertGroup(group); err != nil {
			return err
		}
		body := "Disappearing messages turned off"
		if v.UpdatedExpirySeconds > 0 {
			body = fmt.Sprintf("Disappearing messages set to %ds", v.UpdatedExpirySeconds)
		}
		return e.insertInfoLine(tx, groupID, msg, store.InfoDisappearingChanged, body)

	default:
		return fmt.Errorf("%w: unknown info change type %d", ErrInvalidMessage, v.ChangeType)
	}
}
