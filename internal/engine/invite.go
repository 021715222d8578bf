package engine

import (
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
	"github.com/ombra-im/ombra-go/internal/store"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// handleInvite admits the local identity into a group as an invited
// member. If the inviter is an approved contact the group goes live
// immediately; otherwise it lands as a message request.
func (e *Engine) handleInvite(tx *store.Tx, staged *configstore.Staged, msg wire.Message, v wire.Invite, fx *effects) error {
	if err := verifyAdminSignature(v.GroupID, v.SigningPayload(msg.SentAtMs), v.AdminSignature); err != nil {
		return err
	}

	approved, err := tx.IsApproved(msg.Sender)
	if err != nil {
		return err
	}

	group, err := tx.GetGroup(v.GroupID)
	if err != nil {
		return err
	}
	if group == nil {
		group = &store.Group{
			GroupID:     v.GroupID,
			Invited:     !approved,
			ShouldPoll:  approved,
			CreatedAtMs: msg.SentAtMs,
		}
	} else {
		// Redelivery or re-invite: never downgrade an already-active
		// group back to invited.
		group.Invited = group.Invited && !approved
		group.ShouldPoll = group.ShouldPoll || approved
	}
	group.AuthToken = v.MemberAuthData

	// The invite's name seeds the info config once; after that the
	// config is authoritative and the mirror row follows it, so a
	// redelivered invite cannot undo later info changes.
	if staged.Info.Name() == "" {
		staged.Info.SetName(v.GroupName)
	}
	group.Name = staged.Info.Name()
	group.ExpirySeconds = staged.Info.ExpirySeconds()
	if err := tx.UpsertGroup(group); err != nil {
		return err
	}

	staged.UserIndex.Set(configstore.UserGroupEntry{
		GroupID:  v.GroupID,
		Name:     group.Name,
		AuthData: v.MemberAuthData,
		Invited:  group.Invited,
	})

	if _, err := tx.UpsertThread(&store.Thread{
		ThreadID:    v.GroupID,
		Variant:     wire.ThreadGroup,
		CreatedAtMs: msg.SentAtMs,
	}); err != nil {
		return err
	}

	// The implicit "invited" line is created once, even across redelivery.
	seen, err := tx.HasInteractionVariant(v.GroupID, store.InfoGroupInvited)
	if err != nil {
		return err
	}
	if !seen {
		if _, err := tx.InsertInteraction(&store.Interaction{
			ThreadID:    v.GroupID,
			AuthorID:    msg.Sender,
			Variant:     store.InfoGroupInvited,
			Body:        fmt.Sprintf("%s invited you to join %s", msg.Sender, v.GroupName),
			TimestampMs: msg.SentAtMs,
		}); err != nil {
			return err
		}
		fx.add(ShowNotification{Notification: Notification{
			ThreadID:       v.GroupID,
			Title:          v.GroupName,
			Body:           "You have been invited to a group",
			MessageRequest: !approved,
		}})
	}

	if group.ShouldPoll {
		fx.add(StartPoller{GroupID: v.GroupID})
		if e.pushTokenRegistered != nil && e.pushTokenRegistered() {
			fx.add(SubscribePush{GroupID: v.GroupID})
		}
	}
	return nil
}

// handlePromote installs the admin key delivered to a newly promoted
// member, replacing their member auth token. The two credentials are
// mutually exclusive.
func (e *Engine) handlePromote(tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, v wire.Promote, fx *effects) error {
	groupID := routing.ThreadID

	kp, err := sessioncrypto.KeyPairFromSeed(v.GroupSeed)
	if err != nil {
		return fmt.Errorf("%w: derive admin key: %v", ErrInvalidMessage, err)
	}
	if err := staged.StageAdminKey(kp); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	group, err := tx.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: promote for unknown group %s", ErrInvalidMessage, groupID)
	}
	group.AdminSeed = v.GroupSeed
	group.AuthToken = nil
	if err := tx.UpsertGroup(group); err != nil {
		return err
	}

	entry, ok := staged.UserIndex.Get(groupID)
	if !ok {
		entry = configstore.UserGroupEntry{GroupID: groupID, Name: v.GroupName}
	}
	entry.AdminSeed = v.GroupSeed
	entry.AuthData = nil
	staged.UserIndex.Set(entry)

	// Reflect the new role in the authoritative members config and mirror.
	if m, ok := staged.Members.Get(e.localID); ok {
		m.Role = configstore.RoleAdmin
		staged.Members.Set(m)
	}
	self, err := tx.GetMember(groupID, e.localID)
	if err != nil {
		return err
	}
	if self != nil {
		self.Role = configstore.RoleAdmin
		if err := tx.UpsertMember(self); err != nil {
			return err
		}
	}
	return nil
}

// handleInviteResponse applies a member's acceptance (or rejection) of an
// invite: profile details are taken over and the authoritative config
// entry moves from pending/failed to accepted, whether or not a mirror
// row existed.
func (e *Engine) handleInviteResponse(tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, v wire.InviteResponse, fx *effects) error {
	groupID := routing.ThreadID

	group, err := tx.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: invite response for unknown group %s", ErrInvalidMessage, groupID)
	}

	entry, ok := staged.Members.Get(msg.Sender)
	if !ok {
		entry = configstore.MemberEntry{ProfileID: msg.Sender, Status: configstore.StatusPending, Invited: true}
	}
	next := configstore.StatusAccepted
	if !v.IsApproved {
		next = configstore.StatusFailed
	}
	if !entry.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: invite response would move %s from %s to %s",
			ErrInvalidMessage, msg.Sender, entry.Status, next)
	}
	entry.Status = next
	if v.Profile != nil {
		entry.Name = v.Profile.DisplayName
		entry.PicURL = v.Profile.ProfilePicURL
	}
	if group.IsAdmin() && v.IsApproved {
		entry.Invited = false
	}
	staged.Members.Set(entry)

	member := &store.Member{
		GroupID:    groupID,
		ProfileID:  entry.ProfileID,
		Role:       entry.Role,
		RoleStatus: entry.Status,
		Name:       entry.Name,
		PicURL:     entry.PicURL,
	}
	return tx.UpsertMember(member)
}
