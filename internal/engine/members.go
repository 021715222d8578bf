package engine

import (
	"fmt"
	"strings"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/jobs"
	"github.com/ombra-im/ombra-go/internal/store"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// handleMemberChange applies an admin-signed membership mutation: added
// members enter as pending, removed members leave config and mirror, and
// promoted members gain the admin role without a status change. Every
// variant materially changes membership, so every variant rotates keys.
func (e *Engine) handleMemberChange(tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, v wire.MemberChange, fx *effects) error {
	groupID := routing.ThreadID
	if err := verifyAdminSignature(groupID, v.SigningPayload(msg.SentAtMs), v.AdminSignature); err != nil {
		return err
	}
	if len(v.MemberIDs) == 0 {
		return fmt.Errorf("%w: member change without members", ErrInvalidMessage)
	}

	switch v.ChangeType {
	case wire.MemberAdded:
		for _, id := range v.MemberIDs {
			entry, ok := staged.Members.Get(id)
			if !ok {
				entry = configstore.MemberEntry{ProfileID: id, Status: configstore.StatusPending}
			}
			entry.Invited = true
			staged.Members.Set(entry)
			if err := tx.UpsertMember(&store.Member{
				GroupID:    groupID,
				ProfileID:  id,
				Role:       entry.Role,
				RoleStatus: entry.Status,
			}); err != nil {
				return err
			}
		}
	case wire.MemberRemoved:
		for _, id := range v.MemberIDs {
			staged.Members.Remove(id)
			if err := tx.DeleteMember(groupID, id); err != nil {
				return err
			}
		}
	case wire.MemberPromoted:
		for _, id := range v.MemberIDs {
			entry, ok := staged.Members.Get(id)
			if !ok {
				entry = configstore.MemberEntry{ProfileID: id, Status: configstore.StatusAccepted}
			}
			entry.Role = configstore.RoleAdmin
			staged.Members.Set(entry)
			m, err := tx.GetMember(groupID, id)
			if err != nil {
				return err
			}
			if m == nil {
				m = &store.Member{GroupID: groupID, ProfileID: id, RoleStatus: entry.Status}
			}
			m.Role = configstore.RoleAdmin
			if err := tx.UpsertMember(m); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown member change type %d", ErrInvalidMessage, v.ChangeType)
	}

	if _, err := staged.Keys.Rekey(groupID, staged.Info, staged.Members); err != nil {
		return err
	}

	if err := e.insertInfoLine(tx, groupID, msg, memberChangeVariant(v.ChangeType), memberChangeBody(v)); err != nil {
		return err
	}
	return nil
}

// handleMemberLeft is the departing member's own signed goodbye. Only an
// admin acts on it: the member is parked in pendingRemoval (messages
// retained) and a deferred sweep reconciles membership and rekeys. No
// info line and no synchronous outbound message.
func (e *Engine) handleMemberLeft(tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, fx *effects) error {
	groupID := routing.ThreadID

	group, err := tx.GetGroup(groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return fmt.Errorf("%w: member left for unknown group %s", ErrInvalidMessage, groupID)
	}
	if !group.IsAdmin() {
		return nil
	}

	if entry, ok := staged.Members.Get(msg.Sender); ok {
		if entry.Role == configstore.RoleAdmin {
			return fmt.Errorf("%w: admin cannot leave via member-left", ErrInvalidMessage)
		}
		if entry.Status.CanTransitionTo(configstore.StatusPendingRemoval) {
			entry.Status = configstore.StatusPendingRemoval
			staged.Members.Set(entry)
		}
	}
	m, err := tx.GetMember(groupID, msg.Sender)
	if err != nil {
		return err
	}
	if m != nil && m.RoleStatus.CanTransitionTo(configstore.StatusPendingRemoval) {
		m.RoleStatus = configstore.StatusPendingRemoval
		if err := tx.UpsertMember(m); err != nil {
			return err
		}
	}

	fx.add(ScheduleJob{Job: jobs.Job{
		Kind:              jobs.KindPendingRemovalSweep,
		GroupID:           groupID,
		ChangeTimestampMs: msg.SentAtMs,
	}})
	return nil
}

// handleMemberLeftNotification renders the departure for everyone. It
// never mutates membership.
func (e *Engine) handleMemberLeftNotification(tx *store.Tx, staged *configstore.Staged, routing wire.Routing, msg wire.Message, fx *effects) error {
	return e.insertInfoLine(tx, routing.ThreadID, msg, store.InfoMemberLeft,
		fmt.Sprintf("%s left the group", msg.Sender))
}

// SweepPendingRemovals finishes what MemberLeft started: every member
// currently in pendingRemoval is removed from the authoritative config
// and the mirror, and the group rekeys so departed members cannot read
// future content. sinceMs timestamps the removal info lines. Run by the
// deferred job, not the message path.
func (e *Engine) SweepPendingRemovals(groupID string, sinceMs int64) (Outcome, error) {
	unlock := e.lockGroup(groupID)
	defer unlock()

	staged, err := e.configs.Begin(groupID)
	if err != nil {
		return Outcome{}, fmt.Errorf("engine: begin config: %w", err)
	}

	fx := &effects{}
	swept := 0
	err = e.store.WithTx(func(tx *store.Tx) error {
		pending, err := tx.MembersWithStatus(groupID, configstore.StatusPendingRemoval)
		if err != nil {
			return err
		}
		for _, m := range pending {
			staged.Members.Remove(m.ProfileID)
			if err := tx.DeleteMember(groupID, m.ProfileID); err != nil {
				return err
			}
			if err := e.insertInfoLineAt(tx, groupID, m.ProfileID, sinceMs, store.InfoMembersRemoved,
				fmt.Sprintf("%s was removed from the group", m.ProfileID)); err != nil {
				return err
			}
			swept++
		}
		if swept == 0 {
			return nil
		}
		if _, err := staged.Keys.Rekey(groupID, staged.Info, staged.Members); err != nil {
			return err
		}
		return persistDumps(tx, groupID, staged)
	})
	if err != nil {
		return Outcome{}, err
	}
	if swept == 0 {
		return Outcome{Applied: true}, nil
	}

	staged.Commit()
	return Outcome{Applied: true, Effects: fx.list}, nil
}

// ProjectMembers rebuilds the mirror's member rows of one group from the
// authoritative members config. The mirror is a derived cache; this is
// the single projection every reconciliation goes through.
func ProjectMembers(tx *store.Tx, groupID string, members *configstore.GroupMembers) error {
	var rows []*store.Member
	for _, entry := range members.All() {
		rows = append(rows, &store.Member{
			GroupID:    groupID,
			ProfileID:  entry.ProfileID,
			Role:       entry.Role,
			RoleStatus: entry.Status,
			IsHidden:   entry.Hidden,
			Name:       entry.Name,
			PicURL:     entry.PicURL,
		})
	}
	return tx.ReplaceMembers(groupID, rows)
}

// RebuildMirror reprojects a group's member rows from the current config
// state, proving the mirror can always be rebuilt from config alone.
func (e *Engine) RebuildMirror(groupID string) error {
	unlock := e.lockGroup(groupID)
	defer unlock()

	staged, err := e.configs.Begin(groupID)
	if err != nil {
		return fmt.Errorf("engine: begin config: %w", err)
	}
	return e.store.WithTx(func(tx *store.Tx) error {
		return ProjectMembers(tx, groupID, staged.Members)
	})
}

func memberChangeVariant(t wire.MemberChangeType) store.InteractionVariant {
	switch t {
	case wire.MemberAdded:
		return store.InfoMembersAdded
	case wire.MemberRemoved:
		return store.InfoMembersRemoved
	default:
		return store.InfoMembersPromoted
	}
}

func memberChangeBody(v wire.MemberChange) string {
	who := strings.Join(v.MemberIDs, ", ")
	switch v.ChangeType {
	case wire.MemberAdded:
		return fmt.Sprintf("%s joined the group", who)
	case wire.MemberRemoved:
		return fmt.Sprintf("%s was removed from the group", who)
	default:
		return fmt.Sprintf("%s was promoted to admin", who)
	}
}

// insertInfoLine synthesizes a visible info interaction timestamped at
// the control message's sent time.
func (e *Engine) insertInfoLine(tx *store.Tx, groupID string, msg wire.Message, variant store.InteractionVariant, body string) error {
	return e.insertInfoLineAt(tx, groupID, msg.Sender, msg.SentAtMs, variant, body)
}

func (e *Engine) insertInfoLineAt(tx *store.Tx, groupID, author string, tsMs int64, variant store.InteractionVariant, body string) error {
	th, err := tx.GetThread(groupID)
	if err != nil {
		return err
	}
	if th == nil {
		// No conversation to render into; visible lines are only added to
		// threads that already exist.
		return nil
	}
	_, err = tx.InsertInteraction(&store.Interaction{
		ThreadID:    groupID,
		AuthorID:    author,
		Variant:     variant,
		Body:        body,
		TimestampMs: tsMs,
	})
	return err
}
