package engine

import (
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
	"github.com/ombra-im/ombra-go/internal/store"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// CreateGroup creates a group with the local identity as its founding
// admin. Initial members enter as pending invitees; sending the actual
// invite messages is the caller's concern.
func (e *Engine) CreateGroup(name string, memberIDs []string) (string, Outcome, error) {
	identity, err := sessioncrypto.GenerateKeyPair()
	if err != nil {
		return "", Outcome{}, fmt.Errorf("engine: generate group identity: %w", err)
	}
	groupID := sessioncrypto.GroupID(identity.Public)
	nowMs := e.now().UnixMilli()

	unlock := e.lockGroup(groupID)
	defer unlock()

	staged, err := e.configs.Begin(groupID)
	if err != nil {
		return "", Outcome{}, fmt.Errorf("engine: begin config: %w", err)
	}
	if err := staged.StageAdminKey(identity); err != nil {
		return "", Outcome{}, fmt.Errorf("engine: stage admin key: %w", err)
	}

	staged.Info.SetName(name)
	staged.Members.Set(configstore.MemberEntry{
		ProfileID: e.localID,
		Role:      configstore.RoleAdmin,
		Status:    configstore.StatusAccepted,
	})
	for _, id := range memberIDs {
		staged.Members.Set(configstore.MemberEntry{
			ProfileID: id,
			Status:    configstore.StatusPending,
			Invited:   true,
		})
	}
	staged.UserIndex.Set(configstore.UserGroupEntry{
		GroupID:   groupID,
		Name:      name,
		AdminSeed: identity.Seed(),
	})

	fx := &effects{}
	err = e.store.WithTx(func(tx *store.Tx) error {
		if err := tx.UpsertGroup(&store.Group{
			GroupID:     groupID,
			Name:        name,
			AdminSeed:   identity.Seed(),
			ShouldPoll:  true,
			CreatedAtMs: nowMs,
		}); err != nil {
			return err
		}
		if _, err := tx.UpsertThread(&store.Thread{
			ThreadID:    groupID,
			Variant:     wire.ThreadGroup,
			CreatedAtMs: nowMs,
		}); err != nil {
			return err
		}
		if _, err := tx.InsertInteraction(&store.Interaction{
			ThreadID:    groupID,
			AuthorID:    e.localID,
			Variant:     store.InfoGroupCreated,
			Body:        fmt.Sprintf("You created %s", name),
			TimestampMs: nowMs,
		}); err != nil {
			return err
		}
		if err := ProjectMembers(tx, groupID, staged.Members); err != nil {
			return err
		}
		return persistDumps(tx, groupID, staged)
	})
	if err != nil {
		return "", Outcome{}, err
	}

	staged.Commit()
	fx.add(StartPoller{GroupID: groupID})
	if e.pushTokenRegistered != nil && e.pushTokenRegistered() {
		fx.add(SubscribePush{GroupID: groupID})
	}
	e.logf("engine: created group %s (%q)", groupID, name)
	return groupID, Outcome{Applied: true, Effects: fx.list}, nil
}
