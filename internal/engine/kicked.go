package engine

import (
	"errors"
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/jobs"
	"github.com/ombra-im/ombra-go/internal/store"
)

// HandleKicked processes a sealed removal notice from a group's keys
// channel. The notice names the removed member and the key generation it
// was sealed under; a notice for somebody else is ignored and a notice
// older than the current generation is rejected outright, so a replayed
// kick from before a re-invite cannot evict the member again.
func (e *Engine) HandleKicked(groupID string, sealed []byte) (Outcome, error) {
	unlock := e.lockGroup(groupID)
	defer unlock()

	staged, err := e.configs.Begin(groupID)
	if err != nil {
		return Outcome{}, fmt.Errorf("engine: begin config: %w", err)
	}

	kicked, err := staged.Keys.OpenKicked(sealed)
	if err != nil {
		return rejected(fmt.Errorf("%w: unreadable kicked notice: %v", ErrInvalidMessage, err)), nil
	}
	if kicked.MemberID != e.localID {
		return Outcome{Applied: true}, nil
	}
	if kicked.Generation < staged.Keys.Generation() {
		return rejected(fmt.Errorf("%w: kicked notice for stale generation %d", ErrInvalidMessage, kicked.Generation)), nil
	}

	fx := &effects{}
	err = e.store.WithTx(func(tx *store.Tx) error {
		group, err := tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		if group == nil {
			return fmt.Errorf("%w: kicked from unknown group %s", ErrInvalidMessage, groupID)
		}
		if err := tx.DeleteMembers(groupID); err != nil {
			return err
		}
		if err := tx.DeleteConfigDumps(groupID); err != nil {
			return err
		}
		staged.UserIndex.MarkAsKicked([]string{groupID})
		if err := tx.SaveConfigDump(userScope, configstore.KindUserGroups, staged.UserIndex.Dump()); err != nil {
			return err
		}
		if group.Invited {
			// Never accepted: nothing worth keeping.
			if err := tx.DeleteThread(groupID); err != nil {
				return err
			}
			return tx.DeleteGroup(groupID)
		}
		// History stays readable, but credentials and polling go.
		group.AuthToken = nil
		group.AdminSeed = nil
		group.ShouldPoll = false
		group.Destroyed = true
		return tx.UpsertGroup(group)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidMessage) {
			return rejected(err), nil
		}
		return Outcome{}, err
	}

	staged.CommitRemoved()

	fx.add(StopPoller{GroupID: groupID})
	fx.add(ScheduleJob{Job: jobs.Job{
		Kind:    jobs.KindPushUnsubscribe,
		GroupID: groupID,
	}})
	e.logf("engine: kicked from group %s (generation %d)", groupID, kicked.Generation)
	return Outcome{Applied: true, Effects: fx.list}, nil
}
