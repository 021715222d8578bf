package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ombra-im/ombra-go/internal/configstore"
)

// ErrStatusRegression reports an attempted backward role-status move.
// Role status only moves forward; the engine treats a violation as an
// invalid message.
var ErrStatusRegression = errors.New("store: role status may not regress")

// Member is the mirror row for one group member. It is a projection of
// the members config and carries no state of its own.
type Member struct {
	GroupID    string
	ProfileID  string
	Role       configstore.Role
	RoleStatus configstore.RoleStatus
	IsHidden   bool
	Name       string
	PicURL     string
}

// UpsertMember stores or updates a member row. If a row exists, the new
// role status must be a forward transition from the stored one.
func (t *Tx) UpsertMember(m *Member) error {
	existing, err := t.GetMember(m.GroupID, m.ProfileID)
	if err != nil {
		return err
	}
	if existing != nil && !existing.RoleStatus.CanTransitionTo(m.RoleStatus) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrStatusRegression,
			existing.RoleStatus, m.RoleStatus, m.ProfileID)
	}
	_, err = t.tx.Exec(
		`INSERT OR REPLACE INTO members
		 (group_id, profile_id, role, role_status, is_hidden, name, pic_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.GroupID, m.ProfileID, int(m.Role), int(m.RoleStatus),
		boolInt(m.IsHidden), m.Name, m.PicURL,
	)
	if err != nil {
		return fmt.Errorf("store: upsert member: %w", err)
	}
	return nil
}

// GetMember retrieves one member row, or nil if absent.
func (t *Tx) GetMember(groupID, profileID string) (*Member, error) {
	var m Member
	var hidden int
	err := t.tx.QueryRow(
		`SELECT group_id, profile_id, role, role_status, is_hidden, name, pic_url
		 FROM members WHERE group_id = ? AND profile_id = ?`,
		groupID, profileID,
	).Scan(&m.GroupID, &m.ProfileID, &m.Role, &m.RoleStatus, &hidden, &m.Name, &m.PicURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get member: %w", err)
	}
	m.IsHidden = hidden != 0
	return &m, nil
}

// ListMembers returns all member rows of a group ordered by profile ID.
func (t *Tx) ListMembers(groupID string) ([]*Member, error) {
	rows, err := t.tx.Query(
		`SELECT group_id, profile_id, role, role_status, is_hidden, name, pic_url
		 FROM members WHERE group_id = ? ORDER BY profile_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		var m Member
		var hidden int
		if err := rows.Scan(&m.GroupID, &m.ProfileID, &m.Role, &m.RoleStatus, &hidden, &m.Name, &m.PicURL); err != nil {
			return nil, fmt.Errorf("store: scan member: %w", err)
		}
		m.IsHidden = hidden != 0
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MembersWithStatus returns the group's members in the given status.
func (t *Tx) MembersWithStatus(groupID string, status configstore.RoleStatus) ([]*Member, error) {
	all, err := t.ListMembers(groupID)
	if err != nil {
		return nil, err
	}
	var out []*Member
	for _, m := range all {
		if m.RoleStatus == status {
			out = append(out, m)
		}
	}
	return out, nil
}

// DeleteMember removes one member row.
func (t *Tx) DeleteMember(groupID, profileID string) error {
	_, err := t.tx.Exec("DELETE FROM members WHERE group_id = ? AND profile_id = ?", groupID, profileID)
	if err != nil {
		return fmt.Errorf("store: delete member: %w", err)
	}
	return nil
}

// DeleteMembers removes every member row of a group.
func (t *Tx) DeleteMembers(groupID string) error {
	_, err := t.tx.Exec("DELETE FROM members WHERE group_id = ?", groupID)
	if err != nil {
		return fmt.Errorf("store: delete members: %w", err)
	}
	return nil
}

// ReplaceMembers deletes all member rows of a group and writes the given
// set. Used by the config-snapshot projection, which bypasses the
// forward-transition guard: the config store is authoritative.
func (t *Tx) ReplaceMembers(groupID string, members []*Member) error {
	if err := t.DeleteMembers(groupID); err != nil {
		return err
	}
	for _, m := range members {
		_, err := t.tx.Exec(
			`INSERT INTO members (group_id, profile_id, role, role_status, is_hidden, name, pic_url)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			groupID, m.ProfileID, int(m.Role), int(m.RoleStatus),
			boolInt(m.IsHidden), m.Name, m.PicURL,
		)
		if err != nil {
			return fmt.Errorf("store: replace members: %w", err)
		}
	}
	return nil
}
