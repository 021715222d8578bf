package store

import (
	"database/sql"
	"fmt"
)

// Group is the mirror row for one group identity. AdminSeed and AuthToken
// are mutually exclusive: admins hold the seed, accepted non-admin
// members hold a swarm auth token.
type Group struct {
	GroupID       string
	Name          string
	AdminSeed     []byte
	AuthToken     []byte
	Invited       bool
	Destroyed     bool
	ShouldPoll    bool
	ExpirySeconds uint32
	CreatedAtMs   int64
}

// IsAdmin reports whether the local identity holds this group's admin key.
func (g *Group) IsAdmin() bool {
	return len(g.AdminSeed) > 0
}

// UpsertGroup stores or updates a group row, enforcing the admin-seed /
// auth-token exclusivity.
func (t *Tx) UpsertGroup(g *Group) error {
	if len(g.AdminSeed) > 0 && len(g.AuthToken) > 0 {
		return fmt.Errorf("store: group %s: admin seed and auth token are mutually exclusive", g.GroupID)
	}
	_, err := t.tx.Exec(
		`INSERT OR REPLACE INTO groups
		 (group_id, name, admin_seed, auth_token, invited, destroyed, should_poll, expiry_seconds, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.GroupID, g.Name, g.AdminSeed, g.AuthToken,
		boolInt(g.Invited), boolInt(g.Destroyed), boolInt(g.ShouldPoll),
		g.ExpirySeconds, g.CreatedAtMs,
	)
	if err != nil {
		return fmt.Errorf("store: upsert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group row, or nil if absent.
func (t *Tx) GetGroup(groupID string) (*Group, error) {
	return scanGroup(t.tx.QueryRow(
		`SELECT group_id, name, admin_seed, auth_token, invited, destroyed, should_poll, expiry_seconds, created_at_ms
		 FROM groups WHERE group_id = ?`, groupID))
}

// DeleteGroup removes a group row.
func (t *Tx) DeleteGroup(groupID string) error {
	_, err := t.tx.Exec("DELETE FROM groups WHERE group_id = ?", groupID)
	if err != nil {
		return fmt.Errorf("store: delete group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group row outside any transaction.
func (s *Store) GetGroup(groupID string) (*Group, error) {
	return scanGroup(s.db.QueryRow(
		`SELECT group_id, name, admin_seed, auth_token, invited, destroyed, should_poll, expiry_seconds, created_at_ms
		 FROM groups WHERE group_id = ?`, groupID))
}

// ListGroups returns all group rows ordered by creation time.
func (s *Store) ListGroups() ([]*Group, error) {
	rows, err := s.db.Query(
		`SELECT group_id, name, admin_seed, auth_token, invited, destroyed, should_poll, expiry_seconds, created_at_ms
		 FROM groups ORDER BY created_at_ms, group_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	defer rows.Close()

	var out []*Group
	for rows.Next() {
		g, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row *sql.Row) (*Group, error) {
	g, err := scanGroupRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func scanGroupRow(r rowScanner) (*Group, error) {
	var g Group
	var invited, destroyed, shouldPoll int
	err := r.Scan(&g.GroupID, &g.Name, &g.AdminSeed, &g.AuthToken,
		&invited, &destroyed, &shouldPoll, &g.ExpirySeconds, &g.CreatedAtMs)
	if err != nil {
		return nil, err
	}
	g.Invited = invited != 0
	g.Destroyed = destroyed != 0
	g.ShouldPoll = shouldPoll != 0
	return &g, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
