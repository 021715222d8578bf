package configstore

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ombra-im/ombra-go/internal/wire"
)

// Role is a member's role within a group.
type Role int

const (
	RoleStandard Role = iota
	RoleAdmin
)

// RoleStatus tracks where a member is in the invite/removal lifecycle.
// Transitions only move forward: pending/failed -> accepted,
// accepted -> pendingRemoval -> removed.
type RoleStatus int

const (
	StatusPending RoleStatus = iota + 1
	StatusAccepted
	StatusFailed
	StatusPendingRemoval
	StatusRemoved
)

func (s RoleStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusFailed:
		return "failed"
	case StatusPendingRemoval:
		return "pendingRemoval"
	case StatusRemoved:
		return "removed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CanTransitionTo reports whether moving from s to next is a forward
// transition. Equal states are allowed (idempotent redelivery).
func (s RoleStatus) CanTransitionTo(next RoleStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusAccepted || next == StatusFailed
	case StatusFailed:
		return next == StatusAccepted
	case StatusAccepted:
		return next == StatusPendingRemoval || next == StatusRemoved
	case StatusPendingRemoval:
		return next == StatusRemoved
	}
	return false
}

// MemberEntry is the authoritative record of one group member.
type MemberEntry struct {
	ProfileID string // prefixed hex account ID
	Role      Role
	Status    RoleStatus
	Invited   bool // set while the invite is outstanding
	Hidden    bool
	Name      string
	PicURL    string
}

// GroupMembers is the mergeable members config of one group.
type GroupMembers struct {
	kv kv
}

// NewGroupMembers creates an empty members config.
func NewGroupMembers() *GroupMembers {
	return &GroupMembers{kv: newKV()}
}

// Get returns the entry for profileID, if present.
func (m *GroupMembers) Get(profileID string) (MemberEntry, bool) {
	raw, ok := m.kv.get(profileID)
	if !ok || raw == nil {
		return MemberEntry{}, false
	}
	e, err := decodeMemberEntry(raw)
	if err != nil {
		return MemberEntry{}, false
	}
	return e, true
}

// Set writes the entry for e.ProfileID.
func (m *GroupMembers) Set(e MemberEntry) {
	m.kv.set(e.ProfileID, encodeMemberEntry(e))
}

// Remove tombstones the entry for profileID.
func (m *GroupMembers) Remove(profileID string) {
	m.kv.delete(profileID)
}

// All returns every live member entry, ordered by profile ID.
func (m *GroupMembers) All() []MemberEntry {
	keys := m.kv.keys()
	sort.Strings(keys)
	out := make([]MemberEntry, 0, len(keys))
	for _, k := range keys {
		if e, ok := m.Get(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Merge folds another members config into this one.
func (m *GroupMembers) Merge(other *GroupMembers) {
	m.kv.merge(other.kv)
}

// Dump serializes the config for persistence.
func (m *GroupMembers) Dump() []byte { return m.kv.dump() }

// LoadGroupMembers restores a members config from a dump.
func LoadGroupMembers(data []byte) (*GroupMembers, error) {
	c, err := loadKV(data)
	if err != nil {
		return nil, err
	}
	return &GroupMembers{kv: c}, nil
}

func (m *GroupMembers) clone() *GroupMembers {
	return &GroupMembers{kv: m.kv.clone()}
}

func encodeMemberEntry(e MemberEntry) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, e.ProfileID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Role))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Status))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, bit(e.Invited))
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, bit(e.Hidden))
	b = protowire.AppendTag(b, 6, protowire.BytesType)
	b = protowire.AppendString(b, e.Name)
	b = protowire.AppendTag(b, 7, protowire.BytesType)
	b = protowire.AppendString(b, e.PicURL)
	return b
}

func decodeMemberEntry(data []byte) (MemberEntry, error) {
	var e MemberEntry
	err := wire.Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		v, n := protowire.ConsumeVarint(field)
		switch num {
		case 1:
			e.ProfileID = string(field)
		case 2:
			if n < 0 {
				return wire.ErrMalformed
			}
			e.Role = Role(v)
		case 3:
			if n < 0 {
				return wire.ErrMalformed
			}
			e.Status = RoleStatus(v)
		case 4:
			e.Invited = v == 1
		case 5:
			e.Hidden = v == 1
		case 6:
			e.Name = string(field)
		case 7:
			e.PicURL = string(field)
		}
		return nil
	})
	return e, err
}

func bit(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
