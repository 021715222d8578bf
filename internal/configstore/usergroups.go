package configstore

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ombra-im/ombra-go/internal/wire"
)

// UserGroupEntry is the user-scoped record of one group the local
// identity belongs to. AuthData and AdminSeed are mutually exclusive:
// accepted non-admin members hold an auth token, admins hold the seed.
type UserGroupEntry struct {
	GroupID   string
	Name      string
	AuthData  []byte // swarm auth token (non-admin)
	AdminSeed []byte // admin key seed (admin)
	Invited   bool
	Kicked    bool
}

// UserGroups is the user-scoped index of joined groups.
type UserGroups struct {
	kv kv
}

// NewUserGroups creates an empty group index.
func NewUserGroups() *UserGroups {
	return &UserGroups{kv: newKV()}
}

// Get returns the entry for groupID, if present.
func (u *UserGroups) Get(groupID string) (UserGroupEntry, bool) {
	raw, ok := u.kv.get(groupID)
	if !ok || raw == nil {
		return UserGroupEntry{}, false
	}
	e, err := decodeUserGroupEntry(raw)
	if err != nil {
		return UserGroupEntry{}, false
	}
	return e, true
}

// Set writes the entry for e.GroupID.
func (u *UserGroups) Set(e UserGroupEntry) {
	u.kv.set(e.GroupID, encodeUserGroupEntry(e))
}

// Remove tombstones the entry for groupID.
func (u *UserGroups) Remove(groupID string) {
	u.kv.delete(groupID)
}

// All returns every live entry, ordered by group ID.
func (u *UserGroups) All() []UserGroupEntry {
	keys := u.kv.keys()
	sort.Strings(keys)
	out := make([]UserGroupEntry, 0, len(keys))
	for _, k := range keys {
		if e, ok := u.Get(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// MarkAsKicked flags the given groups as kicked, clearing their
// credentials so a later restore cannot resurrect swarm access.
func (u *UserGroups) MarkAsKicked(groupIDs []string) {
	for _, id := range groupIDs {
		e, ok := u.Get(id)
		if !ok {
			e = UserGroupEntry{GroupID: id}
		}
		e.Kicked = true
		e.AuthData = nil
		e.AdminSeed = nil
		u.Set(e)
	}
}

// Merge folds another index into this one.
func (u *UserGroups) Merge(other *UserGroups) {
	u.kv.merge(other.kv)
}

// Dump serializes the index for persistence.
func (u *UserGroups) Dump() []byte { return u.kv.dump() }

// LoadUserGroups restores the index from a dump.
func LoadUserGroups(data []byte) (*UserGroups, error) {
	c, err := loadKV(data)
	if err != nil {
		return nil, err
	}
	return &UserGroups{kv: c}, nil
}

func encodeUserGroupEntry(e UserGroupEntry) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, e.GroupID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, e.Name)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, e.AuthData)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, e.AdminSeed)
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, bit(e.Invited))
	b = protowire.AppendTag(b, 6, protowire.VarintType)
	b = protowire.AppendVarint(b, bit(e.Kicked))
	return b
}

func decodeUserGroupEntry(data []byte) (UserGroupEntry, error) {
	var e UserGroupEntry
	err := wire.Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		v, _ := protowire.ConsumeVarint(field)
		switch num {
		case 1:
			e.GroupID = string(field)
		case 2:
			e.Name = string(field)
		case 3:
			if len(field) > 0 {
				e.AuthData = append([]byte(nil), field...)
			}
		case 4:
			if len(field) > 0 {
				e.AdminSeed = append([]byte(nil), field...)
			}
		case 5:
			e.Invited = v == 1
		case 6:
			e.Kicked = v == 1
		}
		return nil
	})
	return e, err
}
