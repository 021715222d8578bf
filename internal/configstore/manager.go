package configstore

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
)

// Manager owns the config objects of every group the local identity
// belongs to, plus the user-scoped group index and any loaded admin keys.
//
// Mutations go through a Staged snapshot (Begin/Commit) so the engine can
// apply config changes and mirror writes as one unit: nothing becomes
// visible here until Commit, and an abandoned snapshot has no effect.
type Manager struct {
	mu         sync.Mutex
	groups     map[string]*groupConfigs
	userGroups *UserGroups
	adminKeys  map[string]sessioncrypto.KeyPair
}

type groupConfigs struct {
	info    *GroupInfo
	members *GroupMembers
	keys    *GroupKeys
}

// NewManager creates an empty config manager.
func NewManager() *Manager {
	return &Manager{
		groups:     make(map[string]*groupConfigs),
		userGroups: NewUserGroups(),
		adminKeys:  make(map[string]sessioncrypto.KeyPair),
	}
}

// Restore installs a group's three configs loaded from persisted dumps.
// Used at startup, before any message processing.
func (m *Manager) Restore(groupID string, info *GroupInfo, members *GroupMembers, keys *GroupKeys) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[groupID] = &groupConfigs{info: info, members: members, keys: keys}
}

// RestoreUserGroups installs the user-scoped group index loaded from its
// persisted dump.
func (m *Manager) RestoreUserGroups(ug *UserGroups) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userGroups = ug
}

// HasConfig reports whether a config of the given kind exists for the ID.
func (m *Manager) HasConfig(kind Kind, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == KindUserGroups {
		return true
	}
	_, ok := m.groups[id]
	return ok
}

// RemoveConfigs discards all three config objects of a group and any
// loaded admin key. The user-index entry is left to the caller (kick
// handling marks it, local deletion removes it).
func (m *Manager) RemoveConfigs(groupID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, groupID)
	delete(m.adminKeys, groupID)
}

// MarkAsKicked flags the given groups as kicked in the user index.
func (m *Manager) MarkAsKicked(groupIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userGroups.MarkAsKicked(groupIDs)
}

// LoadAdminKey derives the group's admin key pair from seed and retains
// it. The derived public key must be the group's identity key.
func (m *Manager) LoadAdminKey(seed []byte, groupID string) (sessioncrypto.KeyPair, error) {
	kp, err := sessioncrypto.KeyPairFromSeed(seed)
	if err != nil {
		return sessioncrypto.KeyPair{}, fmt.Errorf("configstore: load admin key: %w", err)
	}
	if sessioncrypto.GroupID(kp.Public) != groupID {
		return sessioncrypto.KeyPair{}, fmt.Errorf("configstore: admin seed does not match group %s", groupID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminKeys[groupID] = kp
	return kp, nil
}

// AdminKey returns the loaded admin key pair for a group, if any.
func (m *Manager) AdminKey(groupID string) (sessioncrypto.KeyPair, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kp, ok := m.adminKeys[groupID]
	return kp, ok
}

// GroupPublicKey returns the group's ed25519 identity key parsed from its
// prefixed hex ID. Every admin signature verifies against this key.
func GroupPublicKey(groupID string) (ed25519.PublicKey, error) {
	return sessioncrypto.ParseGroupID(groupID)
}

// CurrentGeneration returns the group's current key epoch, or 0 if the
// group has no keys config yet.
func (m *Manager) CurrentGeneration(groupID string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	gc, ok := m.groups[groupID]
	if !ok {
		return 0
	}
	return gc.keys.Generation()
}

// UserGroupEntry returns the user-index entry for a group.
func (m *Manager) UserGroupEntry(groupID string) (UserGroupEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userGroups.Get(groupID)
}

// Staged is a private snapshot of one group's configs plus the user
// index. Mutations apply to the snapshot only until Commit.
type Staged struct {
	m         *Manager
	groupID   string
	created   bool
	adminKey  *sessioncrypto.KeyPair
	Info      *GroupInfo
	Members   *GroupMembers
	Keys      *GroupKeys
	UserIndex *UserGroups
}

// StageAdminKey records an admin key pair to retain on Commit. The
// derived public key must be the group's identity key.
func (s *Staged) StageAdminKey(kp sessioncrypto.KeyPair) error {
	if sessioncrypto.GroupID(kp.Public) != s.groupID {
		return fmt.Errorf("configstore: admin key does not match group %s", s.groupID)
	}
	s.adminKey = &kp
	return nil
}

// Begin opens a staged snapshot for groupID, creating empty configs if
// the group is new. Callers must either Commit or drop the snapshot.
func (m *Manager) Begin(groupID string) (*Staged, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gc, ok := m.groups[groupID]
	if !ok {
		keys, err := NewGroupKeys(groupID)
		if err != nil {
			return nil, err
		}
		gc = &groupConfigs{info: NewGroupInfo(), members: NewGroupMembers(), keys: keys}
	}
	ug, err := LoadUserGroups(m.userGroups.Dump())
	if err != nil {
		return nil, err
	}
	return &Staged{
		m:         m,
		groupID:   groupID,
		created:   !ok,
		Info:      gc.info.clone(),
		Members:   gc.members.clone(),
		Keys:      gc.keys.clone(),
		UserIndex: ug,
	}, nil
}

// Commit publishes the snapshot back into the manager.
func (s *Staged) Commit() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.groups[s.groupID] = &groupConfigs{info: s.Info, members: s.Members, keys: s.Keys}
	s.m.userGroups = s.UserIndex
	if s.adminKey != nil {
		s.m.adminKeys[s.groupID] = *s.adminKey
	}
}

// CommitRemoved publishes the snapshot's user index but discards the
// group's configs entirely (kick/deletion paths).
func (s *Staged) CommitRemoved() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.groups, s.groupID)
	delete(s.m.adminKeys, s.groupID)
	s.m.userGroups = s.UserIndex
}
