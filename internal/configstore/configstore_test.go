package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
)

func testGroupID(t *testing.T) string {
	t.Helper()
	kp, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)
	return sessioncrypto.GroupID(kp.Public)
}

func TestKVMergeLastWriterWins(t *testing.T) {
	a := NewGroupInfo()
	b := NewGroupInfo()

	a.SetName("old name")
	b.SetName("first")
	b.SetName("second")
	b.SetPicURL("http://pic")

	// b has written twice, so its name entry carries the higher counter.
	a.Merge(b)
	assert.Equal(t, "second", a.Name())
	assert.Equal(t, "http://pic", a.PicURL())

	// Merging an older snapshot back must not regress.
	stale := NewGroupInfo()
	stale.SetName("ancient")
	a.Merge(stale)
	assert.Equal(t, "second", a.Name())
}

func TestInfoDumpRoundTrip(t *testing.T) {
	g := NewGroupInfo()
	g.SetName("book club")
	g.SetExpirySeconds(604800)
	g.SetDeleteBeforeMs(1700000000000)

	restored, err := LoadGroupInfo(g.Dump())
	require.NoError(t, err)
	assert.Equal(t, "book club", restored.Name())
	assert.Equal(t, uint32(604800), restored.ExpirySeconds())
	assert.Equal(t, int64(1700000000000), restored.DeleteBeforeMs())
}

func TestMembersRemoveSurvivesMerge(t *testing.T) {
	a := NewGroupMembers()
	a.Set(MemberEntry{ProfileID: "05aa", Status: StatusAccepted})

	b := LoadOrEmptyMembers(t, a)
	a.Remove("05aa")

	// The tombstone outlives a merge with the pre-removal snapshot.
	a.Merge(b)
	_, ok := a.Get("05aa")
	assert.False(t, ok)
	assert.Empty(t, a.All())
}

// LoadOrEmptyMembers clones via dump, exercising the codec on the way.
func LoadOrEmptyMembers(t *testing.T, src *GroupMembers) *GroupMembers {
	t.Helper()
	m, err := LoadGroupMembers(src.Dump())
	require.NoError(t, err)
	return m
}

func TestRoleStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusAccepted))
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.True(t, StatusFailed.CanTransitionTo(StatusAccepted))
	assert.True(t, StatusAccepted.CanTransitionTo(StatusPendingRemoval))
	assert.True(t, StatusPendingRemoval.CanTransitionTo(StatusRemoved))
	assert.True(t, StatusAccepted.CanTransitionTo(StatusAccepted), "redelivery is idempotent")

	assert.False(t, StatusAccepted.CanTransitionTo(StatusPending), "no regression")
	assert.False(t, StatusRemoved.CanTransitionTo(StatusAccepted), "no resurrection")
	assert.False(t, StatusPendingRemoval.CanTransitionTo(StatusAccepted))
}

func TestRekeyAdvancesGeneration(t *testing.T) {
	groupID := testGroupID(t)
	keys, err := NewGroupKeys(groupID)
	require.NoError(t, err)
	require.Equal(t, uint32(0), keys.Generation())

	k0, err := keys.CurrentKey()
	require.NoError(t, err)

	gen, err := keys.Rekey(groupID, NewGroupInfo(), NewGroupMembers())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), gen)

	k1, err := keys.CurrentKey()
	require.NoError(t, err)
	assert.NotEqual(t, k0, k1, "rotation must produce fresh key material")

	// Old epochs stay available for late-arriving content.
	old, err := keys.KeyForGeneration(0)
	require.NoError(t, err)
	assert.Equal(t, k0, old)
}

func TestKickedSealOpen(t *testing.T) {
	groupID := testGroupID(t)
	keys, err := NewGroupKeys(groupID)
	require.NoError(t, err)
	_, err = keys.Rekey(groupID, NewGroupInfo(), NewGroupMembers())
	require.NoError(t, err)

	sealed, err := keys.SealKicked("05victim")
	require.NoError(t, err)

	kicked, err := keys.OpenKicked(sealed)
	require.NoError(t, err)
	assert.Equal(t, "05victim", kicked.MemberID)
	assert.Equal(t, uint32(1), kicked.Generation)

	_, err = keys.OpenKicked([]byte("not a kick notice at all, clearly"))
	assert.Error(t, err)
}

func TestManagerStagedCommit(t *testing.T) {
	m := NewManager()
	groupID := testGroupID(t)

	staged, err := m.Begin(groupID)
	require.NoError(t, err)
	staged.Info.SetName("staged")
	staged.Members.Set(MemberEntry{ProfileID: "05aa", Status: StatusPending, Invited: true})

	// Nothing is visible before commit.
	assert.False(t, m.HasConfig(KindMembers, groupID))

	staged.Commit()
	assert.True(t, m.HasConfig(KindMembers, groupID))
	assert.Equal(t, uint32(0), m.CurrentGeneration(groupID))
}

func TestManagerAbandonedSnapshotHasNoEffect(t *testing.T) {
	m := NewManager()
	groupID := testGroupID(t)

	staged, err := m.Begin(groupID)
	require.NoError(t, err)
	staged.Info.SetName("never committed")

	assert.False(t, m.HasConfig(KindInfo, groupID))
}

func TestManagerRemoveConfigs(t *testing.T) {
	m := NewManager()
	groupID := testGroupID(t)

	staged, err := m.Begin(groupID)
	require.NoError(t, err)
	staged.Commit()
	require.True(t, m.HasConfig(KindKeys, groupID))

	m.RemoveConfigs(groupID)
	assert.False(t, m.HasConfig(KindKeys, groupID))
}

func TestLoadAdminKeyValidatesGroup(t *testing.T) {
	m := NewManager()
	kp, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)
	groupID := sessioncrypto.GroupID(kp.Public)

	loaded, err := m.LoadAdminKey(kp.Seed(), groupID)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, loaded.Public)

	got, ok := m.AdminKey(groupID)
	require.True(t, ok)
	assert.Equal(t, kp.Public, got.Public)

	// A seed for a different key must be rejected.
	other, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = m.LoadAdminKey(other.Seed(), groupID)
	assert.Error(t, err)
}

func TestMarkAsKickedClearsCredentials(t *testing.T) {
	m := NewManager()
	groupID := testGroupID(t)

	staged, err := m.Begin(groupID)
	require.NoError(t, err)
	staged.UserIndex.Set(UserGroupEntry{GroupID: groupID, AuthData: []byte{1, 2}})
	staged.Commit()

	m.MarkAsKicked([]string{groupID})
	e, ok := m.UserGroupEntry(groupID)
	require.True(t, ok)
	assert.True(t, e.Kicked)
	assert.Nil(t, e.AuthData)
	assert.Nil(t, e.AdminSeed)
}
