package ombra

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ombra-im/ombra-go/internal/configstore"
	"github.com/ombra-im/ombra-go/internal/envelope"
	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
	"github.com/ombra-im/ombra-go/internal/wire"
)

type clientFixture struct {
	t      *testing.T
	dbPath string
	client *Client

	local   sessioncrypto.KeyPair // device identity
	admin   sessioncrypto.KeyPair // group identity / admin signing key
	sender  sessioncrypto.KeyPair // the account sending envelopes
	groupID string
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()

	local, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)
	admin, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)
	sender, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)

	f := &clientFixture{
		t:       t,
		dbPath:  filepath.Join(t.TempDir(), "ombra.db"),
		local:   local,
		admin:   admin,
		sender:  sender,
		groupID: sessioncrypto.GroupID(admin.Public),
	}
	f.open()
	return f
}

func (f *clientFixture) open() {
	f.t.Helper()
	c, err := NewClient(f.local, WithDBPath(f.dbPath))
	require.NoError(f.t, err)
	f.client = c
	f.t.Cleanup(func() { c.Close() })
}

// reopen simulates a restart against the same database.
func (f *clientFixture) reopen() {
	f.t.Helper()
	require.NoError(f.t, f.client.Close())
	f.open()
}

func (f *clientFixture) routing() wire.Routing {
	return wire.Routing{ThreadID: f.groupID, ThreadVariant: wire.ThreadGroup}
}

// sealedInvite produces the ciphertext of a signed invite as it would
// arrive in the local identity's own swarm.
func (f *clientFixture) sealedInvite(sentAtMs int64) []byte {
	f.t.Helper()
	inv := wire.Invite{
		GroupID:        f.groupID,
		GroupName:      "book club",
		MemberAuthData: []byte("member-auth-token"),
	}
	inv.AdminSignature = f.admin.Sign(inv.SigningPayload(sentAtMs))
	return f.seal(wire.Message{SentAtMs: sentAtMs, Body: inv})
}

func (f *clientFixture) seal(msg wire.Message) []byte {
	f.t.Helper()
	msg.Sender = "ignored" // the envelope's verified sender wins
	plaintext, err := wire.Encode(msg)
	require.NoError(f.t, err)
	ct, err := envelope.EncryptDirect(plaintext, f.sender, f.local.Public)
	require.NoError(f.t, err)
	return ct
}

func (f *clientFixture) senderID() string {
	f.t.Helper()
	x, err := sessioncrypto.PublicEd25519ToX25519(f.sender.Public)
	require.NoError(f.t, err)
	return sessioncrypto.AccountID(x)
}

func TestHandleDirectEnvelopeInvite(t *testing.T) {
	f := newClientFixture(t)

	out, err := f.client.HandleDirectEnvelope(context.Background(), f.routing(), f.sealedInvite(1000))
	require.NoError(t, err)
	require.True(t, out.Applied, "invite rejected: %v", out.Reject)

	groups, err := f.client.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, f.groupID, groups[0].GroupID)
	require.True(t, groups[0].Invited, "stranger invites land as message requests")
}

func TestEnvelopeSenderOverridesPayloadClaim(t *testing.T) {
	f := newClientFixture(t)
	require.NoError(t, f.client.ApproveContact(f.senderID(), "Ada"))

	out, err := f.client.HandleDirectEnvelope(context.Background(), f.routing(), f.sealedInvite(1000))
	require.NoError(t, err)
	require.True(t, out.Applied)

	// Approval was keyed by the envelope's sender; had the payload's
	// claimed sender been used, the group would still be a request.
	groups, err := f.client.Groups()
	require.NoError(t, err)
	require.False(t, groups[0].Invited)
	require.True(t, groups[0].ShouldPoll)
}

func TestHandleDirectEnvelopeWrongRecipient(t *testing.T) {
	f := newClientFixture(t)

	other, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)
	plaintext, err := wire.Encode(wire.Message{Sender: "05aa", SentAtMs: 1, Body: wire.MemberLeft{}})
	require.NoError(t, err)
	ct, err := envelope.EncryptDirect(plaintext, f.sender, other.Public)
	require.NoError(t, err)

	_, err = f.client.HandleDirectEnvelope(context.Background(), f.routing(), ct)
	require.True(t, errors.Is(err, envelope.ErrDecryptionFailed))
}

func TestHandleBlindedEnvelope(t *testing.T) {
	f := newClientFixture(t)

	serverKeys, err := sessioncrypto.GenerateKeyPair()
	require.NoError(t, err)
	serverPub := []byte(serverKeys.Public)

	blinder, err := sessioncrypto.NewBlinder(8)
	require.NoError(t, err)
	recipientBlinded, err := blinder.BlindPublicKey(serverPub, f.local.Public)
	require.NoError(t, err)
	senderBlinded, err := blinder.BlindedKeyPair(serverPub, f.sender.Private)
	require.NoError(t, err)

	inv := wire.Invite{GroupID: f.groupID, GroupName: "book club", MemberAuthData: []byte("tok")}
	inv.AdminSignature = f.admin.Sign(inv.SigningPayload(1000))
	plaintext, err := wire.Encode(wire.Message{SentAtMs: 1000, Body: inv})
	require.NoError(t, err)

	ct, err := envelope.EncryptBlinded(plaintext, f.sender, serverPub, recipientBlinded, blinder)
	require.NoError(t, err)

	out, err := f.client.HandleBlindedEnvelope(context.Background(), f.routing(), ct, serverPub, senderBlinded.Public)
	require.NoError(t, err)
	require.True(t, out.Applied, "rejected: %v", out.Reject)
}

func TestConfigStateSurvivesRestart(t *testing.T) {
	f := newClientFixture(t)
	require.NoError(t, f.client.ApproveContact(f.senderID(), "Ada"))

	out, err := f.client.HandleDirectEnvelope(context.Background(), f.routing(), f.sealedInvite(1000))
	require.NoError(t, err)
	require.True(t, out.Applied)

	// Advance the key generation so restored state is distinguishable
	// from a fresh group.
	mc := wire.MemberChange{ChangeType: wire.MemberAdded, MemberIDs: []string{"05aa"}}
	mc.AdminSignature = f.admin.Sign(mc.SigningPayload(2000))
	out, err = f.client.HandleDirectEnvelope(context.Background(), f.routing(),
		f.seal(wire.Message{SentAtMs: 2000, Body: mc}))
	require.NoError(t, err)
	require.True(t, out.Applied, "rejected: %v", out.Reject)

	// Seal a kick under the advanced generation while it is current.
	staged, err := f.client.configs.Begin(f.groupID)
	require.NoError(t, err)
	require.Equal(t, uint32(1), staged.Keys.Generation())
	sealed, err := staged.Keys.SealKicked(f.client.LocalID())
	require.NoError(t, err)

	f.reopen()

	// Opening the notice needs the generation-1 key restored from the
	// persisted dumps; a fresh config could not read it.
	out, err = f.client.HandleKicked(context.Background(), f.groupID, sealed)
	require.NoError(t, err)
	require.True(t, out.Applied, "rejected: %v", out.Reject)

	groups, err := f.client.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.True(t, groups[0].Destroyed)
	require.False(t, groups[0].ShouldPoll)
	require.False(t, f.client.configs.HasConfig(configstore.KindKeys, f.groupID))
}

func TestCreateGroupRestoresAdminKeyOnRestart(t *testing.T) {
	f := newClientFixture(t)

	groupID, err := f.client.CreateGroup(context.Background(), "reading room", []string{"05aa"})
	require.NoError(t, err)

	f.reopen()

	kp, ok := f.client.configs.AdminKey(groupID)
	require.True(t, ok, "admin key must be reloaded from the stored seed")
	require.Equal(t, groupID, sessioncrypto.GroupID(kp.Public))
}
