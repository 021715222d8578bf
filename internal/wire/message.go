// Package wire defines the control-message union exchanged inside group
// envelopes, its binary codec, and the routing metadata that accompanies
// an inbound envelope.
//
// The union is closed: Body is implemented only by the types in this
// package, and the engine dispatches on it with an exhaustive type
// switch. Adding a variant is a compile-time-visible change.
package wire

import "google.golang.org/protobuf/encoding/protowire"

// ThreadVariant identifies the kind of conversation an envelope belongs to.
type ThreadVariant int

const (
	ThreadContact ThreadVariant = iota
	ThreadGroup
	ThreadCommunity
)

// Routing is the transport metadata delivered alongside raw ciphertext.
type Routing struct {
	ThreadID           string
	ThreadVariant      ThreadVariant
	ServerExpirationMs int64
	ServerHash         string // swarm-assigned content hash, if any
}

// Message is a decoded control message: the authenticated sender, the
// sender-declared timestamp, and one body variant.
type Message struct {
	Sender   string // prefixed hex account ID
	SentAtMs int64
	Body     Body
}

// Body is the closed union of control-message variants.
type Body interface {
	isBody()
}

// Profile carries optional sender profile details on invites and responses.
type Profile struct {
	DisplayName   string
	ProfilePicURL string
	ProfileKey    []byte
}

// Invite asks the recipient to join a group.
type Invite struct {
	GroupID        string // prefixed hex group identity key
	GroupName      string
	MemberAuthData []byte // swarm auth token for the invited member
	Profile        *Profile
	AdminSignature []byte
}

// Promote delivers the group's admin seed to a newly promoted member.
type Promote struct {
	GroupSeed []byte
	GroupName string
}

// InfoChangeType enumerates the visible group-info mutations.
type InfoChangeType int

const (
	InfoChangeName InfoChangeType = iota + 1
	InfoChangeAvatar
	InfoChangeDisappearingMessages
)

// InfoChange announces a group name, avatar, or expiration-timer change.
type InfoChange struct {
	ChangeType           InfoChangeType
	UpdatedName          string
	UpdatedExpirySeconds uint32
	AdminSignature       []byte
}

// MemberChangeType enumerates membership mutations.
type MemberChangeType int

const (
	MemberAdded MemberChangeType = iota + 1
	MemberRemoved
	MemberPromoted
)

// MemberChange announces members being added, removed, or promoted.
type MemberChange struct {
	ChangeType     MemberChangeType
	MemberIDs      []string
	HistoryShared  bool
	AdminSignature []byte
}

// MemberLeft is sent by a departing non-admin member to the group.
type MemberLeft struct{}

// MemberLeftNotification is broadcast so every member can render the
// departure; it carries no membership mutation of its own.
type MemberLeftNotification struct{}

// InviteResponse is a member's acceptance or rejection of an invite.
type InviteResponse struct {
	IsApproved bool
	Profile    *Profile
}

// DeleteMemberContent requests that content be blanked, by author and/or
// by message hash. Unsigned requests are restricted to the sender's own
// content; admin-signed requests may target any member.
type DeleteMemberContent struct {
	MemberIDs      []string
	MessageHashes  []string
	AdminSignature []byte
}

func (Invite) isBody()                 {}
func (Promote) isBody()                {}
func (InfoChange) isBody()             {}
func (MemberChange) isBody()           {}
func (MemberLeft) isBody()             {}
func (MemberLeftNotification) isBody() {}
func (InviteResponse) isBody()         {}
func (DeleteMemberContent) isBody()    {}

// Kicked is not part of the Body union: it travels through the group-keys
// channel, sealed under a generation's symmetric key, and is decoded by
// the config store rather than the envelope path.
type Kicked struct {
	MemberID   string
	Generation uint32
}

// Signing payloads. Admin signatures cover a domain-separated,
// deterministic encoding of the authority-relevant fields plus the
// sender-declared timestamp, so a signature cannot be replayed onto a
// different message class or time.

func signingBase(domain string, sentAtMs int64) []byte {
	b := protowire.AppendString(nil, domain)
	return protowire.AppendVarint(b, uint64(sentAtMs))
}

// SigningPayload returns the bytes the group admin key signs for an Invite.
func (m Invite) SigningPayload(sentAtMs int64) []byte {
	b := signingBase("INVITE", sentAtMs)
	b = protowire.AppendString(b, m.GroupID)
	b = protowire.AppendString(b, m.GroupName)
	return protowire.AppendBytes(b, m.MemberAuthData)
}

// SigningPayload returns the bytes the group admin key signs for an InfoChange.
func (m InfoChange) SigningPayload(sentAtMs int64) []byte {
	b := signingBase("INFO_CHANGE", sentAtMs)
	b = protowire.AppendVarint(b, uint64(m.ChangeType))
	b = protowire.AppendString(b, m.UpdatedName)
	return protowire.AppendVarint(b, uint64(m.UpdatedExpirySeconds))
}

// SigningPayload returns the bytes the group admin key signs for a MemberChange.
func (m MemberChange) SigningPayload(sentAtMs int64) []byte {
	b := signingBase("MEMBER_CHANGE", sentAtMs)
	b = protowire.AppendVarint(b, uint64(m.ChangeType))
	for _, id := range m.MemberIDs {
		b = protowire.AppendString(b, id)
	}
	return b
}

// SigningPayload returns the bytes the group admin key signs for an
// admin-scoped DeleteMemberContent.
func (m DeleteMemberContent) SigningPayload(sentAtMs int64) []byte {
	b := signingBase("DELETE_CONTENT", sentAtMs)
	for _, id := range m.MemberIDs {
		b = protowire.AppendString(b, id)
	}
	for _, h := range m.MessageHashes {
		b = protowire.AppendString(b, h)
	}
	return b
}
