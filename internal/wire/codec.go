package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed reports an undecodable control message.
var ErrMalformed = errors.New("wire: malformed message")

// Top-level field numbers. 4+ form the body oneof; exactly one must be set.
const (
	fieldSender   = 1
	fieldSentAtMs = 2

	fieldInvite              = 4
	fieldPromote             = 5
	fieldInfoChange          = 6
	fieldMemberChange        = 7
	fieldMemberLeft          = 8
	fieldMemberLeftNotify    = 9
	fieldInviteResponse      = 10
	fieldDeleteMemberContent = 11
)

// Encode serializes a control message to its wire form.
func Encode(m Message) ([]byte, error) {
	b := protowire.AppendTag(nil, fieldSender, protowire.BytesType)
	b = protowire.AppendString(b, m.Sender)
	b = protowire.AppendTag(b, fieldSentAtMs, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SentAtMs))

	var (
		num  protowire.Number
		body []byte
	)
	switch v := m.Body.(type) {
	case Invite:
		num, body = fieldInvite, encodeInvite(v)
	case Promote:
		num, body = fieldPromote, encodePromote(v)
	case InfoChange:
		num, body = fieldInfoChange, encodeInfoChange(v)
	case MemberChange:
		num, body = fieldMemberChange, encodeMemberChange(v)
	case MemberLeft:
		num, body = fieldMemberLeft, nil
	case MemberLeftNotification:
		num, body = fieldMemberLeftNotify, nil
	case InviteResponse:
		num, body = fieldInviteResponse, encodeInviteResponse(v)
	case DeleteMemberContent:
		num, body = fieldDeleteMemberContent, encodeDeleteMemberContent(v)
	default:
		return nil, fmt.Errorf("wire: encode: unknown body type %T", m.Body)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b, nil
}

// Decode parses a control message from its wire form.
func Decode(data []byte) (Message, error) {
	var m Message
	err := Scan(data, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch num {
		case fieldSender:
			m.Sender = string(field)
		case fieldSentAtMs:
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return ErrMalformed
			}
			m.SentAtMs = int64(v)
		case fieldInvite:
			v, err := decodeInvite(field)
			m.Body = v
			return err
		case fieldPromote:
			v, err := decodePromote(field)
			m.Body = v
			return err
		case fieldInfoChange:
			v, err := decodeInfoChange(field)
			m.Body = v
			return err
		case fieldMemberChange:
			v, err := decodeMemberChange(field)
			m.Body = v
			return err
		case fieldMemberLeft:
			m.Body = MemberLeft{}
		case fieldMemberLeftNotify:
			m.Body = MemberLeftNotification{}
		case fieldInviteResponse:
			v, err := decodeInviteResponse(field)
			m.Body = v
			return err
		case fieldDeleteMemberContent:
			v, err := decodeDeleteMemberContent(field)
			m.Body = v
			return err
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	if m.Body == nil {
		return Message{}, fmt.Errorf("%w: no body variant", ErrMalformed)
	}
	return m, nil
}

// Scan walks the fields of a protowire buffer, handing each one to fn.
// Varint fields are passed as their raw encoding, bytes fields as their
// contents. Unknown fields are skipped.
func Scan(data []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ErrMalformed
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ErrMalformed
			}
			if err := fn(num, typ, data[:n]); err != nil {
				return err
			}
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return ErrMalformed
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return ErrMalformed
			}
			data = data[n:]
		}
	}
	return nil
}

func varint(field []byte) (uint64, error) {
	v, n := protowire.ConsumeVarint(field)
	if n < 0 {
		return 0, ErrMalformed
	}
	return v, nil
}

func encodeProfile(p *Profile) []byte {
	if p == nil {
		return nil
	}
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, p.DisplayName)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, p.ProfilePicURL)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, p.ProfileKey)
	return b
}

func decodeProfile(data []byte) (*Profile, error) {
	p := &Profile{}
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			p.DisplayName = string(field)
		case 2:
			p.ProfilePicURL = string(field)
		case 3:
			p.ProfileKey = append([]byte(nil), field...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func encodeInvite(v Invite) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, v.GroupID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, v.GroupName)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, v.MemberAuthData)
	if v.Profile != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeProfile(v.Profile))
	}
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendBytes(b, v.AdminSignature)
	return b
}

func decodeInvite(data []byte) (Invite, error) {
	var v Invite
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			v.GroupID = string(field)
		case 2:
			v.GroupName = string(field)
		case 3:
			v.MemberAuthData = append([]byte(nil), field...)
		case 4:
			p, err := decodeProfile(field)
			v.Profile = p
			return err
		case 5:
			v.AdminSignature = append([]byte(nil), field...)
		}
		return nil
	})
	return v, err
}

func encodePromote(v Promote) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, v.GroupSeed)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, v.GroupName)
	return b
}

func decodePromote(data []byte) (Promote, error) {
	var v Promote
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			v.GroupSeed = append([]byte(nil), field...)
		case 2:
			v.GroupName = string(field)
		}
		return nil
	})
	return v, err
}

func encodeInfoChange(v InfoChange) []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.ChangeType))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, v.UpdatedName)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.UpdatedExpirySeconds))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, v.AdminSignature)
	return b
}

func decodeInfoChange(data []byte) (InfoChange, error) {
	var v InfoChange
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			n, err := varint(field)
			v.ChangeType = InfoChangeType(n)
			return err
		case 2:
			v.UpdatedName = string(field)
		case 3:
			n, err := varint(field)
			v.UpdatedExpirySeconds = uint32(n)
			return err
		case 4:
			v.AdminSignature = append([]byte(nil), field...)
		}
		return nil
	})
	return v, err
}

func encodeMemberChange(v MemberChange) []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.ChangeType))
	for _, id := range v.MemberIDs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, boolVarint(v.HistoryShared))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, v.AdminSignature)
	return b
}

func decodeMemberChange(data []byte) (MemberChange, error) {
	var v MemberChange
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			n, err := varint(field)
			v.ChangeType = MemberChangeType(n)
			return err
		case 2:
			v.MemberIDs = append(v.MemberIDs, string(field))
		case 3:
			n, err := varint(field)
			v.HistoryShared = n != 0
			return err
		case 4:
			v.AdminSignature = append([]byte(nil), field...)
		}
		return nil
	})
	return v, err
}

func encodeInviteResponse(v InviteResponse) []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, boolVarint(v.IsApproved))
	if v.Profile != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeProfile(v.Profile))
	}
	return b
}

func decodeInviteResponse(data []byte) (InviteResponse, error) {
	var v InviteResponse
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			n, err := varint(field)
			v.IsApproved = n != 0
			return err
		case 2:
			p, err := decodeProfile(field)
			v.Profile = p
			return err
		}
		return nil
	})
	return v, err
}

func encodeDeleteMemberContent(v DeleteMemberContent) []byte {
	var b []byte
	for _, id := range v.MemberIDs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	for _, h := range v.MessageHashes {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, h)
	}
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, v.AdminSignature)
	return b
}

func decodeDeleteMemberContent(data []byte) (DeleteMemberContent, error) {
	var v DeleteMemberContent
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			v.MemberIDs = append(v.MemberIDs, string(field))
		case 2:
			v.MessageHashes = append(v.MessageHashes, string(field))
		case 3:
			v.AdminSignature = append([]byte(nil), field...)
		}
		return nil
	})
	return v, err
}

// EncodeKicked serializes the keys-channel kick payload.
func EncodeKicked(k Kicked) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, k.MemberID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(k.Generation))
	return b
}

// DecodeKicked parses the keys-channel kick payload.
func DecodeKicked(data []byte) (Kicked, error) {
	var k Kicked
	err := Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			k.MemberID = string(field)
		case 2:
			n, err := varint(field)
			k.Generation = uint32(n)
			return err
		}
		return nil
	})
	return k, err
}

func boolVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}
