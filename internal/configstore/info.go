package configstore

import (
	"encoding/binary"
	"strconv"
)

// GroupInfo is the mergeable info config of one group: its display name,
// display picture, and disappearing-message timer.
type GroupInfo struct {
	kv kv
}

// NewGroupInfo creates an empty info config.
func NewGroupInfo() *GroupInfo {
	return &GroupInfo{kv: newKV()}
}

const (
	infoKeyName          = "name"
	infoKeyPicURL        = "picURL"
	infoKeyExpirySeconds = "expirySeconds"
	infoKeyDeleteBefore  = "deleteBefore"
)

// Name returns the group's display name.
func (g *GroupInfo) Name() string {
	v, _ := g.kv.get(infoKeyName)
	return string(v)
}

// SetName updates the group's display name.
func (g *GroupInfo) SetName(name string) {
	g.kv.set(infoKeyName, []byte(name))
}

// PicURL returns the group's display picture URL.
func (g *GroupInfo) PicURL() string {
	v, _ := g.kv.get(infoKeyPicURL)
	return string(v)
}

// SetPicURL updates the display picture URL.
func (g *GroupInfo) SetPicURL(url string) {
	g.kv.set(infoKeyPicURL, []byte(url))
}

// ExpirySeconds returns the disappearing-message timer (0 = disabled).
func (g *GroupInfo) ExpirySeconds() uint32 {
	v, ok := g.kv.get(infoKeyExpirySeconds)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(v), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// SetExpirySeconds updates the disappearing-message timer.
func (g *GroupInfo) SetExpirySeconds(seconds uint32) {
	g.kv.set(infoKeyExpirySeconds, []byte(strconv.FormatUint(uint64(seconds), 10)))
}

// DeleteBeforeMs returns the timestamp before which content is dropped.
func (g *GroupInfo) DeleteBeforeMs() int64 {
	v, ok := g.kv.get(infoKeyDeleteBefore)
	if !ok || len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}

// SetDeleteBeforeMs updates the delete-before watermark.
func (g *GroupInfo) SetDeleteBeforeMs(ms int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ms))
	g.kv.set(infoKeyDeleteBefore, b[:])
}

// Merge folds another info config into this one.
func (g *GroupInfo) Merge(other *GroupInfo) {
	g.kv.merge(other.kv)
}

// Dump serializes the config for persistence.
func (g *GroupInfo) Dump() []byte { return g.kv.dump() }

// LoadGroupInfo restores an info config from a dump.
func LoadGroupInfo(data []byte) (*GroupInfo, error) {
	c, err := loadKV(data)
	if err != nil {
		return nil, err
	}
	return &GroupInfo{kv: c}, nil
}

func (g *GroupInfo) clone() *GroupInfo {
	return &GroupInfo{kv: g.kv.clone()}
}
