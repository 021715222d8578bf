package configstore

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"

	"github.com/ombra-im/ombra-go/internal/sessioncrypto"
	"github.com/ombra-im/ombra-go/internal/wire"
)

// GroupKeys is the mergeable keys config of one group: the monotonically
// increasing key generation and the symmetric key material of each epoch.
// Rotation excludes removed members from all future content.
type GroupKeys struct {
	kv kv
}

// NewGroupKeys creates a keys config at generation zero with an initial key.
func NewGroupKeys(groupID string) (*GroupKeys, error) {
	g := &GroupKeys{kv: newKV()}
	if err := g.install(groupID, 0, 0, 0); err != nil {
		return nil, err
	}
	return g, nil
}

const (
	keysKeyGeneration = "generation"
	keysKeyPrefix     = "key."
	keysKeyInfoSeq    = "rotatedInfoSeq"
	keysKeyMembersSeq = "rotatedMembersSeq"
)

// Generation returns the current key epoch.
func (g *GroupKeys) Generation() uint32 {
	v, ok := g.kv.get(keysKeyGeneration)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(v), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// CurrentKey returns the symmetric key of the current generation.
func (g *GroupKeys) CurrentKey() ([]byte, error) {
	return g.KeyForGeneration(g.Generation())
}

// KeyForGeneration returns the symmetric key of a specific epoch.
func (g *GroupKeys) KeyForGeneration(gen uint32) ([]byte, error) {
	v, ok := g.kv.get(keysKeyPrefix + strconv.FormatUint(uint64(gen), 10))
	if !ok {
		return nil, fmt.Errorf("configstore: no key for generation %d", gen)
	}
	return v, nil
}

// Rekey advances to the next generation with fresh key material, recording
// the info/members snapshots (their merge counters) it was rotated from.
func (g *GroupKeys) Rekey(groupID string, info *GroupInfo, members *GroupMembers) (uint32, error) {
	next := g.Generation() + 1
	if err := g.install(groupID, next, info.kv.seq, members.kv.seq); err != nil {
		return 0, err
	}
	return next, nil
}

func (g *GroupKeys) install(groupID string, gen uint32, infoSeq, membersSeq uint64) error {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("configstore: rekey seed: %w", err)
	}
	// Stretch the seed so the distributed key is never the raw CSPRNG
	// output, and bind it to the group and generation.
	r := hkdf.New(sha256.New, seed, []byte(groupID), []byte("group-keys-gen-"+strconv.FormatUint(uint64(gen), 10)))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return fmt.Errorf("configstore: rekey derive: %w", err)
	}

	g.kv.set(keysKeyPrefix+strconv.FormatUint(uint64(gen), 10), key)
	g.kv.set(keysKeyGeneration, []byte(strconv.FormatUint(uint64(gen), 10)))
	g.kv.set(keysKeyInfoSeq, []byte(strconv.FormatUint(infoSeq, 10)))
	g.kv.set(keysKeyMembersSeq, []byte(strconv.FormatUint(membersSeq, 10)))
	return nil
}

// SealKicked seals a kick notice for memberID under the current
// generation's key. Only holders of a valid generation key can open it.
func (g *GroupKeys) SealKicked(memberID string) ([]byte, error) {
	key, err := g.CurrentKey()
	if err != nil {
		return nil, err
	}
	payload := wire.EncodeKicked(wire.Kicked{MemberID: memberID, Generation: g.Generation()})
	return sessioncrypto.AEADSeal(key, payload)
}

// OpenKicked opens a kick notice with any generation key this config
// holds. Returns the carried member ID and generation.
func (g *GroupKeys) OpenKicked(sealed []byte) (wire.Kicked, error) {
	for gen := int64(g.Generation()); gen >= 0; gen-- {
		key, err := g.KeyForGeneration(uint32(gen))
		if err != nil {
			continue
		}
		pt, err := sessioncrypto.AEADOpen(key, sealed)
		if err != nil {
			continue
		}
		return wire.DecodeKicked(pt)
	}
	return wire.Kicked{}, fmt.Errorf("configstore: kick notice not decryptable with any known generation key")
}

// Merge folds another keys config into this one.
func (g *GroupKeys) Merge(other *GroupKeys) {
	g.kv.merge(other.kv)
}

// Dump serializes the config for persistence.
func (g *GroupKeys) Dump() []byte { return g.kv.dump() }

// LoadGroupKeys restores a keys config from a dump.
func LoadGroupKeys(data []byte) (*GroupKeys, error) {
	c, err := loadKV(data)
	if err != nil {
		return nil, err
	}
	return &GroupKeys{kv: c}, nil
}

func (g *GroupKeys) clone() *GroupKeys {
	return &GroupKeys{kv: g.kv.clone()}
}
