// Package configstore holds the distributed, independently-synchronized
// configuration state of each group: three mergeable objects (info,
// members, keys) per group plus the user-scoped group index.
//
// The merge algorithm is deliberately simple (per-key last-writer-wins on
// a lamport counter); callers treat the objects as opaque mergeable KV
// stores with push/dump semantics and must not depend on merge internals.
package configstore

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ombra-im/ombra-go/internal/wire"
)

// Kind selects one of the per-group config objects, or the user index.
type Kind int

const (
	KindInfo Kind = iota + 1
	KindMembers
	KindKeys
	KindUserGroups
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindMembers:
		return "members"
	case KindKeys:
		return "keys"
	case KindUserGroups:
		return "userGroups"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type entry struct {
	value []byte
	seq   uint64
}

// kv is the mergeable key-value core shared by all config objects.
// Every write bumps the lamport counter; Merge keeps, per key, the value
// with the higher sequence number.
type kv struct {
	seq  uint64
	data map[string]entry
}

func newKV() kv {
	return kv{data: make(map[string]entry)}
}

func (c *kv) get(key string) ([]byte, bool) {
	e, ok := c.data[key]
	return e.value, ok
}

func (c *kv) set(key string, value []byte) {
	c.seq++
	c.data[key] = entry{value: append([]byte(nil), value...), seq: c.seq}
}

func (c *kv) delete(key string) {
	c.seq++
	// Tombstone: an empty value with a fresh sequence number, so the
	// deletion survives merges against older snapshots.
	c.data[key] = entry{seq: c.seq}
}

func (c *kv) keys() []string {
	out := make([]string, 0, len(c.data))
	for k, e := range c.data {
		if e.value != nil {
			out = append(out, k)
		}
	}
	return out
}

func (c *kv) merge(other kv) {
	if other.seq > c.seq {
		c.seq = other.seq
	}
	for k, e := range other.data {
		if cur, ok := c.data[k]; !ok || e.seq > cur.seq {
			c.data[k] = e
		}
	}
}

func (c *kv) clone() kv {
	out := kv{seq: c.seq, data: make(map[string]entry, len(c.data))}
	for k, e := range c.data {
		out.data[k] = e
	}
	return out
}

// dump serializes the kv for persistence.
// Layout: 1=counter varint, 2=repeated item{1=key, 2=value, 3=seq}.
func (c *kv) dump() []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, c.seq)
	for k, e := range c.data {
		item := protowire.AppendTag(nil, 1, protowire.BytesType)
		item = protowire.AppendString(item, k)
		item = protowire.AppendTag(item, 2, protowire.BytesType)
		item = protowire.AppendBytes(item, e.value)
		item = protowire.AppendTag(item, 3, protowire.VarintType)
		item = protowire.AppendVarint(item, e.seq)
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, item)
	}
	return b
}

func loadKV(data []byte) (kv, error) {
	c := newKV()
	err := wire.Scan(data, func(num protowire.Number, _ protowire.Type, field []byte) error {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(field)
			if n < 0 {
				return wire.ErrMalformed
			}
			c.seq = v
		case 2:
			var (
				key string
				e   entry
			)
			err := wire.Scan(field, func(num protowire.Number, _ protowire.Type, field []byte) error {
				switch num {
				case 1:
					key = string(field)
				case 2:
					if len(field) > 0 {
						e.value = append([]byte(nil), field...)
					}
				case 3:
					v, n := protowire.ConsumeVarint(field)
					if n < 0 {
						return wire.ErrMalformed
					}
					e.seq = v
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.data[key] = e
		}
		return nil
	})
	if err != nil {
		return kv{}, fmt.Errorf("configstore: load dump: %w", err)
	}
	return c, nil
}
