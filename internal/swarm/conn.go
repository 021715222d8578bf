// Package swarm maintains websocket connections to group swarm nodes,
// delivering stored envelopes to a callback and managing one poller per
// actively polled group.
package swarm

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
	"google.golang.org/protobuf/encoding/protowire"
)

// Inbound is one stored envelope retrieved from a swarm node.
type Inbound struct {
	ServerHash   string
	ExpirationMs int64
	Ciphertext   []byte
}

// Conn wraps a websocket connection with envelope framing.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a websocket connection to a swarm node.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("swarm: dial: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// ReadEnvelope reads and decodes the next stored envelope.
func (c *Conn) ReadEnvelope(ctx context.Context) (Inbound, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return Inbound{}, fmt.Errorf("swarm: read: %w", err)
	}
	env, err := DecodeFrame(data)
	if err != nil {
		return Inbound{}, err
	}
	return env, nil
}

// Close sends a normal closure frame and then closes the connection.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// CloseNow closes the connection immediately without a close frame.
func (c *Conn) CloseNow() error {
	return c.ws.CloseNow()
}

const (
	frameFieldHash       = 1
	frameFieldExpiration = 2
	frameFieldCiphertext = 3
)

// EncodeFrame serializes one stored envelope.
func EncodeFrame(env Inbound) []byte {
	var b []byte
	b = protowire.AppendTag(b, frameFieldHash, protowire.BytesType)
	b = protowire.AppendString(b, env.ServerHash)
	b = protowire.AppendTag(b, frameFieldExpiration, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(env.ExpirationMs))
	b = protowire.AppendTag(b, frameFieldCiphertext, protowire.BytesType)
	b = protowire.AppendBytes(b, env.Ciphertext)
	return b
}

// DecodeFrame parses one stored envelope.
func DecodeFrame(data []byte) (Inbound, error) {
	var env Inbound
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Inbound{}, fmt.Errorf("swarm: malformed frame tag")
		}
		data = data[n:]
		switch {
		case num == frameFieldHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Inbound{}, fmt.Errorf("swarm: malformed frame hash")
			}
			env.ServerHash = v
			data = data[n:]
		case num == frameFieldExpiration && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Inbound{}, fmt.Errorf("swarm: malformed frame expiration")
			}
			env.ExpirationMs = int64(v)
			data = data[n:]
		case num == frameFieldCiphertext && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Inbound{}, fmt.Errorf("swarm: malformed frame ciphertext")
			}
			env.Ciphertext = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Inbound{}, fmt.Errorf("swarm: malformed frame field %d", num)
			}
			data = data[n:]
		}
	}
	if len(env.Ciphertext) == 0 {
		return Inbound{}, fmt.Errorf("swarm: frame without ciphertext")
	}
	return env, nil
}
