// Package transport is the message-buffer surface the sessions read from
// and write to. Actual delivery guarantees belong to whatever moves bytes
// between a Server and its Clients.
package transport

import (
	"fmt"

	"github.com/google/uuid"
)

// ClientID identifies a connected client. uuid.Nil is reserved for the
// server acting as its own client.
type ClientID = uuid.UUID

type ChannelID uint8

// ChannelKind is the delivery guarantee a channel asks the transport for.
type ChannelKind uint8

const (
	Unreliable ChannelKind = iota
	Unordered
	Ordered
)

func (k ChannelKind) String() string {
	switch k {
	case Unreliable:
		return "unreliable"
	case Unordered:
		return "unordered"
	case Ordered:
		return "ordered"
	default:
		return fmt.Sprintf("ChannelKind(%d)", uint8(k))
	}
}

// Built-in server to client channels.
const (
	ServerUpdates ChannelID = iota
	ServerMutations
	ServerControl
)

// Built-in client to server channels.
const (
	ClientMutationAcks ChannelID = iota
	ClientControl
)

// Channels is the channel layout both sides agree on. Events append their
// channels after the built-in ones.
type Channels struct {
	server []ChannelKind
	client []ChannelKind
}

func NewChannels() *Channels {
	return &Channels{
		server: []ChannelKind{
			ServerUpdates:   Ordered,
			ServerMutations: Unreliable,
			ServerControl:   Ordered,
		},
		client: []ChannelKind{
			ClientMutationAcks: Ordered,
			ClientControl:      Ordered,
		},
	}
}

// AddServer allocates a server to client channel.
func (c *Channels) AddServer(kind ChannelKind) ChannelID {
	c.server = append(c.server, kind)
	return ChannelID(len(c.server) - 1)
}

// AddClient allocates a client to server channel.
func (c *Channels) AddClient(kind ChannelKind) ChannelID {
	c.client = append(c.client, kind)
	return ChannelID(len(c.client) - 1)
}

func (c *Channels) Server() []ChannelKind {
	return c.server
}

func (c *Channels) Client() []ChannelKind {
	return c.client
}
