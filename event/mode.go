// Package event defines remote events and triggers: how they are
// addressed, encoded, registered and buffered for local dispatch.
package event

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kevinxiao27/tickwire/transport"
)

// Server is the id the authoritative side uses for itself when it is one
// of an event's destinations.
var Server = uuid.Nil

type modeKind uint8

const (
	modeBroadcast modeKind = iota
	modeDirect
	modeBroadcastExcept
)

// SendMode selects the destinations of a server event.
type SendMode struct {
	kind   modeKind
	client transport.ClientID
}

func Broadcast() SendMode {
	return SendMode{kind: modeBroadcast}
}

func Direct(client transport.ClientID) SendMode {
	return SendMode{kind: modeDirect, client: client}
}

func BroadcastExcept(client transport.ClientID) SendMode {
	return SendMode{kind: modeBroadcastExcept, client: client}
}

// Includes reports whether client is a destination. Pass Server to ask
// about local delivery.
func (m SendMode) Includes(client transport.ClientID) bool {
	switch m.kind {
	case modeDirect:
		return m.client == client
	case modeBroadcastExcept:
		return m.client != client
	default:
		return true
	}
}

func (m SendMode) String() string {
	switch m.kind {
	case modeDirect:
		return fmt.Sprintf("Direct(%s)", m.client)
	case modeBroadcastExcept:
		return fmt.Sprintf("BroadcastExcept(%s)", m.client)
	default:
		return "Broadcast"
	}
}

// ToClients is a server event together with its destinations.
type ToClients[E any] struct {
	Mode  SendMode
	Event E
}

// FromClient is a client event as received by the server.
type FromClient[E any] struct {
	Client transport.ClientID
	Event  E
}

// Received is a type-erased client event waiting in a server stream.
type Received struct {
	Client transport.ClientID
	Event  any
}
