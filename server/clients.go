package server

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/tick"
	"github.com/kevinxiao27/tickwire/transport"
)

// knownEntity is what one client is known to hold for one entity.
type knownEntity struct {
	components map[replication.FnsID]uint64
	// updateTick is the last update message that wrote the entity.
	updateTick tick.Tick
	// ackTick is the newest mutation tick the client acknowledged.
	ackTick tick.Tick
}

type sentMutation struct {
	tick     tick.Tick
	entities []entity.Entity
}

type clientState struct {
	id         transport.ClientID
	needsInit  bool
	updateTick tick.Tick
	known      map[entity.Entity]*knownEntity
	mappings   []entity.Pair

	mutateIndex uint64
	sent        map[uint64]sentMutation
}

func newClientState(id transport.ClientID) *clientState {
	return &clientState{
		id:    id,
		known: make(map[entity.Entity]*knownEntity),
		sent:  make(map[uint64]sentMutation),
	}
}

// baseline is the newest tick at which the client is known to hold every
// component of the entity.
func (k *knownEntity) baseline() tick.Tick {
	return tick.Max(k.updateTick, k.ackTick)
}

func (c *clientState) acknowledge(index uint64) bool {
	m, ok := c.sent[index]
	if !ok {
		return false
	}
	delete(c.sent, index)
	for _, e := range m.entities {
		if k, ok := c.known[e]; ok {
			k.ackTick = tick.Max(k.ackTick, m.tick)
		}
	}
	return true
}

// prune forgets mutation messages the client will never acknowledge.
func (c *clientState) prune(now tick.Tick, timeout uint64) {
	for index, m := range c.sent {
		if uint64(now-m.tick) > timeout {
			delete(c.sent, index)
		}
	}
}

// Authorize starts replication to a client. It is how AuthCustom servers
// admit clients; other methods call it themselves.
func (s *Server) Authorize(id transport.ClientID) error {
	c, ok := s.clients[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	if !s.authorized.Add(id) {
		return nil
	}
	c.needsInit = true
	slog.Info("tickwire: client authorized", "client", id)
	return nil
}

func (s *Server) IsAuthorized(id transport.ClientID) bool {
	return s.authorized.Contains(id)
}

// Disconnect drops a client and all its replication state.
func (s *Server) Disconnect(id transport.ClientID) {
	s.transport.Disconnect(id)
	s.forget(id)
}

func (s *Server) forget(id transport.ClientID) {
	delete(s.clients, id)
	s.authorized.Remove(id)
}

// Clients returns connected clients in a stable order.
func (s *Server) Clients() []transport.ClientID {
	ids := make([]transport.ClientID, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b transport.ClientID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

// UpdateTick returns the tick of the last update message sent to a client.
func (s *Server) UpdateTick(id transport.ClientID) (tick.Tick, bool) {
	c, ok := s.clients[id]
	if !ok {
		return 0, false
	}
	return c.updateTick, true
}
