package transport

import (
	"bytes"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Received is an inbound message tagged with its sender.
type Received struct {
	Client  ClientID
	Payload []byte
}

// Outbound is a message waiting to be written to a client.
type Outbound struct {
	Client  ClientID
	Channel ChannelID
	Payload []byte
}

// ConnectionEvent reports a client joining or leaving.
type ConnectionEvent struct {
	Client    ClientID
	Connected bool
}

// Server buffers messages for the authoritative session. It is not safe
// for concurrent use; adapters feed it from the session's goroutine.
type Server struct {
	running  bool
	clients  mapset.Set[ClientID]
	received map[ChannelID][]Received
	sent     []Outbound
	events   []ConnectionEvent
}

func NewServer() *Server {
	return &Server{
		clients:  mapset.NewThreadUnsafeSet[ClientID](),
		received: make(map[ChannelID][]Received),
	}
}

func (s *Server) Start() {
	s.running = true
}

// Stop disconnects every client.
func (s *Server) Stop() {
	for _, id := range s.Clients() {
		s.Disconnect(id)
	}
	s.running = false
}

func (s *Server) Running() bool {
	return s.running
}

func (s *Server) Connect(id ClientID) {
	if !s.clients.Add(id) {
		return
	}
	s.events = append(s.events, ConnectionEvent{Client: id, Connected: true})
	slog.Debug("tickwire: client connected", "client", id)
}

// Disconnect drops the client and everything buffered for it.
func (s *Server) Disconnect(id ClientID) {
	if !s.clients.Contains(id) {
		return
	}
	s.clients.Remove(id)
	for channel, messages := range s.received {
		s.received[channel] = slices.DeleteFunc(messages, func(m Received) bool {
			return m.Client == id
		})
	}
	s.sent = slices.DeleteFunc(s.sent, func(m Outbound) bool {
		return m.Client == id
	})
	s.events = append(s.events, ConnectionEvent{Client: id, Connected: false})
	slog.Debug("tickwire: client disconnected", "client", id)
}

func (s *Server) Connected(id ClientID) bool {
	return s.clients.Contains(id)
}

// Clients returns connected clients in a stable order.
func (s *Server) Clients() []ClientID {
	ids := s.clients.ToSlice()
	slices.SortFunc(ids, func(a, b ClientID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

// Send queues payload for a connected client. Messages to unknown clients
// are dropped.
func (s *Server) Send(client ClientID, channel ChannelID, payload []byte) {
	if !s.clients.Contains(client) {
		return
	}
	s.sent = append(s.sent, Outbound{Client: client, Channel: channel, Payload: payload})
}

// Inject buffers a message received from a client.
func (s *Server) Inject(client ClientID, channel ChannelID, payload []byte) {
	if !s.clients.Contains(client) {
		return
	}
	s.received[channel] = append(s.received[channel], Received{Client: client, Payload: payload})
}

// Receive drains messages received on channel.
func (s *Server) Receive(channel ChannelID) []Received {
	messages := s.received[channel]
	delete(s.received, channel)
	return messages
}

// DrainSent hands queued outbound messages to the adapter.
func (s *Server) DrainSent() []Outbound {
	sent := s.sent
	s.sent = nil
	return sent
}

// DrainEvents returns connection changes since the last call.
func (s *Server) DrainEvents() []ConnectionEvent {
	events := s.events
	s.events = nil
	return events
}
