package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/protocol"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/wire"
)

func (s *Server) receive(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "tickwire.server.receive")
	defer span.End()

	for _, ev := range s.transport.DrainEvents() {
		if !ev.Connected {
			s.forget(ev.Client)
			continue
		}
		s.clients[ev.Client] = newClientState(ev.Client)
		if s.cfg.Auth == config.AuthNone {
			s.Authorize(ev.Client)
		}
	}

	for _, msg := range s.transport.Receive(transport.ClientControl) {
		s.receiveControl(msg)
	}
	for _, msg := range s.transport.Receive(transport.ClientMutationAcks) {
		if err := s.receiveAcks(msg); err != nil {
			s.reject(msg.Client, "acks", err)
		}
	}
	for _, reg := range s.events.Of(event.KindClientEvent) {
		for _, msg := range s.transport.Receive(reg.Channel) {
			if err := s.receiveEvent(reg, msg); err != nil {
				s.reject(msg.Client, "client_event", err)
			}
		}
	}
}

func (s *Server) reject(client transport.ClientID, kind string, err error) {
	metrics.RejectedMessages.WithLabelValues("server", kind).Inc()
	slog.Warn("tickwire: rejected client message", "client", client, "kind", kind, "error", err)
}

func (s *Server) receiveControl(msg transport.Received) {
	hash, err := protocol.DecodeHash(msg.Payload)
	if err != nil {
		s.reject(msg.Client, "control", err)
		return
	}
	if s.cfg.Auth != config.AuthProtocolCheck {
		return
	}
	if hash != s.hash {
		slog.Warn("tickwire: protocol mismatch, disconnecting client",
			"client", msg.Client, "client_protocol", hash, "server_protocol", s.hash)
		s.Disconnect(msg.Client)
		return
	}
	s.Authorize(msg.Client)
}

func (s *Server) receiveAcks(msg transport.Received) error {
	c, ok := s.clients[msg.Client]
	if !ok {
		return nil
	}
	r := wire.NewReader(msg.Payload)
	count, err := r.Count()
	if err != nil {
		return err
	}
	indices := make([]uint64, 0, count)
	for range count {
		index, err := r.Uvarint()
		if err != nil {
			return err
		}
		indices = append(indices, index)
	}
	if !r.Empty() {
		return fmt.Errorf("%w: %d trailing bytes", wire.ErrLengthMismatch, r.Remaining())
	}

	for _, index := range indices {
		if !c.acknowledge(index) {
			slog.Debug("tickwire: ack for unknown mutation message", "client", msg.Client, "index", index)
		}
	}
	return nil
}

func (s *Server) receiveEvent(reg *event.Registration, msg transport.Received) error {
	if !s.authorized.Contains(msg.Client) {
		slog.Debug("tickwire: ignoring event from unauthorized client", "client", msg.Client, "event", reg.Name)
		return nil
	}
	r := wire.NewReader(msg.Payload)
	value, err := reg.Deserialize(&event.ReceiveCtx{}, r)
	if err != nil {
		return fmt.Errorf("%s: %w", reg.Name, err)
	}
	if !r.Empty() {
		return fmt.Errorf("%s: %w: %d trailing bytes", reg.Name, wire.ErrLengthMismatch, r.Remaining())
	}
	s.clientEvents.Push(reg, event.Received{Client: msg.Client, Event: value})
	return nil
}
