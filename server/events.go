package server

import (
	"log/slog"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/wire"
)

// bufferedEvent waits for the next replication send so it can be stamped
// with each client's update tick.
type bufferedEvent struct {
	reg     *event.Registration
	mode    event.SendMode
	payload []byte
}

func (s *Server) buffer(reg *event.Registration, mode event.SendMode, value any) error {
	b := wire.NewBuffer(s.cfg.MaxMessageSize)
	_, err := b.Encode(reg.Name, func(b *wire.Buffer) error {
		return reg.Serialize(&event.SendCtx{}, value, b)
	})
	if err != nil {
		metrics.EncodeFaults.WithLabelValues("event").Inc()
		return err
	}
	s.buffered = append(s.buffered, bufferedEvent{reg: reg, mode: mode, payload: b.Bytes()})
	return nil
}

// SendEvent sends a server event to the clients mode selects. If the
// server itself is selected the event is also delivered locally, once.
func SendEvent[E any](s *Server, ev event.ToClients[E]) error {
	reg, err := event.Find[E](s.events, event.KindServerEvent)
	if err != nil {
		return err
	}
	if err := s.buffer(reg, ev.Mode, ev.Event); err != nil {
		return err
	}
	if ev.Mode.Includes(event.Server) {
		s.local.Push(reg, ev.Event)
	}
	return nil
}

// Trigger fires server trigger E on the clients mode selects, targeting
// the given server entities.
func Trigger[E any](s *Server, ev event.ToClients[E], targets ...entity.Entity) error {
	reg, err := event.Find[E](s.events, event.KindServerTrigger)
	if err != nil {
		return err
	}
	value := event.TriggerEvent[E]{Event: ev.Event, Targets: targets}
	if err := s.buffer(reg, ev.Mode, value); err != nil {
		return err
	}
	if ev.Mode.Includes(event.Server) {
		s.triggers.Push(ev.Event, targets)
	}
	return nil
}

// LocalEvents drains server events E that selected the server itself.
func LocalEvents[E any](s *Server) []E {
	reg, err := event.Find[E](s.events, event.KindServerEvent)
	if err != nil {
		return nil
	}
	return event.Drain[E](s.local, reg)
}

// DrainTriggers fires triggers that selected the server itself.
func (s *Server) DrainTriggers(to event.Triggerer) int {
	return s.triggers.Drain(to)
}

// ClientEvents drains client events E received from authorized clients.
func ClientEvents[E any](s *Server) []event.FromClient[E] {
	reg, err := event.Find[E](s.events, event.KindClientEvent)
	if err != nil {
		return nil
	}
	received := event.Drain[event.Received](s.clientEvents, reg)
	events := make([]event.FromClient[E], len(received))
	for i, r := range received {
		events[i] = event.FromClient[E]{Client: r.Client, Event: r.Event.(E)}
	}
	return events
}

// EmitClientEvent delivers a client event sent by the server acting as
// its own client.
func EmitClientEvent[E any](s *Server, ev E) error {
	reg, err := event.Find[E](s.events, event.KindClientEvent)
	if err != nil {
		return err
	}
	s.clientEvents.Push(reg, event.Received{Client: event.Server, Event: ev})
	return nil
}

// flushEvents sends buffered events prefixed with each receiving client's
// update tick.
func (s *Server) flushEvents() {
	if len(s.buffered) == 0 {
		return
	}
	clients := s.Clients()
	for _, ev := range s.buffered {
		for _, id := range clients {
			if !ev.mode.Includes(id) {
				continue
			}
			c := s.clients[id]
			msg := wire.NewBuffer(0)
			if _, err := msg.WriteTick(c.updateTick); err != nil {
				continue
			}
			if _, err := msg.WriteRaw(ev.payload); err != nil {
				continue
			}
			s.send(id, ev.reg.Channel, "event", msg.Bytes())
		}
		slog.Debug("tickwire: sent event", "event", ev.reg.Name, "mode", ev.mode)
	}
	s.buffered = nil
}
