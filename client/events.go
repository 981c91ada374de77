package client

import (
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/wire"
)

// Events drains server events E whose tick has been applied, in tick
// order.
func Events[E any](c *Client) []E {
	reg, err := event.Find[E](c.events, event.KindServerEvent)
	if err != nil {
		return nil
	}
	return event.Drain[E](c.streams, reg)
}

// DrainTriggers fires every released server trigger once with all its
// targets.
func (c *Client) DrainTriggers(to event.Triggerer) int {
	return c.triggers.Drain(to)
}

// SendEvent sends client event E to the server. Client entities inside
// mapped events are translated to server entities first.
func SendEvent[E any](c *Client, ev E) error {
	reg, err := event.Find[E](c.events, event.KindClientEvent)
	if err != nil {
		return err
	}
	if !c.transport.IsConnected() {
		return ErrNotConnected
	}
	b := wire.NewBuffer(c.cfg.MaxMessageSize)
	_, err = b.Encode(reg.Name, func(b *wire.Buffer) error {
		return reg.Serialize(&event.SendCtx{Mapper: c.entities.ServerMapper()}, ev, b)
	})
	if err != nil {
		metrics.EncodeFaults.WithLabelValues("client_event").Inc()
		return err
	}
	c.transport.Send(reg.Channel, b.Bytes())
	metrics.MessagesSent.WithLabelValues("client", "event").Inc()
	metrics.BytesSent.WithLabelValues("client").Add(float64(b.Len()))
	return nil
}
