// Package client is the replica session. It applies replication messages
// to the host store, keeps the server/client entity map and holds events
// until the state they were produced against has been applied.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/protocol"
	"github.com/kevinxiao27/tickwire/queue"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/tick"
	"github.com/kevinxiao27/tickwire/transport"
)

var ErrNotConnected = errors.New("client: not connected")

type Client struct {
	cfg        *config.Config
	components *replication.Registry
	events     *event.Registry
	transport  *transport.Client
	store      replication.Store
	hash       protocol.Hash
	tracer     trace.Tracer

	connected bool
	applied   tick.Tick
	synced    bool

	entities  *entity.Map
	histories map[entity.Entity]*tick.History
	// received holds server events and triggers of every type in one
	// tick order. Payloads stay encoded until dispatch so entities map
	// against the state they were produced for.
	received  *queue.Queue[heldEvent]
	mutations *queue.Queue[pendingMutation]

	streams    *event.Streams
	triggers   event.Triggers
	replicated []replication.EntityReplicated
	acks       []uint64
}

// New freezes both registries; they must match the server's.
func New(cfg *config.Config, components *replication.Registry, events *event.Registry, t *transport.Client, store replication.Store) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	components.Freeze()
	events.Freeze()

	c := &Client{
		cfg:        cfg,
		components: components,
		events:     events,
		transport:  t,
		store:      store,
		hash:       protocol.Compute(components, events),
		tracer:     otel.Tracer("tickwire/client"),
		entities:   entity.NewMap(),
		histories:  make(map[entity.Entity]*tick.History),
		received:   queue.New[heldEvent]("events", cfg.MaxPendingEnvelopes),
		mutations:  queue.New[pendingMutation]("mutations", cfg.MaxPendingEnvelopes),
		streams:    event.NewStreams(),
	}
	return c, nil
}

func (c *Client) Protocol() protocol.Hash {
	return c.hash
}

// Entities exposes the server/client entity map, for example to register
// pre-spawned entities.
func (c *Client) Entities() *entity.Map {
	return c.entities
}

// UpdateTick returns the tick of the last applied update message and
// whether any was applied yet.
func (c *Client) UpdateTick() (tick.Tick, bool) {
	return c.applied, c.synced
}

// History returns the confirm history of a client entity.
func (c *Client) History(e entity.Entity) (tick.History, bool) {
	h, ok := c.histories[e]
	if !ok {
		return tick.History{}, false
	}
	return *h, true
}

// Degraded reports whether any pending queue is above its watermark.
func (c *Client) Degraded() bool {
	return c.received.Degraded() || c.mutations.Degraded()
}

// Update runs one processing cycle. It announces the protocol after
// connecting, applies received messages and acknowledges mutations. A
// lost connection resets the session.
func (c *Client) Update(ctx context.Context) error {
	if !c.transport.IsConnected() {
		if c.connected {
			slog.Info("tickwire: connection lost, resetting replica")
			c.Reset()
		}
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "tickwire.client.Update")
	defer span.End()

	if !c.connected {
		payload, err := protocol.EncodeHash(c.hash)
		if err != nil {
			return err
		}
		c.transport.Send(transport.ClientControl, payload)
		c.connected = true
		slog.Debug("tickwire: sent protocol hash", "protocol", c.hash)
	}

	c.receiveUpdates(ctx)
	c.receiveMutations()
	c.receiveEvents()
	c.sendAcks()

	span.SetAttributes(attribute.Int64("update_tick", int64(c.applied)))
	return nil
}

// Reset discards the whole session state. The host store is untouched.
func (c *Client) Reset() {
	c.connected = false
	c.applied = 0
	c.synced = false
	c.entities.Clear()
	clear(c.histories)
	c.received.Reset()
	c.mutations.Reset()
	c.streams.Clear()
	c.triggers.Clear()
	c.replicated = nil
	c.acks = nil
}

// Despawned forgets a client entity the host destroyed.
func (c *Client) Despawned(e entity.Entity) {
	c.entities.RemoveByClient(e)
	delete(c.histories, e)
}

// Replicated drains the entities written since the last call.
func (c *Client) Replicated() []replication.EntityReplicated {
	replicated := c.replicated
	c.replicated = nil
	return replicated
}

func (c *Client) reject(kind string, err error) {
	metrics.RejectedMessages.WithLabelValues("client", kind).Inc()
	slog.Warn("tickwire: rejected server message", "kind", kind, "error", err)
}

func (c *Client) confirm(e entity.Entity, t tick.Tick) {
	h, ok := c.histories[e]
	if !ok {
		history := tick.NewHistory(t)
		c.histories[e] = &history
	} else {
		h.Confirm(t)
	}
	c.replicated = append(c.replicated, replication.EntityReplicated{Entity: e, Tick: t})
}

// advance records that state up to t is applied and releases everything
// that was waiting for it.
func (c *Client) advance(t tick.Tick) {
	c.applied = t
	c.synced = true
	c.received.Advance(t, c.dispatch)
	c.mutations.Advance(t, c.applyMutation)
}

// clientMapper resolves server entities through the committed map,
// allocating placeholders for ids it has never seen.
func (c *Client) clientMapper() entity.Mapper {
	return entity.MapperFunc(func(server entity.Entity) entity.Entity {
		return c.entities.GetMapped(server, c.store)
	})
}
