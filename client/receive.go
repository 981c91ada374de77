package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/tick"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/wire"
)

type pendingValue struct {
	fns   *replication.Fns
	value any
}

type pendingChange struct {
	client entity.Entity
	values []pendingValue
}

type pendingRemoval struct {
	server entity.Entity
	fns    []*replication.Fns
}

// update is a fully decoded update message that has not touched any
// session state yet.
type update struct {
	tick     tick.Tick
	despawns []entity.Entity
	removals []pendingRemoval
	changes  []pendingChange
}

func (c *Client) receiveUpdates(ctx context.Context) {
	_, span := c.tracer.Start(ctx, "tickwire.client.receiveUpdates")
	defer span.End()

	for _, payload := range c.transport.Receive(transport.ServerUpdates) {
		if err := c.applyUpdate(payload); err != nil {
			span.RecordError(err)
			c.reject("update", err)
		}
	}
}

func (c *Client) applyUpdate(payload []byte) error {
	staged := c.entities.Stage(c.store)
	u, err := c.decodeUpdate(wire.NewReader(payload), staged)
	if err != nil {
		staged.Rollback()
		return err
	}
	metrics.PlaceholdersSpawned.Add(float64(len(staged.Placeholders())))
	staged.Commit()

	ctx := &replication.WriteCtx{Tick: u.tick, Mapper: c.clientMapper(), Store: c.store}
	for _, server := range u.despawns {
		client, ok := c.entities.RemoveByServer(server)
		if !ok {
			continue
		}
		c.store.Despawn(client)
		delete(c.histories, client)
	}
	for _, rm := range u.removals {
		client, ok := c.entities.ToClient(rm.server)
		if !ok {
			continue
		}
		d := replication.NewDeferredEntity(c.store, client)
		for _, fns := range rm.fns {
			fns.Remove(ctx, d)
		}
		d.Flush()
		c.confirm(client, u.tick)
	}
	for _, ch := range u.changes {
		d := replication.NewDeferredEntity(c.store, ch.client)
		for _, v := range ch.values {
			v.fns.Write(ctx, d, v.value)
		}
		d.Flush()
		c.confirm(ch.client, u.tick)
	}

	slog.Debug("tickwire: applied update", "tick", u.tick,
		"despawns", len(u.despawns), "removals", len(u.removals), "changes", len(u.changes))
	c.advance(u.tick)
	return nil
}

func (c *Client) decodeUpdate(r *wire.Reader, staged *entity.Staged) (*update, error) {
	flags, err := r.U8()
	if err != nil {
		return nil, err
	}
	t, err := r.Tick()
	if err != nil {
		return nil, err
	}
	if c.synced && t < c.applied {
		return nil, fmt.Errorf("update tick %s older than applied %s", t, c.applied)
	}
	u := &update{tick: t}
	ctx := &replication.WriteCtx{Tick: t, Mapper: staged, Store: c.store}

	if flags&replication.SectionMappings != 0 {
		count, err := r.Count()
		if err != nil {
			return nil, err
		}
		for range count {
			server, err := r.Entity()
			if err != nil {
				return nil, err
			}
			client, err := r.Entity()
			if err != nil {
				return nil, err
			}
			staged.Insert(server, client)
		}
	}

	if flags&replication.SectionDespawns != 0 {
		if u.despawns, err = r.Entities(); err != nil {
			return nil, err
		}
	}

	if flags&replication.SectionRemovals != 0 {
		count, err := r.Count()
		if err != nil {
			return nil, err
		}
		for range count {
			rm := pendingRemoval{}
			if rm.server, err = r.Entity(); err != nil {
				return nil, err
			}
			n, err := r.Count()
			if err != nil {
				return nil, err
			}
			for range n {
				fns, err := c.readFns(r)
				if err != nil {
					return nil, err
				}
				rm.fns = append(rm.fns, fns)
			}
			u.removals = append(u.removals, rm)
		}
	}

	if flags&replication.SectionChanges != 0 {
		count, err := r.Count()
		if err != nil {
			return nil, err
		}
		for range count {
			server, err := r.Entity()
			if err != nil {
				return nil, err
			}
			ch := pendingChange{client: staged.MapEntity(server)}
			values, err := c.readComponents(ctx, r)
			if err != nil {
				return nil, err
			}
			ch.values = values
			u.changes = append(u.changes, ch)
		}
	}

	if !r.Empty() {
		return nil, fmt.Errorf("%w: %d trailing bytes", wire.ErrLengthMismatch, r.Remaining())
	}
	return u, nil
}

func (c *Client) readFns(r *wire.Reader) (*replication.Fns, error) {
	id, err := r.FnsID()
	if err != nil {
		return nil, err
	}
	return c.components.Get(id)
}

// readComponents reads a count followed by that many fns-prefixed values.
func (c *Client) readComponents(ctx *replication.WriteCtx, r *wire.Reader) ([]pendingValue, error) {
	n, err := r.Count()
	if err != nil {
		return nil, err
	}
	values := make([]pendingValue, 0, n)
	for range n {
		fns, err := c.readFns(r)
		if err != nil {
			return nil, err
		}
		value, err := fns.Deserialize(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fns.Name, err)
		}
		values = append(values, pendingValue{fns: fns, value: value})
	}
	return values, nil
}

// pendingMutation is a mutation message whose update tick has not been
// applied yet.
type pendingMutation struct {
	tick  tick.Tick
	index uint64
	body  []byte
}

func (c *Client) receiveMutations() {
	for _, payload := range c.transport.Receive(transport.ServerMutations) {
		r := wire.NewReader(payload)
		updateTick, err := r.Tick()
		if err != nil {
			c.reject("mutations", err)
			continue
		}
		msgTick, err := r.Tick()
		if err != nil {
			c.reject("mutations", err)
			continue
		}
		index, err := r.Uvarint()
		if err != nil {
			c.reject("mutations", err)
			continue
		}
		m := pendingMutation{tick: msgTick, index: index, body: r.Rest()}
		c.mutations.Receive(updateTick, m, false, c.applyMutation)
	}
}

type mutatedEntity struct {
	client entity.Entity
	mapped bool
	values []pendingValue
}

func (c *Client) applyMutation(m pendingMutation) {
	staged := c.entities.Stage(c.store)
	ctx := &replication.WriteCtx{Tick: m.tick, Mapper: staged, Store: c.store}
	r := wire.NewReader(m.body)

	decode := func() ([]mutatedEntity, error) {
		count, err := r.Count()
		if err != nil {
			return nil, err
		}
		entities := make([]mutatedEntity, 0, count)
		for range count {
			server, err := r.Entity()
			if err != nil {
				return nil, err
			}
			var me mutatedEntity
			me.client, me.mapped = c.entities.ToClient(server)
			if me.values, err = c.readComponents(ctx, r); err != nil {
				return nil, err
			}
			entities = append(entities, me)
		}
		if !r.Empty() {
			return nil, fmt.Errorf("%w: %d trailing bytes", wire.ErrLengthMismatch, r.Remaining())
		}
		return entities, nil
	}

	entities, err := decode()
	if err != nil {
		staged.Rollback()
		c.reject("mutations", err)
		return
	}
	staged.Commit()
	ctx.Mapper = c.clientMapper()

	for _, me := range entities {
		// Despawned since the message was sent.
		if !me.mapped {
			continue
		}
		if h, ok := c.histories[me.client]; ok && m.tick <= h.LastTick() {
			// An update or newer mutation already carried fresher state.
			h.Confirm(m.tick)
			continue
		}
		d := replication.NewDeferredEntity(c.store, me.client)
		for _, v := range me.values {
			v.fns.Write(ctx, d, v.value)
		}
		d.Flush()
		c.confirm(me.client, m.tick)
	}
	c.acks = append(c.acks, m.index)
}

func (c *Client) sendAcks() {
	if len(c.acks) == 0 {
		return
	}
	b := wire.NewBuffer(0)
	if _, err := b.WriteUvarint(uint64(len(c.acks))); err != nil {
		return
	}
	for _, index := range c.acks {
		if _, err := b.WriteUvarint(index); err != nil {
			return
		}
	}
	c.transport.Send(transport.ClientMutationAcks, b.Bytes())
	metrics.MessagesSent.WithLabelValues("client", "acks").Inc()
	metrics.BytesSent.WithLabelValues("client").Add(float64(b.Len()))
	c.acks = nil
}

// heldEvent is a server event or trigger still in wire form.
type heldEvent struct {
	reg     *event.Registration
	payload []byte
}

func (c *Client) receiveEvents() {
	for _, reg := range c.events.All() {
		if reg.Kind == event.KindClientEvent {
			continue
		}
		for _, payload := range c.transport.Receive(reg.Channel) {
			r := wire.NewReader(payload)
			t, err := r.Tick()
			if err != nil {
				c.reject("event", fmt.Errorf("%s: %w", reg.Name, err))
				continue
			}
			c.received.Receive(t, heldEvent{reg: reg, payload: r.Rest()}, reg.Independent, c.dispatch)
		}
	}
}

// dispatch decodes a released event against the current entity map and
// hands it to the streams or the trigger buffer.
func (c *Client) dispatch(ev heldEvent) {
	value, err := c.decodeEvent(ev.reg, ev.payload)
	if err != nil {
		c.reject("event", fmt.Errorf("%s: %w", ev.reg.Name, err))
		return
	}
	if ev.reg.Kind == event.KindServerTrigger {
		c.triggers.PushEnvelope(value)
		return
	}
	c.streams.Push(ev.reg, value)
}

func (c *Client) decodeEvent(reg *event.Registration, payload []byte) (any, error) {
	r := wire.NewReader(payload)
	staged := c.entities.Stage(c.store)
	value, err := reg.Deserialize(&event.ReceiveCtx{Mapper: staged}, r)
	if err == nil && !r.Empty() {
		err = fmt.Errorf("%w: %d trailing bytes", wire.ErrLengthMismatch, r.Remaining())
	}
	if err != nil {
		staged.Rollback()
		return nil, err
	}
	metrics.PlaceholdersSpawned.Add(float64(len(staged.Placeholders())))
	staged.Commit()
	return value, nil
}
