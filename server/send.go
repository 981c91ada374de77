package server

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/util"
	"github.com/kevinxiao27/tickwire/wire"
)

type componentKey struct {
	entity entity.Entity
	id     replication.FnsID
}

type serialized struct {
	r   wire.Range
	err error
}

// components serializes each component value at most once per tick into
// the shared buffer; client messages copy the resulting ranges.
type components struct {
	s     *Server
	cache map[componentKey]serialized
}

func (c *components) get(e entity.Entity, id replication.FnsID, state *componentState) (wire.Range, bool) {
	key := componentKey{entity: e, id: id}
	if cached, ok := c.cache[key]; ok {
		return cached.r, cached.err == nil
	}

	r, err := c.serialize(id, state)
	c.cache[key] = serialized{r: r, err: err}
	if err != nil {
		metrics.EncodeFaults.WithLabelValues("component").Inc()
		slog.Error("tickwire: component serialization failed", "entity", e, "fns", id, "error", err)
		return wire.Range{}, false
	}
	return r, true
}

func (c *components) serialize(id replication.FnsID, state *componentState) (wire.Range, error) {
	fns, err := c.s.components.Get(id)
	if err != nil {
		return wire.Range{}, err
	}
	return c.s.shared.WriteComponent(id, func(b *wire.Buffer) error {
		return fns.Serialize(&replication.SerializeCtx{Tick: c.s.tick}, state.value, b)
	})
}

type removal struct {
	entity entity.Entity
	ids    []replication.FnsID
}

type change struct {
	entity entity.Entity
	ids    []replication.FnsID
	ranges []wire.Range
}

func (s *Server) sendReplication(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "tickwire.server.sendReplication")
	defer span.End()

	s.shared.Reset()
	s.stampMutations()
	cache := &components{s: s, cache: make(map[componentKey]serialized)}
	entities := s.Entities()

	sent := 0
	for _, id := range s.Clients() {
		if !s.authorized.Contains(id) {
			continue
		}
		c := s.clients[id]
		if err := s.sendUpdate(c, entities, cache); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			sent++
		}
		if err := s.sendMutations(c, entities, cache); err != nil {
			span.RecordError(err)
		}
		c.prune(s.tick, s.cfg.MutationTimeoutTicks)
	}
	span.SetAttributes(
		attribute.Int64("tick", int64(s.tick)),
		attribute.Int("clients", sent),
		attribute.Int("shared_bytes", s.shared.Len()),
	)
}

func (s *Server) sendUpdate(c *clientState, entities []entity.Entity, cache *components) error {
	var despawns []entity.Entity
	for e := range c.known {
		if _, ok := s.entities[e]; !ok {
			despawns = append(despawns, e)
		}
	}
	slices.SortFunc(despawns, entity.Compare)

	var removals []removal
	var changes []change
	for _, e := range entities {
		state := s.entities[e]
		ids := s.replicated(state)
		k := c.known[e]
		if k != nil {
			var removed []replication.FnsID
			for id := range k.components {
				if _, ok := slices.BinarySearch(ids, id); !ok {
					removed = append(removed, id)
				}
			}
			if len(removed) > 0 {
				slices.Sort(removed)
				removals = append(removals, removal{entity: e, ids: removed})
			}
		}

		// Entities the client lacks or holds a stale insert of go out
		// reliably, carrying pending mutations along.
		stale := k == nil
		for _, id := range ids {
			if k != nil && k.components[id] != state.components[id].generation {
				stale = true
			}
		}
		if !stale {
			continue
		}

		ch := change{entity: e}
		for _, id := range ids {
			comp := state.components[id]
			if k != nil && k.components[id] == comp.generation && comp.changed <= k.baseline() {
				continue
			}
			r, ok := cache.get(e, id, comp)
			if !ok {
				continue
			}
			ch.ids = append(ch.ids, id)
			ch.ranges = append(ch.ranges, r)
		}
		changes = append(changes, ch)
	}

	var flags byte
	if len(c.mappings) > 0 {
		flags |= replication.SectionMappings
	}
	if len(despawns) > 0 {
		flags |= replication.SectionDespawns
	}
	if len(removals) > 0 {
		flags |= replication.SectionRemovals
	}
	if len(changes) > 0 {
		flags |= replication.SectionChanges
	}
	if flags == 0 && !c.needsInit {
		return nil
	}

	msg := wire.NewBuffer(s.cfg.MaxMessageSize)
	_, err := msg.Encode("update", func(b *wire.Buffer) error {
		if _, err := b.WriteU8(flags); err != nil {
			return err
		}
		if _, err := b.WriteTick(s.tick); err != nil {
			return err
		}
		if flags&replication.SectionMappings != 0 {
			if _, err := b.WriteUvarint(uint64(len(c.mappings))); err != nil {
				return err
			}
			if _, err := b.WriteMappings(c.mappings); err != nil {
				return err
			}
		}
		if flags&replication.SectionDespawns != 0 {
			if _, err := b.WriteEntities(despawns); err != nil {
				return err
			}
		}
		if flags&replication.SectionRemovals != 0 {
			if _, err := b.WriteUvarint(uint64(len(removals))); err != nil {
				return err
			}
			for _, rm := range removals {
				if _, err := b.WriteEntity(rm.entity); err != nil {
					return err
				}
				if _, err := b.WriteUvarint(uint64(len(rm.ids))); err != nil {
					return err
				}
				if _, err := b.WriteFnIDs(rm.ids); err != nil {
					return err
				}
			}
		}
		if flags&replication.SectionChanges != 0 {
			if _, err := b.WriteUvarint(uint64(len(changes))); err != nil {
				return err
			}
			for _, ch := range changes {
				if _, err := b.WriteEntity(ch.entity); err != nil {
					return err
				}
				if _, err := b.WriteUvarint(uint64(len(ch.ranges))); err != nil {
					return err
				}
				for _, r := range ch.ranges {
					if _, err := b.WriteRange(s.shared, r); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		metrics.EncodeFaults.WithLabelValues("update").Inc()
		slog.Error("tickwire: dropping update message", "client", c.id, "tick", s.tick, "error", err)
		return err
	}

	s.send(c.id, transport.ServerUpdates, "update", msg.Bytes())
	slog.Debug("tickwire: sent update", "client", c.id, "tick", s.tick,
		"mappings", len(c.mappings), "despawns", len(despawns), "removals", len(removals), "changes", len(changes))

	c.updateTick = s.tick
	c.needsInit = false
	c.mappings = nil
	for _, e := range despawns {
		delete(c.known, e)
	}
	for _, rm := range removals {
		for _, id := range rm.ids {
			delete(c.known[rm.entity].components, id)
		}
	}
	for _, ch := range changes {
		k := c.known[ch.entity]
		if k == nil {
			k = &knownEntity{components: make(map[replication.FnsID]uint64)}
			c.known[ch.entity] = k
		}
		for _, id := range ch.ids {
			k.components[id] = s.entities[ch.entity].components[id].generation
		}
		k.updateTick = s.tick
	}
	return nil
}

type mutation struct {
	entity entity.Entity
	ranges []wire.Range
}

func (s *Server) sendMutations(c *clientState, entities []entity.Entity, cache *components) error {
	var mutations []mutation
	for _, e := range entities {
		k := c.known[e]
		if k == nil {
			continue
		}
		state := s.entities[e]
		baseline := k.baseline()
		ids := util.Filter(s.replicated(state), func(id replication.FnsID) bool {
			comp := state.components[id]
			return k.components[id] == comp.generation && comp.changed > baseline
		})
		m := mutation{entity: e}
		for _, id := range ids {
			if r, ok := cache.get(e, id, state.components[id]); ok {
				m.ranges = append(m.ranges, r)
			}
		}
		if len(m.ranges) > 0 {
			mutations = append(mutations, m)
		}
	}
	if len(mutations) == 0 {
		return nil
	}

	index := c.mutateIndex + 1
	msg := wire.NewBuffer(s.cfg.MaxMessageSize)
	_, err := msg.Encode("mutations", func(b *wire.Buffer) error {
		if _, err := b.WriteTick(c.updateTick); err != nil {
			return err
		}
		if _, err := b.WriteTick(s.tick); err != nil {
			return err
		}
		if _, err := b.WriteUvarint(index); err != nil {
			return err
		}
		if _, err := b.WriteUvarint(uint64(len(mutations))); err != nil {
			return err
		}
		for _, m := range mutations {
			if _, err := b.WriteEntity(m.entity); err != nil {
				return err
			}
			if _, err := b.WriteUvarint(uint64(len(m.ranges))); err != nil {
				return err
			}
			for _, r := range m.ranges {
				if _, err := b.WriteRange(s.shared, r); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		metrics.EncodeFaults.WithLabelValues("mutations").Inc()
		slog.Error("tickwire: dropping mutation message", "client", c.id, "tick", s.tick, "error", err)
		return err
	}

	c.mutateIndex = index
	c.sent[index] = sentMutation{
		tick: s.tick,
		entities: util.Map(mutations, func(m mutation) entity.Entity {
			return m.entity
		}),
	}
	s.send(c.id, transport.ServerMutations, "mutations", msg.Bytes())
	return nil
}

func (s *Server) send(client transport.ClientID, channel transport.ChannelID, kind string, payload []byte) {
	s.transport.Send(client, channel, payload)
	metrics.MessagesSent.WithLabelValues("server", kind).Inc()
	metrics.BytesSent.WithLabelValues("server").Add(float64(len(payload)))
}
