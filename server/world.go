package server

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/tick"
	"github.com/kevinxiao27/tickwire/transport"
)

type componentState struct {
	value any
	// generation changes on every insert so clients holding an older
	// insert receive the value again through the reliable channel.
	generation uint64
	// dirty marks an in-place mutation not yet stamped with a tick.
	dirty   bool
	changed tick.Tick
}

type entityState struct {
	components map[replication.FnsID]*componentState
}

func (e *entityState) ids() []replication.FnsID {
	ids := make([]replication.FnsID, 0, len(e.components))
	for id := range e.components {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// replicated returns the ids of state the registry's rules replicate.
func (s *Server) replicated(state *entityState) []replication.FnsID {
	return s.components.Select(state.ids())
}

func (s *Server) lookup(value any) (replication.FnsID, error) {
	id, ok := s.components.Lookup(reflect.TypeOf(value))
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrNotReplicated, value)
	}
	return id, nil
}

// Replicate starts replicating a host entity with the given components.
// Replicating an already replicated entity inserts the components.
func (s *Server) Replicate(e entity.Entity, components ...any) error {
	if _, ok := s.entities[e]; !ok {
		s.entities[e] = &entityState{components: make(map[replication.FnsID]*componentState)}
		slog.Debug("tickwire: replicating entity", "entity", e)
	}
	for _, c := range components {
		if err := s.Insert(e, c); err != nil {
			return err
		}
	}
	return nil
}

// Insert adds or replaces a component. Clients receive it reliably.
func (s *Server) Insert(e entity.Entity, value any) error {
	state, ok := s.entities[e]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, e)
	}
	id, err := s.lookup(value)
	if err != nil {
		return err
	}
	s.generation++
	state.components[id] = &componentState{value: value, generation: s.generation}
	return nil
}

// Mutate changes a component in place. Clients receive the change through
// the unreliable channel until they acknowledge it. Mutating a missing
// component inserts it.
func (s *Server) Mutate(e entity.Entity, value any) error {
	state, ok := s.entities[e]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, e)
	}
	id, err := s.lookup(value)
	if err != nil {
		return err
	}
	c, ok := state.components[id]
	if !ok {
		return s.Insert(e, value)
	}
	c.value = value
	c.dirty = true
	return nil
}

// Remove stops replicating one component of e. Absent components are a
// no-op.
func (s *Server) Remove(e entity.Entity, kind reflect.Type) error {
	state, ok := s.entities[e]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, e)
	}
	id, ok := s.components.Lookup(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReplicated, kind)
	}
	delete(state.components, id)
	return nil
}

// RemoveComponent is Remove for a static type.
func RemoveComponent[T any](s *Server, e entity.Entity) error {
	return s.Remove(e, reflect.TypeOf((*T)(nil)).Elem())
}

// Despawn stops replicating e; clients despawn their counterpart. Unknown
// entities are ignored.
func (s *Server) Despawn(e entity.Entity) {
	if _, ok := s.entities[e]; !ok {
		return
	}
	delete(s.entities, e)
	slog.Debug("tickwire: despawned entity", "entity", e)
}

// Component returns the replicated T of e as the server last saw it.
func Component[T any](s *Server, e entity.Entity) (T, bool) {
	var zero T
	state, ok := s.entities[e]
	if !ok {
		return zero, false
	}
	id, ok := s.components.Lookup(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return zero, false
	}
	c, ok := state.components[id]
	if !ok {
		return zero, false
	}
	return c.value.(T), true
}

// Entities returns replicated entities in index order.
func (s *Server) Entities() []entity.Entity {
	entities := make([]entity.Entity, 0, len(s.entities))
	for e := range s.entities {
		entities = append(entities, e)
	}
	slices.SortFunc(entities, entity.Compare)
	return entities
}

// MapEntity tells client that its pre-spawned clientEntity is the
// counterpart of the server entity. The mapping travels with the next
// update so the client reuses its entity instead of spawning one.
func (s *Server) MapEntity(client transport.ClientID, server, clientEntity entity.Entity) error {
	c, ok := s.clients[client]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, client)
	}
	c.mappings = append(c.mappings, entity.Pair{Server: server, Client: clientEntity})
	return nil
}

// stampMutations assigns the current tick to mutations made since the
// previous send.
func (s *Server) stampMutations() {
	for _, state := range s.entities {
		for _, c := range state.components {
			if c.dirty {
				c.changed = s.tick
				c.dirty = false
			}
		}
	}
}
