// Package memworld is a small in-memory host world used by tests and the
// demo binaries.
package memworld

import (
	"reflect"
	"slices"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/replication"
)

type World struct {
	generations []uint32
	alive       map[entity.Entity]map[reflect.Type]any
	free        []uint32
}

func New() *World {
	return &World{alive: make(map[entity.Entity]map[reflect.Type]any)}
}

func (w *World) SpawnEmpty() entity.Entity {
	var index uint32
	if n := len(w.free); n > 0 {
		index = w.free[n-1]
		w.free = w.free[:n-1]
		w.generations[index]++
	} else {
		index = uint32(len(w.generations))
		w.generations = append(w.generations, 0)
	}
	e := entity.Entity{Index: index, Generation: w.generations[index]}
	w.alive[e] = make(map[reflect.Type]any)
	return e
}

// Spawn creates an entity holding components.
func (w *World) Spawn(components ...any) entity.Entity {
	e := w.SpawnEmpty()
	for _, c := range components {
		w.alive[e][reflect.TypeOf(c)] = c
	}
	return e
}

func (w *World) Despawn(e entity.Entity) {
	if _, ok := w.alive[e]; !ok {
		return
	}
	delete(w.alive, e)
	w.free = append(w.free, e.Index)
}

func (w *World) Alive(e entity.Entity) bool {
	_, ok := w.alive[e]
	return ok
}

func (w *World) Len() int {
	return len(w.alive)
}

// Entities returns live entities in index order.
func (w *World) Entities() []entity.Entity {
	entities := make([]entity.Entity, 0, len(w.alive))
	for e := range w.alive {
		entities = append(entities, e)
	}
	slices.SortFunc(entities, entity.Compare)
	return entities
}

// Components returns how many components e holds.
func (w *World) Components(e entity.Entity) int {
	return len(w.alive[e])
}

func (w *World) Cell(e entity.Entity, kind reflect.Type) replication.Cell {
	return cell{world: w, entity: e, kind: kind}
}

// Get returns the T component of e.
func Get[T any](w *World, e entity.Entity) (T, bool) {
	var zero T
	v, ok := w.alive[e][reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// Has reports whether e holds a T component.
func Has[T any](w *World, e entity.Entity) bool {
	_, ok := Get[T](w, e)
	return ok
}

type cell struct {
	world  *World
	entity entity.Entity
	kind   reflect.Type
}

func (c cell) Get() (any, bool) {
	v, ok := c.world.alive[c.entity][c.kind]
	return v, ok
}

// Set is a no-op on despawned entities.
func (c cell) Set(value any) {
	if components, ok := c.world.alive[c.entity]; ok {
		components[c.kind] = value
	}
}

func (c cell) Remove() bool {
	components, ok := c.world.alive[c.entity]
	if !ok {
		return false
	}
	_, had := components[c.kind]
	delete(components, c.kind)
	return had
}

var _ replication.Store = (*World)(nil)
