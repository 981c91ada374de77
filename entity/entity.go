// Package entity defines entity identifiers and the bidirectional map
// between the authoritative (server) and replica (client) id spaces.
package entity

import (
	"fmt"
	"math"
)

// Entity is an opaque (index, generation) identifier. The same logical
// entity has unrelated ids on the server and on each client.
type Entity struct {
	Index      uint32 `json:"index"`
	Generation uint32 `json:"generation"`
}

// Placeholder is never allocated by a well-behaved host.
var Placeholder = Entity{Index: math.MaxUint32}

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.Index, e.Generation)
}

// Less orders entities by index, then generation.
func (e Entity) Less(other Entity) bool {
	if e.Index != other.Index {
		return e.Index < other.Index
	}
	return e.Generation < other.Generation
}

// Compare orders entities like Less, for slices.SortFunc.
func Compare(a, b Entity) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// Pair is a server entity together with its client counterpart.
type Pair struct {
	Server Entity
	Client Entity
}

// Mapper translates entities embedded in replicated values.
type Mapper interface {
	MapEntity(e Entity) Entity
}

// MapEntities is implemented by payloads that embed entities and need them
// translated when crossing between id spaces.
type MapEntities interface {
	MapEntities(m Mapper)
}

// Spawner allocates and frees entities in the host's id space.
type Spawner interface {
	SpawnEmpty() Entity
	Despawn(e Entity)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(Entity) Entity

func (f MapperFunc) MapEntity(e Entity) Entity {
	return f(e)
}
