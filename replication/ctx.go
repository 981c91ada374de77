package replication

import (
	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/tick"
)

// SerializeCtx is passed to component serializers on the server.
type SerializeCtx struct {
	Tick tick.Tick
}

// WriteCtx is passed to deserializers and write functions on a replica.
// Mapper resolves server entities embedded in values.
type WriteCtx struct {
	Tick   tick.Tick
	Mapper entity.Mapper
	Store  Store
}
