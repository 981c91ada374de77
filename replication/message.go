package replication

import (
	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/tick"
)

// Sections present in an update message, in the order they appear after
// the tick.
const (
	SectionMappings byte = 1 << iota
	SectionDespawns
	SectionRemovals
	SectionChanges
)

// EntityReplicated is reported by a replica for every entity a received
// message wrote to.
type EntityReplicated struct {
	Entity entity.Entity
	Tick   tick.Tick
}
