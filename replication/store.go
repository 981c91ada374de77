package replication

import (
	"reflect"

	"github.com/kevinxiao27/tickwire/entity"
)

// Cell is the host's handle to one component slot of one entity. The
// protocol reads and writes component values only through it.
type Cell interface {
	Get() (any, bool)
	Set(value any)
	Remove() bool
}

// Store is the host entity storage a replica writes into.
type Store interface {
	entity.Spawner
	Alive(e entity.Entity) bool
	Cell(e entity.Entity, kind reflect.Type) Cell
}

type deferredOp struct {
	kind   reflect.Type
	value  any
	remove bool
}

// DeferredEntity buffers every change a message makes to one entity so
// the host sees them as a single batch.
type DeferredEntity struct {
	Entity entity.Entity
	store  Store
	ops    []deferredOp
}

func NewDeferredEntity(store Store, e entity.Entity) *DeferredEntity {
	return &DeferredEntity{Entity: e, store: store}
}

// Insert queues value for insertion under its dynamic type.
func (d *DeferredEntity) Insert(value any) {
	d.ops = append(d.ops, deferredOp{kind: reflect.TypeOf(value), value: value})
}

func (d *DeferredEntity) Remove(kind reflect.Type) {
	d.ops = append(d.ops, deferredOp{kind: kind, remove: true})
}

// Get sees queued changes before falling back to the store.
func (d *DeferredEntity) Get(kind reflect.Type) (any, bool) {
	for i := len(d.ops) - 1; i >= 0; i-- {
		op := d.ops[i]
		if op.kind != kind {
			continue
		}
		if op.remove {
			return nil, false
		}
		return op.value, true
	}
	return d.store.Cell(d.Entity, kind).Get()
}

func (d *DeferredEntity) Pending() int {
	return len(d.ops)
}

// Flush applies queued changes in order and empties the buffer.
func (d *DeferredEntity) Flush() {
	for _, op := range d.ops {
		cell := d.store.Cell(d.Entity, op.kind)
		if op.remove {
			cell.Remove()
		} else {
			cell.Set(op.value)
		}
	}
	d.ops = d.ops[:0]
}
