package memworld

import (
	"slices"

	"github.com/kevinxiao27/tickwire/entity"
)

// Fired is one trigger observed by an Observer.
type Fired struct {
	Event   any
	Targets []entity.Entity
}

// Observer records every trigger it receives.
type Observer struct {
	Fired []Fired
}

func (o *Observer) Trigger(event any, targets []entity.Entity) {
	o.Fired = append(o.Fired, Fired{Event: event, Targets: slices.Clone(targets)})
}
