package event

import (
	"log/slog"

	"github.com/kevinxiao27/tickwire/entity"
)

// Triggerer fires one trigger at a set of targets. An empty target set
// fires an untargeted trigger.
type Triggerer interface {
	Trigger(event any, targets []entity.Entity)
}

// Fired is a decoded trigger waiting for the drain step.
type Fired struct {
	Event   any
	Targets []entity.Entity
}

// Triggers collects decoded triggers so decoding and firing can happen in
// different phases of the host's cycle. Each buffered trigger fires once
// with its whole target set.
type Triggers struct {
	pending []Fired
}

func (t *Triggers) Push(event any, targets []entity.Entity) {
	t.pending = append(t.pending, Fired{Event: event, Targets: targets})
}

// PushEnvelope buffers a decoded TriggerEvent of any payload type.
func (t *Triggers) PushEnvelope(value any) bool {
	env, ok := value.(envelope)
	if !ok {
		return false
	}
	t.Push(env.Payload(), env.TargetEntities())
	return true
}

func (t *Triggers) Len() int {
	return len(t.pending)
}

func (t *Triggers) Clear() {
	t.pending = nil
}

// Drain fires every buffered trigger in arrival order and returns how
// many fired.
func (t *Triggers) Drain(to Triggerer) int {
	pending := t.pending
	t.pending = nil
	for _, fired := range pending {
		slog.Debug("tickwire: firing trigger", "event", fired.Event, "targets", len(fired.Targets))
		to.Trigger(fired.Event, fired.Targets)
	}
	return len(pending)
}
