package event

import (
	"encoding/json"
	"fmt"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/wire"
)

// SendCtx is passed to event serializers. Mapper is set when entities in
// the event must be translated before they leave, as for client events.
type SendCtx struct {
	Mapper entity.Mapper
}

// ReceiveCtx is passed to event deserializers. Mapper is set on replicas
// and allocates placeholders for unknown server entities.
type ReceiveCtx struct {
	Mapper entity.Mapper
}

// Fns serialize and deserialize one event type.
type Fns[E any] struct {
	Serialize   func(ctx *SendCtx, event *E, b *wire.Buffer) error
	Deserialize func(ctx *ReceiveCtx, r *wire.Reader) (E, error)
}

// DefaultFns encode events as length-prefixed JSON.
func DefaultFns[E any]() Fns[E] {
	return Fns[E]{
		Serialize:   serializeJSON[E],
		Deserialize: deserializeJSON[E],
	}
}

// MappedFns are DefaultFns that translate embedded entities through
// whichever mapper the context carries.
func MappedFns[E any, PE interface {
	*E
	entity.MapEntities
}]() Fns[E] {
	return Fns[E]{
		Serialize: func(ctx *SendCtx, event *E, b *wire.Buffer) error {
			if ctx.Mapper != nil {
				mapped := *event
				PE(&mapped).MapEntities(ctx.Mapper)
				event = &mapped
			}
			return serializeJSON(ctx, event, b)
		},
		Deserialize: func(ctx *ReceiveCtx, r *wire.Reader) (E, error) {
			event, err := deserializeJSON[E](ctx, r)
			if err != nil {
				return event, err
			}
			if ctx.Mapper != nil {
				PE(&event).MapEntities(ctx.Mapper)
			}
			return event, nil
		},
	}
}

func serializeJSON[E any](_ *SendCtx, event *E, b *wire.Buffer) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = b.WriteBytes(data)
	return err
}

func deserializeJSON[E any](_ *ReceiveCtx, r *wire.Reader) (E, error) {
	var event E
	data, err := r.Bytes()
	if err != nil {
		return event, err
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("unmarshal %T: %w", event, err)
	}
	return event, nil
}

// TriggerEvent is a trigger payload with the entities it targets.
type TriggerEvent[E any] struct {
	Event   E
	Targets []entity.Entity
}

func (t TriggerEvent[E]) Payload() any {
	return t.Event
}

func (t TriggerEvent[E]) TargetEntities() []entity.Entity {
	return t.Targets
}

// envelope is implemented by every TriggerEvent instantiation.
type envelope interface {
	Payload() any
	TargetEntities() []entity.Entity
}

// triggerFns wraps event fns so targets travel ahead of the payload.
func triggerFns[E any](fns Fns[E]) Fns[TriggerEvent[E]] {
	return Fns[TriggerEvent[E]]{
		Serialize: func(ctx *SendCtx, trigger *TriggerEvent[E], b *wire.Buffer) error {
			targets := trigger.Targets
			if ctx.Mapper != nil {
				targets = make([]entity.Entity, len(trigger.Targets))
				for i, e := range trigger.Targets {
					targets[i] = ctx.Mapper.MapEntity(e)
				}
			}
			if _, err := b.WriteEntities(targets); err != nil {
				return err
			}
			return fns.Serialize(ctx, &trigger.Event, b)
		},
		Deserialize: func(ctx *ReceiveCtx, r *wire.Reader) (TriggerEvent[E], error) {
			targets, err := r.Entities()
			if err != nil {
				return TriggerEvent[E]{}, err
			}
			if ctx.Mapper != nil {
				for i, e := range targets {
					targets[i] = ctx.Mapper.MapEntity(e)
				}
			}
			event, err := fns.Deserialize(ctx, r)
			if err != nil {
				return TriggerEvent[E]{}, err
			}
			return TriggerEvent[E]{Event: event, Targets: targets}, nil
		},
	}
}
