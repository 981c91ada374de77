package replication

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/wire"
)

// RuleFns serialize and deserialize one component type.
type RuleFns[T any] struct {
	Serialize   func(ctx *SerializeCtx, value *T, b *wire.Buffer) error
	Deserialize func(ctx *WriteCtx, r *wire.Reader) (T, error)
}

// WriteFn applies a decoded value to an entity.
type WriteFn[T any] func(ctx *WriteCtx, e *DeferredEntity, value T)

// RemoveFn removes a component from an entity.
type RemoveFn func(ctx *WriteCtx, e *DeferredEntity, kind reflect.Type)

// DefaultRuleFns encode values as length-prefixed JSON.
func DefaultRuleFns[T any]() RuleFns[T] {
	return RuleFns[T]{
		Serialize:   serializeJSON[T],
		Deserialize: deserializeJSON[T],
	}
}

// MappedRuleFns are DefaultRuleFns that translate embedded entities after
// decoding.
func MappedRuleFns[T any, PT interface {
	*T
	entity.MapEntities
}]() RuleFns[T] {
	return RuleFns[T]{
		Serialize: serializeJSON[T],
		Deserialize: func(ctx *WriteCtx, r *wire.Reader) (T, error) {
			value, err := deserializeJSON[T](ctx, r)
			if err != nil {
				return value, err
			}
			if ctx.Mapper != nil {
				PT(&value).MapEntities(ctx.Mapper)
			}
			return value, nil
		},
	}
}

func serializeJSON[T any](_ *SerializeCtx, value *T, b *wire.Buffer) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = b.WriteBytes(data)
	return err
}

func deserializeJSON[T any](_ *WriteCtx, r *wire.Reader) (T, error) {
	var value T
	data, err := r.Bytes()
	if err != nil {
		return value, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("unmarshal %T: %w", value, err)
	}
	return value, nil
}

// DefaultWrite inserts the value, replacing any previous one.
func DefaultWrite[T any](_ *WriteCtx, e *DeferredEntity, value T) {
	e.Insert(value)
}

// DefaultRemove removes the component of the given kind.
func DefaultRemove(_ *WriteCtx, e *DeferredEntity, kind reflect.Type) {
	e.Remove(kind)
}

// Fns is the type-erased capability triple stored per FnsID.
type Fns struct {
	Name string
	Type reflect.Type

	serialize   func(ctx *SerializeCtx, value any, b *wire.Buffer) error
	deserialize func(ctx *WriteCtx, r *wire.Reader) (any, error)
	write       func(ctx *WriteCtx, e *DeferredEntity, value any)
	remove      RemoveFn
	markers     []markerFns
}

func newFns[T any](name string, rule RuleFns[T]) *Fns {
	fns := &Fns{
		Name: name,
		Type: typeOf[T](),
		serialize: func(ctx *SerializeCtx, value any, b *wire.Buffer) error {
			typed, ok := value.(T)
			if !ok {
				return fmt.Errorf("%w: expected %s, got %T", ErrTypeMismatch, name, value)
			}
			return rule.Serialize(ctx, &typed, b)
		},
		deserialize: func(ctx *WriteCtx, r *wire.Reader) (any, error) {
			return rule.Deserialize(ctx, r)
		},
		remove: DefaultRemove,
	}
	setWriteFn(fns, DefaultWrite[T])
	return fns
}

func setWriteFn[T any](f *Fns, write WriteFn[T]) {
	f.write = func(ctx *WriteCtx, e *DeferredEntity, value any) {
		write(ctx, e, value.(T))
	}
}

func (f *Fns) Serialize(ctx *SerializeCtx, value any, b *wire.Buffer) error {
	return f.serialize(ctx, value, b)
}

func (f *Fns) Deserialize(ctx *WriteCtx, r *wire.Reader) (any, error) {
	return f.deserialize(ctx, r)
}

// Write applies value through the fns of the marker e carries, falling
// back to the command fns.
func (f *Fns) Write(ctx *WriteCtx, e *DeferredEntity, value any) {
	if m := f.marked(e); m != nil && m.write != nil {
		m.write(ctx, e, value)
		return
	}
	f.write(ctx, e, value)
}

func (f *Fns) Remove(ctx *WriteCtx, e *DeferredEntity) {
	if m := f.marked(e); m != nil && m.remove != nil {
		m.remove(ctx, e, f.Type)
		return
	}
	f.remove(ctx, e, f.Type)
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// TypeName is the stable registration name for T.
func TypeName[T any]() string {
	return typeOf[T]().String()
}
