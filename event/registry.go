package event

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/wire"
)

// Kind separates the three flavours of remote events.
type Kind uint8

const (
	KindServerEvent Kind = iota
	KindServerTrigger
	KindClientEvent
)

func (k Kind) String() string {
	switch k {
	case KindServerEvent:
		return "server event"
	case KindServerTrigger:
		return "server trigger"
	case KindClientEvent:
		return "client event"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

var (
	ErrDuplicate     = errors.New("event: type already registered")
	ErrFrozen        = errors.New("event: registry is frozen")
	ErrNotRegistered = errors.New("event: type is not registered")
)

// Registration is the type-erased entry for one event type.
type Registration struct {
	ID          int
	Name        string
	Type        reflect.Type
	Kind        Kind
	Channel     transport.ChannelID
	ChannelKind transport.ChannelKind
	Independent bool

	serialize   func(ctx *SendCtx, value any, b *wire.Buffer) error
	deserialize func(ctx *ReceiveCtx, r *wire.Reader) (any, error)
}

func (r *Registration) Serialize(ctx *SendCtx, value any, b *wire.Buffer) error {
	return r.serialize(ctx, value, b)
}

func (r *Registration) Deserialize(ctx *ReceiveCtx, reader *wire.Reader) (any, error) {
	return r.deserialize(ctx, reader)
}

func (r *Registration) String() string {
	return fmt.Sprintf("%s %s", r.Kind, r.Name)
}

type key struct {
	kind Kind
	typ  reflect.Type
}

// Registry assigns channels to event types. Both sides must register the
// same events in the same order.
type Registry struct {
	channels *transport.Channels
	regs     []*Registration
	byKey    map[key]*Registration
	frozen   bool
}

func NewRegistry(channels *transport.Channels) *Registry {
	return &Registry{
		channels: channels,
		byKey:    make(map[key]*Registration),
	}
}

func (r *Registry) Channels() *transport.Channels {
	return r.channels
}

func (r *Registry) Freeze() {
	r.frozen = true
}

// All returns registrations in registration order.
func (r *Registry) All() []*Registration {
	return r.regs
}

// Of returns registrations of one kind in registration order.
func (r *Registry) Of(kind Kind) []*Registration {
	var regs []*Registration
	for _, reg := range r.regs {
		if reg.Kind == kind {
			regs = append(regs, reg)
		}
	}
	return regs
}

func (r *Registry) Lookup(kind Kind, typ reflect.Type) (*Registration, bool) {
	reg, ok := r.byKey[key{kind: kind, typ: typ}]
	return reg, ok
}

func register[V any](r *Registry, kind Kind, name string, channel transport.ChannelKind, fns Fns[V]) (*Registration, error) {
	typ := reflect.TypeOf((*V)(nil)).Elem()
	if kind == KindServerTrigger {
		// Triggers are looked up by their payload type.
		typ = typ.Field(0).Type
	}
	k := key{kind: kind, typ: typ}
	if _, ok := r.byKey[k]; ok {
		return nil, fmt.Errorf("%w: %s %s", ErrDuplicate, kind, name)
	}
	if r.frozen {
		return nil, fmt.Errorf("%w: cannot register %s %s", ErrFrozen, kind, name)
	}

	reg := &Registration{
		ID:          len(r.regs),
		Name:        name,
		Type:        typ,
		Kind:        kind,
		ChannelKind: channel,
		serialize: func(ctx *SendCtx, value any, b *wire.Buffer) error {
			typed, ok := value.(V)
			if !ok {
				return fmt.Errorf("event: %s cannot serialize %T", name, value)
			}
			return fns.Serialize(ctx, &typed, b)
		},
		deserialize: func(ctx *ReceiveCtx, reader *wire.Reader) (any, error) {
			return fns.Deserialize(ctx, reader)
		},
	}
	if kind == KindClientEvent {
		reg.Channel = r.channels.AddClient(channel)
	} else {
		reg.Channel = r.channels.AddServer(channel)
	}

	r.regs = append(r.regs, reg)
	r.byKey[k] = reg
	slog.Debug("tickwire: registered event", "kind", kind, "name", name, "channel", reg.Channel)
	return reg, nil
}

func typeName[E any]() string {
	return reflect.TypeOf((*E)(nil)).Elem().String()
}

// AddServerEvent registers E as an event sent from server to clients.
func AddServerEvent[E any](r *Registry, channel transport.ChannelKind) (*Registration, error) {
	return AddServerEventWith(r, channel, DefaultFns[E]())
}

// AddMappedServerEvent is AddServerEvent for events embedding entities.
func AddMappedServerEvent[E any, PE interface {
	*E
	entity.MapEntities
}](r *Registry, channel transport.ChannelKind) (*Registration, error) {
	return AddServerEventWith(r, channel, MappedFns[E, PE]())
}

func AddServerEventWith[E any](r *Registry, channel transport.ChannelKind, fns Fns[E]) (*Registration, error) {
	return register(r, KindServerEvent, typeName[E](), channel, fns)
}

// AddServerTrigger registers E as a trigger fired on clients, optionally
// at target entities.
func AddServerTrigger[E any](r *Registry, channel transport.ChannelKind) (*Registration, error) {
	return AddServerTriggerWith(r, channel, DefaultFns[E]())
}

func AddMappedServerTrigger[E any, PE interface {
	*E
	entity.MapEntities
}](r *Registry, channel transport.ChannelKind) (*Registration, error) {
	return AddServerTriggerWith(r, channel, MappedFns[E, PE]())
}

func AddServerTriggerWith[E any](r *Registry, channel transport.ChannelKind, fns Fns[E]) (*Registration, error) {
	return register(r, KindServerTrigger, typeName[E](), channel, triggerFns(fns))
}

// AddClientEvent registers E as an event sent from clients to the server.
func AddClientEvent[E any](r *Registry, channel transport.ChannelKind) (*Registration, error) {
	return AddClientEventWith(r, channel, DefaultFns[E]())
}

// AddMappedClientEvent translates client entities to server entities
// before sending.
func AddMappedClientEvent[E any, PE interface {
	*E
	entity.MapEntities
}](r *Registry, channel transport.ChannelKind) (*Registration, error) {
	return AddClientEventWith(r, channel, MappedFns[E, PE]())
}

func AddClientEventWith[E any](r *Registry, channel transport.ChannelKind, fns Fns[E]) (*Registration, error) {
	return register(r, KindClientEvent, typeName[E](), channel, fns)
}

// MakeIndependent exempts the server event or trigger E from tick gating.
// Independent events are dispatched as soon as they arrive.
func MakeIndependent[E any](r *Registry) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot change %s", ErrFrozen, typeName[E]())
	}
	typ := reflect.TypeOf((*E)(nil)).Elem()
	found := false
	for _, kind := range []Kind{KindServerEvent, KindServerTrigger} {
		if reg, ok := r.Lookup(kind, typ); ok {
			reg.Independent = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s is not a server event or trigger", ErrNotRegistered, typeName[E]())
	}
	return nil
}

// Find returns the registration of E of the given kind.
func Find[E any](r *Registry, kind Kind) (*Registration, error) {
	reg, ok := r.Lookup(kind, reflect.TypeOf((*E)(nil)).Elem())
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotRegistered, kind, typeName[E]())
	}
	return reg, nil
}

// ServerChannel returns the channel of server event or trigger E.
func ServerChannel[E any](r *Registry) (transport.ChannelID, bool) {
	typ := reflect.TypeOf((*E)(nil)).Elem()
	for _, kind := range []Kind{KindServerEvent, KindServerTrigger} {
		if reg, ok := r.Lookup(kind, typ); ok {
			return reg.Channel, true
		}
	}
	return 0, false
}

// ClientChannel returns the channel of client event E.
func ClientChannel[E any](r *Registry) (transport.ChannelID, bool) {
	reg, ok := r.Lookup(KindClientEvent, reflect.TypeOf((*E)(nil)).Elem())
	if !ok {
		return 0, false
	}
	return reg.Channel, true
}
