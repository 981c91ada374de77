// Package replication holds the registry of replicated component types and
// the contexts their functions run in.
package replication

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/wire"
)

type FnsID = wire.FnsID

var (
	ErrConflict      = errors.New("replication: name registered with a different type")
	ErrFrozen        = errors.New("replication: registry is frozen")
	ErrUnknownFns    = errors.New("replication: unknown fns id")
	ErrTypeMismatch  = errors.New("replication: value type does not match registration")
	ErrUnknownMarker = errors.New("replication: marker is not registered")
)

// Registry maps compact FnsIDs to component capabilities. It is built
// during setup, identical on both sides, and frozen once a session starts.
//
// Registering fns alone does not replicate a type. A rule does: an entity
// replicates the components of every rule whose components it all has.
type Registry struct {
	fns     []*Fns
	byName  map[string]FnsID
	byType  map[reflect.Type]FnsID
	rules   [][]FnsID
	markers []marker
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]FnsID),
		byType: make(map[reflect.Type]FnsID),
	}
}

func (r *Registry) register(fns *Fns) (FnsID, error) {
	if id, ok := r.byName[fns.Name]; ok {
		if r.fns[id].Type != fns.Type {
			return 0, fmt.Errorf("%w: %s is %s, not %s", ErrConflict, fns.Name, r.fns[id].Type, fns.Type)
		}
		return id, nil
	}
	if r.frozen {
		return 0, fmt.Errorf("%w: cannot register %s", ErrFrozen, fns.Name)
	}
	if _, ok := r.byType[fns.Type]; ok {
		return 0, fmt.Errorf("%w: %s already registered under another name", ErrConflict, fns.Type)
	}

	id := FnsID(len(r.fns))
	r.fns = append(r.fns, fns)
	r.byName[fns.Name] = id
	r.byType[fns.Type] = id
	slog.Debug("tickwire: registered component", "name", fns.Name, "id", id)
	return id, nil
}

func (r *Registry) addRule(ids []FnsID) error {
	rule := slices.Clone(ids)
	slices.Sort(rule)
	rule = slices.Compact(rule)
	for _, existing := range r.rules {
		if slices.Equal(existing, rule) {
			return nil
		}
	}
	if r.frozen {
		return fmt.Errorf("%w: cannot add rule %v", ErrFrozen, rule)
	}
	for _, id := range rule {
		if int(id) >= len(r.fns) {
			return fmt.Errorf("%w: %d", ErrUnknownFns, id)
		}
	}
	r.rules = append(r.rules, rule)
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.frozen = true
}

func (r *Registry) Frozen() bool {
	return r.frozen
}

func (r *Registry) Len() int {
	return len(r.fns)
}

func (r *Registry) Get(id FnsID) (*Fns, error) {
	if int(id) >= len(r.fns) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFns, id)
	}
	return r.fns[id], nil
}

// Lookup returns the id a component type was registered under.
func (r *Registry) Lookup(kind reflect.Type) (FnsID, bool) {
	id, ok := r.byType[kind]
	return id, ok
}

// Names returns registration names in id order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.fns))
	for i, fns := range r.fns {
		names[i] = fns.Name
	}
	return names
}

// Types returns registered types in id order.
func (r *Registry) Types() []reflect.Type {
	types := make([]reflect.Type, len(r.fns))
	for i, fns := range r.fns {
		types[i] = fns.Type
	}
	return types
}

// Rules returns replication rules in registration order, each sorted by
// id.
func (r *Registry) Rules() [][]FnsID {
	rules := make([][]FnsID, len(r.rules))
	for i, rule := range r.rules {
		rules[i] = slices.Clone(rule)
	}
	return rules
}

// Select returns the ids of present that some rule replicates, in id
// order. present must be sorted.
func (r *Registry) Select(present []FnsID) []FnsID {
	var selected []FnsID
	for _, rule := range r.rules {
		if !containsAll(present, rule) {
			continue
		}
		selected = append(selected, rule...)
	}
	slices.Sort(selected)
	return slices.Compact(selected)
}

func containsAll(sorted, ids []FnsID) bool {
	for _, id := range ids {
		if _, ok := slices.BinarySearch(sorted, id); !ok {
			return false
		}
	}
	return true
}

// Replicate registers T with the default JSON codec.
func Replicate[T any](r *Registry) (FnsID, error) {
	return ReplicateWith(r, DefaultRuleFns[T]())
}

// ReplicateMapped registers T and maps its embedded entities on receive.
func ReplicateMapped[T any, PT interface {
	*T
	entity.MapEntities
}](r *Registry) (FnsID, error) {
	return ReplicateWith(r, MappedRuleFns[T, PT]())
}

// ReplicateWith registers T with custom serialization.
func ReplicateWith[T any](r *Registry, rule RuleFns[T]) (FnsID, error) {
	return ReplicateAs(r, TypeName[T](), rule)
}

// ReplicateAs registers T under an explicit stable name, for types whose
// Go name differs between the two sides.
func ReplicateAs[T any](r *Registry, name string, rule RuleFns[T]) (FnsID, error) {
	id, err := r.register(newFns(name, rule))
	if err != nil {
		return 0, err
	}
	return id, r.addRule([]FnsID{id})
}

// Register registers T's fns without replicating it on its own, for
// components only replicated through ReplicateBundle.
func Register[T any](r *Registry, rule RuleFns[T]) (FnsID, error) {
	return r.register(newFns(TypeName[T](), rule))
}

// ReplicateBundle replicates the given components, but only on entities
// that have all of them.
func ReplicateBundle(r *Registry, ids ...FnsID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty bundle", ErrUnknownFns)
	}
	return r.addRule(ids)
}

// SetCommandFns overrides how a received T is written to and removed from
// an entity. Nil arguments keep the current function.
func SetCommandFns[T any](r *Registry, write WriteFn[T], remove RemoveFn) error {
	id, ok := r.Lookup(typeOf[T]())
	if !ok {
		return fmt.Errorf("%w: %s is not replicated", ErrUnknownFns, TypeName[T]())
	}
	if r.frozen {
		return fmt.Errorf("%w: cannot change command fns of %s", ErrFrozen, TypeName[T]())
	}
	fns := r.fns[id]
	if write != nil {
		setWriteFn(fns, write)
	}
	if remove != nil {
		fns.remove = remove
	}
	return nil
}
