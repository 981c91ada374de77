package replication

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
)

type marker struct {
	kind     reflect.Type
	priority int
}

// markerFns replace the command fns of one component on entities that
// carry the marker.
type markerFns struct {
	marker   reflect.Type
	priority int
	seq      int
	write    func(ctx *WriteCtx, e *DeferredEntity, value any)
	remove   RemoveFn
}

// RegisterMarker registers M as a replica-side marker component. When an
// entity carries several markers with fns for the same component, the
// highest priority wins, then the earliest registered.
func RegisterMarker[M any](r *Registry, priority int) error {
	kind := typeOf[M]()
	if slices.ContainsFunc(r.markers, func(m marker) bool { return m.kind == kind }) {
		return nil
	}
	if r.frozen {
		return fmt.Errorf("%w: cannot register marker %s", ErrFrozen, kind)
	}
	r.markers = append(r.markers, marker{kind: kind, priority: priority})
	return nil
}

// SetMarkerFns makes entities carrying marker M write and remove T through
// the given fns instead of T's command fns. A nil fn falls back to the
// command fn.
func SetMarkerFns[M, T any](r *Registry, write WriteFn[T], remove RemoveFn) error {
	id, ok := r.Lookup(typeOf[T]())
	if !ok {
		return fmt.Errorf("%w: %s is not registered", ErrUnknownFns, TypeName[T]())
	}
	if r.frozen {
		return fmt.Errorf("%w: cannot change marker fns of %s", ErrFrozen, TypeName[T]())
	}
	kind := typeOf[M]()
	seq := slices.IndexFunc(r.markers, func(m marker) bool { return m.kind == kind })
	if seq < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMarker, kind)
	}

	mf := markerFns{marker: kind, priority: r.markers[seq].priority, seq: seq, remove: remove}
	if write != nil {
		mf.write = func(ctx *WriteCtx, e *DeferredEntity, value any) {
			write(ctx, e, value.(T))
		}
	}
	fns := r.fns[id]
	fns.markers = slices.DeleteFunc(fns.markers, func(m markerFns) bool { return m.marker == kind })
	fns.markers = append(fns.markers, mf)
	slices.SortStableFunc(fns.markers, func(a, b markerFns) int {
		if a.priority != b.priority {
			return cmp.Compare(b.priority, a.priority)
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return nil
}

// Markers returns registered marker types in registration order.
func (r *Registry) Markers() []reflect.Type {
	kinds := make([]reflect.Type, len(r.markers))
	for i, m := range r.markers {
		kinds[i] = m.kind
	}
	return kinds
}

// marked returns the fns of the winning marker e carries, if any.
func (f *Fns) marked(e *DeferredEntity) *markerFns {
	for i := range f.markers {
		if _, ok := e.Get(f.markers[i].marker); ok {
			return &f.markers[i]
		}
	}
	return nil
}
