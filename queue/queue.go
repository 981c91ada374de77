// Package queue holds envelopes whose producer tick the replica has not
// yet applied and releases them in tick order once it has.
package queue

import (
	"log/slog"
	"sort"

	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/tick"
)

type entry[T any] struct {
	tick  tick.Tick
	value T
}

// Queue is a tick-gated delivery queue. Entries are dispatched in tick
// order, then arrival order within a tick, and only once the applied tick
// has reached them. Until the first Advance nothing but independent
// entries is dispatched.
type Queue[T any] struct {
	name       string
	entries    []entry[T]
	applied    tick.Tick
	synced     bool
	maxPending int
	degraded   bool
}

// New returns a queue reporting degraded state above maxPending entries.
func New[T any](name string, maxPending int) *Queue[T] {
	return &Queue[T]{name: name, maxPending: maxPending}
}

func (q *Queue[T]) Name() string {
	return q.name
}

// Applied returns the last applied tick and whether any was ever applied.
func (q *Queue[T]) Applied() (tick.Tick, bool) {
	return q.applied, q.synced
}

func (q *Queue[T]) Len() int {
	return len(q.entries)
}

// Degraded reports whether the queue is above its watermark.
func (q *Queue[T]) Degraded() bool {
	return q.degraded
}

// Ready reports whether an envelope produced at t can be dispatched now.
func (q *Queue[T]) Ready(t tick.Tick, independent bool) bool {
	return independent || (q.synced && t <= q.applied)
}

// Receive dispatches value immediately when Ready, otherwise holds it.
func (q *Queue[T]) Receive(t tick.Tick, value T, independent bool, dispatch func(T)) {
	if q.Ready(t, independent) {
		dispatch(value)
		return
	}
	q.Push(t, value)
}

// Push holds value until the applied tick reaches t.
func (q *Queue[T]) Push(t tick.Tick, value T) {
	i := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].tick > t
	})
	q.entries = append(q.entries, entry[T]{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = entry[T]{tick: t, value: value}

	q.report()
}

// Advance records that all state up to applied is in place and dispatches
// every held entry it unblocks. Regressions are ignored.
func (q *Queue[T]) Advance(applied tick.Tick, dispatch func(T)) int {
	if q.synced && applied < q.applied {
		slog.Debug("tickwire: ignoring applied tick regression",
			"queue", q.name, "applied", q.applied, "received", applied)
		return 0
	}
	q.applied = applied
	q.synced = true

	n := 0
	for n < len(q.entries) && q.entries[n].tick <= applied {
		dispatch(q.entries[n].value)
		n++
	}
	if n > 0 {
		clear(q.entries[:n])
		q.entries = q.entries[n:]
		q.report()
	}
	return n
}

// Reset drops every held entry and forgets the applied tick.
func (q *Queue[T]) Reset() {
	q.entries = nil
	q.applied = 0
	q.synced = false
	q.report()
}

func (q *Queue[T]) report() {
	metrics.PendingEnvelopes.WithLabelValues(q.name).Set(float64(len(q.entries)))

	over := q.maxPending > 0 && len(q.entries) > q.maxPending
	if over == q.degraded {
		return
	}
	q.degraded = over
	if over {
		metrics.PendingDegraded.WithLabelValues(q.name).Set(1)
		slog.Warn("tickwire: pending queue above watermark",
			"queue", q.name, "pending", len(q.entries), "watermark", q.maxPending, "applied", q.applied, "synced", q.synced)
	} else {
		metrics.PendingDegraded.WithLabelValues(q.name).Set(0)
		slog.Info("tickwire: pending queue recovered", "queue", q.name, "pending", len(q.entries))
	}
}
