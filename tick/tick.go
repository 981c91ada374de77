// Package tick defines the authoritative state version counter and the
// per-entity record of which versions a replica has confirmed.
package tick

import "strconv"

// Tick identifies a discrete authoritative state version.
type Tick uint64

func (t Tick) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// Increment returns the next tick.
func (t Tick) Increment() Tick {
	return t + 1
}

// Max returns the newer of two ticks.
func Max(a, b Tick) Tick {
	if a > b {
		return a
	}
	return b
}
