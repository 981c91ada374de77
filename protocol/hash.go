// Package protocol fingerprints the registered replication protocol so a
// server can refuse clients built with a different one.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/replication"
)

// Hash identifies a protocol. Clients send it when they connect.
type Hash uint64

func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Hasher accumulates registrations in order. Both sides must feed it the
// same sequence to agree.
type Hasher struct {
	digest *xxhash.Digest
}

func NewHasher() *Hasher {
	return &Hasher{digest: xxhash.New()}
}

func (h *Hasher) add(tag string, name string, extra byte) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(name)))
	h.digest.WriteString(tag)
	h.digest.Write(buf[:n])
	h.digest.WriteString(name)
	h.digest.Write([]byte{extra})
}

func (h *Hasher) AddComponent(name string) {
	h.add("c", name, 0)
}

// AddRule adds a replication rule over already added components.
func (h *Hasher) AddRule(ids []replication.FnsID) {
	var buf [binary.MaxVarintLen64]byte
	h.digest.WriteString("r")
	h.digest.Write(buf[:binary.PutUvarint(buf[:], uint64(len(ids)))])
	for _, id := range ids {
		h.digest.Write(buf[:binary.PutUvarint(buf[:], uint64(id))])
	}
}

func (h *Hasher) AddEvent(reg *event.Registration) {
	var independent byte
	if reg.Independent {
		independent = 1
	}
	h.add(fmt.Sprintf("e%d", reg.Kind), reg.Name, independent)
}

func (h *Hasher) Sum() Hash {
	return Hash(h.digest.Sum64())
}

// Compute hashes every registration of both registries.
func Compute(components *replication.Registry, events *event.Registry) Hash {
	h := NewHasher()
	for _, name := range components.Names() {
		h.AddComponent(name)
	}
	for _, rule := range components.Rules() {
		h.AddRule(rule)
	}
	for _, reg := range events.All() {
		h.AddEvent(reg)
	}
	return h.Sum()
}
