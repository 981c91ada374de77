// Package wire implements the append-only record buffer used to build
// outbound messages and the cursor used to decode inbound ones.
package wire

import (
	"encoding/binary"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/tick"
)

// FnsID selects the registered serialize/deserialize/write triple for a
// replicated component on the wire.
type FnsID uint32

// Range is the [Start, End) span a record occupies inside a Buffer.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Start
}

// Buffer is a write-once, append-only byte buffer. Written ranges are never
// mutated; a failed write truncates back to the last completed record.
type Buffer struct {
	data  []byte
	limit int
}

// NewBuffer returns a buffer refusing to grow past limit bytes. A zero
// limit disables the check.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

// Slice returns the bytes of a previously written range.
func (b *Buffer) Slice(r Range) []byte {
	return b.data[r.Start:r.End]
}

// Truncate drops everything written after n bytes.
func (b *Buffer) Truncate(n int) {
	if n < len(b.data) {
		b.data = b.data[:n]
	}
}

// Reset empties the buffer for the next message, keeping capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// record runs write and returns the range it produced, undoing it on error.
func (b *Buffer) record(name string, write func() error) (Range, error) {
	start := len(b.data)
	if err := write(); err != nil {
		b.Truncate(start)
		return Range{}, &EncodeError{Record: name, Err: err}
	}
	if b.limit > 0 && len(b.data) > b.limit {
		b.Truncate(start)
		return Range{}, &EncodeError{Record: name, Err: ErrMessageTooLarge}
	}
	return Range{Start: start, End: len(b.data)}, nil
}

func (b *Buffer) appendUvarint(v uint64) {
	b.data = binary.AppendUvarint(b.data, v)
}

func (b *Buffer) appendEntity(e entity.Entity) {
	flagged := uint64(e.Index) << 1
	if e.Generation != 0 {
		flagged |= 1
	}
	b.appendUvarint(flagged)
	if e.Generation != 0 {
		b.appendUvarint(uint64(e.Generation))
	}
}

func (b *Buffer) WriteU8(v byte) (Range, error) {
	return b.record("u8", func() error {
		b.data = append(b.data, v)
		return nil
	})
}

func (b *Buffer) WriteUvarint(v uint64) (Range, error) {
	return b.record("uvarint", func() error {
		b.appendUvarint(v)
		return nil
	})
}

func (b *Buffer) WriteTick(t tick.Tick) (Range, error) {
	return b.record("tick", func() error {
		b.appendUvarint(uint64(t))
		return nil
	})
}

// WriteEntity encodes the index shifted left by one with the low bit
// flagging a non-zero generation, followed by the generation if present.
func (b *Buffer) WriteEntity(e entity.Entity) (Range, error) {
	return b.record("entity", func() error {
		b.appendEntity(e)
		return nil
	})
}

// WriteEntities writes a count followed by each entity.
func (b *Buffer) WriteEntities(entities []entity.Entity) (Range, error) {
	return b.record("entities", func() error {
		b.appendUvarint(uint64(len(entities)))
		for _, e := range entities {
			b.appendEntity(e)
		}
		return nil
	})
}

// WriteMappings writes server/client pairs back to back without a count.
func (b *Buffer) WriteMappings(pairs []entity.Pair) (Range, error) {
	return b.record("mappings", func() error {
		for _, pair := range pairs {
			b.appendEntity(pair.Server)
			b.appendEntity(pair.Client)
		}
		return nil
	})
}

func (b *Buffer) WriteFnIDs(ids []FnsID) (Range, error) {
	return b.record("fn ids", func() error {
		for _, id := range ids {
			b.appendUvarint(uint64(id))
		}
		return nil
	})
}

// WriteComponent writes the fns id followed by whatever encode appends.
func (b *Buffer) WriteComponent(id FnsID, encode func(*Buffer) error) (Range, error) {
	return b.record("component", func() error {
		b.appendUvarint(uint64(id))
		return encode(b)
	})
}

// WriteBytes writes a length prefix followed by p.
func (b *Buffer) WriteBytes(p []byte) (Range, error) {
	return b.record("bytes", func() error {
		b.appendUvarint(uint64(len(p)))
		b.data = append(b.data, p...)
		return nil
	})
}

// WriteRaw appends p verbatim.
func (b *Buffer) WriteRaw(p []byte) (Range, error) {
	return b.record("raw", func() error {
		b.data = append(b.data, p...)
		return nil
	})
}

// WriteRange copies a range of another buffer into this one.
func (b *Buffer) WriteRange(src *Buffer, r Range) (Range, error) {
	return b.WriteRaw(src.Slice(r))
}

// Encode runs a caller-defined sequence of writes as a single record.
func (b *Buffer) Encode(name string, encode func(*Buffer) error) (Range, error) {
	return b.record(name, func() error {
		return encode(b)
	})
}
