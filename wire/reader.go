package wire

import (
	"encoding/binary"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/tick"
)

// Reader is a cursor over a received message. Each successful call
// advances past the value it returned; a failed call leaves the cursor
// where it was.
type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.pos
}

func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) Empty() bool {
	return r.pos >= len(r.data)
}

func (r *Reader) fail(record string, err error) error {
	return &DecodeError{Record: record, Offset: r.pos, Err: err}
}

func (r *Reader) U8() (byte, error) {
	if r.Empty() {
		return 0, r.fail("u8", ErrUnexpectedEOF)
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	switch {
	case n == 0:
		return 0, r.fail("uvarint", ErrUnexpectedEOF)
	case n < 0:
		return 0, r.fail("uvarint", ErrVarintOverflow)
	}
	r.pos += n
	return v, nil
}

// Count reads a collection length. Every element takes at least one byte,
// so a count larger than the remaining input is rejected up front.
func (r *Reader) Count() (int, error) {
	start := r.pos
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > uint64(r.Remaining()) {
		r.pos = start
		return 0, r.fail("count", ErrLengthMismatch)
	}
	return int(v), nil
}

func (r *Reader) Tick() (tick.Tick, error) {
	v, err := r.Uvarint()
	return tick.Tick(v), err
}

func (r *Reader) FnsID() (FnsID, error) {
	start := r.pos
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > uint64(^uint32(0)) {
		r.pos = start
		return 0, r.fail("fns id", ErrVarintOverflow)
	}
	return FnsID(v), nil
}

func (r *Reader) Entity() (entity.Entity, error) {
	start := r.pos
	flagged, err := r.Uvarint()
	if err != nil {
		return entity.Entity{}, err
	}
	if flagged>>1 > uint64(^uint32(0)) {
		r.pos = start
		return entity.Entity{}, r.fail("entity", ErrVarintOverflow)
	}

	e := entity.Entity{Index: uint32(flagged >> 1)}
	if flagged&1 == 1 {
		generation, err := r.Uvarint()
		if err != nil {
			r.pos = start
			return entity.Entity{}, err
		}
		if generation == 0 || generation > uint64(^uint32(0)) {
			r.pos = start
			return entity.Entity{}, r.fail("entity generation", ErrVarintOverflow)
		}
		e.Generation = uint32(generation)
	}
	return e, nil
}

// Entities reads a count followed by that many entities.
func (r *Reader) Entities() ([]entity.Entity, error) {
	start := r.pos
	n, err := r.Count()
	if err != nil {
		return nil, err
	}
	entities := make([]entity.Entity, 0, n)
	for range n {
		e, err := r.Entity()
		if err != nil {
			r.pos = start
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// Next returns the next n bytes without copying.
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, r.fail("bytes", ErrUnexpectedEOF)
	}
	p := r.data[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

// Bytes reads a length-prefixed byte string written by Buffer.WriteBytes.
func (r *Reader) Bytes() ([]byte, error) {
	start := r.pos
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Remaining()) {
		r.pos = start
		return nil, r.fail("bytes", ErrLengthMismatch)
	}
	return r.Next(int(n))
}

// Rest returns every unread byte.
func (r *Reader) Rest() []byte {
	p := r.data[r.pos:]
	r.pos = len(r.data)
	return p
}
