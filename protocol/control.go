package protocol

import (
	"errors"
	"fmt"

	"github.com/kevinxiao27/tickwire/wire"
)

// Control message kinds on the client control channel.
const (
	controlHash byte = iota
)

var ErrUnknownControl = errors.New("protocol: unknown control message")

// EncodeHash builds the message a client sends to announce its protocol.
func EncodeHash(h Hash) ([]byte, error) {
	b := wire.NewBuffer(0)
	if _, err := b.WriteU8(controlHash); err != nil {
		return nil, err
	}
	if _, err := b.WriteUvarint(uint64(h)); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// DecodeHash parses a control message produced by EncodeHash.
func DecodeHash(payload []byte) (Hash, error) {
	r := wire.NewReader(payload)
	kind, err := r.U8()
	if err != nil {
		return 0, err
	}
	if kind != controlHash {
		return 0, fmt.Errorf("%w: %d", ErrUnknownControl, kind)
	}
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if !r.Empty() {
		return 0, fmt.Errorf("%w: %d trailing bytes", wire.ErrLengthMismatch, r.Remaining())
	}
	return Hash(v), nil
}
