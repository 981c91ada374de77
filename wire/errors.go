package wire

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedEOF   = errors.New("unexpected end of message")
	ErrVarintOverflow  = errors.New("varint overflows 64 bits")
	ErrMessageTooLarge = errors.New("message exceeds size limit")
	ErrLengthMismatch  = errors.New("declared length exceeds remaining bytes")
)

// EncodeError reports a record that could not be written. The buffer has
// already been truncated to the end of the previous record.
type EncodeError struct {
	Record string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Record, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError reports malformed input at a byte offset.
type DecodeError struct {
	Record string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at byte %d: %v", e.Record, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
