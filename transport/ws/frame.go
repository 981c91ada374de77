// Package ws carries transport messages over gorilla websockets. Each
// binary frame is a channel byte followed by the payload.
package ws

import (
	"errors"

	"github.com/google/uuid"

	"github.com/kevinxiao27/tickwire/transport"
)

// helloChannel carries the client id assigned by the server. It is the
// first frame on every connection.
const helloChannel = 0xff

var (
	ErrBadFrame = errors.New("ws: malformed frame")
	ErrClosed   = errors.New("ws: connection closed")
)

func encodeFrame(channel transport.ChannelID, payload []byte) []byte {
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(channel)
	copy(frame[1:], payload)
	return frame
}

func decodeFrame(frame []byte) (transport.ChannelID, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrBadFrame
	}
	return transport.ChannelID(frame[0]), frame[1:], nil
}

func encodeHello(id transport.ClientID) []byte {
	return append([]byte{helloChannel}, id[:]...)
}

func decodeHello(frame []byte) (transport.ClientID, error) {
	if len(frame) != 1+len(uuid.UUID{}) || frame[0] != helloChannel {
		return uuid.Nil, ErrBadFrame
	}
	return uuid.FromBytes(frame[1:])
}
