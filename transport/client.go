package transport

import "github.com/google/uuid"

type Status uint8

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	default:
		return "connected"
	}
}

// Message is a payload on a channel.
type Message struct {
	Channel ChannelID
	Payload []byte
}

// Client buffers messages for a replica session.
type Client struct {
	status   Status
	id       ClientID
	received map[ChannelID][][]byte
	sent     []Message
}

func NewClient() *Client {
	return &Client{received: make(map[ChannelID][][]byte)}
}

func (c *Client) Status() Status {
	return c.status
}

func (c *Client) IsConnected() bool {
	return c.status == Connected
}

// ID returns the id assigned by the server, uuid.Nil until connected.
func (c *Client) ID() ClientID {
	return c.id
}

func (c *Client) SetConnecting() {
	c.status = Connecting
}

func (c *Client) SetConnected(id ClientID) {
	c.status = Connected
	c.id = id
}

// SetDisconnected drops everything buffered.
func (c *Client) SetDisconnected() {
	c.status = Disconnected
	c.id = uuid.Nil
	clear(c.received)
	c.sent = nil
}

// Send queues payload for the server. Dropped while disconnected.
func (c *Client) Send(channel ChannelID, payload []byte) {
	if c.status != Connected {
		return
	}
	c.sent = append(c.sent, Message{Channel: channel, Payload: payload})
}

// Inject buffers a message received from the server.
func (c *Client) Inject(channel ChannelID, payload []byte) {
	if c.status != Connected {
		return
	}
	c.received[channel] = append(c.received[channel], payload)
}

// Receive drains messages received on channel.
func (c *Client) Receive(channel ChannelID) [][]byte {
	messages := c.received[channel]
	delete(c.received, channel)
	return messages
}

func (c *Client) DrainSent() []Message {
	sent := c.sent
	c.sent = nil
	return sent
}
