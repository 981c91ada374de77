package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kevinxiao27/tickwire/transport"
)

// Client connects a transport.Client to a websocket Server.
type Client struct {
	transport   *transport.Client
	conn        *websocket.Conn
	writePeriod time.Duration

	mu     sync.Mutex
	inbox  []transport.Message
	closed bool
}

// Dial connects and waits for the server to assign a client id.
func Dial(ctx context.Context, url string, t *transport.Client, writePeriod time.Duration) (*Client, error) {
	t.SetConnecting()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		t.SetDisconnected()
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		t.SetDisconnected()
		return nil, fmt.Errorf("read hello: %w", err)
	}
	id, err := decodeHello(frame)
	if err != nil {
		conn.Close()
		t.SetDisconnected()
		return nil, err
	}
	t.SetConnected(id)

	c := &Client{transport: t, conn: conn, writePeriod: writePeriod}
	go c.read()
	return c, nil
}

func (c *Client) read() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	}()

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			slog.Debug("tickwire: websocket read stopped", "error", err)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		channel, payload, err := decodeFrame(frame)
		if err != nil {
			continue
		}
		c.mu.Lock()
		c.inbox = append(c.inbox, transport.Message{Channel: channel, Payload: payload})
		c.mu.Unlock()
	}
}

// Pump applies received messages to the transport and writes its queued
// outbound messages. Once the connection is gone the transport is marked
// disconnected and Pump reports it.
func (c *Client) Pump() error {
	c.mu.Lock()
	inbox := c.inbox
	c.inbox = nil
	closed := c.closed
	c.mu.Unlock()

	for _, m := range inbox {
		c.transport.Inject(m.Channel, m.Payload)
	}
	if closed {
		c.transport.SetDisconnected()
		return ErrClosed
	}

	for _, m := range c.transport.DrainSent() {
		c.conn.SetWriteDeadline(time.Now().Add(c.writePeriod))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, encodeFrame(m.Channel, m.Payload)); err != nil {
			c.conn.Close()
			c.transport.SetDisconnected()
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
