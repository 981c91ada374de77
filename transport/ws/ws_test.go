package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/tickwire/transport"
)

func TestFrameRoundTrip(t *testing.T) {
	channel, payload, err := decodeFrame(encodeFrame(4, []byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, transport.ChannelID(4), channel)
	assert.Equal(t, []byte("abc"), payload)

	_, _, err = decodeFrame(nil)
	assert.ErrorIs(t, err, ErrBadFrame)

	id := uuid.New()
	got, err := decodeHello(encodeHello(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = decodeHello([]byte{helloChannel, 1})
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestServerClientExchange(t *testing.T) {
	serverTransport := transport.NewServer()
	serverTransport.Start()
	server := NewServer(serverTransport, time.Second)
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientTransport := transport.NewClient()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	client, err := Dial(ctx, url, clientTransport, time.Second)
	require.NoError(t, err)
	defer client.Close()

	require.True(t, clientTransport.IsConnected())
	id := clientTransport.ID()

	require.Eventually(t, func() bool {
		server.Pump()
		return serverTransport.Connected(id)
	}, 5*time.Second, 10*time.Millisecond)

	clientTransport.Send(transport.ClientControl, []byte("ping"))
	require.NoError(t, client.Pump())

	var received []transport.Received
	require.Eventually(t, func() bool {
		server.Pump()
		received = append(received, serverTransport.Receive(transport.ClientControl)...)
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, id, received[0].Client)
	assert.Equal(t, []byte("ping"), received[0].Payload)

	serverTransport.Send(id, transport.ServerUpdates, []byte("pong"))
	server.Pump()

	var payloads [][]byte
	require.Eventually(t, func() bool {
		if err := client.Pump(); err != nil {
			return false
		}
		payloads = append(payloads, clientTransport.Receive(transport.ServerUpdates)...)
		return len(payloads) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte("pong"), payloads[0])
}
