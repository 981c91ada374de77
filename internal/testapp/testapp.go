// Package testapp wires servers and clients over the in-memory transport
// for tests.
package testapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/tickwire/client"
	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/internal/memworld"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/server"
	"github.com/kevinxiao27/tickwire/transport"
)

// Setup registers the protocol. It runs once per side and must register
// the same things in the same order.
type Setup func(components *replication.Registry, events *event.Registry) error

type Server struct {
	*server.Server
	Transport *transport.Server
	World     *memworld.World
}

type Client struct {
	*client.Client
	Transport *transport.Client
	World     *memworld.World
}

func NewServer(t testing.TB, cfg *config.Config, setup Setup) *Server {
	t.Helper()
	components := replication.NewRegistry()
	events := event.NewRegistry(transport.NewChannels())
	require.NoError(t, setup(components, events))

	tr := transport.NewServer()
	tr.Start()
	s, err := server.New(cfg, components, events, tr)
	require.NoError(t, err)
	return &Server{Server: s, Transport: tr, World: memworld.New()}
}

func NewClient(t testing.TB, cfg *config.Config, setup Setup) *Client {
	t.Helper()
	components := replication.NewRegistry()
	events := event.NewRegistry(transport.NewChannels())
	require.NoError(t, setup(components, events))

	tr := transport.NewClient()
	world := memworld.New()
	c, err := client.New(cfg, components, events, tr, world)
	require.NoError(t, err)
	return &Client{Client: c, Transport: tr, World: world}
}

// Spawn allocates a server entity and starts replicating it.
func (s *Server) Spawn(t testing.TB, components ...any) entity.Entity {
	t.Helper()
	e := s.World.Spawn(components...)
	require.NoError(t, s.Replicate(e, components...))
	return e
}

func (s *Server) Update(t testing.TB) {
	t.Helper()
	require.NoError(t, s.Server.Update(context.Background()))
}

func (c *Client) Update(t testing.TB) {
	t.Helper()
	require.NoError(t, c.Client.Update(context.Background()))
}

// Exchange moves pending messages both ways between s and clients.
func Exchange(s *Server, clients ...*Client) {
	ExchangeWith(s, clients, nil)
}

// ExchangeWith is Exchange with transport options such as dropped
// channels.
func ExchangeWith(s *Server, clients []*Client, opts []transport.ExchangeOption) {
	trs := make([]*transport.Client, len(clients))
	for i, c := range clients {
		trs[i] = c.Transport
	}
	transport.Exchange(s.Transport, trs, opts...)
}

// Connect connects c and runs one full cycle so the protocol check and
// the first update complete where the server's policies allow it.
func Connect(t testing.TB, s *Server, c *Client) transport.ClientID {
	t.Helper()
	id := transport.Connect(s.Transport, c.Transport)
	c.Update(t)
	Exchange(s, c)
	s.Update(t)
	Exchange(s, c)
	c.Update(t)
	Exchange(s, c)
	return id
}

// Cycle delivers what clients sent since the last exchange, then runs a
// server update, the client updates and a final exchange.
func Cycle(t testing.TB, s *Server, clients ...*Client) {
	t.Helper()
	Exchange(s, clients...)
	s.Update(t)
	Exchange(s, clients...)
	for _, c := range clients {
		c.Update(t)
	}
	Exchange(s, clients...)
}
