package server_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/tickwire/client"
	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/internal/memworld"
	"github.com/kevinxiao27/tickwire/internal/testapp"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/server"
	"github.com/kevinxiao27/tickwire/tick"
	"github.com/kevinxiao27/tickwire/transport"
)

type position struct {
	X, Y int
}

type chat struct {
	Text string
}

type explode struct {
	Radius int
}

type input struct {
	Keys int
}

func setup(components *replication.Registry, events *event.Registry) error {
	if _, err := replication.Replicate[position](components); err != nil {
		return err
	}
	if _, err := event.AddServerEvent[chat](events, transport.Ordered); err != nil {
		return err
	}
	if _, err := event.AddServerTrigger[explode](events, transport.Ordered); err != nil {
		return err
	}
	_, err := event.AddClientEvent[input](events, transport.Ordered)
	return err
}

func TestTickEveryFrame(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)

	s.Update(t)
	s.Update(t)
	assert.Equal(t, tick.Tick(2), s.Tick())
	assert.ErrorIs(t, s.IncrementTick(), server.ErrNotTickManaged)
}

func TestTickManual(t *testing.T) {
	cfg := config.Test()
	cfg.TickPolicy = config.TickManual
	s := testapp.NewServer(t, cfg, setup)

	s.Update(t)
	assert.Equal(t, tick.Tick(0), s.Tick())

	require.NoError(t, s.IncrementTick())
	s.Update(t)
	assert.Equal(t, tick.Tick(1), s.Tick())
}

func TestTickMaxRate(t *testing.T) {
	cfg := config.Test()
	cfg.TickPolicy = config.TickMaxRate
	cfg.TickRate = 10

	now := time.Unix(0, 0)
	components := replication.NewRegistry()
	events := event.NewRegistry(transport.NewChannels())
	require.NoError(t, setup(components, events))
	tr := transport.NewServer()
	tr.Start()
	s, err := server.New(cfg, components, events, tr, server.WithClock(func() time.Time {
		return now
	}))
	require.NoError(t, err)

	require.NoError(t, s.Update(t.Context()))
	assert.Equal(t, tick.Tick(0), s.Tick())

	now = now.Add(50 * time.Millisecond)
	require.NoError(t, s.Update(t.Context()))
	assert.Equal(t, tick.Tick(0), s.Tick())

	now = now.Add(50 * time.Millisecond)
	require.NoError(t, s.Update(t.Context()))
	assert.Equal(t, tick.Tick(1), s.Tick())
}

func TestUpdateRequiresRunningTransport(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	s.Transport.Stop()
	assert.ErrorIs(t, s.Server.Update(t.Context()), server.ErrNotRunning)
}

func TestProtocolCheckAuthorizes(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	c := testapp.NewClient(t, config.Test(), setup)
	assert.Equal(t, s.Protocol(), c.Protocol())

	id := testapp.Connect(t, s, c)
	assert.True(t, s.IsAuthorized(id))

	updateTick, synced := c.UpdateTick()
	assert.True(t, synced)
	assert.Equal(t, s.Tick(), updateTick)
}

func TestProtocolMismatchDisconnects(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	c := testapp.NewClient(t, config.Test(), func(components *replication.Registry, events *event.Registry) error {
		if err := setup(components, events); err != nil {
			return err
		}
		_, err := event.AddClientEvent[chat](events, transport.Ordered)
		return err
	})
	require.NotEqual(t, s.Protocol(), c.Protocol())

	id := testapp.Connect(t, s, c)
	assert.False(t, s.IsAuthorized(id))
	assert.False(t, s.Transport.Connected(id))
	assert.Empty(t, s.Clients())

	_, synced := c.UpdateTick()
	assert.False(t, synced)
}

func TestAuthNone(t *testing.T) {
	cfg := config.Test()
	cfg.Auth = config.AuthNone
	s := testapp.NewServer(t, cfg, setup)
	c := testapp.NewClient(t, cfg, setup)

	id := transport.Connect(s.Transport, c.Transport)
	s.Update(t)
	assert.True(t, s.IsAuthorized(id))
}

func TestAuthCustom(t *testing.T) {
	cfg := config.Test()
	cfg.Auth = config.AuthCustom
	s := testapp.NewServer(t, cfg, setup)
	c := testapp.NewClient(t, cfg, setup)

	e := s.Spawn(t, position{X: 1})
	id := testapp.Connect(t, s, c)
	assert.False(t, s.IsAuthorized(id))
	assert.Zero(t, c.World.Len())

	require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{Text: "early"}}))
	require.NoError(t, client.SendEvent(c.Client, input{Keys: 1}))
	testapp.Cycle(t, s, c)
	assert.Empty(t, server.ClientEvents[input](s.Server), "events from unauthorized clients are ignored")
	assert.Empty(t, client.Events[chat](c.Client), "events are held until replication starts")

	require.NoError(t, s.Authorize(id))
	testapp.Cycle(t, s, c)

	replica, ok := c.Entities().ToClient(e)
	require.True(t, ok)
	pos, ok := memworld.Get[position](c.World, replica)
	require.True(t, ok)
	assert.Equal(t, position{X: 1}, pos)

	_, ok = s.UpdateTick(id)
	assert.True(t, ok)
}

func TestAuthorizeUnknownClient(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	assert.ErrorIs(t, s.Authorize(transport.ClientID{1}), server.ErrUnknownClient)
}

func TestSendModes(t *testing.T) {
	cases := []struct {
		name   string
		mode   func(client transport.ClientID) event.SendMode
		local  int
		remote int
	}{
		{"broadcast", func(transport.ClientID) event.SendMode { return event.Broadcast() }, 1, 1},
		{"direct server", func(transport.ClientID) event.SendMode { return event.Direct(event.Server) }, 1, 0},
		{"direct client", event.Direct, 0, 1},
		{"except server", func(transport.ClientID) event.SendMode { return event.BroadcastExcept(event.Server) }, 0, 1},
		{"except client", event.BroadcastExcept, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := testapp.NewServer(t, config.Test(), setup)
			c := testapp.NewClient(t, config.Test(), setup)
			id := testapp.Connect(t, s, c)

			mode := tc.mode(id)
			require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: mode, Event: chat{Text: "hi"}}))
			require.NoError(t, server.Trigger(s.Server, event.ToClients[explode]{Mode: mode, Event: explode{Radius: 2}}))
			testapp.Cycle(t, s, c)

			assert.Len(t, server.LocalEvents[chat](s.Server), tc.local)
			assert.Len(t, client.Events[chat](c.Client), tc.remote)

			var local, remote memworld.Observer
			assert.Equal(t, tc.local, s.DrainTriggers(&local))
			assert.Equal(t, tc.remote, c.DrainTriggers(&remote))
		})
	}
}

func TestLocalResendOnceWithManyClients(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	a := testapp.NewClient(t, config.Test(), setup)
	b := testapp.NewClient(t, config.Test(), setup)
	testapp.Connect(t, s, a)
	testapp.Connect(t, s, b)

	require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{Text: "hi"}}))
	testapp.Cycle(t, s, a, b)

	assert.Equal(t, []chat{{Text: "hi"}}, server.LocalEvents[chat](s.Server))
	assert.Len(t, client.Events[chat](a.Client), 1)
	assert.Len(t, client.Events[chat](b.Client), 1)
}

func TestEventsBufferedUntilTick(t *testing.T) {
	cfg := config.Test()
	cfg.TickPolicy = config.TickManual
	s := testapp.NewServer(t, cfg, setup)
	c := testapp.NewClient(t, cfg, setup)

	id := transport.Connect(s.Transport, c.Transport)
	c.Update(t)
	testapp.Exchange(s, c)
	require.NoError(t, s.IncrementTick())
	testapp.Cycle(t, s, c)
	require.True(t, s.IsAuthorized(id))

	require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{Text: "wait"}}))
	testapp.Cycle(t, s, c)
	assert.Empty(t, client.Events[chat](c.Client), "no tick, no send")

	require.NoError(t, s.IncrementTick())
	testapp.Cycle(t, s, c)
	assert.Equal(t, []chat{{Text: "wait"}}, client.Events[chat](c.Client))
}

func TestUnregisteredEvent(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	err := server.SendEvent(s.Server, event.ToClients[position]{Mode: event.Broadcast()})
	assert.ErrorIs(t, err, event.ErrNotRegistered)
}

func TestClientEvents(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	c := testapp.NewClient(t, config.Test(), setup)
	id := testapp.Connect(t, s, c)

	require.NoError(t, client.SendEvent(c.Client, input{Keys: 3}))
	require.NoError(t, server.EmitClientEvent(s.Server, input{Keys: 4}))
	testapp.Cycle(t, s, c)

	events := server.ClientEvents[input](s.Server)
	require.Len(t, events, 2)
	assert.Equal(t, event.FromClient[input]{Client: event.Server, Event: input{Keys: 4}}, events[0])
	assert.Equal(t, event.FromClient[input]{Client: id, Event: input{Keys: 3}}, events[1])
}

func TestDisconnectForgetsClient(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	c := testapp.NewClient(t, config.Test(), setup)
	id := testapp.Connect(t, s, c)

	s.Disconnect(id)
	assert.False(t, s.IsAuthorized(id))
	_, ok := s.UpdateTick(id)
	assert.False(t, ok)
}
