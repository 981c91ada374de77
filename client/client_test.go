package client_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/tickwire/client"
	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/internal/memworld"
	"github.com/kevinxiao27/tickwire/internal/testapp"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/server"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/wire"
)

type position struct {
	X, Y int
}

type health struct {
	HP int
}

type owner struct {
	Target entity.Entity
}

func (o *owner) MapEntities(m entity.Mapper) {
	o.Target = m.MapEntity(o.Target)
}

type chat struct {
	Text string
}

type follow struct {
	Target entity.Entity
}

func (f *follow) MapEntities(m entity.Mapper) {
	f.Target = m.MapEntity(f.Target)
}

type explode struct {
	Radius int
}

func setup(components *replication.Registry, events *event.Registry) error {
	if _, err := replication.Replicate[position](components); err != nil {
		return err
	}
	if _, err := replication.Replicate[health](components); err != nil {
		return err
	}
	if _, err := replication.ReplicateMapped[owner](components); err != nil {
		return err
	}
	if _, err := event.AddServerEvent[chat](events, transport.Ordered); err != nil {
		return err
	}
	if _, err := event.AddMappedServerEvent[follow](events, transport.Ordered); err != nil {
		return err
	}
	if _, err := event.AddServerTrigger[explode](events, transport.Ordered); err != nil {
		return err
	}
	_, err := event.AddMappedClientEvent[follow](events, transport.Ordered)
	return err
}

func connected(t *testing.T, cfg *config.Config) (*testapp.Server, *testapp.Client, transport.ClientID) {
	t.Helper()
	s := testapp.NewServer(t, cfg, setup)
	c := testapp.NewClient(t, cfg, setup)
	id := testapp.Connect(t, s, c)
	return s, c, id
}

func replica(t *testing.T, c *testapp.Client, server entity.Entity) entity.Entity {
	t.Helper()
	e, ok := c.Entities().ToClient(server)
	require.True(t, ok, "server entity %s is not mapped", server)
	return e
}

func TestInsertion(t *testing.T) {
	s, c, _ := connected(t, config.Test())

	e := s.Spawn(t, position{X: 1, Y: 2}, health{HP: 10})
	testapp.Cycle(t, s, c)

	ce := replica(t, c, e)
	pos, ok := memworld.Get[position](c.World, ce)
	require.True(t, ok)
	assert.Equal(t, position{X: 1, Y: 2}, pos)
	hp, ok := memworld.Get[health](c.World, ce)
	require.True(t, ok)
	assert.Equal(t, health{HP: 10}, hp)

	assert.Equal(t, []replication.EntityReplicated{{Entity: ce, Tick: s.Tick()}}, c.Replicated())
	assert.Empty(t, c.Replicated())
}

func TestInsertAfterReplication(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	e := s.Spawn(t, position{X: 1})
	testapp.Cycle(t, s, c)

	require.NoError(t, s.Insert(e, health{HP: 3}))
	testapp.Cycle(t, s, c)

	hp, ok := memworld.Get[health](c.World, replica(t, c, e))
	require.True(t, ok)
	assert.Equal(t, health{HP: 3}, hp)
}

func TestMappedComponent(t *testing.T) {
	s, c, _ := connected(t, config.Test())

	target := s.Spawn(t, position{})
	e := s.Spawn(t, owner{Target: target})
	testapp.Cycle(t, s, c)

	o, ok := memworld.Get[owner](c.World, replica(t, c, e))
	require.True(t, ok)
	assert.Equal(t, replica(t, c, target), o.Target)
}

func TestMappedComponentToUnknownEntity(t *testing.T) {
	s, c, _ := connected(t, config.Test())

	hidden := s.World.SpawnEmpty()
	e := s.Spawn(t, owner{Target: hidden})
	testapp.Cycle(t, s, c)

	o, ok := memworld.Get[owner](c.World, replica(t, c, e))
	require.True(t, ok)
	assert.Equal(t, replica(t, c, hidden), o.Target, "placeholder allocated for the unknown target")
	assert.True(t, c.World.Alive(o.Target))
	assert.Equal(t, 2, c.World.Len())
}

type mirrored struct {
	X int
}

func TestCommandFns(t *testing.T) {
	commands := func(components *replication.Registry, events *event.Registry) error {
		if err := setup(components, events); err != nil {
			return err
		}
		return replication.SetCommandFns[position](components,
			func(_ *replication.WriteCtx, e *replication.DeferredEntity, value position) {
				e.Insert(mirrored{X: value.X})
			},
			func(_ *replication.WriteCtx, e *replication.DeferredEntity, _ reflect.Type) {
				e.Remove(reflect.TypeOf(mirrored{}))
			})
	}
	s := testapp.NewServer(t, config.Test(), commands)
	c := testapp.NewClient(t, config.Test(), commands)
	testapp.Connect(t, s, c)

	e := s.Spawn(t, position{X: 7})
	testapp.Cycle(t, s, c)

	ce := replica(t, c, e)
	assert.False(t, memworld.Has[position](c.World, ce))
	m, ok := memworld.Get[mirrored](c.World, ce)
	require.True(t, ok)
	assert.Equal(t, mirrored{X: 7}, m)

	require.NoError(t, server.RemoveComponent[position](s.Server, e))
	testapp.Cycle(t, s, c)
	assert.False(t, memworld.Has[mirrored](c.World, ce))
}

type predictedMarker struct{}

type interpolatedMarker struct{}

type predictedPosition struct {
	X, Y int
}

type interpolatedPosition struct {
	X, Y int
}

func markers(components *replication.Registry, events *event.Registry) error {
	if err := setup(components, events); err != nil {
		return err
	}
	if err := replication.RegisterMarker[predictedMarker](components, 0); err != nil {
		return err
	}
	if err := replication.RegisterMarker[interpolatedMarker](components, 1); err != nil {
		return err
	}
	if err := replication.SetMarkerFns[predictedMarker, position](components,
		func(_ *replication.WriteCtx, e *replication.DeferredEntity, value position) {
			e.Insert(predictedPosition(value))
		},
		func(_ *replication.WriteCtx, e *replication.DeferredEntity, _ reflect.Type) {
			e.Remove(reflect.TypeOf(predictedPosition{}))
		}); err != nil {
		return err
	}
	return replication.SetMarkerFns[interpolatedMarker, position](components,
		func(_ *replication.WriteCtx, e *replication.DeferredEntity, value position) {
			e.Insert(interpolatedPosition(value))
		}, nil)
}

func TestMarkerFns(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), markers)
	c := testapp.NewClient(t, config.Test(), markers)
	id := testapp.Connect(t, s, c)

	predicted := c.World.Spawn(predictedMarker{})
	e := s.Spawn(t, position{X: 1, Y: 2})
	require.NoError(t, s.MapEntity(id, e, predicted))
	plain := s.Spawn(t, position{X: 3})
	testapp.Cycle(t, s, c)

	assert.False(t, memworld.Has[position](c.World, predicted))
	p, ok := memworld.Get[predictedPosition](c.World, predicted)
	require.True(t, ok)
	assert.Equal(t, predictedPosition{X: 1, Y: 2}, p)
	assert.True(t, memworld.Has[position](c.World, replica(t, c, plain)), "unmarked entities use the command fns")

	require.NoError(t, server.RemoveComponent[position](s.Server, e))
	testapp.Cycle(t, s, c)
	assert.False(t, memworld.Has[predictedPosition](c.World, predicted))
}

func TestMarkerWithHigherPriorityWins(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), markers)
	c := testapp.NewClient(t, config.Test(), markers)
	id := testapp.Connect(t, s, c)

	both := c.World.Spawn(predictedMarker{}, interpolatedMarker{})
	e := s.Spawn(t, position{X: 5})
	require.NoError(t, s.MapEntity(id, e, both))
	testapp.Cycle(t, s, c)

	assert.False(t, memworld.Has[predictedPosition](c.World, both))
	p, ok := memworld.Get[interpolatedPosition](c.World, both)
	require.True(t, ok)
	assert.Equal(t, interpolatedPosition{X: 5}, p)

	// The winning marker has no remove fn, so the command fn runs and
	// leaves the interpolated copy in place.
	require.NoError(t, server.RemoveComponent[position](s.Server, e))
	testapp.Cycle(t, s, c)
	assert.True(t, memworld.Has[interpolatedPosition](c.World, both))
}

type armor struct {
	Plates int
}

type shield struct {
	Charge int
}

func bundled(components *replication.Registry, events *event.Registry) error {
	if err := setup(components, events); err != nil {
		return err
	}
	a, err := replication.Register(components, replication.DefaultRuleFns[armor]())
	if err != nil {
		return err
	}
	b, err := replication.Register(components, replication.DefaultRuleFns[shield]())
	if err != nil {
		return err
	}
	return replication.ReplicateBundle(components, a, b)
}

func TestBundleNeedsEveryComponent(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), bundled)
	c := testapp.NewClient(t, config.Test(), bundled)
	testapp.Connect(t, s, c)

	e := s.Spawn(t, armor{Plates: 2}, position{X: 1})
	testapp.Cycle(t, s, c)

	ce := replica(t, c, e)
	assert.True(t, memworld.Has[position](c.World, ce))
	assert.False(t, memworld.Has[armor](c.World, ce), "armor alone is not replicated")

	require.NoError(t, s.Insert(e, shield{Charge: 9}))
	testapp.Cycle(t, s, c)
	a, ok := memworld.Get[armor](c.World, ce)
	require.True(t, ok)
	assert.Equal(t, armor{Plates: 2}, a)
	sh, ok := memworld.Get[shield](c.World, ce)
	require.True(t, ok)
	assert.Equal(t, shield{Charge: 9}, sh)

	require.NoError(t, server.RemoveComponent[shield](s.Server, e))
	testapp.Cycle(t, s, c)
	assert.False(t, memworld.Has[armor](c.World, ce), "breaking the bundle removes the rest")
	assert.False(t, memworld.Has[shield](c.World, ce))
	assert.True(t, memworld.Has[position](c.World, ce))
}

func TestBundleMutationsWaitForBundle(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), bundled)
	c := testapp.NewClient(t, config.Test(), bundled)
	testapp.Connect(t, s, c)

	e := s.Spawn(t, armor{Plates: 1})
	testapp.Cycle(t, s, c)
	require.NoError(t, s.Mutate(e, armor{Plates: 4}))
	testapp.Cycle(t, s, c)

	assert.False(t, memworld.Has[armor](c.World, replica(t, c, e)))
}

func TestRemoval(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	e := s.Spawn(t, position{X: 1}, health{HP: 1})
	testapp.Cycle(t, s, c)

	require.NoError(t, server.RemoveComponent[health](s.Server, e))
	testapp.Cycle(t, s, c)

	ce := replica(t, c, e)
	assert.True(t, memworld.Has[position](c.World, ce))
	assert.False(t, memworld.Has[health](c.World, ce))
}

func TestDespawn(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	e := s.Spawn(t, position{X: 1})
	testapp.Cycle(t, s, c)
	ce := replica(t, c, e)

	s.Despawn(e)
	s.World.Despawn(e)
	testapp.Cycle(t, s, c)

	assert.False(t, c.World.Alive(ce))
	assert.Zero(t, c.Entities().Len())
	_, ok := c.History(ce)
	assert.False(t, ok)
}

func TestPreSpawnedEntity(t *testing.T) {
	s, c, id := connected(t, config.Test())

	predicted := c.World.SpawnEmpty()
	e := s.Spawn(t, position{X: 4})
	require.NoError(t, s.MapEntity(id, e, predicted))
	testapp.Cycle(t, s, c)

	assert.Equal(t, predicted, replica(t, c, e))
	assert.Equal(t, 1, c.World.Len())
	pos, ok := memworld.Get[position](c.World, predicted)
	require.True(t, ok)
	assert.Equal(t, position{X: 4}, pos)
}

func TestMutationAcknowledged(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	e := s.Spawn(t, position{X: 1})
	testapp.Cycle(t, s, c)

	require.NoError(t, s.Mutate(e, position{X: 2}))
	testapp.Cycle(t, s, c)

	ce := replica(t, c, e)
	pos, _ := memworld.Get[position](c.World, ce)
	assert.Equal(t, position{X: 2}, pos)
	h, ok := c.History(ce)
	require.True(t, ok)
	assert.True(t, h.Contains(s.Tick()))

	// The ack reaches the server on this update, so nothing is resent.
	testapp.Exchange(s, c)
	s.Update(t)
	for _, m := range s.Transport.DrainSent() {
		assert.NotEqual(t, transport.ServerMutations, m.Channel)
	}
}

func TestDroppedMutationResent(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	e := s.Spawn(t, position{X: 1})
	testapp.Cycle(t, s, c)
	ce := replica(t, c, e)

	require.NoError(t, s.Mutate(e, position{X: 2}))
	s.Update(t)
	testapp.ExchangeWith(s, []*testapp.Client{c}, []transport.ExchangeOption{
		transport.DropServerChannel(transport.ServerMutations),
	})
	c.Update(t)
	pos, _ := memworld.Get[position](c.World, ce)
	assert.Equal(t, position{X: 1}, pos)

	testapp.Cycle(t, s, c)
	pos, _ = memworld.Get[position](c.World, ce)
	assert.Equal(t, position{X: 2}, pos)
}

func TestStaleMutationOnlyConfirms(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	e := s.Spawn(t, position{X: 1})
	testapp.Cycle(t, s, c)
	ce := replica(t, c, e)

	require.NoError(t, s.Mutate(e, position{X: 2}))
	s.Update(t)
	mutationTick := s.Tick()
	testapp.Exchange(s, c)
	held := c.Transport.Receive(transport.ServerMutations)
	require.Len(t, held, 1)
	c.Update(t)
	testapp.Exchange(s, c)

	require.NoError(t, s.Insert(e, position{X: 3}))
	testapp.Cycle(t, s, c)

	for _, payload := range held {
		c.Transport.Inject(transport.ServerMutations, payload)
	}
	c.Update(t)

	pos, _ := memworld.Get[position](c.World, ce)
	assert.Equal(t, position{X: 3}, pos, "older mutation must not overwrite newer state")
	h, ok := c.History(ce)
	require.True(t, ok)
	assert.True(t, h.Contains(mutationTick))
	assert.True(t, h.Contains(s.Tick()))
}

func TestEventHeldUntilUpdate(t *testing.T) {
	s, c, _ := connected(t, config.Test())

	s.Spawn(t, position{})
	require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{Text: "after spawn"}}))
	s.Update(t)
	testapp.Exchange(s, c)

	held := c.Transport.Receive(transport.ServerUpdates)
	require.Len(t, held, 1)
	c.Update(t)
	assert.Empty(t, client.Events[chat](c.Client))

	c.Transport.Inject(transport.ServerUpdates, held[0])
	c.Update(t)
	assert.Equal(t, []chat{{Text: "after spawn"}}, client.Events[chat](c.Client))
}

func TestHeldEventMappedAfterUpdate(t *testing.T) {
	s, c, id := connected(t, config.Test())

	predicted := c.World.SpawnEmpty()
	e := s.Spawn(t, position{X: 1})
	require.NoError(t, s.MapEntity(id, e, predicted))
	require.NoError(t, server.SendEvent(s.Server, event.ToClients[follow]{Mode: event.Broadcast(), Event: follow{Target: e}}))
	s.Update(t)
	testapp.Exchange(s, c)

	// The event arrives before the update that maps its target.
	held := c.Transport.Receive(transport.ServerUpdates)
	require.Len(t, held, 1)
	c.Update(t)
	assert.Empty(t, client.Events[follow](c.Client))
	assert.Equal(t, 1, c.World.Len(), "a held event allocates nothing")

	c.Transport.Inject(transport.ServerUpdates, held[0])
	c.Update(t)
	assert.Equal(t, []follow{{Target: predicted}}, client.Events[follow](c.Client))
	assert.Equal(t, 1, c.World.Len())
	assert.Equal(t, predicted, replica(t, c, e))
}

type flash struct {
	Color string
}

func TestHeldTriggersKeepArrivalOrderAcrossTypes(t *testing.T) {
	flashes := func(components *replication.Registry, events *event.Registry) error {
		if err := setup(components, events); err != nil {
			return err
		}
		_, err := event.AddServerTrigger[flash](events, transport.Ordered)
		return err
	}
	s := testapp.NewServer(t, config.Test(), flashes)
	c := testapp.NewClient(t, config.Test(), flashes)
	testapp.Connect(t, s, c)

	s.Spawn(t, position{})
	require.NoError(t, server.Trigger(s.Server, event.ToClients[flash]{Mode: event.Broadcast(), Event: flash{Color: "red"}}))
	s.Update(t)
	testapp.Exchange(s, c)
	held := c.Transport.Receive(transport.ServerUpdates)
	require.Len(t, held, 1)
	c.Update(t)

	// Registered before flash, but sent after it.
	require.NoError(t, server.Trigger(s.Server, event.ToClients[explode]{Mode: event.Broadcast(), Event: explode{Radius: 2}}))
	testapp.Cycle(t, s, c)

	var observer memworld.Observer
	require.Zero(t, c.DrainTriggers(&observer))

	c.Transport.Inject(transport.ServerUpdates, held[0])
	c.Update(t)
	require.Equal(t, 2, c.DrainTriggers(&observer))
	assert.Equal(t, flash{Color: "red"}, observer.Fired[0].Event)
	assert.Equal(t, explode{Radius: 2}, observer.Fired[1].Event)
}

func TestProtocolHashSentOncePerConnection(t *testing.T) {
	c := testapp.NewClient(t, config.Test(), setup)
	announced := func() int {
		n := 0
		for _, m := range c.Transport.DrainSent() {
			if m.Channel == transport.ClientControl {
				n++
			}
		}
		return n
	}

	c.Update(t)
	assert.Zero(t, announced(), "nothing is sent before connecting")

	c.Transport.SetConnected(transport.ClientID{1})
	c.Update(t)
	c.Update(t)
	assert.Equal(t, 1, announced())

	c.Transport.SetDisconnected()
	c.Update(t)
	c.Transport.SetConnected(transport.ClientID{2})
	c.Update(t)
	assert.Equal(t, 1, announced(), "a new connection announces again")
}

func TestIndependentEventNotHeld(t *testing.T) {
	independent := func(components *replication.Registry, events *event.Registry) error {
		if err := setup(components, events); err != nil {
			return err
		}
		return event.MakeIndependent[chat](events)
	}
	s := testapp.NewServer(t, config.Test(), independent)
	c := testapp.NewClient(t, config.Test(), independent)
	testapp.Connect(t, s, c)

	s.Spawn(t, position{})
	require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{Text: "now"}}))
	s.Update(t)
	testapp.Exchange(s, c)

	c.Transport.Receive(transport.ServerUpdates)
	c.Update(t)
	assert.Equal(t, []chat{{Text: "now"}}, client.Events[chat](c.Client))
}

func TestEventsBeforeReplicationStarted(t *testing.T) {
	independent := func(components *replication.Registry, events *event.Registry) error {
		if err := setup(components, events); err != nil {
			return err
		}
		return event.MakeIndependent[explode](events)
	}
	cfg := config.Test()
	cfg.Auth = config.AuthCustom
	s := testapp.NewServer(t, cfg, independent)
	c := testapp.NewClient(t, cfg, independent)
	id := testapp.Connect(t, s, c)

	require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{Text: "held"}}))
	require.NoError(t, server.Trigger(s.Server, event.ToClients[explode]{Mode: event.Broadcast(), Event: explode{Radius: 1}}))
	testapp.Cycle(t, s, c)

	var observer memworld.Observer
	assert.Empty(t, client.Events[chat](c.Client))
	assert.Equal(t, 1, c.DrainTriggers(&observer), "independent triggers skip the wait")

	require.NoError(t, s.Authorize(id))
	testapp.Cycle(t, s, c)
	assert.Equal(t, []chat{{Text: "held"}}, client.Events[chat](c.Client))
}

func TestDifferentUpdateTicks(t *testing.T) {
	s := testapp.NewServer(t, config.Test(), setup)
	a := testapp.NewClient(t, config.Test(), setup)
	b := testapp.NewClient(t, config.Test(), setup)

	testapp.Connect(t, s, a)
	s.Spawn(t, position{})
	testapp.Cycle(t, s, a)
	testapp.Connect(t, s, b)
	testapp.Cycle(t, s, a, b)

	tickA, _ := a.UpdateTick()
	tickB, _ := b.UpdateTick()
	require.NotEqual(t, tickA, tickB)

	require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{Text: "both"}}))
	testapp.Cycle(t, s, a, b)

	assert.Equal(t, []chat{{Text: "both"}}, client.Events[chat](a.Client))
	assert.Equal(t, []chat{{Text: "both"}}, client.Events[chat](b.Client))
}

func TestMappedServerEvent(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	e := s.Spawn(t, position{})
	testapp.Cycle(t, s, c)

	require.NoError(t, server.SendEvent(s.Server, event.ToClients[follow]{Mode: event.Broadcast(), Event: follow{Target: e}}))
	testapp.Cycle(t, s, c)

	assert.Equal(t, []follow{{Target: replica(t, c, e)}}, client.Events[follow](c.Client))
}

func TestTriggerFiresOnceWithAllTargets(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	a := s.Spawn(t, position{X: 1})
	b := s.Spawn(t, position{X: 2})
	testapp.Cycle(t, s, c)

	require.NoError(t, server.Trigger(s.Server, event.ToClients[explode]{Mode: event.Broadcast(), Event: explode{Radius: 5}}, a, b))
	testapp.Cycle(t, s, c)

	var observer memworld.Observer
	require.Equal(t, 1, c.DrainTriggers(&observer))
	assert.Equal(t, []memworld.Fired{{
		Event:   explode{Radius: 5},
		Targets: []entity.Entity{replica(t, c, a), replica(t, c, b)},
	}}, observer.Fired)
}

func TestMappedClientEvent(t *testing.T) {
	s, c, id := connected(t, config.Test())
	e := s.Spawn(t, position{})
	testapp.Cycle(t, s, c)

	require.NoError(t, client.SendEvent(c.Client, follow{Target: replica(t, c, e)}))
	testapp.Cycle(t, s, c)

	assert.Equal(t, []event.FromClient[follow]{{Client: id, Event: follow{Target: e}}}, server.ClientEvents[follow](s.Server))
}

func TestSendEventNotConnected(t *testing.T) {
	c := testapp.NewClient(t, config.Test(), setup)
	assert.ErrorIs(t, client.SendEvent(c.Client, follow{}), client.ErrNotConnected)
	assert.ErrorIs(t, client.SendEvent(c.Client, position{}), event.ErrNotRegistered)
}

func TestResetOnDisconnect(t *testing.T) {
	s, c, _ := connected(t, config.Test())
	s.Spawn(t, position{})
	testapp.Cycle(t, s, c)
	require.Equal(t, 1, c.Entities().Len())

	transport.Disconnect(s.Transport, c.Transport)
	c.Update(t)

	assert.Zero(t, c.Entities().Len())
	_, synced := c.UpdateTick()
	assert.False(t, synced)
	assert.Equal(t, 1, c.World.Len(), "host entities are left to the application")
}

func TestCorruptUpdateRollsBack(t *testing.T) {
	c := testapp.NewClient(t, config.Test(), setup)
	c.Transport.SetConnected(transport.ClientID{1})

	b := wire.NewBuffer(0)
	_, err := b.WriteU8(replication.SectionChanges)
	require.NoError(t, err)
	_, err = b.WriteTick(1)
	require.NoError(t, err)
	_, err = b.WriteUvarint(1)
	require.NoError(t, err)
	_, err = b.WriteEntity(entity.Entity{Index: 5})
	require.NoError(t, err)
	_, err = b.WriteUvarint(1)
	require.NoError(t, err)
	_, err = b.WriteUvarint(99)
	require.NoError(t, err)

	c.Transport.Inject(transport.ServerUpdates, b.Bytes())
	c.Update(t)

	assert.Zero(t, c.World.Len(), "placeholder spawned while decoding is despawned")
	assert.Zero(t, c.Entities().Len())
	_, synced := c.UpdateTick()
	assert.False(t, synced)
}

func TestDegradedQueue(t *testing.T) {
	cfg := config.Test()
	cfg.Auth = config.AuthCustom
	cfg.MaxPendingEnvelopes = 1
	s := testapp.NewServer(t, cfg, setup)
	c := testapp.NewClient(t, cfg, setup)
	id := testapp.Connect(t, s, c)

	for range 3 {
		require.NoError(t, server.SendEvent(s.Server, event.ToClients[chat]{Mode: event.Broadcast(), Event: chat{}}))
	}
	testapp.Cycle(t, s, c)
	assert.True(t, c.Degraded())

	require.NoError(t, s.Authorize(id))
	testapp.Cycle(t, s, c)
	assert.False(t, c.Degraded())
	assert.Len(t, client.Events[chat](c.Client), 3, "nothing is discarded")
}
