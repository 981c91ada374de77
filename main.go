package main

import (
	"context"
	"fmt"
	"log"

	"github.com/sanity-io/litter"

	"github.com/kevinxiao27/tickwire/client"
	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/internal/arena"
	"github.com/kevinxiao27/tickwire/internal/memworld"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/server"
	"github.com/kevinxiao27/tickwire/transport"
)

func registries() (*replication.Registry, *event.Registry) {
	components := replication.NewRegistry()
	events := event.NewRegistry(transport.NewChannels())
	if err := arena.Setup(components, events); err != nil {
		log.Fatal(err)
	}
	return components, events
}

func main() {
	ctx := context.Background()
	cfg := config.Test()

	components, events := registries()
	st := transport.NewServer()
	st.Start()
	s, err := server.New(cfg, components, events, st)
	if err != nil {
		log.Fatal(err)
	}
	sim := arena.NewSim(s, memworld.New().SpawnEmpty)
	if _, err := sim.AddBody(arena.Position{X: 1, Y: 1}, arena.Velocity{DX: 2, DY: 3}); err != nil {
		log.Fatal(err)
	}
	if _, err := sim.AddBody(arena.Position{X: 90, Y: 40}, arena.Velocity{DX: 5, DY: -1}); err != nil {
		log.Fatal(err)
	}

	components, events = registries()
	ct := transport.NewClient()
	world := memworld.New()
	c, err := client.New(cfg, components, events, ct, world)
	if err != nil {
		log.Fatal(err)
	}
	transport.Connect(st, ct)

	var fired memworld.Observer
	for range 30 {
		if err := c.Update(ctx); err != nil {
			log.Fatal(err)
		}
		transport.Exchange(st, []*transport.Client{ct})
		if err := s.Update(ctx); err != nil {
			log.Fatal(err)
		}
		if err := sim.Step(); err != nil {
			log.Fatal(err)
		}
		transport.Exchange(st, []*transport.Client{ct})
		c.DrainTriggers(&fired)
	}

	litter.Config.HidePrivateFields = false
	tick, _ := c.UpdateTick()
	fmt.Printf("server tick %d, replica tick %d, energy %d\n", s.Tick(), tick, sim.Energy())
	for _, e := range sim.Bodies() {
		replica, _ := c.Entities().ToClient(e)
		want, _ := server.Component[arena.Position](s, e)
		got, _ := memworld.Get[arena.Position](world, replica)
		fmt.Printf("%s -> %s: server %+v replica %+v\n", e, replica, want, got)
	}
	fmt.Println("announcements:", litter.Sdump(client.Events[arena.Announcement](c)))
	fmt.Println("bursts:", litter.Sdump(fired.Fired))
}
