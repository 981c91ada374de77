package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/sanity-io/litter"

	"github.com/kevinxiao27/tickwire/client"
	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/internal/arena"
	"github.com/kevinxiao27/tickwire/internal/memworld"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/transport/ws"
)

type printer struct{}

func (printer) Trigger(ev any, targets []entity.Entity) {
	slog.Info("tickwire: trigger", "event", litter.Sdump(ev), "targets", len(targets))
}

func main() {
	cfg := config.Default()
	url := flag.String("url", "ws://localhost:7777/ws", "server websocket url")
	push := flag.Bool("push", false, "push the first replicated body every second")
	flag.Parse()

	components := replication.NewRegistry()
	events := event.NewRegistry(transport.NewChannels())
	if err := arena.Setup(components, events); err != nil {
		log.Fatalf("setup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t := transport.NewClient()
	conn, err := ws.Dial(ctx, *url, t, cfg.WritePeriod)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	world := memworld.New()
	session, err := client.New(cfg, components, events, t, world)
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	frame := time.NewTicker(time.Second / time.Duration(cfg.TickRate))
	defer frame.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-frame.C:
			if err := conn.Pump(); err != nil {
				log.Fatal(err)
			}
			if err := session.Update(ctx); err != nil {
				log.Fatal(err)
			}
			for _, a := range client.Events[arena.Announcement](session) {
				slog.Info("tickwire: announcement", "bodies", a.Bodies, "text", a.Text)
			}
			session.DrainTriggers(printer{})
		case <-report.C:
			tick, _ := session.UpdateTick()
			slog.Info("tickwire: replica", "tick", tick, "entities", world.Len(), "degraded", session.Degraded())
			if !*push {
				continue
			}
			entities := world.Entities()
			if len(entities) == 0 {
				continue
			}
			ev := arena.Push{Body: entities[0], Velocity: arena.Velocity{DX: 1, DY: 1}}
			if err := client.SendEvent(session, ev); err != nil {
				slog.Warn("tickwire: push failed", "error", err)
			}
		}
	}
}
