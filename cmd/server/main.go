package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/internal/arena"
	"github.com/kevinxiao27/tickwire/internal/memworld"
	"github.com/kevinxiao27/tickwire/protocol"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/server"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/transport/ws"
)

func main() {
	cfg := config.Default()
	flag.StringVar(&cfg.ListenAddress, "addr", cfg.ListenAddress, "listen address")
	flag.IntVar(&cfg.TickRate, "tick-rate", cfg.TickRate, "server ticks per second")
	bodies := flag.Int("bodies", 8, "bodies spawned at startup")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	components := replication.NewRegistry()
	events := event.NewRegistry(transport.NewChannels())
	if err := arena.Setup(components, events); err != nil {
		log.Fatalf("setup: %v", err)
	}
	manifest := protocol.BuildManifest(components, events)

	t := transport.NewServer()
	t.Start()
	session, err := server.New(cfg, components, events, t)
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	world := memworld.New()
	sim := arena.NewSim(session, world.SpawnEmpty)
	for i := range *bodies {
		pos := arena.Position{X: (i * 13) % arena.Size, Y: (i * 29) % arena.Size}
		vel := arena.Velocity{DX: i%3 + 1, DY: 2 - i%4}
		if _, err := sim.AddBody(pos, vel); err != nil {
			log.Fatalf("spawn: %v", err)
		}
	}

	sockets := ws.NewServer(t, cfg.WritePeriod)

	r := mux.NewRouter()
	r.Handle("/ws", sockets)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/manifest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manifest)
	}).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	srv := &http.Server{Addr: cfg.ListenAddress, Handler: r}
	go func() {
		slog.Info("tickwire: listening", "addr", cfg.ListenAddress, "protocol", session.Protocol())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The session is only touched from this loop.
	frame := time.NewTicker(time.Second / time.Duration(2*cfg.TickRate))
	defer frame.Stop()
	lastTick := session.Tick()
	for {
		select {
		case <-ctx.Done():
			sockets.Close()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			srv.Shutdown(shutdown)
			cancel()
			return
		case <-frame.C:
			sockets.Pump()
			if err := session.Update(ctx); err != nil {
				slog.Error("tickwire: update failed", "error", err)
				continue
			}
			if session.Tick() != lastTick {
				lastTick = session.Tick()
				if err := sim.Step(); err != nil {
					slog.Error("tickwire: step failed", "error", err)
				}
			}
			sockets.Pump()
		}
	}
}
