// Package server is the authoritative replication session. It mirrors the
// replicated state the host reports, decides what each client is missing
// and buffers server events until the replication message they depend on
// has been sent.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kevinxiao27/tickwire/config"
	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/metrics"
	"github.com/kevinxiao27/tickwire/protocol"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/tick"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/wire"
)

var (
	ErrUnknownEntity  = errors.New("server: entity is not replicated")
	ErrNotReplicated  = errors.New("server: component type is not registered")
	ErrUnknownClient  = errors.New("server: client is not connected")
	ErrNotRunning     = errors.New("server: transport is not running")
	ErrNotTickManaged = errors.New("server: tick is advanced by the tick policy")
)

type Server struct {
	cfg        *config.Config
	components *replication.Registry
	events     *event.Registry
	transport  *transport.Server
	hash       protocol.Hash
	tracer     trace.Tracer
	now        func() time.Time

	tick     tick.Tick
	lastSent tick.Tick
	lastTick time.Time

	entities   map[entity.Entity]*entityState
	clients    map[transport.ClientID]*clientState
	authorized mapset.Set[transport.ClientID]
	generation uint64

	buffered     []bufferedEvent
	shared       *wire.Buffer
	local        *event.Streams
	clientEvents *event.Streams
	triggers     event.Triggers
}

type Option func(*Server)

// WithClock replaces time.Now for the max-rate tick policy.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New freezes both registries; they must be complete by now.
func New(cfg *config.Config, components *replication.Registry, events *event.Registry, t *transport.Server, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	components.Freeze()
	events.Freeze()

	s := &Server{
		cfg:          cfg,
		components:   components,
		events:       events,
		transport:    t,
		hash:         protocol.Compute(components, events),
		tracer:       otel.Tracer("tickwire/server"),
		now:          time.Now,
		entities:     make(map[entity.Entity]*entityState),
		clients:      make(map[transport.ClientID]*clientState),
		authorized:   mapset.NewThreadUnsafeSet[transport.ClientID](),
		shared:       wire.NewBuffer(0),
		local:        event.NewStreams(),
		clientEvents: event.NewStreams(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastTick = s.now()
	slog.Info("tickwire: server session created",
		"policy", cfg.TickPolicy, "auth", cfg.Auth, "protocol", s.hash,
		"components", components.Len(), "events", len(events.All()))
	return s, nil
}

func (s *Server) Tick() tick.Tick {
	return s.tick
}

func (s *Server) Protocol() protocol.Hash {
	return s.hash
}

// IncrementTick advances the tick under the manual policy.
func (s *Server) IncrementTick() error {
	if s.cfg.TickPolicy != config.TickManual {
		return ErrNotTickManaged
	}
	s.tick = s.tick.Increment()
	metrics.ServerTick.Set(float64(s.tick))
	return nil
}

func (s *Server) advanceTick() {
	switch s.cfg.TickPolicy {
	case config.TickEveryFrame:
		s.tick = s.tick.Increment()
	case config.TickMaxRate:
		now := s.now()
		if now.Sub(s.lastTick) < time.Second/time.Duration(s.cfg.TickRate) {
			return
		}
		s.lastTick = now
		s.tick = s.tick.Increment()
	case config.TickManual:
		return
	}
	metrics.ServerTick.Set(float64(s.tick))
}

// Update runs one processing cycle: receive client input, advance the tick
// per policy and, if the tick moved, send replication and buffered events.
func (s *Server) Update(ctx context.Context) error {
	if !s.transport.Running() {
		return ErrNotRunning
	}
	ctx, span := s.tracer.Start(ctx, "tickwire.server.Update")
	defer span.End()

	s.receive(ctx)
	s.advanceTick()
	if s.tick == s.lastSent {
		return nil
	}

	s.sendReplication(ctx)
	s.flushEvents()
	s.lastSent = s.tick
	span.SetAttributes(attribute.Int64("tick", int64(s.tick)))
	return nil
}
