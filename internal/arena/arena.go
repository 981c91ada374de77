// Package arena is the small game both binaries replicate: bodies drift
// by their velocity, bounce off the walls and occasionally burst.
package arena

import (
	"log/slog"

	"github.com/kevinxiao27/tickwire/entity"
	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/server"
	"github.com/kevinxiao27/tickwire/transport"
	"github.com/kevinxiao27/tickwire/util"
)

const Size = 100

type Position struct {
	X, Y int
}

type Velocity struct {
	DX, DY int
}

// Tether binds a body to the one it orbits.
type Tether struct {
	Anchor entity.Entity
}

func (t *Tether) MapEntities(m entity.Mapper) {
	t.Anchor = m.MapEntity(t.Anchor)
}

// Announcement is broadcast whenever the body count changes.
type Announcement struct {
	Bodies int
	Text   string
}

// Burst is triggered on the bodies caught in it.
type Burst struct {
	Strength int
}

// Push is sent by clients to nudge a body.
type Push struct {
	Body entity.Entity
	Velocity
}

func (p *Push) MapEntities(m entity.Mapper) {
	p.Body = m.MapEntity(p.Body)
}

// Setup registers the arena protocol. Server and client must both run it.
func Setup(components *replication.Registry, events *event.Registry) error {
	if _, err := replication.Replicate[Position](components); err != nil {
		return err
	}
	if _, err := replication.Replicate[Velocity](components); err != nil {
		return err
	}
	if _, err := replication.ReplicateMapped[Tether](components); err != nil {
		return err
	}
	if _, err := event.AddServerEvent[Announcement](events, transport.Ordered); err != nil {
		return err
	}
	if _, err := event.AddServerTrigger[Burst](events, transport.Unordered); err != nil {
		return err
	}
	if _, err := event.AddMappedClientEvent[Push](events, transport.Ordered); err != nil {
		return err
	}
	return event.MakeIndependent[Burst](events)
}

// Sim drives a server session.
type Sim struct {
	s      *server.Server
	spawn  func() entity.Entity
	bodies []entity.Entity
	steps  int
}

// NewSim allocates bodies through spawn, which is the host's allocator.
func NewSim(s *server.Server, spawn func() entity.Entity) *Sim {
	return &Sim{s: s, spawn: spawn}
}

// AddBody spawns a body, tethered to the previous one if any.
func (a *Sim) AddBody(pos Position, vel Velocity) (entity.Entity, error) {
	e := a.spawn()
	components := []any{pos, vel}
	if len(a.bodies) > 0 {
		components = append(components, Tether{Anchor: a.bodies[len(a.bodies)-1]})
	}
	if err := a.s.Replicate(e, components...); err != nil {
		return entity.Entity{}, err
	}
	a.bodies = append(a.bodies, e)
	return e, a.announce("body added")
}

func (a *Sim) announce(text string) error {
	return server.SendEvent(a.s, event.ToClients[Announcement]{
		Mode:  event.Broadcast(),
		Event: Announcement{Bodies: len(a.bodies), Text: text},
	})
}

// Bodies returns live bodies in spawn order.
func (a *Sim) Bodies() []entity.Entity {
	return a.bodies
}

// Step applies pushes, moves every body and bursts every tenth step.
func (a *Sim) Step() error {
	for _, push := range server.ClientEvents[Push](a.s) {
		if err := a.s.Mutate(push.Event.Body, push.Event.Velocity); err != nil {
			slog.Warn("tickwire: ignoring push", "client", push.Client, "error", err)
		}
	}

	for _, e := range a.bodies {
		pos, ok := server.Component[Position](a.s, e)
		if !ok {
			continue
		}
		vel, _ := server.Component[Velocity](a.s, e)
		next := Position{X: pos.X + vel.DX, Y: pos.Y + vel.DY}
		bounced := Velocity{
			DX: util.Choose(next.X < 0 || next.X > Size, -vel.DX, vel.DX),
			DY: util.Choose(next.Y < 0 || next.Y > Size, -vel.DY, vel.DY),
		}
		if bounced != vel {
			if err := a.s.Mutate(e, bounced); err != nil {
				return err
			}
			continue
		}
		if err := a.s.Mutate(e, next); err != nil {
			return err
		}
	}

	a.steps++
	if a.steps%10 == 0 && len(a.bodies) > 0 {
		return server.Trigger(a.s, event.ToClients[Burst]{
			Mode:  event.Broadcast(),
			Event: Burst{Strength: a.Energy()},
		}, a.bodies...)
	}
	return nil
}

// Energy is the summed speed of all bodies.
func (a *Sim) Energy() int {
	return util.Reduce(a.bodies, func(e entity.Entity, total int) int {
		vel, _ := server.Component[Velocity](a.s, e)
		return total + abs(vel.DX) + abs(vel.DY)
	}, 0)
}

func abs(v int) int {
	return util.Choose(v < 0, -v, v)
}
