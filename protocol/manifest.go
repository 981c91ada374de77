package protocol

import (
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/kevinxiao27/tickwire/event"
	"github.com/kevinxiao27/tickwire/replication"
	"github.com/kevinxiao27/tickwire/transport"
)

type ChannelInfo struct {
	ID   transport.ChannelID `json:"id"`
	Kind string              `json:"kind"`
}

type ComponentInfo struct {
	ID     replication.FnsID  `json:"id"`
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
}

type EventInfo struct {
	Name        string              `json:"name"`
	Kind        string              `json:"kind"`
	Channel     transport.ChannelID `json:"channel"`
	Independent bool                `json:"independent,omitempty"`
	Schema      *jsonschema.Schema  `json:"schema"`
}

// Manifest describes a protocol for tooling and debugging.
type Manifest struct {
	Hash           string                `json:"hash"`
	ServerChannels []ChannelInfo         `json:"serverChannels"`
	ClientChannels []ChannelInfo         `json:"clientChannels"`
	Components     []ComponentInfo       `json:"components"`
	Rules          [][]replication.FnsID `json:"rules"`
	Events         []EventInfo           `json:"events"`
}

func BuildManifest(components *replication.Registry, events *event.Registry) *Manifest {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := func(t reflect.Type) *jsonschema.Schema {
		s := reflector.ReflectFromType(t)
		if s != nil {
			s.Version = ""
		}
		return s
	}

	m := &Manifest{
		Hash:           Compute(components, events).String(),
		ServerChannels: channelInfo(events.Channels().Server()),
		ClientChannels: channelInfo(events.Channels().Client()),
		Rules:          components.Rules(),
	}
	for i, t := range components.Types() {
		m.Components = append(m.Components, ComponentInfo{
			ID:     replication.FnsID(i),
			Name:   components.Names()[i],
			Schema: schema(t),
		})
	}
	for _, reg := range events.All() {
		m.Events = append(m.Events, EventInfo{
			Name:        reg.Name,
			Kind:        reg.Kind.String(),
			Channel:     reg.Channel,
			Independent: reg.Independent,
			Schema:      schema(reg.Type),
		})
	}
	return m
}

func channelInfo(kinds []transport.ChannelKind) []ChannelInfo {
	info := make([]ChannelInfo, len(kinds))
	for i, kind := range kinds {
		info[i] = ChannelInfo{ID: transport.ChannelID(i), Kind: kind.String()}
	}
	return info
}
