package entity

import "log/slog"

// Map is the single source of truth for server <-> client id translation
// on a replica. At most one client id maps to a server id and vice versa.
type Map struct {
	serverToClient map[Entity]Entity
	clientToServer map[Entity]Entity
}

func NewMap() *Map {
	return &Map{
		serverToClient: make(map[Entity]Entity),
		clientToServer: make(map[Entity]Entity),
	}
}

// Insert maps server to client, dropping any previous mapping of either id.
func (m *Map) Insert(server, client Entity) {
	if old, ok := m.serverToClient[server]; ok && old != client {
		delete(m.clientToServer, old)
	}
	if old, ok := m.clientToServer[client]; ok && old != server {
		delete(m.serverToClient, old)
	}
	m.serverToClient[server] = client
	m.clientToServer[client] = server
}

func (m *Map) ToClient(server Entity) (Entity, bool) {
	e, ok := m.serverToClient[server]
	return e, ok
}

func (m *Map) ToServer(client Entity) (Entity, bool) {
	e, ok := m.clientToServer[client]
	return e, ok
}

// GetMapped returns the client entity for server, spawning an empty
// placeholder through spawner if the server id has never been seen.
func (m *Map) GetMapped(server Entity, spawner Spawner) Entity {
	if client, ok := m.serverToClient[server]; ok {
		return client
	}

	client := spawner.SpawnEmpty()
	slog.Debug("tickwire: spawned placeholder", "server", server, "client", client)
	m.Insert(server, client)
	return client
}

// RemoveByServer removes the mapping for a server id. Absent ids are a no-op.
func (m *Map) RemoveByServer(server Entity) (Entity, bool) {
	client, ok := m.serverToClient[server]
	if !ok {
		return Entity{}, false
	}
	delete(m.serverToClient, server)
	delete(m.clientToServer, client)
	return client, true
}

// RemoveByClient removes the mapping for a client id. Absent ids are a no-op.
func (m *Map) RemoveByClient(client Entity) (Entity, bool) {
	server, ok := m.clientToServer[client]
	if !ok {
		return Entity{}, false
	}
	delete(m.clientToServer, client)
	delete(m.serverToClient, server)
	return server, true
}

func (m *Map) Len() int {
	return len(m.serverToClient)
}

// Clear drops every mapping without touching the host.
func (m *Map) Clear() {
	clear(m.serverToClient)
	clear(m.clientToServer)
}

// ServerMapper translates client ids to server ids, leaving unmapped ids
// untouched. Used when a replica sends entities back to the server.
func (m *Map) ServerMapper() Mapper {
	return MapperFunc(func(client Entity) Entity {
		if server, ok := m.clientToServer[client]; ok {
			return server
		}
		return client
	})
}
