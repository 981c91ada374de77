package entity

// Staged is a transactional view over a Map used while decoding a message.
// Lookups see committed and staged entries; nothing reaches the Map until
// Commit, and Rollback despawns every placeholder it allocated.
type Staged struct {
	base         *Map
	spawner      Spawner
	toClient     map[Entity]Entity
	pairs        []Pair
	placeholders []Entity
}

// Stage starts a transaction against m.
func (m *Map) Stage(spawner Spawner) *Staged {
	return &Staged{
		base:     m,
		spawner:  spawner,
		toClient: make(map[Entity]Entity),
	}
}

func (s *Staged) ToClient(server Entity) (Entity, bool) {
	if client, ok := s.toClient[server]; ok {
		return client, true
	}
	return s.base.ToClient(server)
}

// Insert stages an explicit mapping received from the server.
func (s *Staged) Insert(server, client Entity) {
	s.toClient[server] = client
	s.pairs = append(s.pairs, Pair{Server: server, Client: client})
}

// MapEntity resolves server to a client id, staging a placeholder when the
// id is unknown. It never fails.
func (s *Staged) MapEntity(server Entity) Entity {
	if client, ok := s.ToClient(server); ok {
		return client
	}

	client := s.spawner.SpawnEmpty()
	s.placeholders = append(s.placeholders, client)
	s.Insert(server, client)
	return client
}

// Placeholders returns the entities allocated by this transaction.
func (s *Staged) Placeholders() []Entity {
	return s.placeholders
}

func (s *Staged) Commit() {
	for _, pair := range s.pairs {
		s.base.Insert(pair.Server, pair.Client)
	}
	s.reset()
}

func (s *Staged) Rollback() {
	for _, e := range s.placeholders {
		s.spawner.Despawn(e)
	}
	s.reset()
}

func (s *Staged) reset() {
	clear(s.toClient)
	s.pairs = s.pairs[:0]
	s.placeholders = s.placeholders[:0]
}
