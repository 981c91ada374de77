package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterSpawner struct {
	next      uint32
	despawned []Entity
}

func (s *counterSpawner) SpawnEmpty() Entity {
	e := Entity{Index: s.next}
	s.next++
	return e
}

func (s *counterSpawner) Despawn(e Entity) {
	s.despawned = append(s.despawned, e)
}

func TestMapRoundTrip(t *testing.T) {
	m := NewMap()
	server := Entity{Index: 1}
	client := Entity{Index: 0}
	m.Insert(server, client)

	toClient, ok := m.ToClient(server)
	require.True(t, ok)
	toServer, ok := m.ToServer(toClient)
	require.True(t, ok)
	assert.Equal(t, server, toServer)
	assert.Equal(t, client, toClient)
}

func TestMapInsertReplacesStaleEntries(t *testing.T) {
	m := NewMap()
	m.Insert(Entity{Index: 1}, Entity{Index: 10})
	m.Insert(Entity{Index: 1}, Entity{Index: 11})

	_, ok := m.ToServer(Entity{Index: 10})
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	m.Insert(Entity{Index: 2}, Entity{Index: 11})
	_, ok = m.ToClient(Entity{Index: 1})
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestMapGetMappedAllocatesPlaceholder(t *testing.T) {
	m := NewMap()
	spawner := &counterSpawner{next: 5}
	server := Entity{Index: 42, Generation: 3}

	client := m.GetMapped(server, spawner)
	assert.Equal(t, Entity{Index: 5}, client)

	back, ok := m.ToServer(client)
	require.True(t, ok)
	assert.Equal(t, server, back)

	assert.Equal(t, client, m.GetMapped(server, spawner), "second lookup reuses the mapping")
	assert.Equal(t, uint32(6), spawner.next)
}

func TestMapRemoveIsIdempotent(t *testing.T) {
	m := NewMap()
	m.Insert(Entity{Index: 1}, Entity{Index: 2})

	server, ok := m.RemoveByClient(Entity{Index: 2})
	assert.True(t, ok)
	assert.Equal(t, Entity{Index: 1}, server)

	_, ok = m.RemoveByClient(Entity{Index: 2})
	assert.False(t, ok)
	_, ok = m.RemoveByServer(Entity{Index: 1})
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestServerMapper(t *testing.T) {
	m := NewMap()
	m.Insert(Entity{Index: 7}, Entity{Index: 3})
	mapper := m.ServerMapper()

	assert.Equal(t, Entity{Index: 7}, mapper.MapEntity(Entity{Index: 3}))
	assert.Equal(t, Entity{Index: 9}, mapper.MapEntity(Entity{Index: 9}), "unmapped ids pass through")
}

func TestStagedCommit(t *testing.T) {
	m := NewMap()
	spawner := &counterSpawner{}
	m.Insert(Entity{Index: 100}, Entity{Index: 50})

	staged := m.Stage(spawner)
	assert.Equal(t, Entity{Index: 50}, staged.MapEntity(Entity{Index: 100}))
	placeholder := staged.MapEntity(Entity{Index: 101})
	assert.Equal(t, placeholder, staged.MapEntity(Entity{Index: 101}))

	_, ok := m.ToClient(Entity{Index: 101})
	assert.False(t, ok, "staged entries stay invisible until commit")

	staged.Commit()
	client, ok := m.ToClient(Entity{Index: 101})
	require.True(t, ok)
	assert.Equal(t, placeholder, client)
	assert.Empty(t, spawner.despawned)
}

func TestStagedRollback(t *testing.T) {
	m := NewMap()
	spawner := &counterSpawner{}

	staged := m.Stage(spawner)
	first := staged.MapEntity(Entity{Index: 1})
	second := staged.MapEntity(Entity{Index: 2})
	staged.Insert(Entity{Index: 3}, Entity{Index: 30})
	staged.Rollback()

	assert.Zero(t, m.Len())
	assert.Equal(t, []Entity{first, second}, spawner.despawned)
}
