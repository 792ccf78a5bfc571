package sim

import (
	"fmt"
	"sort"
)

// World holds every simulated entity. Iteration is always in ascending id
// order so that both sides step bodies identically.
type World struct {
	entities map[EntityID]*Entity
	order    []EntityID
	nextID   EntityID
	grid     *SpatialGrid
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{entities: make(map[EntityID]*Entity), nextID: 1}
}

// AllocID returns a fresh sequential id. Prespawned ids never collide since
// they carry the high bit.
func (w *World) AllocID() EntityID {
	id := w.nextID
	w.nextID++
	return id
}

// Spawn inserts e. An entity with id 0 gets a fresh id.
func (w *World) Spawn(e *Entity) error {
	if e.ID == 0 {
		e.ID = w.AllocID()
	}
	if _, ok := w.entities[e.ID]; ok {
		return fmt.Errorf("spawn %s %d: entity exists", e.Kind, e.ID)
	}
	if !e.ID.IsPrespawned() && e.ID >= w.nextID {
		w.nextID = e.ID + 1
	}
	w.entities[e.ID] = e
	i := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= e.ID })
	w.order = append(w.order, 0)
	copy(w.order[i+1:], w.order[i:])
	w.order[i] = e.ID
	return nil
}

// Despawn removes the entity and reports whether it existed.
func (w *World) Despawn(id EntityID) bool {
	if _, ok := w.entities[id]; !ok {
		return false
	}
	delete(w.entities, id)
	i := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= id })
	w.order = append(w.order[:i], w.order[i+1:]...)
	return true
}

// Get returns the entity with the given id.
func (w *World) Get(id EntityID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// Len returns the number of entities.
func (w *World) Len() int { return len(w.order) }

// IDs returns the sorted entity ids.
func (w *World) IDs() []EntityID {
	out := make([]EntityID, len(w.order))
	copy(out, w.order)
	return out
}

// Entities returns the entities in ascending id order.
func (w *World) Entities() []*Entity {
	out := make([]*Entity, len(w.order))
	for i, id := range w.order {
		out[i] = w.entities[id]
	}
	return out
}

// Players returns the player entities in ascending id order.
func (w *World) Players() []*Entity {
	var out []*Entity
	for _, id := range w.order {
		if e := w.entities[id]; e.Kind == KindPlayer {
			out = append(out, e)
		}
	}
	return out
}

// PlayerByClient finds the player controlled by client.
func (w *World) PlayerByClient(client ClientID) (*Entity, bool) {
	for _, id := range w.order {
		e := w.entities[id]
		if e.Kind == KindPlayer && e.Player != nil && e.Player.ClientID == client {
			return e, true
		}
	}
	return nil, false
}

// Clone deep copies the world.
func (w *World) Clone() *World {
	out := &World{
		entities: make(map[EntityID]*Entity, len(w.entities)),
		order:    make([]EntityID, len(w.order)),
		nextID:   w.nextID,
	}
	copy(out.order, w.order)
	for id, e := range w.entities {
		out.entities[id] = e.Clone()
	}
	return out
}
