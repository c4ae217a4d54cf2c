// Package visibility decides which connections may observe a networked
// entity. An entity is observable exactly by the live connections of the
// members of its owning room.
package visibility

import (
	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/player"
)

// Networked is an entity whose state is replicated to observers.
type Networked interface {
	EntityID() entity.ID
	OwningRoom() uint64
}

// RoomLookup resolves a room id to its current members in membership order.
type RoomLookup interface {
	Members(roomID uint64) ([]*player.Player, bool)
}

// Tracker receives recomputed observer sets.
type Tracker interface {
	SetObservers(e Networked, observers []player.Conn)
	Forget(e Networked)
}

// Partitioner recomputes observer sets from room membership and pushes them
// to a Tracker.
type Partitioner struct {
	rooms   RoomLookup
	tracker Tracker
}

func NewPartitioner(rooms RoomLookup, tracker Tracker) *Partitioner {
	return &Partitioner{rooms: rooms, tracker: tracker}
}

// ComputeObservers returns the live connections of the members of the
// entity's room. An entity without a registered room has none.
func (p *Partitioner) ComputeObservers(e Networked) []player.Conn {
	if p == nil || p.rooms == nil || e == nil || e.OwningRoom() == 0 {
		return nil
	}
	members, ok := p.rooms.Members(e.OwningRoom())
	if !ok {
		return nil
	}
	observers := make([]player.Conn, 0, len(members))
	for _, member := range members {
		if member == nil || member.Conn() == nil {
			continue
		}
		observers = append(observers, member.Conn())
	}
	return observers
}

// CheckObserver answers the initial-connect visibility query. The room of a
// connecting player is not known yet, so nothing is observable.
func (p *Partitioner) CheckObserver(Networked, player.Conn) bool {
	return false
}

// Refresh recomputes one entity.
func (p *Partitioner) Refresh(e Networked) {
	if p == nil || p.tracker == nil || e == nil {
		return
	}
	p.tracker.SetObservers(e, p.ComputeObservers(e))
}

// Rebuild recomputes every entity in entities, typically all entities
// spawned in a room whose membership just changed.
func (p *Partitioner) Rebuild(entities []Networked) {
	for _, e := range entities {
		p.Refresh(e)
	}
}

// Forget drops a despawned entity from the tracker.
func (p *Partitioner) Forget(e Networked) {
	if p == nil || p.tracker == nil || e == nil {
		return
	}
	p.tracker.Forget(e)
}
