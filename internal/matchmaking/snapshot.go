package matchmaking

import (
	"time"

	"arena-rooms/server/internal/session"
	"arena-rooms/server/internal/spatial"
)

// RoomSnapshot is the diagnostics view of one room.
type RoomSnapshot struct {
	ID         uint64           `json:"id"`
	Slot       int              `json:"slot"`
	Position   spatial.Position `json:"position"`
	Phase      session.Phase    `json:"phase"`
	Locked     bool             `json:"locked"`
	Members    []string         `json:"members"`
	Entities   int              `json:"entities"`
	ReadyCount int              `json:"readyCount"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Snapshot is the diagnostics view of the pool.
type Snapshot struct {
	Connected   int            `json:"connected"`
	Rooms       []RoomSnapshot `json:"rooms"`
	LeasedSlots int            `json:"leasedSlots"`
	FreeSlots   int            `json:"freeSlots"`
	Visible     int            `json:"visibleEntities"`
}

// Snapshot copies the pool state in room creation order.
func (c *Coordinator) Snapshot() Snapshot {
	snapshot := Snapshot{
		Connected:   len(c.connected),
		Rooms:       make([]RoomSnapshot, 0, len(c.rooms)),
		LeasedSlots: c.allocator.Leased(),
		FreeSlots:   c.allocator.Free(),
		Visible:     c.observers.Len(),
	}
	for _, tracked := range c.rooms {
		r := tracked.room
		members := make([]string, 0, r.Size())
		for _, member := range r.Members() {
			members = append(members, member.ID())
		}
		snapshot.Rooms = append(snapshot.Rooms, RoomSnapshot{
			ID:         r.ID(),
			Slot:       r.Slot().Index,
			Position:   r.Position(),
			Phase:      tracked.controller.Phase(),
			Locked:     r.Locked(),
			Members:    members,
			Entities:   len(r.Entities()),
			ReadyCount: tracked.controller.ReadyCount(),
			CreatedAt:  r.CreatedAt(),
		})
	}
	return snapshot
}
