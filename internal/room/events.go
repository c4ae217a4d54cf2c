package room

import (
	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/player"
)

// EventKind names a room notification.
type EventKind int

const (
	PlayerAdded EventKind = iota
	PlayerRemoved
	ObjectSpawned
	ObjectDestroyed
	RoomDestroyed
)

func (k EventKind) String() string {
	switch k {
	case PlayerAdded:
		return "player_added"
	case PlayerRemoved:
		return "player_removed"
	case ObjectSpawned:
		return "object_spawned"
	case ObjectDestroyed:
		return "object_destroyed"
	case RoomDestroyed:
		return "room_destroyed"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners synchronously, in registration order.
type Event struct {
	Kind   EventKind
	Room   *Room
	Player *player.Player
	Entity *entity.Avatar
}

// Listener reacts to room events.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// Subscribe registers fn and returns a func that removes it. Listeners added
// or removed while an event is being delivered take effect from the next
// event.
func (r *Room) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	r.nextListener++
	id := r.nextListener
	r.listeners = append(r.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, entry := range r.listeners {
			if entry.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

func (r *Room) emit(event Event) {
	if len(r.listeners) == 0 {
		return
	}
	listeners := make([]listenerEntry, len(r.listeners))
	copy(listeners, r.listeners)
	for _, entry := range listeners {
		entry.fn(event)
	}
}
