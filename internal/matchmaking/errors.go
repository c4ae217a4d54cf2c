package matchmaking

import "errors"

var (
	// ErrNotInRoom is returned for room operations from a player outside any room.
	ErrNotInRoom = errors.New("not in a room")
	// ErrAlreadyInRoom is returned when a member asks to join again.
	ErrAlreadyInRoom = errors.New("already in a room")
	// ErrNoCapacity is returned when no spatial slot is left for a new room.
	ErrNoCapacity = errors.New("no room capacity")
	// ErrUnknownEntity is returned by entity hooks for ids not spawned in any room.
	ErrUnknownEntity = errors.New("unknown entity")
)
