package lifecycle

import (
	"context"

	"arena-rooms/server/logging"
)

const (
	// EventPlayerConnected is emitted when the substrate registers a connection.
	EventPlayerConnected logging.EventType = "lifecycle.player_connected"
	// EventPlayerDisconnected is emitted when a connection is dropped.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventPlayerJoinedRoom is emitted when matchmaking places a player.
	EventPlayerJoinedRoom logging.EventType = "lifecycle.player_joined_room"
	// EventPlayerLeftRoom is emitted when a player is removed from a room.
	EventPlayerLeftRoom logging.EventType = "lifecycle.player_left_room"
	// EventRoomCreated is emitted when a room is instantiated.
	EventRoomCreated logging.EventType = "lifecycle.room_created"
	// EventRoomDestroyed is emitted once a room has released its slot.
	EventRoomDestroyed logging.EventType = "lifecycle.room_destroyed"
)

// PlayerDisconnectedPayload captures the reason a connection went away.
type PlayerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// RoomPayload describes where a room lives in the shared space.
type RoomPayload struct {
	Slot    int        `json:"slot"`
	Origin  [3]float64 `json:"origin"`
	Members int        `json:"members"`
}

// PlayerConnected publishes a connection event.
func PlayerConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerConnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Extra:    extra,
	})
}

// PlayerDisconnected publishes a disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerJoinedRoom publishes a room placement.
func PlayerJoinedRoom(ctx context.Context, pub logging.Publisher, tick, roomID uint64, actor logging.EntityRef, payload RoomPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerJoinedRoom,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// PlayerLeftRoom publishes a room removal.
func PlayerLeftRoom(ctx context.Context, pub logging.Publisher, tick, roomID uint64, actor logging.EntityRef, payload RoomPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerLeftRoom,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// RoomCreated publishes a room creation.
func RoomCreated(ctx context.Context, pub logging.Publisher, tick, roomID uint64, payload RoomPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomCreated,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    logging.EntityRef{Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// RoomDestroyed publishes a room teardown.
func RoomDestroyed(ctx context.Context, pub logging.Publisher, tick, roomID uint64, payload RoomPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomDestroyed,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    logging.EntityRef{Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryLifecycle
	pub.Publish(ctx, event)
}
