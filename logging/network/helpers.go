package network

import (
	"context"

	"arena-rooms/server/logging"
)

const (
	// EventSendFailed is emitted when a frame could not be delivered to one connection.
	EventSendFailed logging.EventType = "network.send_failed"
	// EventPlayerCountBroadcast is emitted when the coalesced player count goes out.
	EventPlayerCountBroadcast logging.EventType = "network.player_count_broadcast"
)

// SendFailedPayload captures a best-effort delivery failure.
type SendFailedPayload struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// PlayerCountPayload captures the broadcast total.
type PlayerCountPayload struct {
	Count      int `json:"count"`
	Recipients int `json:"recipients"`
	Failures   int `json:"failures,omitempty"`
}

// SendFailed publishes a warning for a dropped frame.
func SendFailed(ctx context.Context, pub logging.Publisher, tick, roomID uint64, actor logging.EntityRef, payload SendFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSendFailed,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// PlayerCountBroadcast publishes a debug event for the debounced count update.
func PlayerCountBroadcast(ctx context.Context, pub logging.Publisher, tick uint64, payload PlayerCountPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerCountBroadcast,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindServer},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
