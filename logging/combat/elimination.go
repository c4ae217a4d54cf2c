package combat

import (
	"context"

	"arena-rooms/server/logging"
)

const EliminationEventType logging.EventType = "combat.avatar_eliminated"

type EliminationPayload struct {
	Owner    string `json:"owner"`
	Attacker string `json:"attacker,omitempty"`
}

// Elimination publishes the elimination of an avatar. The attacker is listed
// as a target when known.
func Elimination(ctx context.Context, pub logging.Publisher, tick, roomID uint64, avatar logging.EntityRef, payload EliminationPayload) {
	if pub == nil {
		return
	}
	var targets []logging.EntityRef
	if payload.Attacker != "" {
		targets = []logging.EntityRef{{ID: payload.Attacker, Kind: logging.EntityKindAvatar}}
	}
	pub.Publish(ctx, logging.Event{
		Type:     EliminationEventType,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    avatar,
		Targets:  targets,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
	})
}
