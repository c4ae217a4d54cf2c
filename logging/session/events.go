package session

import (
	"context"

	"arena-rooms/server/logging"
)

const (
	// EventPhaseChanged is emitted on every room phase transition.
	EventPhaseChanged logging.EventType = "session.phase_changed"
	// EventMatchFinished is emitted once per room when results are broadcast.
	EventMatchFinished logging.EventType = "session.match_finished"
)

// PhaseChangedPayload captures a transition.
type PhaseChangedPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Members int    `json:"members"`
}

// MatchFinishedPayload captures the outcome sent to members.
type MatchFinishedPayload struct {
	Reason  string   `json:"reason"`
	Winners []string `json:"winners,omitempty"`
	Losers  []string `json:"losers,omitempty"`
}

// PhaseChanged publishes a phase transition.
func PhaseChanged(ctx context.Context, pub logging.Publisher, tick, roomID uint64, payload PhaseChangedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPhaseChanged,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    logging.EntityRef{Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
	})
}

// MatchFinished publishes the outcome of a match.
func MatchFinished(ctx context.Context, pub logging.Publisher, tick, roomID uint64, payload MatchFinishedPayload) {
	if pub == nil {
		return
	}
	targets := make([]logging.EntityRef, 0, len(payload.Winners))
	for _, id := range payload.Winners {
		targets = append(targets, logging.PlayerRef(id))
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMatchFinished,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    logging.EntityRef{Kind: logging.EntityKindRoom},
		Targets:  targets,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
	})
}
