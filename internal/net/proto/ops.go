package proto

import "strconv"

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// OpCode identifies what a frame carries. Values are part of the wire format.
type OpCode uint16

const (
	OpLeaveGame OpCode = iota
	OpPlay
	OpMatchFinished
	OpChangeUsername
	OpRoomInstantiated
	OpRemovedFromRoom
	OpStartTimer
	OpDisplayWaitingMessage
	OpPlayerCountUpdate
	OpEntitySpawned
	OpEntityHidden
	OpHealthChanged
)

var opNames = map[OpCode]string{
	OpLeaveGame:             "LeaveGame",
	OpPlay:                  "Play",
	OpMatchFinished:         "MatchFinished",
	OpChangeUsername:        "ChangeUsername",
	OpRoomInstantiated:      "RoomInstantiated",
	OpRemovedFromRoom:       "RemovedFromRoom",
	OpStartTimer:            "StartTimer",
	OpDisplayWaitingMessage: "DisplayWaitingMessage",
	OpPlayerCountUpdate:     "PlayerCountUpdate",
	OpEntitySpawned:         "EntitySpawned",
	OpEntityHidden:          "EntityHidden",
	OpHealthChanged:         "HealthChanged",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "Op(" + strconv.Itoa(int(op)) + ")"
}

// Inbound reports whether clients may send op.
func (op OpCode) Inbound() bool {
	switch op {
	case OpLeaveGame, OpPlay, OpChangeUsername, OpRoomInstantiated:
		return true
	default:
		return false
	}
}

// Status marks a frame as a response.
type Status uint8

const (
	StatusNone Status = iota
	StatusSuccess
	StatusFailed
)
