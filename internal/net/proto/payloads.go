package proto

// Failure accompanies every failed response.
type Failure struct {
	Reason string `json:"reason" msgpack:"reason" jsonschema:"required"`
}

// PlayResponse tells a client which room it landed in and where that room
// sits in the shared space.
type PlayResponse struct {
	RoomID   uint64     `json:"roomId" msgpack:"roomId" jsonschema:"required"`
	Position [3]float64 `json:"position" msgpack:"position" jsonschema:"required"`
}

// ChangeUsernameRequest carries the requested display name.
type ChangeUsernameRequest struct {
	Username string `json:"username" msgpack:"username" jsonschema:"required"`
}

// RemovedFromRoom is sent to a player after it leaves a room for any reason.
type RemovedFromRoom struct {
	RoomID uint64 `json:"roomId" msgpack:"roomId" jsonschema:"required"`
}

// StartTimer starts the pre-match countdown on clients.
type StartTimer struct {
	Seconds float64 `json:"seconds" msgpack:"seconds" jsonschema:"required"`
}

// DisplayWaitingMessage toggles the waiting-for-opponent banner.
type DisplayWaitingMessage struct {
	Show    bool   `json:"show" msgpack:"show" jsonschema:"required"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// MatchFinished carries a member's individual outcome.
type MatchFinished struct {
	Won bool `json:"won" msgpack:"won" jsonschema:"required"`
}

// PlayerCountUpdate carries the number of connected players.
type PlayerCountUpdate struct {
	Count int `json:"count" msgpack:"count" jsonschema:"required"`
}

// EntitySpawned makes an entity visible to an observer.
type EntitySpawned struct {
	EntityID uint32 `json:"entityId" msgpack:"entityId" jsonschema:"required"`
	OwnerID  string `json:"ownerId" msgpack:"ownerId" jsonschema:"required"`
	Username string `json:"username" msgpack:"username" jsonschema:"required"`
	Health   int    `json:"health" msgpack:"health" jsonschema:"required"`
}

// EntityHidden withdraws an entity from an observer.
type EntityHidden struct {
	EntityID uint32 `json:"entityId" msgpack:"entityId" jsonschema:"required"`
}

// HealthChanged reports an entity's new health to its observers.
type HealthChanged struct {
	EntityID uint32 `json:"entityId" msgpack:"entityId" jsonschema:"required"`
	Health   int    `json:"health" msgpack:"health" jsonschema:"required"`
}
