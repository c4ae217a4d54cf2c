// Package room holds the authoritative container for one game instance: its
// membership, its spawned entities and the listeners that react to changes.
package room

import (
	"context"
	"slices"
	"time"

	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/internal/player"
	"arena-rooms/server/internal/spatial"
	"arena-rooms/server/internal/telemetry"
	"arena-rooms/server/internal/visibility"
	"arena-rooms/server/logging"
	logginglifecycle "arena-rooms/server/logging/lifecycle"
	loggingnetwork "arena-rooms/server/logging/network"
)

// Observers recomputes visibility when membership or the entity set
// changes. *visibility.Partitioner satisfies it.
type Observers interface {
	Refresh(e visibility.Networked)
	Rebuild(entities []visibility.Networked)
	Forget(e visibility.Networked)
}

// Ticker reports the loop tick stamped on published events.
type Ticker interface {
	Tick() uint64
}

// Deps are the collaborators of a room. Only Observers is required for
// visibility; the rest default to no-ops.
type Deps struct {
	Observers Observers
	Ticker    Ticker
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

// Room is one isolated game instance. All methods run on the session loop.
type Room struct {
	id      uint64
	slot    spatial.Slot
	created time.Time

	members  []*player.Player
	entities []*entity.Avatar

	locked    bool
	destroyed bool

	listeners    []listenerEntry
	nextListener int

	deps Deps
}

// New creates an empty, unlocked room on slot.
func New(id uint64, slot spatial.Slot, created time.Time, deps Deps) *Room {
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	return &Room{id: id, slot: slot, created: created, deps: deps}
}

func (r *Room) ID() uint64 { return r.id }

func (r *Room) Slot() spatial.Slot { return r.slot }

// Position is the room's origin in the shared space.
func (r *Room) Position() spatial.Position { return r.slot.Position }

func (r *Room) CreatedAt() time.Time { return r.created }

// Members returns a copy of the membership in join order.
func (r *Room) Members() []*player.Player {
	return slices.Clone(r.members)
}

func (r *Room) Size() int { return len(r.members) }

// Has reports whether p is a member.
func (r *Room) Has(p *player.Player) bool {
	return slices.Contains(r.members, p)
}

// Entities returns a copy of the spawned entities in spawn order.
func (r *Room) Entities() []*entity.Avatar {
	return slices.Clone(r.entities)
}

// Entity finds a spawned entity by id.
func (r *Room) Entity(id entity.ID) (*entity.Avatar, bool) {
	for _, e := range r.entities {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

func (r *Room) Locked() bool { return r.locked }

// Lock marks the room as full. It reports whether this call flipped the
// flag; the flag never clears.
func (r *Room) Lock() bool {
	if r.locked {
		return false
	}
	r.locked = true
	return true
}

// Destroyed reports whether Destroy has started.
func (r *Room) Destroyed() bool { return r.destroyed }

// AddPlayer appends p to the membership, binds its room reference, rebuilds
// visibility for every spawned entity and raises PlayerAdded. Callers make
// sure p is not in another room. It reports false when p is already a member
// or the room is gone.
func (r *Room) AddPlayer(p *player.Player) bool {
	if p == nil || r.destroyed || r.Has(p) {
		return false
	}
	r.members = append(r.members, p)
	p.BindRoom(r.id)
	r.rebuild()
	logginglifecycle.PlayerJoinedRoom(context.Background(), r.deps.Publisher, r.tick(), r.id, logging.PlayerRef(p.ID()), r.payload())
	r.emit(Event{Kind: PlayerAdded, Room: r, Player: p})
	return true
}

// RemovePlayer drops p from the membership, clears its room reference,
// rebuilds visibility and raises PlayerRemoved. Removing a non-member is a
// no-op and reports false.
func (r *Room) RemovePlayer(p *player.Player) bool {
	idx := slices.Index(r.members, p)
	if idx < 0 {
		return false
	}
	r.members = slices.Delete(r.members, idx, idx+1)
	if p.RoomID() == r.id {
		p.ClearRoom()
	}
	r.rebuild()
	logginglifecycle.PlayerLeftRoom(context.Background(), r.deps.Publisher, r.tick(), r.id, logging.PlayerRef(p.ID()), r.payload())
	r.emit(Event{Kind: PlayerRemoved, Room: r, Player: p})
	return true
}

// RegisterSpawn adds e to the entity set, computes its observers and raises
// ObjectSpawned.
func (r *Room) RegisterSpawn(e *entity.Avatar) bool {
	if e == nil || r.destroyed || slices.Contains(r.entities, e) {
		return false
	}
	e.RoomID = r.id
	r.entities = append(r.entities, e)
	if r.deps.Observers != nil {
		r.deps.Observers.Refresh(e)
	}
	r.emit(Event{Kind: ObjectSpawned, Room: r, Entity: e})
	return true
}

// UnregisterSpawn removes e from the entity set, hides it from its observers
// and raises ObjectDestroyed.
func (r *Room) UnregisterSpawn(e *entity.Avatar) bool {
	idx := slices.Index(r.entities, e)
	if idx < 0 {
		return false
	}
	r.entities = slices.Delete(r.entities, idx, idx+1)
	if r.deps.Observers != nil {
		r.deps.Observers.Forget(e)
	}
	r.emit(Event{Kind: ObjectDestroyed, Room: r, Entity: e})
	return true
}

// Broadcast encodes payload once and sends it to every member in membership
// order. Failed sends are logged and skipped. It returns the number of
// failed sends.
func (r *Room) Broadcast(op proto.OpCode, payload any) int {
	data, err := proto.Encode(op, payload)
	if err != nil {
		r.deps.Logger.Printf("[room %d] failed to encode %s: %v", r.id, op, err)
		return len(r.members)
	}
	failures := 0
	for _, member := range slices.Clone(r.members) {
		if err := member.SendRaw(data); err != nil {
			failures++
			r.reportSendFailure(member, op, err)
		}
	}
	return failures
}

// Send delivers one frame to p, logging a failure the same way Broadcast
// does.
func (r *Room) Send(p *player.Player, op proto.OpCode, payload any) bool {
	if err := p.Send(op, payload); err != nil {
		r.reportSendFailure(p, op, err)
		return false
	}
	return true
}

func (r *Room) reportSendFailure(p *player.Player, op proto.OpCode, err error) {
	r.deps.Logger.Printf("[room %d] send %s to %s failed: %v", r.id, op, p.ID(), err)
	if r.deps.Metrics != nil {
		r.deps.Metrics.Add(telemetry.MetricSendFailures, 1)
	}
	loggingnetwork.SendFailed(context.Background(), r.deps.Publisher, r.tick(), r.id, logging.PlayerRef(p.ID()), loggingnetwork.SendFailedPayload{
		Op:    op.String(),
		Error: err.Error(),
	})
}

// Destroy force-removes every member through RemovePlayer, despawns any
// remaining entities and raises RoomDestroyed. Calling it again is a no-op.
func (r *Room) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	for _, member := range slices.Clone(r.members) {
		r.RemovePlayer(member)
	}
	for _, e := range slices.Clone(r.entities) {
		r.UnregisterSpawn(e)
	}
	r.emit(Event{Kind: RoomDestroyed, Room: r})
	r.listeners = nil
}

func (r *Room) rebuild() {
	if r.deps.Observers == nil || len(r.entities) == 0 {
		return
	}
	entities := make([]visibility.Networked, len(r.entities))
	for i, e := range r.entities {
		entities[i] = e
	}
	r.deps.Observers.Rebuild(entities)
}

func (r *Room) tick() uint64 {
	if r.deps.Ticker == nil {
		return 0
	}
	return r.deps.Ticker.Tick()
}

func (r *Room) payload() logginglifecycle.RoomPayload {
	return logginglifecycle.RoomPayload{
		Slot:    r.slot.Index,
		Origin:  r.slot.Position.Array(),
		Members: len(r.members),
	}
}
