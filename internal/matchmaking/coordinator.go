// Package matchmaking routes players into rooms. It creates rooms on demand
// on free spatial slots, tears them down when they are destroyed and keeps
// every connected player informed of the connection count.
package matchmaking

import (
	"context"
	"fmt"
	"slices"
	"time"

	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/journal"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/internal/player"
	"arena-rooms/server/internal/room"
	"arena-rooms/server/internal/sched"
	"arena-rooms/server/internal/session"
	"arena-rooms/server/internal/spatial"
	"arena-rooms/server/internal/telemetry"
	"arena-rooms/server/internal/visibility"
	"arena-rooms/server/logging"
	logginglifecycle "arena-rooms/server/logging/lifecycle"
	loggingnetwork "arena-rooms/server/logging/network"
)

// Config tunes matchmaking.
type Config struct {
	Session             session.Config
	Grid                spatial.Grid
	MaxRooms            int
	PlayerCountDebounce time.Duration
}

// DefaultConfig returns two-player rooms on the default grid with no room
// cap and a 500ms player-count debounce.
func DefaultConfig() Config {
	return Config{
		Session:             session.DefaultConfig(),
		Grid:                spatial.DefaultGrid(),
		PlayerCountDebounce: 500 * time.Millisecond,
	}
}

// Recorder receives one record per destroyed room.
type Recorder interface {
	Record(ctx context.Context, match journal.Match) (journal.RecordResult, error)
}

// Deps are the collaborators of the coordinator.
type Deps struct {
	Scheduler sched.Scheduler
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Journal   Recorder
}

// JoinResult tells a player where it was placed.
type JoinResult struct {
	RoomID   uint64
	Position spatial.Position
}

type trackedRoom struct {
	room         *room.Room
	controller   *session.Controller
	participants []string
	unsubscribe  func()
}

// Coordinator owns the room pool, the spatial allocator and the connected
// players. Every method must run on the session loop.
type Coordinator struct {
	cfg  Config
	deps Deps

	allocator   *spatial.Allocator
	observers   *visibility.Table
	partitioner *visibility.Partitioner
	entities    entity.Sequence

	rooms      []*trackedRoom
	byID       map[uint64]*trackedRoom
	nextRoomID uint64

	connected  []*player.Player
	players    map[string]*player.Player
	countTimer *sched.Timer
}

// New builds a coordinator with an empty pool.
func New(cfg Config, deps Deps) *Coordinator {
	if cfg.Grid == (spatial.Grid{}) {
		cfg.Grid = spatial.DefaultGrid()
	}
	if cfg.PlayerCountDebounce <= 0 {
		cfg.PlayerCountDebounce = DefaultConfig().PlayerCountDebounce
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	c := &Coordinator{
		cfg:       cfg,
		deps:      deps,
		allocator: spatial.NewAllocator(cfg.Grid, cfg.MaxRooms),
		byID:      make(map[uint64]*trackedRoom),
		players:   make(map[string]*player.Player),
	}
	c.observers = visibility.NewTable(visibility.Callbacks{Show: c.showEntity, Hide: c.hideEntity})
	c.partitioner = visibility.NewPartitioner(c, c.observers)
	return c
}

// Members implements visibility.RoomLookup.
func (c *Coordinator) Members(roomID uint64) ([]*player.Player, bool) {
	tracked, ok := c.byID[roomID]
	if !ok {
		return nil, false
	}
	return tracked.room.Members(), true
}

// Partitioner exposes the visibility partitioner.
func (c *Coordinator) Partitioner() *visibility.Partitioner { return c.partitioner }

// Room returns a tracked room by id.
func (c *Coordinator) Room(id uint64) (*room.Room, bool) {
	tracked, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return tracked.room, true
}

// Controller returns the session controller of a tracked room.
func (c *Coordinator) Controller(id uint64) (*session.Controller, bool) {
	tracked, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return tracked.controller, true
}

// Player returns a connected player.
func (c *Coordinator) Player(id string) (*player.Player, bool) {
	p, ok := c.players[id]
	return p, ok
}

// ConnectedCount reports the number of connected players.
func (c *Coordinator) ConnectedCount() int { return len(c.connected) }

// Connect registers a connection as a player. Connecting an id twice returns
// the existing player.
func (c *Coordinator) Connect(ctx context.Context, conn player.Conn) *player.Player {
	if existing, ok := c.players[conn.ID()]; ok {
		return existing
	}
	p := player.New(conn)
	c.players[p.ID()] = p
	c.connected = append(c.connected, p)
	c.storeConnections()
	logginglifecycle.PlayerConnected(ctx, c.deps.Publisher, c.tick(), logging.PlayerRef(p.ID()), nil)
	c.schedulePlayerCount()
	return p
}

// Disconnect drops a connection. A player still in a room leaves it through
// Room.RemovePlayer, the same path as a voluntary leave.
func (c *Coordinator) Disconnect(ctx context.Context, id, reason string) bool {
	p, ok := c.players[id]
	if !ok {
		return false
	}
	if tracked, ok := c.byID[p.RoomID()]; ok {
		tracked.room.RemovePlayer(p)
	}
	delete(c.players, id)
	if idx := slices.Index(c.connected, p); idx >= 0 {
		c.connected = slices.Delete(c.connected, idx, idx+1)
	}
	c.storeConnections()
	logginglifecycle.PlayerDisconnected(ctx, c.deps.Publisher, c.tick(), logging.PlayerRef(id), logginglifecycle.PlayerDisconnectedPayload{Reason: reason}, nil)
	c.schedulePlayerCount()
	return true
}

// HandleJoinRequest places p into the first unlocked room in creation order,
// creating a room when none is open.
func (c *Coordinator) HandleJoinRequest(ctx context.Context, p *player.Player) (JoinResult, error) {
	if p.InRoom() {
		c.addMetric(telemetry.MetricJoinFailures, 1)
		return JoinResult{}, ErrAlreadyInRoom
	}

	var target *trackedRoom
	for _, tracked := range c.rooms {
		if !tracked.room.Locked() && !tracked.room.Destroyed() {
			target = tracked
			break
		}
	}
	if target == nil {
		created, err := c.createRoom(ctx)
		if err != nil {
			c.addMetric(telemetry.MetricJoinFailures, 1)
			return JoinResult{}, err
		}
		target = created
	}

	target.room.AddPlayer(p)
	c.addMetric(telemetry.MetricJoins, 1)
	return JoinResult{RoomID: target.room.ID(), Position: target.room.Position()}, nil
}

func (c *Coordinator) createRoom(ctx context.Context) (*trackedRoom, error) {
	slot, ok := c.allocator.Acquire()
	if !ok {
		c.deps.Logger.Printf("[matchmaking] no spatial slot left (rooms=%d)", len(c.rooms))
		return nil, ErrNoCapacity
	}

	c.nextRoomID++
	r := room.New(c.nextRoomID, slot, c.now(), room.Deps{
		Observers: c.partitioner,
		Ticker:    c.deps.Scheduler,
		Logger:    c.deps.Logger,
		Metrics:   c.deps.Metrics,
		Publisher: c.deps.Publisher,
	})
	tracked := &trackedRoom{room: r}
	c.rooms = append(c.rooms, tracked)
	c.byID[r.ID()] = tracked

	tracked.controller = session.New(r, c.cfg.Session, session.Deps{
		Scheduler: c.deps.Scheduler,
		Entities:  &c.entities,
		Logger:    c.deps.Logger,
		Metrics:   c.deps.Metrics,
		Publisher: c.deps.Publisher,
	})
	tracked.unsubscribe = r.Subscribe(func(event room.Event) {
		switch event.Kind {
		case room.PlayerAdded:
			if !slices.Contains(tracked.participants, event.Player.ID()) {
				tracked.participants = append(tracked.participants, event.Player.ID())
			}
		case room.RoomDestroyed:
			c.HandleRoomDestroyed(event.Room)
		}
	})

	c.addMetric(telemetry.MetricRoomsCreated, 1)
	c.storeMetric(telemetry.MetricRoomsActive, uint64(len(c.rooms)))
	logginglifecycle.RoomCreated(ctx, c.deps.Publisher, c.tick(), r.ID(), roomPayload(r))
	return tracked, nil
}

// HandleRoomReady forwards a member's readiness to its room.
func (c *Coordinator) HandleRoomReady(p *player.Player) {
	tracked, ok := c.byID[p.RoomID()]
	if !ok {
		return
	}
	tracked.controller.RoomReady(p)
}

// HandleLeaveRequest removes p from its room.
func (c *Coordinator) HandleLeaveRequest(p *player.Player) error {
	tracked, ok := c.byID[p.RoomID()]
	if !ok || !p.InRoom() {
		return ErrNotInRoom
	}
	tracked.room.RemovePlayer(p)
	c.addMetric(telemetry.MetricLeaves, 1)
	return nil
}

// HandleChangeUsername validates and stores a new display name. The name is
// used for the next avatar the player spawns.
func (c *Coordinator) HandleChangeUsername(p *player.Player, raw string) (string, error) {
	name, err := player.ValidateUsername(raw)
	if err != nil {
		return "", err
	}
	p.SetUsername(name)
	return name, nil
}

// HandleRoomDestroyed releases everything the pool holds for r and records
// the match. Unknown rooms are ignored.
func (c *Coordinator) HandleRoomDestroyed(r *room.Room) {
	tracked, ok := c.byID[r.ID()]
	if !ok {
		return
	}
	if tracked.unsubscribe != nil {
		tracked.unsubscribe()
	}
	c.allocator.Release(r.Slot())
	delete(c.byID, r.ID())
	if idx := slices.Index(c.rooms, tracked); idx >= 0 {
		c.rooms = slices.Delete(c.rooms, idx, idx+1)
	}

	c.addMetric(telemetry.MetricRoomsDestroyed, 1)
	c.storeMetric(telemetry.MetricRoomsActive, uint64(len(c.rooms)))
	ctx := context.Background()
	logginglifecycle.RoomDestroyed(ctx, c.deps.Publisher, c.tick(), r.ID(), roomPayload(r))
	c.recordMatch(ctx, tracked)
}

func (c *Coordinator) recordMatch(ctx context.Context, tracked *trackedRoom) {
	if c.deps.Journal == nil {
		return
	}
	r := tracked.room
	match := journal.Match{
		RoomID:       r.ID(),
		Slot:         r.Slot().Index,
		Origin:       r.Position().Array(),
		Participants: tracked.participants,
		CreatedAt:    r.CreatedAt(),
		DestroyedAt:  c.now(),
	}
	if outcome, ok := tracked.controller.Outcome(); ok {
		match.Finished = true
		match.Reason = outcome.Reason
		match.Winners = outcome.Winners
		match.Losers = outcome.Losers
	}
	if _, err := c.deps.Journal.Record(ctx, match); err != nil {
		c.addMetric(telemetry.MetricJournalWriteFails, 1)
		c.deps.Logger.Printf("[matchmaking] failed to journal room %d: %v", r.ID(), err)
	}
}

// ApplyDamage damages an entity in whichever room spawned it.
func (c *Coordinator) ApplyDamage(id entity.ID, amount int, attacker string) (entity.DamageResult, error) {
	for _, tracked := range c.rooms {
		if result, ok := tracked.controller.ApplyDamage(id, amount, attacker); ok {
			return result, nil
		}
	}
	return entity.DamageResult{}, fmt.Errorf("apply damage to %d: %w", id, ErrUnknownEntity)
}

// DestroyEntity despawns an entity in whichever room spawned it.
func (c *Coordinator) DestroyEntity(id entity.ID) error {
	for _, tracked := range c.rooms {
		if tracked.controller.DestroyEntity(id) {
			return nil
		}
	}
	return fmt.Errorf("destroy entity %d: %w", id, ErrUnknownEntity)
}

func (c *Coordinator) schedulePlayerCount() {
	if c.countTimer != nil || c.deps.Scheduler == nil {
		return
	}
	c.countTimer = c.deps.Scheduler.After(c.cfg.PlayerCountDebounce, func() {
		c.countTimer = nil
		c.broadcastPlayerCount()
	})
}

func (c *Coordinator) broadcastPlayerCount() {
	count := len(c.connected)
	data, err := proto.Encode(proto.OpPlayerCountUpdate, proto.PlayerCountUpdate{Count: count})
	if err != nil {
		c.deps.Logger.Printf("[matchmaking] failed to encode player count: %v", err)
		return
	}
	failures := 0
	for _, p := range slices.Clone(c.connected) {
		if err := p.SendRaw(data); err != nil {
			failures++
			c.addMetric(telemetry.MetricSendFailures, 1)
			c.deps.Logger.Printf("[matchmaking] player count to %s failed: %v", p.ID(), err)
		}
	}
	loggingnetwork.PlayerCountBroadcast(context.Background(), c.deps.Publisher, c.tick(), loggingnetwork.PlayerCountPayload{
		Count:      count,
		Recipients: count,
		Failures:   failures,
	})
}

func (c *Coordinator) showEntity(conn player.Conn, e visibility.Networked) {
	avatar, ok := e.(*entity.Avatar)
	if !ok {
		return
	}
	c.sendTo(conn, proto.OpEntitySpawned, proto.EntitySpawned{
		EntityID: uint32(avatar.ID),
		OwnerID:  avatar.OwnerID,
		Username: avatar.Username,
		Health:   avatar.Health,
	})
}

func (c *Coordinator) hideEntity(conn player.Conn, e visibility.Networked) {
	c.sendTo(conn, proto.OpEntityHidden, proto.EntityHidden{EntityID: uint32(e.EntityID())})
}

func (c *Coordinator) sendTo(conn player.Conn, op proto.OpCode, payload any) {
	data, err := proto.Encode(op, payload)
	if err != nil {
		c.deps.Logger.Printf("[matchmaking] failed to encode %s: %v", op, err)
		return
	}
	if err := conn.Send(data); err != nil {
		c.addMetric(telemetry.MetricSendFailures, 1)
		c.deps.Logger.Printf("[matchmaking] %s to %s failed: %v", op, conn.ID(), err)
	}
}

func (c *Coordinator) storeConnections() {
	c.storeMetric(telemetry.MetricConnections, uint64(len(c.connected)))
}

func (c *Coordinator) addMetric(key string, delta uint64) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.Add(key, delta)
	}
}

func (c *Coordinator) storeMetric(key string, value uint64) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.Store(key, value)
	}
}

func (c *Coordinator) tick() uint64 {
	if c.deps.Scheduler == nil {
		return 0
	}
	return c.deps.Scheduler.Tick()
}

func (c *Coordinator) now() time.Time {
	if c.deps.Scheduler == nil {
		return time.Now()
	}
	return c.deps.Scheduler.Now()
}

func roomPayload(r *room.Room) logginglifecycle.RoomPayload {
	return logginglifecycle.RoomPayload{
		Slot:    r.Slot().Index,
		Origin:  r.Position().Array(),
		Members: r.Size(),
	}
}
