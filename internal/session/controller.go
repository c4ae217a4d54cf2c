// Package session runs the per-room match: waiting for members, the
// countdown, the active match, the result broadcast and the teardown.
package session

import (
	"context"
	"strconv"
	"time"

	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/internal/player"
	"arena-rooms/server/internal/room"
	"arena-rooms/server/internal/sched"
	"arena-rooms/server/internal/telemetry"
	"arena-rooms/server/logging"
	loggingcombat "arena-rooms/server/logging/combat"
	loggingsession "arena-rooms/server/logging/session"
)

const waitingMessage = "Waiting for opponent"

// Termination reasons recorded with a finished match.
const (
	ReasonElimination = "elimination"
	ReasonDespawn     = "despawn"
)

// Config holds match timings.
type Config struct {
	RoomSize  int
	Countdown time.Duration
	Grace     time.Duration
}

// DefaultConfig returns a two-player match with a 4s countdown and a 5s
// grace delay.
func DefaultConfig() Config {
	return Config{RoomSize: 2, Countdown: 4 * time.Second, Grace: 5 * time.Second}
}

func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.RoomSize <= 0 {
		c.RoomSize = defaults.RoomSize
	}
	if c.Countdown < 0 {
		c.Countdown = 0
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	return c
}

// Deps are the collaborators of a controller.
type Deps struct {
	Scheduler sched.Scheduler
	Entities  *entity.Sequence
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

// Outcome is the result of a finished match.
type Outcome struct {
	Reason     string    `json:"reason"`
	Winners    []string  `json:"winners,omitempty"`
	Losers     []string  `json:"losers,omitempty"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Controller drives one room through its phases. It listens to the room's
// events and must only be used on the session loop.
type Controller struct {
	room *room.Room
	cfg  Config
	deps Deps

	phase    Phase
	gameOver bool
	reason   string
	outcome  *Outcome

	avatars map[*player.Player]*entity.Avatar
	ready   map[*player.Player]bool

	countdown   *sched.Timer
	grace       *sched.Timer
	unsubscribe func()
}

// New attaches a controller to r. Members already in r are ignored; the
// controller is meant to be attached before the first join.
func New(r *room.Room, cfg Config, deps Deps) *Controller {
	if deps.Entities == nil {
		deps.Entities = &entity.Sequence{}
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	c := &Controller{
		room:    r,
		cfg:     cfg.normalized(),
		deps:    deps,
		phase:   PhaseWaiting,
		avatars: make(map[*player.Player]*entity.Avatar),
		ready:   make(map[*player.Player]bool),
	}
	c.unsubscribe = r.Subscribe(c.handle)
	return c
}

func (c *Controller) Room() *room.Room { return c.room }

func (c *Controller) Phase() Phase { return c.phase }

// Outcome returns the match result once the room finished.
func (c *Controller) Outcome() (Outcome, bool) {
	if c.outcome == nil {
		return Outcome{}, false
	}
	return *c.outcome, true
}

// ReadyCount reports how many members acknowledged the room.
func (c *Controller) ReadyCount() int { return len(c.ready) }

// AvatarOf returns the avatar spawned for p.
func (c *Controller) AvatarOf(p *player.Player) (*entity.Avatar, bool) {
	avatar, ok := c.avatars[p]
	return avatar, ok
}

func (c *Controller) handle(event room.Event) {
	switch event.Kind {
	case room.PlayerAdded:
		c.onPlayerAdded(event.Player)
	case room.PlayerRemoved:
		c.onPlayerRemoved(event.Player)
	case room.ObjectDestroyed:
		c.onObjectDestroyed(event.Entity)
	case room.RoomDestroyed:
		c.onRoomDestroyed()
	}
}

func (c *Controller) onPlayerAdded(p *player.Player) {
	avatar := entity.NewAvatar(c.deps.Entities.Next(), c.room.ID(), p.ID(), p.Username())
	c.avatars[p] = avatar
	p.BindAvatar(avatar)
	c.room.RegisterSpawn(avatar)

	if c.phase != PhaseWaiting || c.room.Size() != c.cfg.RoomSize {
		return
	}
	c.room.Lock()
	c.setPhase(PhaseCountdown)
	c.room.Broadcast(proto.OpStartTimer, proto.StartTimer{Seconds: c.cfg.Countdown.Seconds()})
	c.countdown = c.deps.Scheduler.After(c.cfg.Countdown, c.onCountdownElapsed)
}

func (c *Controller) onCountdownElapsed() {
	if c.phase != PhaseCountdown || c.room.Destroyed() {
		return
	}
	c.setPhase(PhaseActive)
	for _, avatar := range c.room.Entities() {
		avatar.SetCanTakeDamage(true)
	}
	if c.gameOver {
		c.finish()
	}
}

func (c *Controller) onPlayerRemoved(p *player.Player) {
	delete(c.ready, p)
	c.room.Send(p, proto.OpRemovedFromRoom, proto.RemovedFromRoom{RoomID: c.room.ID()})

	if avatar, ok := c.avatars[p]; ok {
		c.room.UnregisterSpawn(avatar)
		delete(c.avatars, p)
	}
	p.ClearAvatar()

	if c.room.Size() == 0 {
		c.room.Destroy()
	}
}

func (c *Controller) onObjectDestroyed(e *entity.Avatar) {
	for p, avatar := range c.avatars {
		if avatar == e {
			delete(c.avatars, p)
			if p.Avatar() == e {
				p.ClearAvatar()
			}
			break
		}
	}
	reason := ReasonDespawn
	if e != nil && e.Eliminated() {
		reason = ReasonElimination
	}
	c.terminate(reason)
}

// terminate records that a termination condition fired. Conditions only
// count once the room is locked and before teardown starts; the first one
// wins.
func (c *Controller) terminate(reason string) {
	if c.gameOver || !c.room.Locked() || c.room.Destroyed() || c.phase >= PhaseFinished {
		return
	}
	c.gameOver = true
	c.reason = reason
	if c.phase == PhaseActive {
		c.finish()
	}
}

func (c *Controller) finish() {
	c.setPhase(PhaseFinished)

	outcome := Outcome{Reason: c.reason, FinishedAt: c.now()}
	for _, member := range c.room.Members() {
		avatar, ok := c.avatars[member]
		won := ok && !avatar.Eliminated()
		if won {
			outcome.Winners = append(outcome.Winners, member.ID())
		} else {
			outcome.Losers = append(outcome.Losers, member.ID())
		}
		c.room.Send(member, proto.OpMatchFinished, proto.MatchFinished{Won: won})
	}
	c.outcome = &outcome
	if c.deps.Metrics != nil {
		c.deps.Metrics.Add(telemetry.MetricMatchesFinished, 1)
	}
	loggingsession.MatchFinished(context.Background(), c.deps.Publisher, c.tick(), c.room.ID(), loggingsession.MatchFinishedPayload{
		Reason:  outcome.Reason,
		Winners: outcome.Winners,
		Losers:  outcome.Losers,
	})

	c.grace = c.deps.Scheduler.After(c.cfg.Grace, func() {
		if c.room.Destroyed() {
			return
		}
		c.room.Destroy()
	})
}

func (c *Controller) onRoomDestroyed() {
	c.countdown.Stop()
	c.grace.Stop()
	c.setPhase(PhaseDestroyed)
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// RoomReady handles a member's acknowledgement that it finished setting up
// the room locally.
func (c *Controller) RoomReady(p *player.Player) {
	if c.phase == PhaseDestroyed || !c.room.Has(p) {
		return
	}
	c.ready[p] = true
	if len(c.ready) < 2 {
		c.room.Send(p, proto.OpDisplayWaitingMessage, proto.DisplayWaitingMessage{Show: true, Message: waitingMessage})
		return
	}
	c.room.Broadcast(proto.OpDisplayWaitingMessage, proto.DisplayWaitingMessage{Show: false})
}

// ApplyDamage damages the avatar with id. Health changes are sent to the
// room; reaching zero health eliminates and despawns the avatar. It reports
// false when the room has no such avatar.
func (c *Controller) ApplyDamage(id entity.ID, amount int, attacker string) (entity.DamageResult, bool) {
	avatar, ok := c.room.Entity(id)
	if !ok {
		return entity.DamageResult{}, false
	}
	result := avatar.TakeDamage(amount)
	if !result.Applied {
		return result, true
	}
	c.room.Broadcast(proto.OpHealthChanged, proto.HealthChanged{EntityID: uint32(avatar.ID), Health: result.Health})
	if result.Eliminated {
		loggingcombat.Elimination(context.Background(), c.deps.Publisher, c.tick(), c.room.ID(),
			logging.EntityRef{ID: strconv.FormatUint(uint64(avatar.ID), 10), Kind: logging.EntityKindAvatar},
			loggingcombat.EliminationPayload{Owner: avatar.OwnerID, Attacker: attacker})
		c.terminate(ReasonElimination)
		c.room.UnregisterSpawn(avatar)
	}
	return result, true
}

// DestroyEntity despawns the entity with id for a reason other than
// elimination.
func (c *Controller) DestroyEntity(id entity.ID) bool {
	avatar, ok := c.room.Entity(id)
	if !ok {
		return false
	}
	return c.room.UnregisterSpawn(avatar)
}

func (c *Controller) setPhase(next Phase) {
	if c.phase == next {
		return
	}
	previous := c.phase
	c.phase = next
	loggingsession.PhaseChanged(context.Background(), c.deps.Publisher, c.tick(), c.room.ID(), loggingsession.PhaseChangedPayload{
		From:    previous.String(),
		To:      next.String(),
		Members: c.room.Size(),
	})
}

func (c *Controller) tick() uint64 {
	if c.deps.Scheduler == nil {
		return 0
	}
	return c.deps.Scheduler.Tick()
}

func (c *Controller) now() time.Time {
	if c.deps.Scheduler == nil {
		return time.Time{}
	}
	return c.deps.Scheduler.Now()
}
