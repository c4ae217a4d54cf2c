package session

import (
	"testing"
	"time"

	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/internal/player"
	"arena-rooms/server/internal/room"
	"arena-rooms/server/internal/sched"
	"arena-rooms/server/internal/spatial"
	"arena-rooms/server/internal/visibility"
	"arena-rooms/server/logging"
	loggingsession "arena-rooms/server/logging/session"
	"arena-rooms/server/logging/sinks"
)

type fakeConn struct {
	id     string
	frames []proto.Envelope
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	env, err := proto.Decode(data)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) ofOp(op proto.OpCode) []proto.Envelope {
	var out []proto.Envelope
	for _, env := range c.frames {
		if env.Op == op {
			out = append(out, env)
		}
	}
	return out
}

func matchResult(t *testing.T, c *fakeConn) bool {
	t.Helper()
	frames := c.ofOp(proto.OpMatchFinished)
	if len(frames) != 1 {
		t.Fatalf("expected one MatchFinished for %s, got %d", c.id, len(frames))
	}
	var payload proto.MatchFinished
	if err := frames[0].DecodePayload(&payload); err != nil {
		t.Fatalf("decode MatchFinished: %v", err)
	}
	return payload.Won
}

type singleRoom struct{ r *room.Room }

func (s *singleRoom) Members(id uint64) ([]*player.Player, bool) {
	if s.r == nil || s.r.ID() != id {
		return nil, false
	}
	return s.r.Members(), true
}

type harness struct {
	loop       *sched.Loop
	room       *room.Room
	controller *Controller
	events     *sinks.MemorySink
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	start := time.Unix(1_700_000_000, 0)
	loop := sched.NewLoop(sched.LoopConfig{}, logging.ClockFunc(func() time.Time { return start }), sched.LoopHooks{}, nil)
	lookup := &singleRoom{}
	partitioner := visibility.NewPartitioner(lookup, visibility.NewTable(visibility.Callbacks{}))
	events := sinks.NewMemorySink()
	r := room.New(1, spatial.DefaultGrid().Slot(0), loop.Now(), room.Deps{Observers: partitioner, Ticker: loop, Publisher: events})
	lookup.r = r
	controller := New(r, cfg, Deps{Scheduler: loop, Publisher: events})
	return &harness{loop: loop, room: r, controller: controller, events: events}
}

func (h *harness) join(id string) (*player.Player, *fakeConn) {
	conn := &fakeConn{id: id}
	p := player.New(conn)
	h.room.AddPlayer(p)
	return p, conn
}

func TestMatchScenario(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	a, connA := h.join("a")
	if h.controller.Phase() != PhaseWaiting || h.room.Locked() {
		t.Fatalf("expected waiting unlocked room after first join")
	}
	if a.Avatar() == nil {
		t.Fatalf("expected avatar spawned for first member")
	}

	_, connB := h.join("b")
	if h.controller.Phase() != PhaseCountdown || !h.room.Locked() {
		t.Fatalf("expected locked countdown after second join, got %s", h.controller.Phase())
	}
	for _, conn := range []*fakeConn{connA, connB} {
		timers := conn.ofOp(proto.OpStartTimer)
		if len(timers) != 1 {
			t.Fatalf("expected StartTimer for %s", conn.id)
		}
		var payload proto.StartTimer
		if err := timers[0].DecodePayload(&payload); err != nil || payload.Seconds != 4 {
			t.Fatalf("expected 4s countdown, got %+v (%v)", payload, err)
		}
	}

	h.loop.Advance(3999 * time.Millisecond)
	if h.controller.Phase() != PhaseCountdown {
		t.Fatalf("countdown ended early")
	}
	h.loop.Advance(time.Millisecond)
	if h.controller.Phase() != PhaseActive {
		t.Fatalf("expected active after countdown, got %s", h.controller.Phase())
	}
	for _, avatar := range h.room.Entities() {
		if !avatar.CanTakeDamage() {
			t.Fatalf("expected damage enabled for %s", avatar.OwnerID)
		}
	}

	if !h.controller.DestroyEntity(a.Avatar().ID) {
		t.Fatalf("expected entity to be destroyed")
	}
	if h.controller.Phase() != PhaseFinished {
		t.Fatalf("expected finished, got %s", h.controller.Phase())
	}
	if matchResult(t, connA) {
		t.Fatalf("expected a to lose")
	}
	if !matchResult(t, connB) {
		t.Fatalf("expected b to win")
	}
	outcome, ok := h.controller.Outcome()
	if !ok || outcome.Reason != ReasonDespawn || len(outcome.Winners) != 1 || outcome.Winners[0] != "b" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	h.loop.Advance(5 * time.Second)
	if !h.room.Destroyed() || h.controller.Phase() != PhaseDestroyed {
		t.Fatalf("expected room destroyed after grace delay")
	}
	for _, conn := range []*fakeConn{connA, connB} {
		if len(conn.ofOp(proto.OpRemovedFromRoom)) != 1 {
			t.Fatalf("expected RemovedFromRoom for %s", conn.id)
		}
	}
	if len(h.events.OfType(loggingsession.EventPhaseChanged)) != 4 {
		t.Fatalf("expected four phase transitions, got %d", len(h.events.OfType(loggingsession.EventPhaseChanged)))
	}
}

func TestEliminationFinishesMatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	a, connA := h.join("a")
	b, connB := h.join("b")
	h.loop.Advance(4 * time.Second)

	if _, ok := h.controller.ApplyDamage(b.Avatar().ID, 60, a.ID()); !ok {
		t.Fatalf("expected damage to find avatar")
	}
	if h.controller.Phase() != PhaseActive {
		t.Fatalf("non-lethal damage must not finish the match")
	}
	if len(connA.ofOp(proto.OpHealthChanged)) != 1 {
		t.Fatalf("expected health change to reach observers")
	}

	avatarB := b.Avatar()
	result, _ := h.controller.ApplyDamage(avatarB.ID, 60, a.ID())
	if !result.Eliminated {
		t.Fatalf("expected lethal hit to eliminate")
	}
	if h.controller.Phase() != PhaseFinished {
		t.Fatalf("expected finished after elimination")
	}
	if !matchResult(t, connA) || matchResult(t, connB) {
		t.Fatalf("expected a to win and b to lose")
	}
	if _, ok := h.room.Entity(avatarB.ID); ok {
		t.Fatalf("expected eliminated avatar to despawn")
	}
	outcome, _ := h.controller.Outcome()
	if outcome.Reason != ReasonElimination {
		t.Fatalf("expected elimination reason, got %q", outcome.Reason)
	}
}

func TestTerminationDuringCountdownFinishesOnActive(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.join("a")
	b, connB := h.join("b")

	h.controller.DestroyEntity(b.Avatar().ID)
	if h.controller.Phase() != PhaseCountdown {
		t.Fatalf("termination must wait for the countdown, got %s", h.controller.Phase())
	}

	h.loop.Advance(4 * time.Second)
	if h.controller.Phase() != PhaseFinished {
		t.Fatalf("expected finish right after countdown, got %s", h.controller.Phase())
	}
	if matchResult(t, connB) {
		t.Fatalf("member without avatar must lose")
	}
}

func TestTerminationBeforeLockIsIgnored(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	a, _ := h.join("a")
	h.controller.DestroyEntity(a.Avatar().ID)
	h.join("b")
	h.loop.Advance(4 * time.Second)
	if h.controller.Phase() != PhaseActive {
		t.Fatalf("expected an active match, got %s", h.controller.Phase())
	}
}

func TestEmptyRoomIsDestroyedImmediately(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	a, _ := h.join("a")
	b, _ := h.join("b")

	h.room.RemovePlayer(a)
	if h.controller.Phase() != PhaseCountdown {
		t.Fatalf("expected countdown to continue with one member")
	}
	if a.Avatar() != nil || a.InRoom() {
		t.Fatalf("expected removed player to lose room and avatar")
	}

	h.room.RemovePlayer(b)
	if !h.room.Destroyed() || h.controller.Phase() != PhaseDestroyed {
		t.Fatalf("expected empty room to be destroyed")
	}

	h.loop.Advance(time.Minute)
	if h.controller.Phase() != PhaseDestroyed {
		t.Fatalf("stale timers must not revive the room")
	}
	if _, ok := h.controller.Outcome(); ok {
		t.Fatalf("destroyed countdown room must not report an outcome")
	}
}

func TestGraceTimerAfterEarlyDestroyIsNoop(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	a, _ := h.join("a")
	b, _ := h.join("b")
	h.loop.Advance(4 * time.Second)
	h.controller.DestroyEntity(a.Avatar().ID)

	h.room.RemovePlayer(a)
	h.room.RemovePlayer(b)
	if !h.room.Destroyed() {
		t.Fatalf("expected room destroyed when emptied")
	}
	result := h.loop.Advance(10 * time.Second)
	if result.TimersFired != 0 {
		t.Fatalf("expected grace timer to be cancelled, %d fired", result.TimersFired)
	}
}

func TestRoomReadyWaitingMessage(t *testing.T) {
	h := newHarness(t, Config{RoomSize: 3})
	a, connA := h.join("a")
	b, connB := h.join("b")

	h.controller.RoomReady(a)
	waiting := connA.ofOp(proto.OpDisplayWaitingMessage)
	if len(waiting) != 1 {
		t.Fatalf("expected waiting message for the first ready member")
	}
	var show proto.DisplayWaitingMessage
	if err := waiting[0].DecodePayload(&show); err != nil || !show.Show || show.Message != "Waiting for opponent" {
		t.Fatalf("unexpected waiting payload %+v (%v)", show, err)
	}

	h.controller.RoomReady(b)
	for _, conn := range []*fakeConn{connA, connB} {
		frames := conn.ofOp(proto.OpDisplayWaitingMessage)
		var hide proto.DisplayWaitingMessage
		if err := frames[len(frames)-1].DecodePayload(&hide); err != nil || hide.Show {
			t.Fatalf("expected %s to receive hide, got %+v (%v)", conn.id, hide, err)
		}
	}
	if h.room.Locked() {
		t.Fatalf("room of three must stay open with two members")
	}
}

func TestRoomSizeOverrideLocksAtTarget(t *testing.T) {
	h := newHarness(t, Config{RoomSize: 3})
	h.join("a")
	h.join("b")
	if h.controller.Phase() != PhaseWaiting {
		t.Fatalf("expected waiting below target size")
	}
	h.join("c")
	if h.controller.Phase() != PhaseCountdown || !h.room.Locked() {
		t.Fatalf("expected lock at target size")
	}
}

func TestApplyDamageUnknownEntity(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	if _, ok := h.controller.ApplyDamage(entity.ID(42), 10, ""); ok {
		t.Fatalf("expected unknown entity to be reported")
	}
	if h.controller.DestroyEntity(entity.ID(42)) {
		t.Fatalf("expected unknown entity destroy to fail")
	}
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for phase := PhaseWaiting; phase <= PhaseDestroyed; phase++ {
		text, err := phase.MarshalText()
		if err != nil {
			t.Fatalf("marshal %d: %v", phase, err)
		}
		var decoded Phase
		if err := decoded.UnmarshalText(text); err != nil || decoded != phase {
			t.Fatalf("round trip of %s gave %s, %v", phase, decoded, err)
		}
	}
	var p Phase
	if err := p.UnmarshalText([]byte("overtime")); err == nil {
		t.Fatalf("expected error for unknown phase")
	}
}
