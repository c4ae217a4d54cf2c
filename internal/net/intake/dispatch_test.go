package intake

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"arena-rooms/server/internal/matchmaking"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/internal/player"
	"arena-rooms/server/internal/sched"
	"arena-rooms/server/logging"
)

type recordingConn struct {
	id     string
	frames []proto.Envelope
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(data []byte) error {
	env, err := proto.Decode(data)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *recordingConn) responses(op proto.OpCode) []proto.Envelope {
	var out []proto.Envelope
	for _, env := range c.frames {
		if env.Op == op && env.Status != proto.StatusNone {
			out = append(out, env)
		}
	}
	return out
}

type harness struct {
	loop        *sched.Loop
	coordinator *matchmaking.Coordinator
	dispatcher  *Dispatcher
	spans       *tracetest.SpanRecorder
}

func newHarness(t *testing.T, loopCfg sched.LoopConfig, mutate func(*matchmaking.Config)) *harness {
	t.Helper()
	start := time.Unix(1_700_000_000, 0)
	loop := sched.NewLoop(loopCfg, logging.ClockFunc(func() time.Time { return start }), sched.LoopHooks{}, nil)
	cfg := matchmaking.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	coordinator := matchmaking.New(cfg, matchmaking.Deps{Scheduler: loop})

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	dispatcher, err := NewDispatcher(Config{
		Loop:        loop,
		Coordinator: coordinator,
		Tracer:      provider.Tracer("intake-test"),
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return &harness{loop: loop, coordinator: coordinator, dispatcher: dispatcher, spans: recorder}
}

func (h *harness) connect(t *testing.T, id string) *recordingConn {
	t.Helper()
	conn := &recordingConn{id: id}
	if err := h.dispatcher.Connected(context.Background(), conn); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	h.loop.Drain()
	return conn
}

func (h *harness) send(t *testing.T, conn *recordingConn, op proto.OpCode, seq uint32, payload any) {
	t.Helper()
	frame, err := proto.EncodeRequest(op, seq, payload)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if err := h.dispatcher.Dispatch(context.Background(), conn, frame); err != nil {
		t.Fatalf("dispatch %s: %v", op, err)
	}
	h.loop.Drain()
}

func decodeFailure(t *testing.T, env proto.Envelope) string {
	t.Helper()
	var failure proto.Failure
	if err := env.DecodePayload(&failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	return failure.Reason
}

func TestDispatchPlayRespondsWithRoom(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := h.connect(t, "alice")

	h.send(t, conn, proto.OpPlay, 7, nil)

	responses := conn.responses(proto.OpPlay)
	if len(responses) != 1 {
		t.Fatalf("expected one play response, got %d", len(responses))
	}
	resp := responses[0]
	if resp.Status != proto.StatusSuccess || resp.Seq != 7 {
		t.Fatalf("unexpected response %+v", resp)
	}
	var payload proto.PlayResponse
	if err := resp.DecodePayload(&payload); err != nil {
		t.Fatalf("decode play response: %v", err)
	}
	if payload.RoomID != 1 || payload.Position != [3]float64{} {
		t.Fatalf("unexpected play payload %+v", payload)
	}

	h.send(t, conn, proto.OpPlay, 8, nil)
	responses = conn.responses(proto.OpPlay)
	if len(responses) != 2 || responses[1].Status != proto.StatusFailed {
		t.Fatalf("expected second play to fail, got %+v", responses)
	}
	if reason := decodeFailure(t, responses[1]); reason != ReasonAlreadyInRoom {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestDispatchLeaveGame(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := h.connect(t, "alice")

	h.send(t, conn, proto.OpLeaveGame, 1, nil)
	responses := conn.responses(proto.OpLeaveGame)
	if len(responses) != 1 || responses[0].Status != proto.StatusFailed {
		t.Fatalf("expected failed leave, got %+v", responses)
	}
	if reason := decodeFailure(t, responses[0]); reason != ReasonNotInRoom {
		t.Fatalf("unexpected reason %q", reason)
	}

	h.send(t, conn, proto.OpPlay, 2, nil)
	h.send(t, conn, proto.OpLeaveGame, 3, nil)
	if got := len(conn.responses(proto.OpLeaveGame)); got != 1 {
		t.Fatalf("successful leave should not respond, got %d responses", got)
	}
	removed := 0
	for _, env := range conn.frames {
		if env.Op == proto.OpRemovedFromRoom {
			removed++
		}
	}
	if removed != 1 {
		t.Fatalf("expected one RemovedFromRoom, got %d", removed)
	}
}

func TestDispatchChangeUsername(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := h.connect(t, "alice")

	tests := []struct {
		name     string
		username string
		reason   string
	}{
		{name: "too short", username: "ab", reason: ReasonUsernameTooShort},
		{name: "too long", username: "abcdefghijklmnopq", reason: ReasonUsernameTooLong},
		{name: "control rune", username: "ab\x07cd", reason: ReasonUsernameInvalid},
		{name: "valid", username: "  Gladiator ", reason: ""},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := uint32(i + 1)
			h.send(t, conn, proto.OpChangeUsername, seq, proto.ChangeUsernameRequest{Username: tt.username})
			responses := conn.responses(proto.OpChangeUsername)
			last := responses[len(responses)-1]
			if last.Seq != seq {
				t.Fatalf("expected response to seq %d, got %d", seq, last.Seq)
			}
			if tt.reason == "" {
				if last.Status != proto.StatusSuccess {
					t.Fatalf("expected success, got %+v", last)
				}
				return
			}
			if last.Status != proto.StatusFailed {
				t.Fatalf("expected failure, got %+v", last)
			}
			if reason := decodeFailure(t, last); reason != tt.reason {
				t.Fatalf("expected %q, got %q", tt.reason, reason)
			}
		})
	}

	p, _ := h.coordinator.Player("alice")
	if p.Username() != "Gladiator" {
		t.Fatalf("expected trimmed username, got %q", p.Username())
	}
}

func TestDispatchRejectsOutboundOps(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := h.connect(t, "alice")

	h.send(t, conn, proto.OpHealthChanged, 4, nil)
	responses := conn.responses(proto.OpHealthChanged)
	if len(responses) != 1 || responses[0].Status != proto.StatusFailed {
		t.Fatalf("expected failed response, got %+v", responses)
	}
	if reason := decodeFailure(t, responses[0]); reason != ReasonUnsupportedOp {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestDispatchUnknownConnection(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := &recordingConn{id: "ghost"}

	h.send(t, conn, proto.OpPlay, 1, nil)
	responses := conn.responses(proto.OpPlay)
	if len(responses) != 1 || decodeFailure(t, responses[0]) != ReasonUnknownPlayer {
		t.Fatalf("expected unknown player failure, got %+v", responses)
	}
}

func TestDispatchQueueFullAnswersBusy(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{QueueCapacity: 1}, nil)
	conn := &recordingConn{id: "alice"}
	if err := h.loop.Post(func() {}); err != nil {
		t.Fatalf("fill queue: %v", err)
	}

	frame, _ := proto.EncodeRequest(proto.OpPlay, 9, nil)
	if err := h.dispatcher.Dispatch(context.Background(), conn, frame); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	responses := conn.responses(proto.OpPlay)
	if len(responses) != 1 || decodeFailure(t, responses[0]) != ReasonServerBusy {
		t.Fatalf("expected busy failure, got %+v", responses)
	}
}

func TestDispatchMalformedFrame(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := h.connect(t, "alice")

	if err := h.dispatcher.Dispatch(context.Background(), conn, nil); !errors.Is(err, proto.ErrEmptyFrame) {
		t.Fatalf("expected empty frame error, got %v", err)
	}
	if err := h.dispatcher.Dispatch(context.Background(), conn, []byte{0xc1}); err == nil {
		t.Fatalf("expected decode error for garbage")
	}
	if len(conn.frames) != 0 {
		t.Fatalf("malformed frames must not be answered, got %d", len(conn.frames))
	}
}

func TestDispatchRecordsSpans(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := h.connect(t, "alice")

	h.send(t, conn, proto.OpPlay, 1, nil)
	h.send(t, conn, proto.OpRoomInstantiated, 2, nil)

	ended := h.spans.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected two spans, got %d", len(ended))
	}
	if ended[0].Name() != "intake.Play" || ended[1].Name() != "intake.RoomInstantiated" {
		t.Fatalf("unexpected span names %q %q", ended[0].Name(), ended[1].Name())
	}
}

func TestDisconnectedRemovesPlayer(t *testing.T) {
	h := newHarness(t, sched.LoopConfig{}, nil)
	conn := h.connect(t, "alice")
	h.send(t, conn, proto.OpPlay, 1, nil)

	if err := h.dispatcher.Disconnected(context.Background(), "alice", "closed"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	h.loop.Drain()
	if _, ok := h.coordinator.Player("alice"); ok {
		t.Fatalf("expected player to be removed")
	}
	if _, ok := h.coordinator.Room(1); ok {
		t.Fatalf("expected empty room to be destroyed")
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: fmt.Errorf("leave: %w", matchmaking.ErrNotInRoom), want: ReasonNotInRoom},
		{err: matchmaking.ErrNoCapacity, want: ReasonNoCapacity},
		{err: player.ErrUsernameTooLong, want: ReasonUsernameTooLong},
		{err: sched.ErrQueueFull, want: ReasonServerBusy},
		{err: errors.New("boom"), want: "boom"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Fatalf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
