package intake

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"arena-rooms/server/internal/matchmaking"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/internal/player"
	"arena-rooms/server/internal/sched"
	"arena-rooms/server/internal/telemetry"
)

// Reasons sent back in failed responses.
const (
	ReasonNotInRoom        = "You're not in a room"
	ReasonAlreadyInRoom    = "You're already in a room"
	ReasonNoCapacity       = "No free arenas, try again later"
	ReasonUsernameTooShort = "Username is too short"
	ReasonUsernameTooLong  = "Username is too long"
	ReasonUsernameInvalid  = "Username contains invalid characters"
	ReasonServerBusy       = "server busy"
	ReasonUnsupportedOp    = "unsupported operation"
	ReasonUnknownPlayer    = "not connected"
	ReasonBadPayload       = "malformed payload"
)

// Loop is the part of sched.Loop the dispatcher hands work to.
type Loop interface {
	Post(fn func()) error
	Submit(ctx context.Context, fn func()) error
}

// Coordinator is the matchmaking surface the dispatcher routes requests to.
// Every method runs on the loop goroutine.
type Coordinator interface {
	Connect(ctx context.Context, conn player.Conn) *player.Player
	Disconnect(ctx context.Context, id, reason string) bool
	Player(id string) (*player.Player, bool)
	HandleJoinRequest(ctx context.Context, p *player.Player) (matchmaking.JoinResult, error)
	HandleRoomReady(p *player.Player)
	HandleLeaveRequest(p *player.Player) error
	HandleChangeUsername(p *player.Player, raw string) (string, error)
}

// Config wires the dispatcher.
type Config struct {
	Loop        Loop
	Coordinator Coordinator
	Tracer      trace.Tracer
	Logger      telemetry.Logger
}

// Dispatcher decodes inbound frames and routes them onto the loop.
type Dispatcher struct {
	loop        Loop
	coordinator Coordinator
	tracer      trace.Tracer
	logger      telemetry.Logger
}

// NewDispatcher validates cfg and fills defaults.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Loop == nil {
		return nil, errors.New("intake: loop is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("intake: coordinator is required")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("arena-rooms/intake")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Dispatcher{
		loop:        cfg.Loop,
		coordinator: cfg.Coordinator,
		tracer:      tracer,
		logger:      logger,
	}, nil
}

// Connected registers conn with the coordinator.
func (d *Dispatcher) Connected(ctx context.Context, conn player.Conn) error {
	return d.loop.Submit(ctx, func() {
		d.coordinator.Connect(ctx, conn)
	})
}

// Disconnected removes the player behind id. It waits for queue space rather
// than dropping the cleanup.
func (d *Dispatcher) Disconnected(ctx context.Context, id, reason string) error {
	return d.loop.Submit(ctx, func() {
		d.coordinator.Disconnect(context.WithoutCancel(ctx), id, reason)
	})
}

// Dispatch handles one inbound frame from conn. Decode errors are returned to
// the caller; request failures are answered on conn.
func (d *Dispatcher) Dispatch(ctx context.Context, conn player.Conn, data []byte) error {
	env, err := proto.Decode(data)
	if err != nil {
		return fmt.Errorf("decode frame from %s: %w", conn.ID(), err)
	}

	if !env.Op.Inbound() {
		d.logger.Printf("[intake] unsupported op %s from %s", env.Op, conn.ID())
		d.fail(conn, env, ReasonUnsupportedOp)
		return nil
	}

	ctx, span := d.tracer.Start(ctx, "intake."+env.Op.String(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("arena.conn_id", conn.ID()),
			attribute.Int("arena.op", int(env.Op)),
			attribute.Int64("arena.seq", int64(env.Seq)),
		),
	)

	err = d.loop.Post(func() {
		defer span.End()
		d.handle(ctx, span, conn, env)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		d.fail(conn, env, Reason(err))
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, span trace.Span, conn player.Conn, env proto.Envelope) {
	p, ok := d.coordinator.Player(conn.ID())
	if !ok {
		d.failSpan(span, conn, env, ReasonUnknownPlayer)
		return
	}
	span.SetAttributes(attribute.Int64("arena.room_id", int64(p.RoomID())))

	switch env.Op {
	case proto.OpPlay:
		result, err := d.coordinator.HandleJoinRequest(ctx, p)
		if err != nil {
			span.RecordError(err)
			d.failSpan(span, conn, env, Reason(err))
			return
		}
		d.succeed(conn, env, proto.PlayResponse{
			RoomID:   result.RoomID,
			Position: result.Position.Array(),
		})
	case proto.OpLeaveGame:
		if err := d.coordinator.HandleLeaveRequest(p); err != nil {
			span.RecordError(err)
			d.failSpan(span, conn, env, Reason(err))
		}
	case proto.OpRoomInstantiated:
		d.coordinator.HandleRoomReady(p)
	case proto.OpChangeUsername:
		var req proto.ChangeUsernameRequest
		if err := env.DecodePayload(&req); err != nil {
			span.RecordError(err)
			d.failSpan(span, conn, env, ReasonBadPayload)
			return
		}
		if _, err := d.coordinator.HandleChangeUsername(p, req.Username); err != nil {
			span.RecordError(err)
			d.failSpan(span, conn, env, Reason(err))
			return
		}
		d.succeed(conn, env, nil)
	}
}

func (d *Dispatcher) succeed(conn player.Conn, env proto.Envelope, payload any) {
	frame, err := proto.EncodeSuccess(env.Op, env.Seq, payload)
	if err != nil {
		d.logger.Printf("[intake] encode %s response for %s: %v", env.Op, conn.ID(), err)
		return
	}
	d.write(conn, env, frame)
}

func (d *Dispatcher) failSpan(span trace.Span, conn player.Conn, env proto.Envelope, reason string) {
	span.SetStatus(codes.Error, reason)
	d.fail(conn, env, reason)
}

func (d *Dispatcher) fail(conn player.Conn, env proto.Envelope, reason string) {
	frame, err := proto.EncodeFailure(env.Op, env.Seq, reason)
	if err != nil {
		d.logger.Printf("[intake] encode %s failure for %s: %v", env.Op, conn.ID(), err)
		return
	}
	d.write(conn, env, frame)
}

func (d *Dispatcher) write(conn player.Conn, env proto.Envelope, frame []byte) {
	if err := conn.Send(frame); err != nil {
		d.logger.Printf("[intake] send %s response to %s: %v", env.Op, conn.ID(), err)
	}
}

// Reason maps a request error to the text sent in a failed response.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, matchmaking.ErrNotInRoom):
		return ReasonNotInRoom
	case errors.Is(err, matchmaking.ErrAlreadyInRoom):
		return ReasonAlreadyInRoom
	case errors.Is(err, matchmaking.ErrNoCapacity):
		return ReasonNoCapacity
	case errors.Is(err, player.ErrUsernameTooShort):
		return ReasonUsernameTooShort
	case errors.Is(err, player.ErrUsernameTooLong):
		return ReasonUsernameTooLong
	case errors.Is(err, player.ErrUsernameInvalid):
		return ReasonUsernameInvalid
	case errors.Is(err, sched.ErrQueueFull), errors.Is(err, sched.ErrStopped):
		return ReasonServerBusy
	default:
		return err.Error()
	}
}
