package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"arena-rooms/server/internal/telemetry"
	"arena-rooms/server/logging"
)

// ErrQueueFull is returned when the task queue cannot accept more work.
var ErrQueueFull = errors.New("server busy")

// ErrStopped is returned when work is handed to a loop that has exited.
var ErrStopped = errors.New("session loop stopped")

// Scheduler is what session components need from the loop: the current loop
// time, the tick counter for log events, and one-shot timers. All three are
// only valid on the loop goroutine.
type Scheduler interface {
	Now() time.Time
	Tick() uint64
	After(d time.Duration, fn func()) *Timer
}

// LoopConfig tunes the task queue and timer tick.
type LoopConfig struct {
	TickRate      int
	QueueCapacity int
}

// LoopHooks observe the loop from the outside.
type LoopHooks struct {
	AfterStep     func(StepResult)
	OnQueueReject func()
}

// StepResult summarises one tick.
type StepResult struct {
	Tick        uint64
	Now         time.Time
	TimersFired int
	Pending     int
	Duration    time.Duration
}

// Loop owns the single goroutine on which rooms, matchmaking and the session
// state machines run. Other goroutines hand it closures with Post or Call;
// timers are evaluated once per tick in due order.
type Loop struct {
	config  LoopConfig
	clock   logging.Clock
	hooks   LoopHooks
	queue   chan func()
	timers  timerHeap
	seq     uint64
	now     time.Time
	tick    atomic.Uint64
	stopped atomic.Bool
	logger  telemetry.Logger
}

// NewLoop builds a loop reading time from clock. A nil clock uses the wall
// clock.
func NewLoop(cfg LoopConfig, clock logging.Clock, hooks LoopHooks, logger telemetry.Logger) *Loop {
	if clock == nil {
		clock = logging.SystemClock{}
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 15
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Loop{
		config: cfg,
		clock:  clock,
		hooks:  hooks,
		queue:  make(chan func(), cfg.QueueCapacity),
		now:    clock.Now(),
		logger: logger,
	}
}

// Now reports loop time.
func (l *Loop) Now() time.Time {
	return l.now
}

// Tick reports the number of completed ticks.
func (l *Loop) Tick() uint64 {
	return l.tick.Load()
}

// Pending reports queued tasks that have not run yet.
func (l *Loop) Pending() int {
	return len(l.queue)
}

// After schedules fn to run on the loop once d has elapsed in loop time.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	if d < 0 {
		d = 0
	}
	l.seq++
	timer := &Timer{due: l.now.Add(d), seq: l.seq, fn: fn, index: -1, heap: &l.timers}
	l.timers.push(timer)
	return timer
}

// Post hands fn to the loop without blocking.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	if l.stopped.Load() {
		return ErrStopped
	}
	select {
	case l.queue <- fn:
		return nil
	default:
		if l.hooks.OnQueueReject != nil {
			l.hooks.OnQueueReject()
		}
		return ErrQueueFull
	}
}

// Submit hands fn to the loop, waiting for queue space until ctx is done.
// It is for work that must not be dropped, such as disconnect cleanup.
func (l *Loop) Submit(ctx context.Context, fn func()) error {
	if fn == nil {
		return nil
	}
	if l.stopped.Load() {
		return ErrStopped
	}
	select {
	case l.queue <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance moves loop time forward by d, running queued tasks and every timer
// that falls due on the way. It is the deterministic driver used by tests and
// must not be mixed with Run.
func (l *Loop) Advance(d time.Duration) StepResult {
	return l.step(l.now.Add(d))
}

// Drain runs queued tasks without moving time.
func (l *Loop) Drain() int {
	ran := 0
	for {
		select {
		case fn := <-l.queue:
			l.runTask(fn)
			ran++
		default:
			return ran
		}
	}
}

// Run drives the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.config.TickRate))
	defer ticker.Stop()
	defer l.stopped.Store(true)

	for {
		select {
		case <-ctx.Done():
			l.Drain()
			return nil
		case fn := <-l.queue:
			if now := l.clock.Now(); now.After(l.now) {
				l.now = now
			}
			l.runTask(fn)
		case <-ticker.C:
			start := l.clock.Now()
			target := start
			if target.Before(l.now) {
				target = l.now
			}
			result := l.step(target)
			result.Duration = l.clock.Now().Sub(start)
			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

func (l *Loop) step(target time.Time) StepResult {
	l.Drain()
	fired := 0
	for {
		next := l.timers.peek()
		if next == nil || next.due.After(target) {
			break
		}
		l.timers.pop()
		if next.due.After(l.now) {
			l.now = next.due
		}
		next.fired = true
		l.runTask(next.fn)
		fired++
		l.Drain()
	}
	if target.After(l.now) {
		l.now = target
	}
	tick := l.tick.Add(1)
	return StepResult{Tick: tick, Now: l.now, TimersFired: fired, Pending: len(l.queue)}
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("[loop] task panicked: %v", r)
		}
	}()
	fn()
}

var _ Scheduler = (*Loop)(nil)
