// Package dispatch implements the event loop at the center of the daemon:
// a single queue carrying tool calls and channel activity, a resumption
// path for suspended calls, and an orderly drain on shutdown.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"twind/internal/channel"
	"twind/internal/subchat"
	"twind/internal/tools"
	"twind/internal/types"
)

// ErrDraining is returned by Submit once shutdown has begun.
var ErrDraining = errors.New("dispatcher is draining")

// ReplyFunc delivers a tool call's final result back to its issuer. It is
// invoked exactly once, from a dispatcher goroutine.
type ReplyFunc func(result string, err error)

// Event is one unit of work on the queue: either a tool call with its
// reply path, or an inbound activity event. Call events must carry a
// non-nil Reply; without one a suspended call could never be delivered.
type Event struct {
	Call     *types.ToolCall
	Reply    ReplyFunc
	Activity *types.ActivityEvent
}

// Persona is the hook surface the dispatcher drives on the activity and
// resumption paths.
type Persona interface {
	OnActivity(ev types.ActivityEvent)
	OnResume(callID string)
}

// Config tunes the dispatcher.
type Config struct {
	// QueueSize bounds the event queue.
	QueueSize int

	// Tick is the bounded wait while idle; shutdown is observed at this
	// cadence even with no traffic.
	Tick time.Duration

	// DrainTimeout bounds resource release on shutdown.
	DrainTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:    64,
		Tick:         500 * time.Millisecond,
		DrainTimeout: 5 * time.Second,
	}
}

// Dispatcher runs the event loop. States: Idle (serving the queue) and
// Draining (releasing resources); the transition happens once, on context
// cancellation.
type Dispatcher struct {
	reg      *tools.Registry
	engine   *subchat.Engine
	persona  Persona
	adapters []channel.Adapter
	closers  []io.Closer
	cfg      Config
	log      *zap.Logger

	queue    chan Event
	resume   *resumeTable
	handlers sync.WaitGroup
	draining chan struct{}
	once     sync.Once
}

// New creates a dispatcher. closers are released after the adapters during
// drain (typically the store).
func New(reg *tools.Registry, engine *subchat.Engine, persona Persona, adapters []channel.Adapter, closers []io.Closer, cfg Config, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig().Tick
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	return &Dispatcher{
		reg:      reg,
		engine:   engine,
		persona:  persona,
		adapters: adapters,
		closers:  closers,
		cfg:      cfg,
		log:      log.Named("dispatch"),
		queue:    make(chan Event, cfg.QueueSize),
		resume:   newResumeTable(),
		draining: make(chan struct{}),
	}
}

// Submit enqueues an event. It fails once draining has begun or when the
// queue stays full past the idle tick.
func (d *Dispatcher) Submit(ev Event) error {
	select {
	case <-d.draining:
		return ErrDraining
	default:
	}

	select {
	case d.queue <- ev:
		return nil
	case <-d.draining:
		return ErrDraining
	case <-time.After(d.cfg.Tick):
		return fmt.Errorf("event queue full (%d)", d.cfg.QueueSize)
	}
}

// Run serves the queue until ctx is cancelled, then drains. It returns the
// first resource-release error, if any.
func (d *Dispatcher) Run(ctx context.Context) error {
	pumpCtx, stopPumps := context.WithCancel(ctx)
	defer stopPumps()

	var pumps sync.WaitGroup
	for _, a := range d.adapters {
		events := a.Subscribe()
		if events == nil {
			continue
		}
		pumps.Add(1)
		go d.pump(pumpCtx, &pumps, a.Name(), events)
	}

	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return d.drain(stopPumps, &pumps)

		case ev := <-d.queue:
			d.handlers.Add(1)
			go d.handle(ctx, ev)

		case res := <-d.engine.Resumptions():
			d.resume.Resolve(res.CallID, res.Results)
			d.persona.OnResume(res.CallID)

		case <-ticker.C:
			// Idle heartbeat; keeps the wait bounded.
			d.log.Debug("idle", zap.Int("queued", len(d.queue)))
		}
	}
}

// pump forwards one adapter's inbound stream onto the queue.
func (d *Dispatcher) pump(ctx context.Context, wg *sync.WaitGroup, name string, events <-chan types.ActivityEvent) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := d.Submit(Event{Activity: &ev}); err != nil {
				d.log.Warn("dropped activity event",
					zap.String("channel", name),
					zap.Error(err))
			}
		}
	}
}

// handle processes one event on its own goroutine. A panic in a handler is
// recovered and reported through the reply path; it never kills the loop.
func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	defer d.handlers.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked", zap.Any("panic", r))
			if ev.Reply != nil {
				ev.Reply("", fmt.Errorf("handler panicked: %v", r))
			}
		}
	}()

	switch {
	case ev.Call != nil:
		if ev.Reply == nil {
			d.log.Error("discarded tool call without reply path",
				zap.String("call_id", ev.Call.ID),
				zap.String("tool", ev.Call.Name))
			return
		}
		outcome, err := d.reg.Dispatch(ctx, *ev.Call)
		if err != nil {
			ev.Reply("", err)
			return
		}
		if outcome.Pending() {
			d.resume.Register(ev.Call.ID, ev.Reply)
			return
		}
		ev.Reply(outcome.Result, nil)

	case ev.Activity != nil:
		d.persona.OnActivity(*ev.Activity)

	default:
		d.log.Warn("discarded empty event")
	}
}

// drain transitions to Draining: stop intake, wait briefly for in-flight
// handlers, then release adapters and store. In-flight subchats are
// abandoned via their context. Resources are released on every path.
func (d *Dispatcher) drain(stopPumps context.CancelFunc, pumps *sync.WaitGroup) error {
	d.once.Do(func() { close(d.draining) })
	d.log.Info("draining")

	stopPumps()
	pumps.Wait()

	done := make(chan struct{})
	go func() {
		d.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.DrainTimeout):
		d.log.Warn("drain timeout waiting for handlers")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), d.cfg.DrainTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(closeCtx)
	for _, a := range d.adapters {
		a := a
		g.Go(func() error {
			if err := a.Close(); err != nil {
				return fmt.Errorf("close %s adapter: %w", a.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	for _, c := range d.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	d.log.Info("drained")
	return err
}
