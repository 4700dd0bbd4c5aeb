// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/plumberd/internal/log"
	"github.com/ManuGH/plumberd/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidArgument marks a rejected hook registration.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCycle marks a hook ordering cycle. The cyclic component is
	// skipped; the acyclic remainder still runs.
	ErrCycle = errors.New("hook ordering cycle")
)

// eventQueue orders pending events by (priority DESC, arrival ASC).
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq.Load() < q[j].seq.Load()
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*Event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// Dispatcher routes events to matching hooks in a deterministic partial
// order. All hook execution happens on the single goroutine running Run;
// hooks never run in parallel with each other or with themselves. An
// async hook that never completes its step stalls its event forever --
// there is no built-in watchdog.
type Dispatcher struct {
	logger zerolog.Logger

	mu    sync.Mutex
	hooks map[string]Hook
	queue eventQueue
	seq   uint64

	wake chan struct{}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		logger: log.WithComponent("dispatcher"),
		hooks:  make(map[string]Hook),
		wake:   make(chan struct{}, 1),
	}
}

// Register adds a hook. Registering a name twice replaces the prior
// hook. Hooks registered while an event is dispatching do not join that
// event's matched set.
func (d *Dispatcher) Register(h Hook) error {
	if h.Name() == "" {
		return fmt.Errorf("%w: hook with empty name", ErrInvalidArgument)
	}
	if len(h.Interests()) == 0 {
		return fmt.Errorf("%w: hook %q has no interests", ErrInvalidArgument, h.Name())
	}
	d.mu.Lock()
	_, replaced := d.hooks[h.Name()]
	d.hooks[h.Name()] = h
	d.mu.Unlock()

	d.logger.Debug().
		Str("event", "hook.registered").
		Str("hook", h.Name()).
		Bool("replaced", replaced).
		Msg("hook registered")
	return nil
}

// Unregister removes a hook by name. Unknown names are a no-op.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	delete(d.hooks, name)
	d.mu.Unlock()
}

// Push appends an event to the pending queue. If the dispatch loop is
// idle it picks the event up immediately; otherwise the event waits
// behind the one in flight. Safe to call from hooks: events pushed
// during dispatch run strictly after the current event completes.
func (d *Dispatcher) Push(ev *Event) {
	d.mu.Lock()
	d.seq++
	ev.seq.Store(d.seq)
	heap.Push(&d.queue, ev)
	depth := len(d.queue)
	d.mu.Unlock()

	metrics.EventsPushedTotal.WithLabelValues(ev.Type()).Inc()
	metrics.QueueDepth.Set(float64(depth))

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the current queue depth.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run executes the dispatch loop until ctx is cancelled. Events are
// processed one at a time in (priority DESC, arrival ASC) order.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		d.mu.Lock()
		var ev *Event
		if len(d.queue) > 0 {
			ev = heap.Pop(&d.queue).(*Event)
		}
		depth := len(d.queue)
		d.mu.Unlock()

		if ev == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-d.wake:
				continue
			}
		}

		metrics.QueueDepth.Set(float64(depth))

		select {
		case <-ctx.Done():
			ev.Cancel()
			ev.finish()
			return nil
		default:
		}

		d.dispatch(ctx, ev)
	}
}

// dispatch runs one event through its matched, ordered hook set.
func (d *Dispatcher) dispatch(ctx context.Context, ev *Event) {
	defer ev.finish()

	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	ctx = log.ContextWithEventID(ctx, ev.ID())
	logger := log.WithContext(ctx, d.logger)

	if ev.IsCancelled() {
		metrics.EventsDispatchedTotal.WithLabelValues("cancelled").Inc()
		return
	}

	// Matching happens once, against a snapshot of the registry.
	d.mu.Lock()
	matched := make([]Hook, 0, len(d.hooks))
	for _, h := range d.hooks {
		if hookMatches(h, ev) {
			matched = append(matched, h)
		}
	}
	d.mu.Unlock()

	ordered, cyclic := orderHooks(matched)
	if len(cyclic) > 0 {
		names := make([]string, 0, len(cyclic))
		for _, h := range cyclic {
			names = append(names, h.Name())
			metrics.IncHookRun(h.Name(), "skipped")
		}
		metrics.OrderingCyclesTotal.Inc()
		logger.Error().
			Str("event", "dispatch.cycle").
			Str("type", ev.Type()).
			Str("hooks", strings.Join(names, ",")).
			Err(ErrCycle).
			Msg("hook ordering cycle detected, skipping cyclic component")
	}

	logger.Debug().
		Str("event", "dispatch.start").
		Str("type", ev.Type()).
		Int("priority", ev.Priority()).
		Int("hooks", len(ordered)).
		Msg("dispatching event")

	cancelled := false
	for _, h := range ordered {
		if ev.IsCancelled() {
			cancelled = true
			metrics.IncHookRun(h.Name(), "skipped")
			continue
		}
		d.runHook(ctx, h, ev)
	}

	outcome := "completed"
	if cancelled || ev.IsCancelled() {
		outcome = "cancelled"
	}
	metrics.EventsDispatchedTotal.WithLabelValues(outcome).Inc()

	logger.Debug().
		Str("event", "dispatch.done").
		Str("type", ev.Type()).
		Str("outcome", outcome).
		Msg("event released")
}

// runHook executes one hook to termination. Hook failures are logged
// and swallowed; for before/after scheduling a failed hook counts as
// completed.
func (d *Dispatcher) runHook(ctx context.Context, h Hook, ev *Event) {
	hctx := log.ContextWithHook(ctx, h.Name())
	logger := log.WithContext(hctx, d.logger)

	var err error
	switch hook := h.(type) {
	case *SimpleHook:
		err = d.runSimple(hctx, hook, ev)
	case *AsyncHook:
		err = d.runAsync(hook, ev)
	default:
		err = fmt.Errorf("%w: unknown hook variant %T", ErrInvalidArgument, h)
	}

	if err != nil {
		metrics.IncHookRun(h.Name(), "error")
		logger.Warn().
			Err(err).
			Str("event", "hook.failed").
			Str("type", ev.Type()).
			Msg("hook failed, continuing with next hook")
		return
	}
	metrics.IncHookRun(h.Name(), "ok")
}

func (d *Dispatcher) runSimple(ctx context.Context, h *SimpleHook, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %q panicked: %v", h.Name(), r)
		}
	}()
	return h.run(ctx, ev)
}

// runAsync drives the NextStep/ExecuteStep pair until the hook returns
// StepNone or a step fails. The loop blocks until each step's
// completion handle fires, so the next hook never starts early. A
// cancelled event terminates the hook after its in-flight step reports.
func (d *Dispatcher) runAsync(h *AsyncHook, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %q panicked: %v", h.Name(), r)
		}
	}()

	prev := StepStart
	for {
		step := h.nextStep(ev, prev)
		if step == StepNone {
			return nil
		}

		comp := newCompletion(ev.Cancelled())
		h.executeStep(ev, step, comp)

		if stepErr := <-comp.ch; stepErr != nil {
			return fmt.Errorf("step %q: %w", step, stepErr)
		}
		if ev.IsCancelled() {
			return nil
		}
		prev = step
	}
}
