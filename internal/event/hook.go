// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

import (
	"context"
	"sync"

	"github.com/ManuGH/plumberd/internal/props"
)

// Step names with dispatcher-defined meaning.
const (
	// StepStart is the previous-step name passed to the first NextStep query.
	StepStart = "start"
	// StepNone terminates an async hook when returned from NextStep.
	StepNone = "none"
)

// Hook is a named, ordered, matched piece of policy logic. A hook
// matches an event iff any interest in its set matches the event's
// (type tag, properties). Before and After reference other hooks by
// name; names that do not match the event are ignored at schedule time.
type Hook interface {
	Name() string
	Before() []string
	After() []string
	Interests() []*props.Interest
}

// hookMeta carries the declarative part shared by both hook variants.
type hookMeta struct {
	name      string
	before    []string
	after     []string
	interests []*props.Interest
}

func (m *hookMeta) Name() string                 { return m.name }
func (m *hookMeta) Before() []string             { return m.before }
func (m *hookMeta) After() []string              { return m.after }
func (m *hookMeta) Interests() []*props.Interest { return m.interests }

// HookOption configures the declarative part of a hook.
type HookOption func(*hookMeta)

// WithBefore declares hooks this hook must run before.
func WithBefore(names ...string) HookOption {
	return func(m *hookMeta) { m.before = append(m.before, names...) }
}

// WithAfter declares hooks this hook must run after.
func WithAfter(names ...string) HookOption {
	return func(m *hookMeta) { m.after = append(m.after, names...) }
}

// WithInterest adds one interest to the hook's interest set.
func WithInterest(i *props.Interest) HookOption {
	return func(m *hookMeta) { m.interests = append(m.interests, i) }
}

// SimpleHook runs a single closure per matched event. A returned error
// is logged at warning and dispatch continues with the next hook.
type SimpleHook struct {
	hookMeta
	run func(ctx context.Context, ev *Event) error
}

// NewSimpleHook builds a sync hook.
func NewSimpleHook(name string, run func(ctx context.Context, ev *Event) error, opts ...HookOption) *SimpleHook {
	h := &SimpleHook{hookMeta: hookMeta{name: name}, run: run}
	for _, opt := range opts {
		opt(&h.hookMeta)
	}
	return h
}

// AsyncHook is a state machine driven by the dispatcher: NextStep names
// the step to execute next (StepNone terminates), ExecuteStep performs
// it and reports through the completion handle, possibly after external
// I/O. The first query is NextStep(ev, StepStart).
type AsyncHook struct {
	hookMeta
	nextStep    func(ev *Event, prev string) string
	executeStep func(ev *Event, step string, done *Completion)
}

// NewAsyncHook builds an async hook from its step pair.
func NewAsyncHook(
	name string,
	nextStep func(ev *Event, prev string) string,
	executeStep func(ev *Event, step string, done *Completion),
	opts ...HookOption,
) *AsyncHook {
	h := &AsyncHook{hookMeta: hookMeta{name: name}, nextStep: nextStep, executeStep: executeStep}
	for _, opt := range opts {
		opt(&h.hookMeta)
	}
	return h
}

// Completion is the handle an async step uses to report back. Done may
// be called from any goroutine; only the first call counts. Steps that
// wait on external I/O should watch Cancelled and finish promptly once
// it fires.
type Completion struct {
	once      sync.Once
	ch        chan error
	cancelled <-chan struct{}
}

func newCompletion(cancelled <-chan struct{}) *Completion {
	return &Completion{ch: make(chan error, 1), cancelled: cancelled}
}

// Done reports the step result. A nil error advances the hook to its
// next step; a non-nil error terminates the hook.
func (c *Completion) Done(err error) {
	c.once.Do(func() { c.ch <- err })
}

// Cancelled returns a channel closed when the event was cancelled while
// the step is in flight.
func (c *Completion) Cancelled() <-chan struct{} { return c.cancelled }

// hookMatches reports whether any interest in the hook's set matches ev.
func hookMatches(h Hook, ev *Event) bool {
	for _, i := range h.Interests() {
		if i.Matches(ev.SubjectType(), ev.Properties()) {
			return true
		}
	}
	return false
}
