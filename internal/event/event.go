// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package event implements the core of the session manager: immutable
// media-graph events, declarative hooks, and the priority-ordered,
// topologically-scheduled dispatcher that routes one to the other.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ManuGH/plumberd/internal/props"
	"github.com/google/uuid"
)

// Event is an immutable record of something that happened in the media
// graph. The dispatcher assigns the arrival sequence at push time and
// releases the event once every selected hook has finished.
type Event struct {
	typ         string
	subjectType props.TypeTag
	priority    int
	subject     any
	properties  *props.Properties
	id          string

	seq atomic.Uint64

	cancelOnce sync.Once
	cancelled  chan struct{}

	doneOnce sync.Once
	done     chan struct{}
}

// New creates an event. Higher priority dispatches earlier. A nil
// properties bag is replaced with an empty one.
func New(typ string, subjectType props.TypeTag, priority int, subject any, p *props.Properties) *Event {
	if p == nil {
		p = props.New()
	}
	return &Event{
		typ:         typ,
		subjectType: subjectType,
		priority:    priority,
		subject:     subject,
		properties:  p,
		id:          uuid.New().String(),
		cancelled:   make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Type returns the event type string ("object-added", "select-target", ...).
func (e *Event) Type() string { return e.typ }

// SubjectType returns the runtime type tag of the subject.
func (e *Event) SubjectType() props.TypeTag { return e.subjectType }

// Priority returns the scheduling priority; higher runs earlier.
func (e *Event) Priority() int { return e.priority }

// Subject returns the opaque object reference the event is about.
func (e *Event) Subject() any { return e.subject }

// Properties returns the event's property bag. The bag must not be
// mutated while the event is in flight.
func (e *Event) Properties() *props.Properties { return e.properties }

// ID returns the correlation id attached to log records for this event.
func (e *Event) ID() string { return e.id }

// Sequence returns the arrival sequence assigned by the dispatcher, or
// zero before the event was pushed.
func (e *Event) Sequence() uint64 { return e.seq.Load() }

// Cancel marks the event as cancelled. The dispatcher skips the
// remaining hooks and signals the currently-running async hook through
// its completion handle. Safe to call from any goroutine, repeatedly.
func (e *Event) Cancel() {
	e.cancelOnce.Do(func() { close(e.cancelled) })
}

// Cancelled returns a channel closed when the event is cancelled.
func (e *Event) Cancelled() <-chan struct{} { return e.cancelled }

// IsCancelled reports whether Cancel was called.
func (e *Event) IsCancelled() bool {
	select {
	case <-e.cancelled:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once every selected hook has finished
// and the event is released.
func (e *Event) Done() <-chan struct{} { return e.done }

func (e *Event) finish() {
	e.doneOnce.Do(func() { close(e.done) })
}
