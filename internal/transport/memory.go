// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transport

import (
	"sync"

	"github.com/ManuGH/plumberd/internal/event"
	"github.com/ManuGH/plumberd/internal/props"
)

// MemoryAdapter is an in-process adapter used for unit tests and local
// prototyping. It is not durable; events are delivered while the
// adapter remains open.
type MemoryAdapter struct {
	events chan *event.Event
	disc   chan error

	mu     sync.Mutex
	closed bool
}

// NewMemoryAdapter creates an open adapter with a small delivery buffer.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		events: make(chan *event.Event, 64),
		disc:   make(chan error, 1),
	}
}

// Publish constructs an event for the given object and queues it. The
// supplied bag is cloned before the transport stamps its own keys, so
// the caller's handle stays untouched.
func (m *MemoryAdapter) Publish(typ string, tag props.TypeTag, priority int, subject any, p *props.Properties) (*event.Event, error) {
	if p == nil {
		p = props.New()
	}
	bag := p.Clone()
	if err := bag.Set(KeyEventType, typ); err != nil {
		return nil, err
	}
	if err := bag.Set(KeyEventSubjectType, string(tag)); err != nil {
		return nil, err
	}

	ev := event.New(typ, tag, priority, subject, bag)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.events <- ev
	return ev, nil
}

// Disconnect simulates losing the media server. The adapter closes and
// the disconnect reason is surfaced once.
func (m *MemoryAdapter) Disconnect(err error) {
	if err == nil {
		err = ErrDisconnected
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.events)
	m.mu.Unlock()

	m.disc <- err
}

// Events implements Adapter.
func (m *MemoryAdapter) Events() <-chan *event.Event { return m.events }

// Disconnected implements Adapter.
func (m *MemoryAdapter) Disconnected() <-chan error { return m.disc }

// Close implements Adapter. Closing is not a disconnect: no error is
// surfaced, the event stream just ends.
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

// Ensure compliance
var _ Adapter = (*MemoryAdapter)(nil)
