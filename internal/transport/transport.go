// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transport is the seam between the session manager core and
// the media server. An adapter publishes discovered objects as events
// and signals when the server connection is lost; the daemon wrapper
// exits on that signal.
package transport

import (
	"errors"

	"github.com/ManuGH/plumberd/internal/event"
)

// Well-known property keys stamped onto transport events.
const (
	KeyEventType        = "event.type"
	KeyEventSubjectType = "event.subject.type"
	KeyNodeName         = "node.name"
	KeyMediaClass       = "media.class"
	KeyItemFactoryName  = "item.factory.name"
)

// Event type strings published by adapters.
const (
	TypeObjectAdded      = "object-added"
	TypeObjectRemoved    = "object-removed"
	TypeSessionItemAdded = "session-item-added"
	TypeSelectTarget     = "select-target"
)

// ErrClosed is returned when publishing through a closed adapter.
var ErrClosed = errors.New("transport closed")

// ErrDisconnected reports a lost media-server connection.
var ErrDisconnected = errors.New("media server disconnected")

// Adapter publishes media-graph activity as events.
type Adapter interface {
	// Events yields discovered-object events until the adapter closes.
	Events() <-chan *event.Event
	// Disconnected fires once when the server connection is lost.
	Disconnected() <-chan error
	// Close tears the adapter down and releases its resources.
	Close() error
}
