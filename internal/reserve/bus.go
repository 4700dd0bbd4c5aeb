// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import "context"

// Kind discriminates inbound bus messages.
type Kind string

const (
	// KindRequest is a competing ownership request from a peer. The
	// receiver must answer through Message.Reply.
	KindRequest Kind = "request"
	// KindOwnerChanged reports that a device's remote owner changed.
	// An empty peer means the device became free.
	KindOwnerChanged Kind = "owner-changed"
	// KindDisconnected reports the bus connection is gone. Terminal.
	KindDisconnected Kind = "disconnected"
)

// Message is one inbound notification from the request bus.
type Message struct {
	Kind     Kind
	Device   string
	Peer     string
	Priority int
	// Reply answers a KindRequest: true grants the device to the peer.
	Reply chan<- bool
}

// Bus abstracts the external request/response bus that arbitrates
// exclusive device ownership between applications. The production
// adapter speaks D-Bus; tests use a fake.
type Bus interface {
	// Acquire attempts to claim exclusive ownership of device with the
	// given priority. It returns false when the current owner denied
	// the request. Peer, when non-empty, names the owner that denied.
	Acquire(ctx context.Context, device string, priority int) (granted bool, peer string, err error)
	// Release gives up a previously acquired claim.
	Release(ctx context.Context, device string) error
	// Messages yields inbound requests and ownership notifications.
	// The channel closes when the bus connection is lost.
	Messages() <-chan Message
	// Close tears the connection down.
	Close() error
}
