// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reserve coordinates exclusive device ownership over an
// external request bus. Each Reservation advertises a local claim on a
// named device and arbitrates competing claims by priority.
package reserve

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/plumberd/internal/log"
	"github.com/ManuGH/plumberd/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	// ErrServiceUnavailable marks operations attempted after the bus
	// connection was lost.
	ErrServiceUnavailable = errors.New("request bus unavailable")
	// ErrInvalidArgument marks a rejected reservation parameter.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Owner is the ownership state of a reservation.
type Owner string

const (
	// Unowned: no claim anywhere; peer requests are answered "free".
	Unowned Owner = "unowned"
	// OwnedLocal: this instance holds the claim.
	OwnedLocal Owner = "owned-local"
	// OwnedRemote: a peer holds the claim.
	OwnedRemote Owner = "owned-remote"
	// Disconnected: terminal; the bus connection is gone.
	Disconnected Owner = "disconnected"
)

// Reservation is one device claim. All transitions run through the
// manager's loop or the local Acquire/Release calls; state is guarded
// for the cross-goroutine reads tests and metrics perform.
type Reservation struct {
	name     string
	appName  string
	appDev   string
	priority int

	bus    Bus
	logger zerolog.Logger

	mu    sync.Mutex
	owner Owner
	peer  string
}

// Name returns the reserved device name.
func (r *Reservation) Name() string { return r.name }

// ApplicationName returns the owning application's display name.
func (r *Reservation) ApplicationName() string { return r.appName }

// ApplicationDeviceName returns the device's display name.
func (r *Reservation) ApplicationDeviceName() string { return r.appDev }

// Priority returns the local claim priority.
func (r *Reservation) Priority() int { return r.priority }

// Owner returns the current ownership state and, for OwnedRemote, the
// peer holding the claim.
func (r *Reservation) Owner() (Owner, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner, r.peer
}

func (r *Reservation) setOwner(owner Owner, peer string) {
	r.mu.Lock()
	changed := r.owner != owner || r.peer != peer
	r.owner = owner
	r.peer = peer
	r.mu.Unlock()

	if changed {
		metrics.ReservationTransitionsTotal.WithLabelValues(string(owner)).Inc()
		r.logger.Info().
			Str("event", "reservation.transition").
			Str("device", r.name).
			Str("state", string(owner)).
			Str("peer", peer).
			Msg("reservation ownership changed")
	}
}

// Acquire attempts to claim the device. It reports false when a peer
// denied the claim, in which case the reservation stays OwnedRemote.
// Acquiring an already-held claim is a no-op.
func (r *Reservation) Acquire(ctx context.Context) (bool, error) {
	owner, _ := r.Owner()
	switch owner {
	case Disconnected:
		return false, ErrServiceUnavailable
	case OwnedLocal:
		return true, nil
	}

	granted, peer, err := r.bus.Acquire(ctx, r.name, r.priority)
	if err != nil {
		return false, fmt.Errorf("acquire %q: %w", r.name, err)
	}
	if granted {
		r.setOwner(OwnedLocal, "")
		return true, nil
	}
	r.setOwner(OwnedRemote, peer)
	return false, nil
}

// Release gives up a local claim. Releasing an unheld claim is a no-op.
func (r *Reservation) Release(ctx context.Context) error {
	owner, _ := r.Owner()
	if owner != OwnedLocal {
		return nil
	}
	if err := r.bus.Release(ctx, r.name); err != nil {
		return fmt.Errorf("release %q: %w", r.name, err)
	}
	r.setOwner(Unowned, "")
	return nil
}

// handleRequest answers a competing claim from peer. Grants when the
// device is free, or when the competitor's priority strictly exceeds
// ours (in which case the local claim is released first).
func (r *Reservation) handleRequest(ctx context.Context, peer string, priority int) bool {
	owner, _ := r.Owner()
	switch owner {
	case Unowned:
		r.setOwner(OwnedRemote, peer)
		return true
	case OwnedLocal:
		if priority <= r.priority {
			r.logger.Debug().
				Str("event", "reservation.request_denied").
				Str("device", r.name).
				Str("peer", peer).
				Int("peer_priority", priority).
				Int("local_priority", r.priority).
				Msg("denied competing request")
			return false
		}
		if err := r.bus.Release(ctx, r.name); err != nil {
			r.logger.Warn().
				Err(err).
				Str("event", "reservation.release_failed").
				Str("device", r.name).
				Msg("failed to release outbid claim")
		}
		r.setOwner(OwnedRemote, peer)
		return true
	case OwnedRemote:
		// Not ours to answer; the owning peer arbitrates.
		return false
	default:
		return false
	}
}

// handleOwnerChanged applies a remote ownership notification. An empty
// peer means the device became free; a non-empty peer holds it now. A
// notification about our own claim (OwnedLocal, device free) is an echo
// of local activity and is ignored.
func (r *Reservation) handleOwnerChanged(peer string) {
	owner, _ := r.Owner()
	if owner == Disconnected {
		return
	}
	if peer == "" {
		if owner == OwnedLocal {
			return
		}
		r.setOwner(Unowned, "")
		return
	}
	r.setOwner(OwnedRemote, peer)
}

// Manager owns the reservation table and drives it from bus messages.
// Hooks look it up through the component registry under RegistryName.
type Manager struct {
	bus    Bus
	logger zerolog.Logger

	mu           sync.Mutex
	reservations map[string]*Reservation
	disconnected bool
}

// RegistryName is the component registry key the manager is installed under.
const RegistryName = "reservation-manager"

// NewManager creates a manager speaking over bus.
func NewManager(bus Bus) *Manager {
	return &Manager{
		bus:          bus,
		logger:       log.WithComponent("reserve"),
		reservations: make(map[string]*Reservation),
	}
}

// Create returns the reservation for name, creating it on first use.
// Creation after bus loss fails with ErrServiceUnavailable.
func (m *Manager) Create(name, appName, appDev string, priority int) (*Reservation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty device name", ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnected {
		return nil, ErrServiceUnavailable
	}
	if r, ok := m.reservations[name]; ok {
		return r, nil
	}
	r := &Reservation{
		name:     name,
		appName:  appName,
		appDev:   appDev,
		priority: priority,
		bus:      m.bus,
		logger:   m.logger,
		owner:    Unowned,
	}
	m.reservations[name] = r
	return r, nil
}

// Lookup returns the reservation for name, if one exists.
func (m *Manager) Lookup(name string) (*Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[name]
	return r, ok
}

// Destroy releases and removes the reservation for name.
func (m *Manager) Destroy(ctx context.Context, name string) error {
	m.mu.Lock()
	r, ok := m.reservations[name]
	delete(m.reservations, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Release(ctx)
}

// Run consumes bus messages until the connection is lost or ctx is
// cancelled. On bus loss every reservation transitions to the terminal
// Disconnected state and all claims are dropped.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-m.bus.Messages():
			if !ok {
				m.disconnectAll()
				return ErrServiceUnavailable
			}
			m.handle(ctx, msg)
		}
	}
}

func (m *Manager) handle(ctx context.Context, msg Message) {
	if msg.Kind == KindDisconnected {
		m.disconnectAll()
		return
	}

	m.mu.Lock()
	r, ok := m.reservations[msg.Device]
	m.mu.Unlock()

	switch msg.Kind {
	case KindRequest:
		granted := false
		if ok {
			granted = r.handleRequest(ctx, msg.Peer, msg.Priority)
		}
		if msg.Reply != nil {
			msg.Reply <- granted
		}
	case KindOwnerChanged:
		if ok {
			r.handleOwnerChanged(msg.Peer)
		}
	}
}

func (m *Manager) disconnectAll() {
	m.mu.Lock()
	reservations := m.reservations
	m.reservations = make(map[string]*Reservation)
	m.disconnected = true
	m.mu.Unlock()

	for _, r := range reservations {
		r.setOwner(Disconnected, "")
	}
	m.logger.Warn().
		Str("event", "reserve.bus_lost").
		Int("reservations", len(reservations)).
		Msg("request bus connection lost, all claims released")
}
