// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reserve

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/plumberd/internal/log"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog"
)

// D-Bus names per the device reservation protocol: each device claim is
// a well-known bus name, arbitration happens through RequestRelease on
// the name owner's object.
const (
	dbusNamePrefix = "org.freedesktop.ReserveDevice1."
	dbusPathPrefix = "/org/freedesktop/ReserveDevice1/"
	dbusInterface  = "org.freedesktop.ReserveDevice1"
)

// DBusBus is the production request-bus adapter, speaking the device
// reservation protocol over the D-Bus session bus.
type DBusBus struct {
	conn    *dbus.Conn
	appName string
	logger  zerolog.Logger
	msgs    chan Message

	mu     sync.Mutex
	held   map[string]bool
	closed bool
}

// ConnectSessionBus opens the session bus and starts listening for
// ownership changes on reservation names. appName is advertised on the
// property bag of every exported claim.
func ConnectSessionBus(ctx context.Context, appName string) (*DBusBus, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	b := &DBusBus{
		conn:    conn,
		appName: appName,
		logger:  log.WithComponent("reserve-dbus"),
		msgs:    make(chan Message, 16),
		held:    make(map[string]bool),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: subscribe NameOwnerChanged: %v", ErrServiceUnavailable, err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	go b.watch(signals)

	return b, nil
}

// watch translates bus signals into Messages and signals disconnection
// when the signal stream ends.
func (b *DBusBus) watch(signals chan *dbus.Signal) {
	for sig := range signals {
		if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
			continue
		}
		name, _ := sig.Body[0].(string)
		newOwner, _ := sig.Body[2].(string)
		device, ok := strings.CutPrefix(name, dbusNamePrefix)
		if !ok {
			continue
		}
		if newOwner == b.conn.Names()[0] {
			// Our own claim; reservations learn about it via Acquire.
			continue
		}
		b.send(Message{Kind: KindOwnerChanged, Device: device, Peer: newOwner})
	}

	b.send(Message{Kind: KindDisconnected})
	b.mu.Lock()
	closed := b.closed
	b.closed = true
	b.mu.Unlock()
	if !closed {
		close(b.msgs)
	}
}

func (b *DBusBus) send(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.msgs <- msg:
	default:
		b.logger.Warn().
			Str("event", "reserve.message_dropped").
			Str("device", msg.Device).
			Msg("inbound bus message dropped (backpressure)")
	}
}

// Acquire implements Bus. It requests the reservation name without
// queueing; when a peer already holds it, the peer is asked to release
// through RequestRelease and the claim is retried once.
func (b *DBusBus) Acquire(ctx context.Context, device string, priority int) (bool, string, error) {
	name := dbusNamePrefix + device

	reply, err := b.conn.RequestName(name, dbus.NameFlagAllowReplacement|dbus.NameFlagDoNotQueue)
	if err != nil {
		return false, "", fmt.Errorf("%w: request name: %v", ErrServiceUnavailable, err)
	}
	if reply == dbus.RequestNameReplyPrimaryOwner {
		b.exportReserveObject(device, priority)
		return true, "", nil
	}

	// Somebody owns it; ask them to step aside.
	var peer string
	if err := b.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.GetNameOwner", 0, name).Store(&peer); err != nil {
		peer = ""
	}

	var released bool
	obj := b.conn.Object(name, dbus.ObjectPath(dbusPathPrefix+device))
	if err := obj.CallWithContext(ctx, dbusInterface+".RequestRelease", 0, int32(priority)).Store(&released); err != nil {
		return false, peer, nil
	}
	if !released {
		return false, peer, nil
	}

	reply, err = b.conn.RequestName(name, dbus.NameFlagAllowReplacement|dbus.NameFlagDoNotQueue)
	if err != nil {
		return false, peer, fmt.Errorf("%w: request name after release: %v", ErrServiceUnavailable, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return false, peer, nil
	}
	b.exportReserveObject(device, priority)
	return true, "", nil
}

// reserveObject answers RequestRelease calls from competing peers by
// deferring the decision to the reservation manager.
type reserveObject struct {
	bus    *DBusBus
	device string
}

// RequestRelease is called over the bus by a competitor with its
// priority. The manager decides; on grant the name is released.
func (o *reserveObject) RequestRelease(priority int32) (bool, *dbus.Error) {
	reply := make(chan bool, 1)
	o.bus.send(Message{
		Kind:     KindRequest,
		Device:   o.device,
		Priority: int(priority),
		Reply:    reply,
	})
	granted := <-reply
	if granted {
		if _, err := o.bus.conn.ReleaseName(dbusNamePrefix + o.device); err != nil {
			return false, dbus.MakeFailedError(err)
		}
	}
	return granted, nil
}

func (b *DBusBus) exportReserveObject(device string, priority int) {
	path := dbus.ObjectPath(dbusPathPrefix + device)
	obj := &reserveObject{bus: b, device: device}
	if err := b.conn.Export(obj, path, dbusInterface); err != nil {
		b.logger.Warn().
			Err(err).
			Str("event", "reserve.export_failed").
			Str("device", device).
			Msg("failed to export reservation object")
	}

	propSpec := map[string]map[string]*prop.Prop{
		dbusInterface: {
			"ApplicationName":       {Value: b.appName, Emit: prop.EmitFalse},
			"ApplicationDeviceName": {Value: device, Emit: prop.EmitFalse},
			"Priority":              {Value: int32(priority), Emit: prop.EmitFalse},
		},
	}
	if _, err := prop.Export(b.conn, path, propSpec); err != nil {
		b.logger.Warn().
			Err(err).
			Str("event", "reserve.export_failed").
			Str("device", device).
			Msg("failed to export reservation properties")
	}

	b.mu.Lock()
	b.held[device] = true
	b.mu.Unlock()
}

// Release implements Bus.
func (b *DBusBus) Release(ctx context.Context, device string) error {
	b.mu.Lock()
	delete(b.held, device)
	b.mu.Unlock()

	if _, err := b.conn.ReleaseName(dbusNamePrefix + device); err != nil {
		return fmt.Errorf("%w: release name: %v", ErrServiceUnavailable, err)
	}
	return nil
}

// Messages implements Bus.
func (b *DBusBus) Messages() <-chan Message { return b.msgs }

// Close implements Bus.
func (b *DBusBus) Close() error {
	return b.conn.Close()
}

// Ensure compliance
var _ Bus = (*DBusBus)(nil)
