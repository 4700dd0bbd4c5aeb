// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package policy provides the built-in hooks shipped with the daemon:
// remembering routing decisions across runs and arbitrating exclusive
// device access for audio devices.
package policy

import (
	"context"

	"github.com/ManuGH/plumberd/internal/event"
	"github.com/ManuGH/plumberd/internal/log"
	"github.com/ManuGH/plumberd/internal/props"
	"github.com/ManuGH/plumberd/internal/registry"
	"github.com/ManuGH/plumberd/internal/reserve"
	"github.com/ManuGH/plumberd/internal/state"
	"github.com/ManuGH/plumberd/internal/transport"
)

// Hook names, referenced by Before/After declarations.
const (
	HookStoreTarget   = "store-select-target"
	HookReserveDevice = "reserve-device"
)

// Property key under which select-target events carry the chosen target.
const KeyTargetNode = "target.node.name"

// NewStoreTargetHook returns a sync hook that records select-target
// decisions into st, debounced so bursts of routing changes coalesce
// into one write.
func NewStoreTargetHook(st *state.State) *event.SimpleHook {
	logger := log.WithComponent("policy")
	// current is the latest bag handed to st; a pending debounced write
	// is not on disk yet, so reloading would drop earlier decisions.
	var current *props.Properties
	return event.NewSimpleHook(HookStoreTarget,
		func(ctx context.Context, ev *event.Event) error {
			node, ok := ev.Properties().Get(transport.KeyNodeName)
			if !ok {
				return nil
			}
			target, ok := ev.Properties().Get(KeyTargetNode)
			if !ok {
				return nil
			}

			if current == nil {
				current = st.Load()
			}
			bag := current.Clone()
			if err := bag.Set(node, target); err != nil {
				return err
			}
			current = bag
			st.SaveAfterTimeout(bag)

			logger.Debug().
				Str("event", "policy.target_stored").
				Str("node", node).
				Str("target", target).
				Msg("remembered routing decision")
			return nil
		},
		event.WithInterest(props.NewInterest(props.TagNode).
			Constrain(props.SubjectProperty, transport.KeyEventType, props.OpEquals, transport.TypeSelectTarget).
			Build()),
	)
}

// NewReserveDeviceHook returns the canonical async hook: on discovery of
// an ALSA audio device it creates a reservation and claims exclusive
// ownership over the request bus. The bus round-trip runs off the loop;
// the completion handle reports back.
func NewReserveDeviceHook() *event.AsyncHook {
	logger := log.WithComponent("policy")

	const stepAcquire = "acquire"

	nextStep := func(ev *event.Event, prev string) string {
		if prev == event.StepStart {
			return stepAcquire
		}
		return event.StepNone
	}

	executeStep := func(ev *event.Event, step string, done *event.Completion) {
		mgr, ok := registry.As[*reserve.Manager](reserve.RegistryName)
		if !ok {
			logger.Info().
				Str("event", "policy.reserve_skipped").
				Msg("no reservation manager available, device claim skipped")
			done.Done(nil)
			return
		}

		device, ok := ev.Properties().Get("api.alsa.card.name")
		if !ok {
			done.Done(nil)
			return
		}
		priority := 10
		if _, monitor := ev.Properties().Get("device.monitor"); monitor {
			priority = 0
		}

		res, err := mgr.Create(device, "PipeWire Session Manager", device, priority)
		if err != nil {
			done.Done(err)
			return
		}

		go func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				select {
				case <-done.Cancelled():
					cancel()
				case <-ctx.Done():
				}
			}()

			granted, err := res.Acquire(ctx)
			if err != nil {
				done.Done(err)
				return
			}
			if !granted {
				_, peer := res.Owner()
				logger.Info().
					Str("event", "policy.reserve_denied").
					Str("device", device).
					Str("peer", peer).
					Msg("device held by a peer, staying passive")
			}
			done.Done(nil)
		}()
	}

	return event.NewAsyncHook(HookReserveDevice, nextStep, executeStep,
		event.WithInterest(props.NewInterest(props.TagDevice).
			Constrain(props.SubjectProperty, transport.KeyEventType, props.OpEquals, transport.TypeObjectAdded).
			Constrain(props.SubjectProperty, transport.KeyMediaClass, props.OpMatchesGlob, "Audio/*").
			Build()),
	)
}
