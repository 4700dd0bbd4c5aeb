// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/plumberd/internal/config"
	"github.com/ManuGH/plumberd/internal/event"
	"github.com/ManuGH/plumberd/internal/log"
	"github.com/ManuGH/plumberd/internal/props"
	"github.com/ManuGH/plumberd/internal/state"
	"github.com/ManuGH/plumberd/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func appConfig() config.Config {
	return config.Config{
		ConfigFile: "wireplumber.conf",
		Profile:    "main",
		// No metrics server in unit tests.
		MetricsAddr: "",
	}
}

func TestAppPumpsTransportEventsIntoDispatcher(t *testing.T) {
	d := event.NewDispatcher()

	var mu sync.Mutex
	var seen []string
	require.NoError(t, d.Register(event.NewSimpleHook("trace", func(ctx context.Context, ev *event.Event) error {
		mu.Lock()
		seen = append(seen, ev.Type())
		mu.Unlock()
		return nil
	}, event.WithInterest(props.NewInterest(props.TagAny).Build()))))

	adapter := transport.NewMemoryAdapter()
	app := NewApp(log.WithComponent("test"), appConfig(), d, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	ev, err := adapter.Publish(transport.TypeObjectAdded, props.TagNode, 0, nil, nil)
	require.NoError(t, err)

	select {
	case <-ev.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("published event was not dispatched")
	}

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, adapter.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{transport.TypeObjectAdded}, seen)
}

func TestAppExitsOnTransportDisconnect(t *testing.T) {
	d := event.NewDispatcher()
	adapter := transport.NewMemoryAdapter()
	app := NewApp(log.WithComponent("test"), appConfig(), d, adapter)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	cause := errors.New("socket closed")
	adapter.Disconnect(cause)

	err := <-done
	require.ErrorIs(t, err, ErrTransportLost)
	require.ErrorIs(t, err, cause)
}

func TestAppFlushesStatesOnShutdown(t *testing.T) {
	st, err := state.New("shutdown-flush", state.WithRoot(t.TempDir()), state.WithDebounce(time.Hour))
	require.NoError(t, err)
	st.SaveAfterTimeout(props.FromPairs("k", "v"))

	d := event.NewDispatcher()
	adapter := transport.NewMemoryAdapter()
	app := NewApp(log.WithComponent("test"), appConfig(), d, adapter, WithStates(st))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
	require.NoError(t, adapter.Close())

	v, ok := st.Load().Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}
