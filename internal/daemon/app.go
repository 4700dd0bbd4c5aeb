// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon owns the long-lived runtime lifecycle: the dispatch
// loop, the transport pump, the reservation manager and the
// observability server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/plumberd/internal/config"
	"github.com/ManuGH/plumberd/internal/event"
	"github.com/ManuGH/plumberd/internal/reserve"
	"github.com/ManuGH/plumberd/internal/state"
	"github.com/ManuGH/plumberd/internal/transport"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ErrTransportLost reports that the media server connection dropped;
// the wrapper maps it to the service-unavailable exit code.
var ErrTransportLost = errors.New("media server connection lost")

// App wires the core together and blocks in Run until shutdown.
type App struct {
	logger       zerolog.Logger
	cfg          config.Config
	dispatcher   *event.Dispatcher
	adapter      transport.Adapter
	reservations *reserve.Manager
	states       []*state.State
}

// Option customises the App.
type Option func(*App)

// WithReservations attaches a reservation manager whose message loop
// the app drives.
func WithReservations(m *reserve.Manager) Option {
	return func(a *App) { a.reservations = m }
}

// WithStates registers persistent stores the app flushes on shutdown.
func WithStates(states ...*state.State) Option {
	return func(a *App) { a.states = append(a.states, states...) }
}

// NewApp creates the runtime around an already-populated dispatcher.
func NewApp(logger zerolog.Logger, cfg config.Config, d *event.Dispatcher, adapter transport.Adapter, opts ...Option) *App {
	a := &App{
		logger:     logger,
		cfg:        cfg,
		dispatcher: d,
		adapter:    adapter,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts all owned subsystems and blocks until ctx is cancelled or
// a fatal error occurs. A lost transport surfaces as ErrTransportLost.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.dispatcher.Run(ctx)
	})

	// Transport pump: discovered objects become dispatched events.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-a.adapter.Events():
				if !ok {
					return nil
				}
				a.dispatcher.Push(ev)
			}
		}
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-a.adapter.Disconnected():
			a.logger.Error().
				Err(err).
				Str("event", "transport.disconnected").
				Msg("media server connection lost, shutting down")
			return fmt.Errorf("%w: %w", ErrTransportLost, err)
		}
	})

	if a.reservations != nil {
		g.Go(func() error {
			err := a.reservations.Run(ctx)
			if errors.Is(err, reserve.ErrServiceUnavailable) {
				// Bus loss degrades device arbitration but does not
				// take the daemon down.
				a.logger.Warn().
					Str("event", "reserve.degraded").
					Msg("request bus lost, device reservations disabled")
				return nil
			}
			return err
		})
	}

	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return a.serveMetrics(ctx)
		})
	}

	err := g.Wait()

	for _, st := range a.states {
		st.Stop()
	}

	return err
}

func (a *App) serveMetrics(ctx context.Context) error {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	a.logger.Info().
		Str("event", "metrics.listening").
		Str("addr", a.cfg.MetricsAddr).
		Msg("observability server started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
