// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/plumberd/internal/config"
	"github.com/ManuGH/plumberd/internal/daemon"
	"github.com/ManuGH/plumberd/internal/event"
	xglog "github.com/ManuGH/plumberd/internal/log"
	"github.com/ManuGH/plumberd/internal/policy"
	"github.com/ManuGH/plumberd/internal/registry"
	"github.com/ManuGH/plumberd/internal/reserve"
	"github.com/ManuGH/plumberd/internal/state"
	"github.com/ManuGH/plumberd/internal/transport"
	"github.com/ManuGH/plumberd/internal/version"
)

// Exit codes based on sysexits.h.
const (
	exitOK          = 0
	exitUsage       = 64
	exitUnavailable = 69
	exitSoftware    = 70
	exitConfig      = 78
)

type options struct {
	showVersion bool
	configFile  string
	profile     string
}

func parseArgs(args []string, output io.Writer) (options, error) {
	fs := flag.NewFlagSet("plumberd", flag.ContinueOnError)
	fs.SetOutput(output)

	var o options
	fs.BoolVar(&o.showVersion, "v", false, "print version and exit")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	fs.StringVar(&o.configFile, "c", "", "configuration `filename`")
	fs.StringVar(&o.configFile, "config-file", "", "configuration `filename`")
	fs.StringVar(&o.profile, "p", "", "profile `name`")
	fs.StringVar(&o.profile, "profile", "", "profile `name`")

	err := fs.Parse(args)
	return o, err
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "plumberd %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		return exitOK
	}

	cfg := config.FromEnv()
	if opts.configFile != "" {
		cfg.ConfigFile = opts.configFile
	}
	if opts.profile != "" {
		cfg.Profile = opts.profile
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "plumberd",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Error().
			Err(err).
			Str("event", "config.invalid").
			Msg("refusing to start with invalid configuration")
		return exitConfig
	}

	logger.Info().
		Str("event", "daemon.starting").
		Str("config_file", cfg.ConfigFile).
		Str("profile", cfg.Profile).
		Msg("starting session manager")

	// Graceful shutdown on the usual signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	dispatcher := event.NewDispatcher()

	targets, err := state.New("default-targets", state.WithRoot(cfg.StateRoot()))
	if err != nil {
		logger.Error().
			Err(err).
			Str("event", "state.open_failed").
			Msg("cannot open persistent state")
		return exitSoftware
	}

	if err := dispatcher.Register(policy.NewStoreTargetHook(targets)); err != nil {
		logger.Error().Err(err).Msg("failed to register store-target hook")
		return exitSoftware
	}
	if err := dispatcher.Register(policy.NewReserveDeviceHook()); err != nil {
		logger.Error().Err(err).Msg("failed to register reserve-device hook")
		return exitSoftware
	}

	appOpts := []daemon.Option{daemon.WithStates(targets)}

	// Device reservation rides the session bus; without it the daemon
	// still runs, only arbitration is disabled.
	if bus, busErr := reserve.ConnectSessionBus(ctx, "PipeWire Session Manager"); busErr != nil {
		logger.Info().
			Err(busErr).
			Str("event", "reserve.unavailable").
			Msg("request bus unavailable, device reservations disabled")
	} else {
		defer bus.Close() //nolint:errcheck // shutdown path
		mgr := reserve.NewManager(bus)
		if err := registry.Register(reserve.RegistryName, mgr); err != nil {
			logger.Warn().Err(err).Msg("reservation manager already registered")
		}
		appOpts = append(appOpts, daemon.WithReservations(mgr))
	}
	defer registry.Reset()

	// The media-server transport is pluggable; the embedding product
	// swaps in its own adapter. Standalone, the daemon idles on an
	// in-memory adapter until the wrapper feeds it.
	adapter := transport.NewMemoryAdapter()
	defer adapter.Close() //nolint:errcheck // shutdown path

	app := daemon.NewApp(logger, cfg, dispatcher, adapter, appOpts...)
	runErr := app.Run(ctx)
	if runErr != nil {
		logger.Error().
			Err(runErr).
			Str("event", "daemon.failed").
			Msg("session manager terminated with error")
	} else {
		logger.Info().
			Str("event", "daemon.stopped").
			Msg("session manager stopped")
	}
	return mapExitCode(runErr)
}

func mapExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, daemon.ErrTransportLost):
		return exitUnavailable
	case errors.Is(err, config.ErrInvalidConfig):
		return exitConfig
	default:
		return exitSoftware
	}
}
