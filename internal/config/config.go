// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config carries the daemon configuration resolved from flags and
// environment. Parsing of the configuration file itself is owned by the
// embedding wrapper; the core only needs the filename and profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults for the daemon wrapper.
const (
	DefaultConfigFile = "wireplumber.conf"
	DefaultProfile    = "main"
	DefaultLogLevel   = "info"
	// DefaultMetricsAddr is where the daemon exposes /metrics and /healthz.
	DefaultMetricsAddr = "127.0.0.1:9343"
)

// ErrInvalidConfig marks a configuration that cannot be used to start the daemon.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved daemon configuration. Precedence: flags > ENV > defaults.
type Config struct {
	ConfigFile  string
	Profile     string
	LogLevel    string
	StateHome   string // root for persistent state; empty means XDG resolution
	MetricsAddr string
}

// FromEnv resolves a Config from environment variables and defaults.
func FromEnv() Config {
	return Config{
		ConfigFile:  ParseString("PLUMBERD_CONFIG_FILE", DefaultConfigFile),
		Profile:     ParseString("PLUMBERD_PROFILE", DefaultProfile),
		LogLevel:    ParseString("PLUMBERD_LOG_LEVEL", DefaultLogLevel),
		StateHome:   ParseString("STATE_HOME", ""),
		MetricsAddr: ParseString("PLUMBERD_METRICS_ADDR", DefaultMetricsAddr),
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	if c.ConfigFile == "" {
		return fmt.Errorf("%w: empty config file name", ErrInvalidConfig)
	}
	if c.Profile == "" {
		return fmt.Errorf("%w: empty profile name", ErrInvalidConfig)
	}
	return nil
}

// StateRoot resolves the directory persistent state files live in:
// $STATE_HOME/wireplumber, where $STATE_HOME defaults to
// $HOME/.local/state when unset.
func (c Config) StateRoot() string {
	home := c.StateHome
	if home == "" {
		home = os.Getenv("STATE_HOME")
	}
	if home == "" {
		home = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(home, "wireplumber")
}
