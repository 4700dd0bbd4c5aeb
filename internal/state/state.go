// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package state persists named key-value stores for policy hooks that
// need to remember decisions across daemon runs.
package state

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/plumberd/internal/log"
	"github.com/ManuGH/plumberd/internal/metrics"
	"github.com/ManuGH/plumberd/internal/props"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidArgument marks a rejected store name.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIO marks a failed write of the backing file.
	ErrIO = errors.New("i/o error")
)

// DefaultDebounce is the delay applied by SaveAfterTimeout unless the
// store was created with WithDebounce.
const DefaultDebounce = 1000 * time.Millisecond

const dirMode = 0o700

// State is a named, process-local key-value store backed by a file under
// $STATE_HOME/wireplumber (with $STATE_HOME defaulting to
// $HOME/.local/state). Debounced saves hold the supplied Properties by
// reference; callers must not mutate a bag after handing it off.
type State struct {
	name     string
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending *props.Properties
}

// Option customises a State instance.
type Option func(*State)

// WithDebounce overrides the SaveAfterTimeout delay.
func WithDebounce(d time.Duration) Option {
	return func(s *State) { s.debounce = d }
}

// WithRoot overrides the state directory, bypassing XDG resolution.
func WithRoot(dir string) Option {
	return func(s *State) { s.path = filepath.Join(dir, s.name) }
}

func defaultRoot() string {
	home := os.Getenv("STATE_HOME")
	if home == "" {
		home = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(home, "wireplumber")
}

// New opens the store named name, creating the state directory with mode
// 0700 if needed.
func New(name string, opts ...Option) (*State, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return nil, fmt.Errorf("%w: bad state name %q", ErrInvalidArgument, name)
	}
	s := &State{
		name:     name,
		path:     filepath.Join(defaultRoot(), name),
		debounce: DefaultDebounce,
		logger:   log.WithComponent("state"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return nil, fmt.Errorf("%w: create state directory: %v", ErrIO, err)
	}
	return s, nil
}

// Name returns the store name.
func (s *State) Name() string { return s.name }

// Path returns the absolute location of the backing file.
func (s *State) Path() string { return s.path }

// Save synchronously replaces the on-disk contents with the given
// entries. The write is atomic with respect to readers: contents go to a
// temp file which is fsynced and renamed over the target.
func (s *State) Save(p *props.Properties) error {
	return s.save(p, "direct")
}

func (s *State) save(p *props.Properties, trigger string) error {
	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		metrics.StateWriteErrorsTotal.WithLabelValues(s.name).Inc()
		return fmt.Errorf("%w: create pending state file: %v", ErrIO, err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending state file")
		}
	}()

	w := bufio.NewWriter(pending)
	fmt.Fprintf(w, "[%s]\n", s.name)
	var writeErr error
	p.Each(func(k, v string) bool {
		if _, err := fmt.Fprintf(w, "%s=%s\n", EscapeKey(k), v); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if writeErr != nil {
		metrics.StateWriteErrorsTotal.WithLabelValues(s.name).Inc()
		return fmt.Errorf("%w: write state entries: %v", ErrIO, writeErr)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		metrics.StateWriteErrorsTotal.WithLabelValues(s.name).Inc()
		return fmt.Errorf("%w: replace state file: %v", ErrIO, err)
	}

	metrics.StateWritesTotal.WithLabelValues(s.name, trigger).Inc()
	s.logger.Debug().
		Str("event", "state.saved").
		Str("store", s.name).
		Str("trigger", trigger).
		Int("entries", p.Len()).
		Msg("state written")
	return nil
}

// SaveAfterTimeout schedules a debounced save. A second call before the
// timer fires cancels and restarts it with the newly supplied bag
// (last-writer-wins). The bag is held by reference until the write runs.
func (s *State) SaveAfterTimeout(p *props.Properties) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = p
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flushPending)
}

func (s *State) flushPending() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if p == nil {
		return
	}
	if err := s.save(p, "debounced"); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event", "state.save_failed").
			Str("store", s.name).
			Msg("debounced state save failed")
	}
}

// Stop cancels a scheduled save and writes any pending entries
// immediately, so a clean shutdown never loses the last decision.
func (s *State) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flushPending()
}

// Load reads the current on-disk state. It never fails: missing files,
// unreadable files and parse errors all yield an empty bag.
func (s *State) Load() *props.Properties {
	out := props.New()

	f, err := os.Open(s.path)
	if err != nil {
		return out
	}
	defer f.Close() //nolint:errcheck // read-only handle

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Section headers carry no entries; escaped keys never start
		// with a literal '['.
		if strings.HasPrefix(line, "[") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return props.New()
		}
		key := UnescapeKey(line[:eq])
		if key == "" {
			return props.New()
		}
		if err := out.Set(key, line[eq+1:]); err != nil {
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return props.New()
	}
	return out
}

// Clear removes the backing file. Failures are logged at warning.
func (s *State) Clear() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().
			Err(err).
			Str("event", "state.clear_failed").
			Str("store", s.name).
			Msg("failed to remove state file")
	}
}
