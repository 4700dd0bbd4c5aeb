// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/plumberd/internal/props"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T, name string, opts ...Option) *State {
	t.Helper()
	opts = append([]Option{WithRoot(t.TempDir())}, opts...)
	s, err := New(name, opts...)
	require.NoError(t, err)
	return s
}

func TestNewRejectsBadNames(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New("nested/name")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestState(t, "restore-stream")

	bag := props.FromPairs(
		"a b", "x",
		"c=d", "y",
		"[e]", "z",
		`\f`, "w",
	)
	require.NoError(t, s.Save(bag))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	assert.Equal(t, "[restore-stream]", lines[0])
	assert.ElementsMatch(t, []string{`a\sb=x`, `c\ed=y`, `\oe\c=z`, `\\f=w`}, lines[1:])

	loaded := s.Load()
	assert.True(t, bag.Equal(loaded), "loaded %v", loaded)
}

func TestSaveOverwritesPriorContents(t *testing.T) {
	s := newTestState(t, "default-nodes")

	require.NoError(t, s.Save(props.FromPairs("old", "1", "stale", "2")))
	require.NoError(t, s.Save(props.FromPairs("new", "3")))

	loaded := s.Load()
	assert.Equal(t, 1, loaded.Len())
	v, ok := loaded.Get("new")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestLoadNeverFails(t *testing.T) {
	s := newTestState(t, "missing")
	assert.Equal(t, 0, s.Load().Len())

	// A malformed line is a parse error: the whole file yields an empty bag.
	require.NoError(t, os.WriteFile(s.Path(), []byte("not an entry\n\n# comment\n[section]\nkey=value\n"), 0o600))
	loaded := s.Load()
	assert.Equal(t, 0, loaded.Len())
	_, ok := loaded.Get("key")
	assert.False(t, ok)
}

func TestLoadToleratesCommentsAndBlankLines(t *testing.T) {
	s := newTestState(t, "profile")
	content := "# written by hand\n\n[profile]\n\nnode.name=speakers\n# trailing note\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o600))

	loaded := s.Load()
	v, ok := loaded.Get("node.name")
	require.True(t, ok)
	assert.Equal(t, "speakers", v)
}

func TestValuesMayContainReservedCharacters(t *testing.T) {
	s := newTestState(t, "targets")
	bag := props.FromPairs("target", "a=b [c] d")
	require.NoError(t, s.Save(bag))

	loaded := s.Load()
	v, ok := loaded.Get("target")
	require.True(t, ok)
	assert.Equal(t, "a=b [c] d", v)
}

func TestSaveAfterTimeoutDebounces(t *testing.T) {
	s := newTestState(t, "debounced", WithDebounce(80*time.Millisecond))

	s.SaveAfterTimeout(props.FromPairs("a", "1"))
	time.Sleep(30 * time.Millisecond)
	s.SaveAfterTimeout(props.FromPairs("a", "2"))

	// Before the restarted timer fires nothing is on disk.
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))

	require.Eventually(t, func() bool {
		v, ok := s.Load().Get("a")
		return ok && v == "2"
	}, 2*time.Second, 10*time.Millisecond)

	// Last-writer-wins: only the second bag was written.
	v, _ := s.Load().Get("a")
	assert.Equal(t, "2", v)
}

func TestStopFlushesPendingWrite(t *testing.T) {
	s := newTestState(t, "flush-on-stop", WithDebounce(time.Hour))

	s.SaveAfterTimeout(props.FromPairs("k", "v"))
	s.Stop()

	v, ok := s.Load().Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestClearRemovesFile(t *testing.T) {
	s := newTestState(t, "cleared")
	require.NoError(t, s.Save(props.FromPairs("a", "1")))

	s.Clear()
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))

	// Clearing a missing file is silent.
	s.Clear()
}

func TestStateDirectoryPermissions(t *testing.T) {
	root := filepath.Join(t.TempDir(), "fresh")
	s, err := New("perms", WithRoot(root))
	require.NoError(t, err)
	require.NoError(t, s.Save(props.New()))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
