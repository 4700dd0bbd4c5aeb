// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package props

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertiesBasicOps(t *testing.T) {
	p := New()
	require.Equal(t, 0, p.Len())

	require.NoError(t, p.Set("node.name", "alsa_output.hdmi"))
	require.NoError(t, p.Set("media.class", "Audio/Sink"))
	require.NoError(t, p.Set("empty", ""))
	require.Equal(t, 3, p.Len())

	v, ok := p.Get("node.name")
	require.True(t, ok)
	require.Equal(t, "alsa_output.hdmi", v)

	v, ok = p.Get("empty")
	require.True(t, ok)
	require.Equal(t, "", v)

	_, ok = p.Get("missing")
	require.False(t, ok)

	p.Unset("media.class")
	_, ok = p.Get("media.class")
	require.False(t, ok)
	require.Equal(t, 2, p.Len())
}

func TestPropertiesRejectsEmptyKey(t *testing.T) {
	p := New()
	err := p.Set("", "value")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidArgument))
	require.Equal(t, 0, p.Len())
}

func TestPropertiesEachIsSortedAndStoppable(t *testing.T) {
	p := FromPairs("b", "2", "a", "1", "c", "3")

	var keys []string
	p.Each(func(k, v string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	keys = nil
	p.Each(func(k, v string) bool {
		keys = append(keys, k)
		return false
	})
	assert.Equal(t, []string{"a"}, keys)
}

func TestPropertiesEquality(t *testing.T) {
	a := FromPairs("x", "1", "y", "2")
	b := FromPairs("y", "2", "x", "1")
	c := FromPairs("x", "1", "y", "3")

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(FromPairs("x", "1")))
}

func TestCloneIsCopyOnWrite(t *testing.T) {
	orig := FromPairs("node.name", "mic")
	shared := orig.Clone()
	require.True(t, orig.Equal(shared))

	// Mutating the clone must not leak into the original.
	require.NoError(t, shared.Set("node.name", "speaker"))

	v, _ := orig.Get("node.name")
	require.Equal(t, "mic", v)
	v, _ = shared.Get("node.name")
	require.Equal(t, "speaker", v)
}

func TestCloneUnsetDetaches(t *testing.T) {
	orig := FromPairs("a", "1", "b", "2")
	shared := orig.Clone()

	shared.Unset("a")

	_, ok := orig.Get("a")
	require.True(t, ok)
	_, ok = shared.Get("a")
	require.False(t, ok)
}

func TestCopyIsIndependent(t *testing.T) {
	orig := FromPairs("a", "1")
	cp := orig.Copy()
	require.NoError(t, cp.Set("a", "2"))

	v, _ := orig.Get("a")
	require.Equal(t, "1", v)
}
