// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, "wireplumber.conf", cfg.ConfigFile)
	assert.Equal(t, "main", cfg.Profile)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PLUMBERD_CONFIG_FILE", "custom.conf")
	t.Setenv("PLUMBERD_PROFILE", "video-only")

	cfg := FromEnv()
	assert.Equal(t, "custom.conf", cfg.ConfigFile)
	assert.Equal(t, "video-only", cfg.Profile)
}

func TestValidateRejectsEmpty(t *testing.T) {
	cfg := Config{ConfigFile: "", Profile: "main"}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Config{ConfigFile: "wireplumber.conf", Profile: ""}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestStateRootResolution(t *testing.T) {
	t.Setenv("STATE_HOME", "/var/lib/media-session")
	cfg := FromEnv()
	assert.Equal(t, filepath.Join("/var/lib/media-session", "wireplumber"), cfg.StateRoot())

	t.Setenv("STATE_HOME", "")
	t.Setenv("HOME", "/home/audio")
	cfg = Config{}
	assert.Equal(t, "/home/audio/.local/state/wireplumber", cfg.StateRoot())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PLUMBERD_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("PLUMBERD_TEST_INT", 7))
	t.Setenv("PLUMBERD_TEST_INT", "nope")
	assert.Equal(t, 7, ParseInt("PLUMBERD_TEST_INT", 7))

	t.Setenv("PLUMBERD_TEST_BOOL", "true")
	assert.True(t, ParseBool("PLUMBERD_TEST_BOOL", false))

	t.Setenv("PLUMBERD_TEST_DUR", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, ParseDuration("PLUMBERD_TEST_DUR", time.Second))
	t.Setenv("PLUMBERD_TEST_DUR", "soon")
	assert.Equal(t, time.Second, ParseDuration("PLUMBERD_TEST_DUR", time.Second))

	t.Setenv("PLUMBERD_TEST_STR", "")
	assert.Equal(t, "fallback", ParseString("PLUMBERD_TEST_STR", "fallback"))
}
