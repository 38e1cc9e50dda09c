package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfigWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, Default().Addr, cfg.Addr)
	assert.Equal(t, 3*time.Second, cfg.TypingTTL)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default config should be written")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\npresence_scope: global\n"), 0o600))

	t.Setenv("HUDDLE_ADDR", ":7070")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, PresenceScopeGlobal, cfg.PresenceScope)
}

func TestLoadRejectsUnknownPresenceScope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presence_scope: everyone\n"), 0o600))

	_, _, err := Load(nil, path)
	require.Error(t, err)
}
