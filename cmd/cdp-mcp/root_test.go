package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/cdp-mcp/internal/config"
)

func withFlags(t *testing.T, path, mode string, port int) {
	t.Helper()
	oldPath, oldMode, oldPort := configPath, modeFlag, portFlag
	configPath, modeFlag, portFlag = path, mode, port
	t.Cleanup(func() { configPath, modeFlag, portFlag = oldPath, oldMode, oldPort })
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdp-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: full\ninspector:\n  port: 9230\n"), 0o644))

	withFlags(t, path, "readonly", 0)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.ModeReadOnly, cfg.Mode)
	assert.Equal(t, 9230, cfg.Inspector.Port)

	withFlags(t, path, "", 9555)
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.ModeFull, cfg.Mode)
	assert.Equal(t, 9555, cfg.Inspector.Port)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdp-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: full\n"), 0o644))

	withFlags(t, path, "godmode", 0)
	_, err := loadConfig()
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "targets", "resolve", "version"} {
		assert.True(t, names[want], want)
	}
}
