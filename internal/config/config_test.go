package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ModeFull, cfg.Mode)
	assert.True(t, cfg.AllowEvaluate)
	assert.False(t, cfg.AllowLaunch)
	assert.Equal(t, "127.0.0.1", cfg.Inspector.Host)
	assert.Equal(t, 9229, cfg.Inspector.Port)
	assert.Equal(t, []string{"Runtime", "Debugger"}, cfg.Inspector.Domains)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Command)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, []string{"dist", "build", "out", "lib"}, cfg.SourceMaps.BuildDirs)
	assert.Equal(t, "__cdpMcpLogpoint", cfg.Logpoint.Binding)
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Mode, cfg.Mode)
	assert.Equal(t, def.Inspector.Port, cfg.Inspector.Port)
	assert.Equal(t, def.Timeouts.ScriptResolve, cfg.Timeouts.ScriptResolve)
}

func TestLoadConfig_FromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdp-mcp.yaml")
	content := `
mode: readonly
inspector:
  host: 10.0.0.2
  port: 9333
  domains: [Runtime, Debugger, Console]
timeouts:
  command: 3s
  script_resolve: 250ms
reconnect:
  max_attempts: 2
sourcemaps:
  search_paths: [/srv/app/dist]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeReadOnly, cfg.Mode)
	assert.Equal(t, "10.0.0.2", cfg.Inspector.Host)
	assert.Equal(t, 9333, cfg.Inspector.Port)
	assert.Equal(t, []string{"Runtime", "Debugger", "Console"}, cfg.Inspector.Domains)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Command)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts.ScriptResolve)
	assert.Equal(t, 2, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, []string{"/srv/app/dist"}, cfg.SourceMaps.SearchPaths)

	// untouched keys keep their defaults
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.BaseDelay)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdp-mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"inspector": {"port": 9333}}`), 0o644))

	t.Setenv("CDP_MCP_INSPECTOR_PORT", "9444")
	t.Setenv("CDP_MCP_MODE", "readonly")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9444, cfg.Inspector.Port)
	assert.Equal(t, ModeReadOnly, cfg.Mode)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_NormalizesBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdp-mcp.yaml")
	content := `
mode: superuser
timeouts:
  command: 0s
logpoint:
  binding: ""
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ModeFull, cfg.Mode)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Command)
	assert.Equal(t, "__cdpMcpLogpoint", cfg.Logpoint.Binding)
}

func TestPermissionHelpers(t *testing.T) {
	tests := []struct {
		name        string
		mode        CapabilityMode
		evaluate    bool
		launch      bool
		wantControl bool
		wantEval    bool
		wantLaunch  bool
	}{
		{"full with launch", ModeFull, true, true, true, true, true},
		{"full without launch", ModeFull, true, false, true, true, false},
		{"readonly ignores launch", ModeReadOnly, true, true, false, true, false},
		{"evaluation disabled", ModeFull, false, false, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Mode = tt.mode
			cfg.AllowEvaluate = tt.evaluate
			cfg.AllowLaunch = tt.launch

			assert.Equal(t, tt.wantControl, cfg.CanUseControlTools())
			assert.Equal(t, tt.wantEval, cfg.CanEvaluate())
			assert.Equal(t, tt.wantLaunch, cfg.CanLaunch())
		})
	}
}
