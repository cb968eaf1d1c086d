package launchconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/cdp-mcp/internal/errors"
)

const sampleLaunch = `{
  // VS Code accepts comments
  "version": "0.2.0",
  "configurations": [
    {
      "type": "node",
      "request": "attach",
      "name": "Attach API",
      "address": "localhost",
      "port": 9230,
      "outFiles": ["${workspaceFolder}/dist/**/*.js", "!**/node_modules/**"], /* trailing */
    },
    {
      "type": "pwa-node",
      "request": "attach",
      "name": "Attach worker",
      "sourceMaps": false,
      "outFiles": ["${workspaceFolder}/worker/*.js"]
    },
    {
      "type": "node",
      "request": "launch",
      "name": "Launch // not a comment",
      "program": "${workspaceFolder}/dist/app.js"
    },
  ]
}`

func writeWorkspace(t *testing.T) (root, launchPath string) {
	t.Helper()
	root = t.TempDir()
	launchPath = filepath.Join(root, VSCodeDirName, LaunchJSONFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(launchPath), 0o755))
	require.NoError(t, os.WriteFile(launchPath, []byte(sampleLaunch), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "components"), 0o755))
	return root, launchPath
}

// TestParseToleratesComments verifies comments and trailing commas.
func TestParseToleratesComments(t *testing.T) {
	lj, err := Parse([]byte(sampleLaunch))
	require.NoError(t, err)
	assert.Equal(t, "0.2.0", lj.Version)
	require.Len(t, lj.Configurations, 3)

	api := lj.Configurations[0]
	assert.Equal(t, "Attach API", api.Name)
	assert.Equal(t, 9230, api.Port)
	assert.Equal(t, []string{"${workspaceFolder}/dist/**/*.js", "!**/node_modules/**"}, api.OutFiles)
	assert.Nil(t, api.SourceMaps)

	worker := lj.Configurations[1]
	require.NotNil(t, worker.SourceMaps)
	assert.False(t, *worker.SourceMaps)

	assert.Equal(t, "Launch // not a comment", lj.Configurations[2].Name)
}

// TestParseInvalid verifies error handling for malformed JSON.
func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte(`{invalid json`))
	assert.Error(t, err)

	_, err = LoadFromPath("/nonexistent/path/launch.json")
	assert.Error(t, err)
}

// TestDiscover verifies that launch.json files can be discovered in parent directories.
func TestDiscover(t *testing.T) {
	root, launchPath := writeWorkspace(t)

	found, err := Discover(filepath.Join(root, "src", "components"))
	require.NoError(t, err)
	assert.Equal(t, launchPath, found)
	assert.Equal(t, root, GetWorkspaceFolder(found))

	_, err = Discover(t.TempDir())
	assert.Error(t, err)
}

func TestGlobRoot(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"/ws/dist/**/*.js", filepath.FromSlash("/ws/dist")},
		{"/ws/dist/app.js", filepath.FromSlash("/ws/dist")},
		{"dist/*.js", "dist"},
		{"**/*.js", ""},
	}
	for _, tc := range tests {
		t.Run(tc.pattern, func(t *testing.T) {
			assert.Equal(t, tc.want, GlobRoot(tc.pattern))
		})
	}
}

func TestResolveVariables(t *testing.T) {
	ctx := &ResolutionContext{WorkspaceFolder: "/ws", EnvOverrides: map[string]string{"OUT": "build"}}

	got, err := ResolveVariables("${workspaceFolder}/${env:OUT}/**/*.js", ctx)
	require.NoError(t, err)
	assert.Equal(t, "/ws/build/**/*.js", got)

	got, err = ResolveVariables("${file}/x", ctx)
	assert.Error(t, err)
	assert.Equal(t, "${file}/x", got)

	_, err = ResolveVariables("${workspaceFolder}", nil)
	assert.Error(t, err)
}

// TestLoadAttach verifies a named attach configuration resolves end to end.
func TestLoadAttach(t *testing.T) {
	root, _ := writeWorkspace(t)

	target, err := LoadAttach(filepath.Join(root, "src"), "Attach API")
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, target.Host)
	assert.Equal(t, 9230, target.Port)
	assert.True(t, target.SourceMaps)
	assert.Equal(t, []string{filepath.Join(root, "dist")}, target.SearchPaths)

	worker, err := LoadAttach(root, "Attach worker")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, worker.Port)
	assert.False(t, worker.SourceMaps)
	assert.Empty(t, worker.SearchPaths)
}

func TestLoadAttachErrors(t *testing.T) {
	root, _ := writeWorkspace(t)

	_, err := LoadAttach(root, "Launch // not a comment")
	assert.True(t, errors.IsCode(err, errors.CodeConfigInvalid))

	_, err = LoadAttach(root, "missing")
	require.True(t, errors.IsCode(err, errors.CodeConfigNotFound))
	de := errors.FromError(err)
	assert.Equal(t, []string{"Attach API", "Attach worker"}, de.Details["availableConfigs"])

	_, err = LoadAttach(t.TempDir(), "Attach API")
	assert.True(t, errors.IsCode(err, errors.CodeConfigNotFound))
}

func TestListConfigurations(t *testing.T) {
	lj, err := Parse([]byte(sampleLaunch))
	require.NoError(t, err)

	infos := ListConfigurations(lj)
	require.Len(t, infos, 3)
	assert.True(t, infos[0].Attach)
	assert.Equal(t, "127.0.0.1:9230", infos[0].Endpoint)
	assert.False(t, infos[2].Attach)
	assert.Empty(t, infos[2].Endpoint)
	assert.Equal(t, []string{"Attach API", "Attach worker", "Launch // not a comment"}, ListConfigurationNames(lj))
}
