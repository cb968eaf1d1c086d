package launcher

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/cdp-mcp/internal/errors"
)

// fakeNode writes a shell script standing in for node.
func fakeNode(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for node")
	}
	path := filepath.Join(t.TempDir(), "node")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

const bannerScript = `addr=${1#--inspect-brk=}
echo "Debugger listening on ws://$addr/6c1f0a6e-2b1d-4d55-9d1e-6f1c2b7d8e90" >&2
echo "For help, see: https://nodejs.org/en/docs/inspector" >&2
exec sleep 30`

func TestLaunchReportsInspectorURL(t *testing.T) {
	l := New(Options{Allowed: true, NodePath: fakeNode(t, bannerScript), ReadyTimeout: 5 * time.Second})

	proc, err := l.Launch(context.Background(), Request{Program: "dist/app.js", Args: []string{"--flag"}, Port: 9339})
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Stop() })

	assert.Equal(t, 9339, proc.Port)
	assert.Equal(t, "ws://127.0.0.1:9339/6c1f0a6e-2b1d-4d55-9d1e-6f1c2b7d8e90", proc.WSURL)
	assert.Len(t, l.Processes(), 1)

	require.NoError(t, proc.Stop())
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Stop")
	}
	assert.Error(t, proc.Err())
	assert.Eventually(t, func() bool { return len(l.Processes()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestLaunchPicksFreePort(t *testing.T) {
	l := New(Options{Allowed: true, NodePath: fakeNode(t, bannerScript)})

	proc, err := l.Launch(context.Background(), Request{Program: "app.js"})
	require.NoError(t, err)
	defer l.StopAll()

	assert.NotZero(t, proc.Port)
	assert.Contains(t, proc.WSURL, ":"+strconv.Itoa(proc.Port)+"/")
}

func TestLaunchFailures(t *testing.T) {
	ctx := context.Background()

	_, err := New(Options{Mode: "full"}).Launch(ctx, Request{Program: "app.js"})
	assert.True(t, errors.IsCode(err, errors.CodePermissionDenied))

	_, err = New(Options{Allowed: true}).Launch(ctx, Request{})
	assert.True(t, errors.IsCode(err, errors.CodeMissingParameter))

	exits := New(Options{Allowed: true, NodePath: fakeNode(t, `echo "Error: Cannot find module" >&2; exit 1`)})
	_, err = exits.Launch(ctx, Request{Program: "missing.js", Port: 9340})
	assert.True(t, errors.IsCode(err, errors.CodeLaunchFailed))

	silent := New(Options{Allowed: true, NodePath: fakeNode(t, "exec sleep 30"), ReadyTimeout: 100 * time.Millisecond})
	_, err = silent.Launch(ctx, Request{Program: "app.js", Port: 9341})
	assert.True(t, errors.IsCode(err, errors.CodeLaunchFailed))
	assert.Empty(t, silent.Processes())
}
