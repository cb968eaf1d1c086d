package scripts

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

func TestURLForms(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"/srv/app/dist/app.js", []string{"/srv/app/dist/app.js", "file:///srv/app/dist/app.js"}},
		{"file:///srv/app/dist/app.js", []string{"file:///srv/app/dist/app.js", "/srv/app/dist/app.js"}},
		{"C:/proj/app.js", []string{"C:/proj/app.js", "file:///C:/proj/app.js"}},
		{"file:///C:/proj/app.js", []string{"file:///C:/proj/app.js", "C:/proj/app.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, URLForms(tt.in))
		})
	}
}

func TestRegistry_AddAndLookup(t *testing.T) {
	mock := clock.NewMock()
	r := NewRegistry(mock, nil)

	r.Add(types.Script{ID: "1", URL: "file:///srv/app/dist/app.js"})
	r.Add(types.Script{ID: "2"})
	r.Add(types.Script{ID: "3", URL: "file:///srv/app/dist/app.js"})

	assert.Equal(t, 3, r.Len())

	s, ok := r.ByURL("file:///srv/app/dist/app.js")
	require.True(t, ok)
	assert.Equal(t, "3", s.ID, "newest script wins the url")
	assert.Equal(t, mock.Now(), s.DiscoveredAt)

	s, ok = r.ByID("2")
	require.True(t, ok)
	assert.Empty(t, s.URL)

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)

	r.Reset()
	assert.Zero(t, r.Len())
	_, ok = r.ByID("1")
	assert.False(t, ok)
}

func TestRegistry_ResolveExactForms(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add(types.Script{ID: "7", URL: "file:///srv/app/dist/app.js"})

	s, err := r.Resolve(context.Background(), "/srv/app/dist/app.js", 0)
	require.NoError(t, err)
	assert.Equal(t, "7", s.ID)

	s, err = r.Resolve(context.Background(), "file:///srv/app/dist/app.js", 0)
	require.NoError(t, err)
	assert.Equal(t, "7", s.ID)
}

func TestRegistry_ResolveWaitsForLateScript(t *testing.T) {
	r := NewRegistry(nil, nil)

	go func() {
		time.Sleep(3 * PollInterval / 2)
		r.Add(types.Script{ID: "late", URL: "file:///srv/app/dist/late.js"})
	}()

	s, err := r.Resolve(context.Background(), "/srv/app/dist/late.js", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", s.ID)
}

func TestRegistry_ResolveTimesOut(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add(types.Script{ID: "1", URL: "file:///srv/app/dist/other.js"})

	start := time.Now()
	_, err := r.Resolve(context.Background(), "/srv/app/dist/missing.js", 120*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeScriptNotFound))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRegistry_ResolveRespectsContext(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "/srv/app/dist/missing.js", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeScriptNotFound))
}

func TestRegistry_ResolveSuffixFallback(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add(types.Script{ID: "drive", URL: "file:///C:/work/proj/dist/main.js"})
	r.Add(types.Script{ID: "bundled", URL: "webpack://proj/./src/util.js"})

	s, err := r.Resolve(context.Background(), "/proj/dist/main.js", 0)
	require.NoError(t, err)
	assert.Equal(t, "drive", s.ID)

	s, err = r.Resolve(context.Background(), "/somewhere/else/util.js", 0)
	require.NoError(t, err)
	assert.Equal(t, "bundled", s.ID, "basename fallback")

	_, err = r.Resolve(context.Background(), "/proj/dist/nope.js", 0)
	assert.True(t, errors.IsCode(err, errors.CodeScriptNotFound))
}
