package ledger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/cdp-mcp/pkg/types"
)

func rec(id, file string, line int) types.BreakpointRecord {
	return types.BreakpointRecord{ID: id, RuntimeID: id, Kind: types.KindBreakpoint, File: file, Line: line, Verified: true}
}

func ids(recs []types.BreakpointRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestReplaceFile(t *testing.T) {
	l := New(Options{})

	old := l.ReplaceFile("a.ts", []types.BreakpointRecord{rec("1", "a.ts", 1), rec("2", "a.ts", 5)})
	assert.Empty(t, old)
	l.ReplaceFile("b.ts", []types.BreakpointRecord{rec("3", "b.ts", 2)})

	old = l.ReplaceFile("a.ts", []types.BreakpointRecord{rec("4", "a.ts", 9)})
	assert.Equal(t, []string{"1", "2"}, ids(old))
	assert.Equal(t, []string{"4"}, ids(l.File("a.ts")))
	assert.Equal(t, []string{"3", "4"}, ids(l.List()))
	assert.Equal(t, []string{"a.ts", "b.ts"}, l.Files())
}

func TestReplaceFileWithEmptyListClearsFile(t *testing.T) {
	l := New(Options{})
	l.ReplaceFile("a.ts", []types.BreakpointRecord{rec("1", "a.ts", 1), rec("2", "a.ts", 5)})
	l.ReplaceFile("b.ts", []types.BreakpointRecord{rec("3", "b.ts", 2)})

	removed := l.ReplaceFile("a.ts", nil)
	assert.Len(t, removed, 2)
	assert.Empty(t, l.File("a.ts"))
	assert.Equal(t, []string{"b.ts"}, l.Files())
	assert.Equal(t, 1, l.Len())
}

func TestRemoveAndGet(t *testing.T) {
	l := New(Options{})
	l.Add(rec("1", "a.ts", 1))
	l.Add(rec("2", "a.ts", 2))

	got, ok := l.Get("2")
	require.True(t, ok)
	assert.Equal(t, 2, got.Line)

	removed, ok := l.Remove("1")
	require.True(t, ok)
	assert.Equal(t, "1", removed.ID)
	_, ok = l.Remove("1")
	assert.False(t, ok)
	assert.Equal(t, []string{"2"}, ids(l.File("a.ts")))
}

func TestListIsASnapshot(t *testing.T) {
	l := New(Options{})
	l.Add(rec("1", "a.ts", 1))

	snap := l.List()
	l.Add(rec("2", "a.ts", 2))
	snap[0].Line = 99

	assert.Len(t, snap, 1)
	got, _ := l.Get("1")
	assert.Equal(t, 1, got.Line)
}

func TestMarkVerified(t *testing.T) {
	l := New(Options{})
	pending := types.BreakpointRecord{ID: "bp-regex", RuntimeID: "bp-regex", File: "a.ts", Line: 3, Message: "pending"}
	l.Add(pending)

	updated, ok := l.MarkVerified("bp-regex", types.ResolvedLocation{ScriptID: "9", Line: 3, Column: 1})
	require.True(t, ok)
	assert.True(t, updated.Verified)
	assert.Empty(t, updated.Message)
	assert.Equal(t, "9", updated.Location.ScriptID)

	_, ok = l.MarkVerified("bp-regex", types.ResolvedLocation{ScriptID: "9"})
	assert.False(t, ok, "already verified")
	_, ok = l.MarkVerified("unknown", types.ResolvedLocation{})
	assert.False(t, ok)
}

func TestResolutionBeforeRecordIsApplied(t *testing.T) {
	l := New(Options{})
	loc := types.ResolvedLocation{ScriptID: "21", URL: "file:///srv/dist/app.js", Line: 4, Column: 3}

	_, ok := l.MarkVerified("re:0", loc)
	require.False(t, ok)

	stored, promoted := l.Add(types.BreakpointRecord{ID: "re:0", RuntimeID: "re:0", File: "a.ts", Line: 2, Message: "pending"})
	require.True(t, promoted)
	assert.True(t, stored.Verified)
	assert.Empty(t, stored.Message)
	assert.Equal(t, loc, *stored.Location)

	got, _ := l.Get("re:0")
	assert.True(t, got.Verified)

	// claimed once
	_, promoted = l.Add(types.BreakpointRecord{ID: "re:0", RuntimeID: "re:0", File: "a.ts", Line: 2})
	assert.False(t, promoted)
}

func TestDropResolvedForgetsUnclaimedResolutions(t *testing.T) {
	l := New(Options{})
	l.MarkVerified("re:0", types.ResolvedLocation{ScriptID: "21", Line: 4})
	l.DropResolved()

	stored, promoted := l.Add(types.BreakpointRecord{ID: "re:0", RuntimeID: "re:0", File: "a.ts", Line: 2})
	assert.False(t, promoted)
	assert.False(t, stored.Verified)
	assert.Nil(t, stored.Location)
}

func TestBindScriptPromotesWaitingRecords(t *testing.T) {
	l := New(Options{})
	l.Add(types.BreakpointRecord{ID: "u:1", RuntimeID: "u:1", File: "a.ts", Line: 2, Message: "waiting"})
	l.Add(types.BreakpointRecord{ID: "u:2", RuntimeID: "u:2", File: "a.ts", Line: 3, Message: "waiting"})
	l.AwaitScript("u:1", types.ResolvedLocation{ScriptID: "21", Line: 4, Column: 1})
	l.AwaitScript("u:2", types.ResolvedLocation{ScriptID: "22", Line: 5, Column: 1})

	assert.Empty(t, l.BindScript(types.Script{ID: "30", URL: "file:///other.js"}))

	promoted := l.BindScript(types.Script{ID: "21", URL: "file:///srv/dist/app.js"})
	require.Len(t, promoted, 1)
	assert.Equal(t, "u:1", promoted[0].ID)
	assert.Equal(t, "file:///srv/dist/app.js", promoted[0].Location.URL)

	got, _ := l.Get("u:2")
	assert.False(t, got.Verified)
	assert.Empty(t, l.BindScript(types.Script{ID: "21", URL: "file:///srv/dist/app.js"}))

	// removing the record forgets its binding
	l.Remove("u:2")
	assert.Empty(t, l.BindScript(types.Script{ID: "22", URL: "file:///srv/dist/lib.js"}))
}

func TestBufferWrapsInPlace(t *testing.T) {
	b := newBuffer[int](3)
	for i := 0; i < 7; i++ {
		b.push(i)
	}
	assert.Equal(t, []int{4, 5, 6}, b.last(0))
	assert.Equal(t, []int{5, 6}, b.last(2))
	assert.Equal(t, []int{4, 5, 6}, b.last(10))
	assert.Equal(t, 4, b.droppedCount())
	assert.Equal(t, 3, b.size())

	b.reset()
	b.push(9)
	assert.Equal(t, []int{9}, b.last(0))
}

func TestBuffersAreCapped(t *testing.T) {
	l := New(Options{MaxHits: 3})
	for i := 0; i < 5; i++ {
		l.AppendHit(types.LogpointHit{Message: fmt.Sprint(i)})
	}

	hits := l.Hits(0)
	require.Len(t, hits, 3)
	assert.Equal(t, "2", hits[0].Message)
	assert.Equal(t, "4", hits[2].Message)

	last := l.Hits(2)
	assert.Equal(t, "3", last[0].Message)

	stats := l.Stats()
	assert.Equal(t, 3, stats.Hits)
	assert.Equal(t, 2, stats.DroppedHits)

	l.ClearHits()
	assert.Empty(t, l.Hits(0))
}

func TestEventsAndReset(t *testing.T) {
	l := New(Options{})
	_, ok := l.LastEvent()
	assert.False(t, ok)

	l.AppendEvent(types.DebuggerEvent{Kind: types.DebuggerPaused, Reason: types.StopBreakpoint})
	l.AppendEvent(types.DebuggerEvent{Kind: types.DebuggerResumed})
	l.AppendConsole(types.ConsoleMessage{Type: "log", Text: "hi"})
	l.Add(rec("1", "a.ts", 1))

	last, ok := l.LastEvent()
	require.True(t, ok)
	assert.Equal(t, types.DebuggerResumed, last.Kind)
	assert.Len(t, l.Console(0), 1)

	l.Reset()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Events(0))
	assert.Empty(t, l.Console(0))
	assert.Empty(t, l.Files())
}
