package placement

import (
	"encoding/json"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/inspector/inspectortest"
)

func loc(line int) *proto.DebuggerBreakLocation {
	c := 2
	return &proto.DebuggerBreakLocation{ScriptID: "42", LineNumber: line, ColumnNumber: &c}
}

// scriptWithLocations answers getPossibleBreakpoints with the given 0-based
// lines that fall inside the requested range, and echoes setBreakpoint.
func scriptWithLocations(t *testing.T, lines ...int) *inspectortest.Inspector {
	in := inspectortest.New()
	in.Handle("Debugger.getPossibleBreakpoints", func(raw json.RawMessage) (interface{}, error) {
		var req proto.DebuggerGetPossibleBreakpoints
		require.NoError(t, json.Unmarshal(raw, &req))
		var out []*proto.DebuggerBreakLocation
		for _, l := range lines {
			if l >= req.Start.LineNumber && l <= req.End.LineNumber {
				out = append(out, loc(l))
			}
		}
		return proto.DebuggerGetPossibleBreakpointsResult{Locations: out}, nil
	})
	in.Handle("Debugger.setBreakpoint", func(raw json.RawMessage) (interface{}, error) {
		var req proto.DebuggerSetBreakpoint
		require.NoError(t, json.Unmarshal(raw, &req))
		return proto.DebuggerSetBreakpointResult{BreakpointID: "bp:1", ActualLocation: req.Location}, nil
	})
	return in
}

func TestChoose(t *testing.T) {
	cands := []*proto.DebuggerBreakLocation{loc(14), loc(9), loc(11)}

	assert.Equal(t, 11, Choose(cands, 10, 0).LineNumber, "first at or after")
	assert.Equal(t, 9, Choose(cands, 9, 0).LineNumber, "same line, column before candidate")
	assert.Equal(t, 11, Choose(cands, 9, 5).LineNumber, "same line, column after candidate")
	assert.Equal(t, 14, Choose(cands, 19, 0).LineNumber, "nearest below")
}

func TestPlace_FirstAtOrAfter(t *testing.T) {
	// 1-based lines 10, 12, 15
	in := scriptWithLocations(t, 9, 11, 14)

	res, err := New(nil).Place(in, Request{ScriptID: "42", ScriptURL: "file:///app.js", Line: 11, Column: 1})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "bp:1", res.BreakpointID)
	assert.Equal(t, StrategyPossibleLocations, res.Strategy)
	require.NotNil(t, res.Location)
	assert.Equal(t, 12, res.Location.Line)
	assert.Equal(t, 3, res.Location.Column)
	assert.Equal(t, "42", res.Location.ScriptID)
	assert.Equal(t, "file:///app.js", res.Location.URL)

	probes := in.Calls("Debugger.getPossibleBreakpoints")
	require.Len(t, probes, 1, "first window already has candidates")
	var req proto.DebuggerGetPossibleBreakpoints
	require.NoError(t, probes[0].Decode(&req))
	assert.Equal(t, 10, req.Start.LineNumber)
	assert.Equal(t, 20, req.End.LineNumber)
	assert.Equal(t, 0, *req.Start.ColumnNumber)
	assert.Equal(t, 200, *req.End.ColumnNumber)
}

func TestPlace_WidensWindowsAndPicksNearestBelow(t *testing.T) {
	in := scriptWithLocations(t, 9, 11, 14)

	res, err := New(nil).Place(in, Request{ScriptID: "42", Line: 20, Condition: "x > 1"})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Location.Line)

	probes := in.Calls("Debugger.getPossibleBreakpoints")
	require.Len(t, probes, 3)
	var last proto.DebuggerGetPossibleBreakpoints
	require.NoError(t, probes[2].Decode(&last))
	assert.Equal(t, 9, last.Start.LineNumber)
	assert.Equal(t, 69, last.End.LineNumber)

	var set proto.DebuggerSetBreakpoint
	require.NoError(t, in.Calls("Debugger.setBreakpoint")[0].Decode(&set))
	assert.Equal(t, "x > 1", set.Condition)
	assert.Equal(t, 14, set.Location.LineNumber)
}

func TestPlace_RecordsActualLocation(t *testing.T) {
	in := scriptWithLocations(t, 4)
	in.Handle("Debugger.setBreakpoint", func(json.RawMessage) (interface{}, error) {
		c := 8
		return proto.DebuggerSetBreakpointResult{
			BreakpointID:   "bp:shifted",
			ActualLocation: &proto.DebuggerLocation{ScriptID: "42", LineNumber: 5, ColumnNumber: &c},
		}, nil
	})

	res, err := New(nil).Place(in, Request{ScriptID: "42", Line: 5})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Location.Line)
	assert.Equal(t, 9, res.Location.Column)
}

func TestPlace_URLFallback(t *testing.T) {
	in := inspectortest.New()
	in.Handle("Debugger.setBreakpointByUrl", func(json.RawMessage) (interface{}, error) {
		c := 0
		return proto.DebuggerSetBreakpointByURLResult{
			BreakpointID: "1:6:0:file:///srv/app/dist/app.js",
			Locations:    []*proto.DebuggerLocation{{ScriptID: "77", LineNumber: 6, ColumnNumber: &c}},
		}, nil
	})

	res, err := New(nil).Place(in, Request{Path: "/srv/app/dist/app.js", Line: 7})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, StrategyURL, res.Strategy)
	assert.Equal(t, "77", res.Location.ScriptID)
	assert.Equal(t, 7, res.Location.Line)
	assert.Empty(t, in.Calls("Debugger.getPossibleBreakpoints"))

	var req proto.DebuggerSetBreakpointByURL
	require.NoError(t, in.Calls("Debugger.setBreakpointByUrl")[0].Decode(&req))
	assert.Equal(t, "file:///srv/app/dist/app.js", req.URL)
	assert.Equal(t, 6, req.LineNumber)
}

func TestPlace_RegexFallbackUnverified(t *testing.T) {
	in := scriptWithLocations(t)
	in.HandleResult("Debugger.setBreakpointByUrl", proto.DebuggerSetBreakpointByURLResult{BreakpointID: "pending"})

	res, err := New(nil).Place(in, Request{ScriptID: "42", Path: "/srv/app/dist/app.js", Line: 3})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Nil(t, res.Location)
	assert.Equal(t, StrategyURLRegex, res.Strategy)
	assert.Equal(t, "pending", res.BreakpointID)
	assert.NotEmpty(t, res.Message)

	assert.Len(t, in.Calls("Debugger.getPossibleBreakpoints"), 3)
	assert.Len(t, in.Calls("Debugger.removeBreakpoint"), 1, "unbound url breakpoint is replaced")

	calls := in.Calls("Debugger.setBreakpointByUrl")
	require.Len(t, calls, 2)
	var regex proto.DebuggerSetBreakpointByURL
	require.NoError(t, calls[1].Decode(&regex))
	assert.Equal(t, `/srv/app/dist/app\.js$`, regex.URLRegex)
}

func TestPlace_UnboundRemovalFailureIsLogged(t *testing.T) {
	in := scriptWithLocations(t)
	in.HandleResult("Debugger.setBreakpointByUrl", proto.DebuggerSetBreakpointByURLResult{BreakpointID: "pending"})
	in.Reject("Debugger.removeBreakpoint", -32000, "Breakpoint with specified id does not exist.")
	core, logs := observer.New(zapcore.DebugLevel)

	res, err := New(zap.New(core)).Place(in, Request{ScriptID: "42", Path: "/srv/app/dist/app.js", Line: 3})
	require.NoError(t, err)
	assert.Equal(t, StrategyURLRegex, res.Strategy)

	entries := logs.FilterMessage("removing unbound url breakpoint failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "pending", entries[0].ContextMap()["breakpointId"])
}

func TestPlace_SetBreakpointRejectedFallsBack(t *testing.T) {
	in := scriptWithLocations(t, 2)
	in.Reject("Debugger.setBreakpoint", -32000, "Breakpoint at specified location already exists.")
	in.Reject("Debugger.setBreakpointByUrl", -32000, "Breakpoint at specified location already exists.")

	_, err := New(nil).Place(in, Request{ScriptID: "42", Path: "/srv/app/dist/app.js", Line: 3})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPlacement))
	assert.Len(t, in.Calls("Debugger.setBreakpointByUrl"), 2)
}

func TestPlace_InvalidLine(t *testing.T) {
	_, err := New(nil).Place(inspectortest.New(), Request{ScriptID: "42", Line: 0})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidCoordinate))
}
