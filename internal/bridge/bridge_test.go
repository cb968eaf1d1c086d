package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/internal/inspector/inspectortest"
	"github.com/ctagard/cdp-mcp/internal/ledger"
	"github.com/ctagard/cdp-mcp/internal/logpoint"
	"github.com/ctagard/cdp-mcp/internal/scripts"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

type fixture struct {
	bus      *events.Bus
	clock    *clock.Mock
	registry *scripts.Registry
	ledger   *ledger.Ledger
	remote   *inspectortest.Inspector
	bridge   *Bridge

	published []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bus:    events.NewBus(),
		clock:  clock.NewMock(),
		ledger: ledger.New(ledger.Options{}),
		remote: inspectortest.New(),
	}
	f.clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	f.registry = scripts.NewRegistry(f.clock, nil)
	f.bridge = New(Options{
		Bus:      f.bus,
		Registry: f.registry,
		Ledger:   f.ledger,
		Client:   f.remote,
		Clock:    f.clock,
	})
	f.bridge.Start()
	t.Cleanup(f.bridge.Stop)

	f.bus.Subscribe(func(e events.Event) { f.published = append(f.published, e) },
		events.LogpointHit, events.DebuggerPaused, events.DebuggerResumed,
		events.BreakpointVerified, events.ConsoleMessage)
	return f
}

func (f *fixture) emit(t *testing.T, evt proto.Event) {
	t.Helper()
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	method := evt.ProtoEvent()
	f.bus.Publish(events.Event{Kind: events.KindOf(method), Method: method, Params: raw})
}

func (f *fixture) kinds() []events.Kind {
	out := make([]events.Kind, 0, len(f.published))
	for _, e := range f.published {
		out = append(out, e.Kind)
	}
	return out
}

func col(v int) *int { return &v }

func TestClassify(t *testing.T) {
	tests := []struct {
		reason   proto.DebuggerPausedReason
		hits     []string
		stepping bool
		want     types.StopReason
	}{
		{proto.DebuggerPausedReasonException, nil, false, types.StopException},
		{proto.DebuggerPausedReasonPromiseRejection, nil, false, types.StopException},
		{proto.DebuggerPausedReasonAssert, []string{"1"}, false, types.StopException},
		{proto.DebuggerPausedReasonOther, []string{"1"}, false, types.StopBreakpoint},
		{proto.DebuggerPausedReasonOther, []string{"1"}, true, types.StopBreakpoint},
		{proto.DebuggerPausedReasonOther, nil, true, types.StopStep},
		{proto.DebuggerPausedReasonStep, nil, false, types.StopStep},
		{proto.DebuggerPausedReasonOther, nil, false, types.StopPause},
		{proto.DebuggerPausedReasonDebugCommand, nil, false, types.StopPause},
		{proto.DebuggerPausedReasonDOM, nil, false, types.StopPause},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.reason, tt.hits, tt.stepping), "%s hits=%v stepping=%v", tt.reason, tt.hits, tt.stepping)
	}
}

func TestScriptParsedUpdatesRegistry(t *testing.T) {
	f := newFixture(t)
	f.emit(t, &proto.DebuggerScriptParsed{
		ScriptID:           "41",
		URL:                "file:///srv/app/dist/app.js",
		SourceMapURL:       "app.js.map",
		Hash:               "abc",
		ExecutionContextID: 1,
	})

	s, ok := f.registry.ByURL("file:///srv/app/dist/app.js")
	require.True(t, ok)
	assert.Equal(t, "41", s.ID)
	assert.Equal(t, "app.js.map", s.SourceMapURL)
	assert.Equal(t, f.clock.Now(), s.DiscoveredAt)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	f.emit(t, &proto.DebuggerScriptParsed{ScriptID: "41", URL: "file:///srv/app/dist/app.js"})

	f.emit(t, &proto.DebuggerPaused{
		Reason:         proto.DebuggerPausedReasonOther,
		HitBreakpoints: []string{"1:11:0:file:///srv/app/dist/app.js"},
		CallFrames: []*proto.DebuggerCallFrame{{
			CallFrameID:  "frame-0",
			FunctionName: "handler",
			Location:     &proto.DebuggerLocation{ScriptID: "41", LineNumber: 11, ColumnNumber: col(4)},
		}},
	})

	assert.True(t, f.bridge.Paused())
	require.Len(t, f.bridge.CallFrames(), 1)

	last, ok := f.ledger.LastEvent()
	require.True(t, ok)
	assert.Equal(t, types.StopBreakpoint, last.Reason)
	assert.Equal(t, "other", last.RawReason)
	require.NotNil(t, last.Location)
	assert.Equal(t, types.SourcePosition{File: "file:///srv/app/dist/app.js", Line: 12, Column: 5}, *last.Location)

	f.emit(t, &proto.DebuggerResumed{})
	assert.False(t, f.bridge.Paused())
	assert.Empty(t, f.bridge.CallFrames())

	assert.Equal(t, []events.Kind{events.DebuggerPaused, events.DebuggerResumed}, f.kinds())
	paused, ok := f.published[0].Data.(types.DebuggerEvent)
	require.True(t, ok)
	assert.Equal(t, types.DebuggerPaused, paused.Kind)
	assert.Len(t, f.ledger.Events(0), 2)
}

func TestExpectStepAppliesToNextPauseOnly(t *testing.T) {
	f := newFixture(t)

	f.bridge.ExpectStep()
	f.emit(t, &proto.DebuggerPaused{Reason: proto.DebuggerPausedReasonOther})
	f.emit(t, &proto.DebuggerResumed{})
	f.emit(t, &proto.DebuggerPaused{Reason: proto.DebuggerPausedReasonOther})

	evs := f.ledger.Events(0)
	require.Len(t, evs, 3)
	assert.Equal(t, types.StopStep, evs[0].Reason)
	assert.Equal(t, types.StopPause, evs[2].Reason)
}

func TestExceptionPauseCarriesDescription(t *testing.T) {
	f := newFixture(t)
	f.emit(t, &proto.DebuggerPaused{
		Reason: proto.DebuggerPausedReasonException,
		Data:   map[string]gson.JSON{"description": gson.New("Error: boom\n    at handler")},
	})

	last, ok := f.ledger.LastEvent()
	require.True(t, ok)
	assert.Equal(t, types.StopException, last.Reason)
	assert.Equal(t, "Error: boom\n    at handler", last.Description)
	assert.Nil(t, last.Location)
}

func TestBindingCalledProducesLogpointHit(t *testing.T) {
	f := newFixture(t)

	payload := `{"message":"user 7","values":{"user.id":7},"errors":{"x":"ReferenceError: x is not defined"},"timestamp":1767225600000,"level":"warn","location":"src/app.ts:4"}`
	f.emit(t, &proto.RuntimeBindingCalled{Name: logpoint.DefaultBinding, Payload: payload, ExecutionContextID: 3})
	f.emit(t, &proto.RuntimeBindingCalled{Name: "someoneElse", Payload: "ignored", ExecutionContextID: 3})

	hits := f.ledger.Hits(0)
	require.Len(t, hits, 1)
	h := hits[0]
	assert.Equal(t, "user 7", h.Message)
	assert.Equal(t, float64(7), h.Values["user.id"])
	assert.Equal(t, "ReferenceError: x is not defined", h.Errors["x"])
	assert.Equal(t, types.LogLevelWarn, h.Level)
	assert.Equal(t, "src/app.ts:4", h.Location)
	assert.Equal(t, ChannelBinding, h.Channel)
	assert.Equal(t, 3, h.ExecutionContextID)
	assert.Equal(t, int64(1767225600000), h.Timestamp.UnixMilli())
	assert.Equal(t, payload, h.Raw)

	assert.Equal(t, []events.Kind{events.LogpointHit}, f.kinds())
}

func TestPlainTextBindingPayload(t *testing.T) {
	f := newFixture(t)
	f.emit(t, &proto.RuntimeBindingCalled{Name: logpoint.DefaultBinding, Payload: "not json"})

	hits := f.ledger.Hits(0)
	require.Len(t, hits, 1)
	assert.Equal(t, "not json", hits[0].Message)
	assert.Equal(t, types.LogLevelInfo, hits[0].Level)
	assert.Equal(t, f.clock.Now(), hits[0].Timestamp)
}

func TestConsoleMessages(t *testing.T) {
	f := newFixture(t)

	f.emit(t, &proto.RuntimeConsoleAPICalled{
		Type:               proto.RuntimeConsoleAPICalledTypeDebug,
		ExecutionContextID: 2,
		Args: []*proto.RuntimeRemoteObject{{
			Type:  proto.RuntimeRemoteObjectTypeString,
			Value: gson.New(logpoint.MarkerPrefix + `{"message":"via console"}`),
		}},
	})
	f.emit(t, &proto.RuntimeConsoleAPICalled{
		Type:               proto.RuntimeConsoleAPICalledTypeLog,
		ExecutionContextID: 2,
		Args: []*proto.RuntimeRemoteObject{
			{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("count")},
			{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(42)},
			{Type: proto.RuntimeRemoteObjectTypeObject, ObjectID: "obj-1", ClassName: "Object", Description: "Object"},
			{Type: proto.RuntimeRemoteObjectTypeUndefined},
		},
	})

	hits := f.ledger.Hits(0)
	require.Len(t, hits, 1)
	assert.Equal(t, "via console", hits[0].Message)
	assert.Equal(t, ChannelConsole, hits[0].Channel)

	msgs := f.ledger.Console(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "log", msgs[0].Type)
	assert.Equal(t, "count 42 Object undefined", msgs[0].Text)
	assert.Equal(t, 2, msgs[0].ExecutionContextID)

	assert.Equal(t, []events.Kind{events.LogpointHit, events.ConsoleMessage}, f.kinds())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "NaN", Describe(&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeNumber, UnserializableValue: "NaN"}))
	assert.Equal(t, "true", Describe(&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeBoolean, Value: gson.New(true)}))
	assert.Equal(t, "null", Describe(&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeObject, Subtype: proto.RuntimeRemoteObjectSubtypeNull}))
	assert.Equal(t, "Array(2)", Describe(&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeObject, ObjectID: "a", Description: "Array(2)"}))
}

func TestExecutionContextCreatedInstallsBinding(t *testing.T) {
	f := newFixture(t)
	f.emit(t, &proto.RuntimeExecutionContextCreated{
		Context: &proto.RuntimeExecutionContextDescription{ID: 5, Name: "worker"},
	})

	require.Eventually(t, func() bool {
		return len(f.remote.Calls("Runtime.addBinding")) == 1
	}, time.Second, 5*time.Millisecond)

	var req proto.RuntimeAddBinding
	require.NoError(t, f.remote.Calls("Runtime.addBinding")[0].Decode(&req))
	assert.Equal(t, logpoint.DefaultBinding, req.Name)
	assert.Equal(t, proto.RuntimeExecutionContextID(5), req.ExecutionContextID)
}

func TestBreakpointResolvedVerifiesPendingRecord(t *testing.T) {
	f := newFixture(t)
	f.ledger.Add(types.BreakpointRecord{ID: "bp-url", RuntimeID: "bp-url", File: "/srv/app/src/app.ts", Line: 4, Message: "pending"})
	f.ledger.Add(types.BreakpointRecord{ID: "bp-other", RuntimeID: "bp-other", File: "/srv/app/src/app.ts", Line: 9, Message: "pending"})
	f.emit(t, &proto.DebuggerScriptParsed{ScriptID: "7", URL: "file:///srv/app/dist/app.js"})

	f.emit(t, &proto.DebuggerBreakpointResolved{
		BreakpointID: "bp-url",
		Location:     &proto.DebuggerLocation{ScriptID: "7", LineNumber: 4, ColumnNumber: col(2)},
	})
	f.emit(t, &proto.DebuggerBreakpointResolved{
		BreakpointID: "bp-other",
		Location:     &proto.DebuggerLocation{ScriptID: "99", LineNumber: 1},
	})

	rec, ok := f.ledger.Get("bp-url")
	require.True(t, ok)
	assert.True(t, rec.Verified)
	require.NotNil(t, rec.Location)
	assert.Equal(t, types.ResolvedLocation{ScriptID: "7", URL: "file:///srv/app/dist/app.js", Line: 5, Column: 3}, *rec.Location)

	other, _ := f.ledger.Get("bp-other")
	assert.False(t, other.Verified, "script 99 is unknown to the registry")

	assert.Equal(t, []events.Kind{events.BreakpointVerified}, f.kinds())
}

func TestScriptParsedVerifiesRecordWaitingForIt(t *testing.T) {
	f := newFixture(t)
	f.ledger.Add(types.BreakpointRecord{ID: "bp-early", RuntimeID: "bp-early", File: "/srv/app/src/app.ts", Line: 4, Message: "waiting"})
	f.ledger.AwaitScript("bp-early", types.ResolvedLocation{ScriptID: "8", Line: 5, Column: 3})

	f.emit(t, &proto.DebuggerScriptParsed{ScriptID: "8", URL: "file:///srv/app/dist/app.js"})

	rec, ok := f.ledger.Get("bp-early")
	require.True(t, ok)
	assert.True(t, rec.Verified)
	require.NotNil(t, rec.Location)
	assert.Equal(t, "file:///srv/app/dist/app.js", rec.Location.URL)
	assert.Equal(t, []events.Kind{events.BreakpointVerified}, f.kinds())
}

func TestResetClearsPauseState(t *testing.T) {
	f := newFixture(t)
	f.bridge.ExpectStep()
	f.emit(t, &proto.DebuggerPaused{Reason: proto.DebuggerPausedReasonOther, CallFrames: []*proto.DebuggerCallFrame{{CallFrameID: "f"}}})

	f.bridge.Reset()
	assert.False(t, f.bridge.Paused())
	assert.Empty(t, f.bridge.CallFrames())
}
