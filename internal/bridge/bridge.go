// Package bridge interprets the raw inspector event stream.
//
// It keeps the script registry current, tracks the paused state, turns
// binding and console reports into logpoint hits, promotes url-based
// breakpoints once the runtime resolves them, and re-publishes every
// classified observation on the bus as a typed event.
package bridge

import (
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/internal/ledger"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/internal/logpoint"
	"github.com/ctagard/cdp-mcp/internal/scripts"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Channels a logpoint hit can arrive on.
const (
	ChannelBinding = "binding"
	ChannelConsole = "console"
)

// Options wires the bridge to its collaborators.
type Options struct {
	Bus      *events.Bus
	Registry *scripts.Registry
	Ledger   *ledger.Ledger

	// Client issues the binding installs. It is usually a session view
	// bound to a background context.
	Client proto.Client

	// Binding is the name of the reporting function. Defaults to
	// logpoint.DefaultBinding.
	Binding string

	Clock  clock.Clock
	Logger *zap.Logger
}

// Bridge classifies inspector events.
type Bridge struct {
	opts  Options
	clock clock.Clock
	log   *zap.Logger

	mu       sync.Mutex
	sub      *events.Subscription
	paused   bool
	frames   []*proto.DebuggerCallFrame
	stepping bool

	wg sync.WaitGroup
}

// New creates a bridge. Call Start to begin consuming events.
func New(opts Options) *Bridge {
	if opts.Binding == "" {
		opts.Binding = logpoint.DefaultBinding
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Bridge{
		opts:  opts,
		clock: opts.Clock,
		log:   logging.Named(opts.Logger, "bridge"),
	}
}

// Start subscribes to the protocol kinds the bridge understands. Calling it
// twice is a no-op.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return
	}
	b.sub = b.opts.Bus.Subscribe(b.handle,
		events.ScriptParsed,
		events.Paused,
		events.Resumed,
		events.BindingCalled,
		events.ConsoleAPICalled,
		events.ExecutionContextCreated,
		events.ExecutionContextsCleared,
		events.BreakpointResolved,
	)
}

// Stop unsubscribes and waits for pending binding installs.
func (b *Bridge) Stop() {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	b.wg.Wait()
}

// Paused reports whether the target is currently suspended.
func (b *Bridge) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// CallFrames returns the call frames of the current pause, or nil when the
// target is running.
func (b *Bridge) CallFrames() []*proto.DebuggerCallFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*proto.DebuggerCallFrame(nil), b.frames...)
}

// ExpectStep marks the next pause as the end of a step. V8 reports steps
// with the generic "other" reason.
func (b *Bridge) ExpectStep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stepping = true
}

// Reset forgets the paused state. Used when a new session supersedes the
// previous one.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = false
	b.frames = nil
	b.stepping = false
}

// InstallBinding adds the reporting binding. A zero contextID installs it in
// every context, including ones created later.
func (b *Bridge) InstallBinding(contextID proto.RuntimeExecutionContextID) error {
	return proto.RuntimeAddBinding{Name: b.opts.Binding, ExecutionContextID: contextID}.Call(b.opts.Client)
}

func (b *Bridge) handle(e events.Event) {
	switch e.Kind {
	case events.ScriptParsed:
		b.onScriptParsed(e)
	case events.Paused:
		b.onPaused(e)
	case events.Resumed:
		b.onResumed(e)
	case events.BindingCalled:
		b.onBindingCalled(e)
	case events.ConsoleAPICalled:
		b.onConsole(e)
	case events.ExecutionContextCreated:
		b.onContextCreated(e)
	case events.ExecutionContextsCleared:
		b.log.Debug("execution contexts cleared")
	case events.BreakpointResolved:
		b.onBreakpointResolved(e)
	}
}

func (b *Bridge) onScriptParsed(e events.Event) {
	var evt proto.DebuggerScriptParsed
	if err := e.Decode(&evt); err != nil {
		b.log.Warn("malformed scriptParsed", zap.Error(err))
		return
	}
	script := types.Script{
		ID:                 string(evt.ScriptID),
		URL:                evt.URL,
		SourceMapURL:       evt.SourceMapURL,
		Hash:               evt.Hash,
		ExecutionContextID: int(evt.ExecutionContextID),
		DiscoveredAt:       b.clock.Now(),
	}
	b.opts.Registry.Add(script)

	for _, rec := range b.opts.Ledger.BindScript(script) {
		b.log.Info("breakpoint verified", zap.String("breakpointId", rec.ID), zap.String("url", script.URL))
		b.publish(events.BreakpointVerified, rec)
	}
}

// Classify maps a runtime pause reason to the stop-reason vocabulary.
func Classify(reason proto.DebuggerPausedReason, hitBreakpoints []string, stepping bool) types.StopReason {
	switch reason {
	case proto.DebuggerPausedReasonException,
		proto.DebuggerPausedReasonPromiseRejection,
		proto.DebuggerPausedReasonAssert,
		proto.DebuggerPausedReasonOOM:
		return types.StopException
	}
	switch {
	case len(hitBreakpoints) > 0:
		return types.StopBreakpoint
	case stepping, reason == proto.DebuggerPausedReasonStep:
		return types.StopStep
	}
	return types.StopPause
}

func (b *Bridge) onPaused(e events.Event) {
	var evt proto.DebuggerPaused
	if err := e.Decode(&evt); err != nil {
		b.log.Warn("malformed paused event", zap.Error(err))
		return
	}

	b.mu.Lock()
	stepping := b.stepping
	b.stepping = false
	b.paused = true
	b.frames = evt.CallFrames
	b.mu.Unlock()

	de := types.DebuggerEvent{
		Timestamp:      b.clock.Now(),
		Kind:           types.DebuggerPaused,
		Reason:         Classify(evt.Reason, evt.HitBreakpoints, stepping),
		RawReason:      string(evt.Reason),
		HitBreakpoints: evt.HitBreakpoints,
		Location:       b.topLocation(evt.CallFrames),
	}
	if d, ok := evt.Data["description"]; ok {
		de.Description = d.Str()
	}

	b.log.Info("paused", zap.String("reason", string(de.Reason)), zap.String("raw", de.RawReason))
	b.opts.Ledger.AppendEvent(de)
	b.publish(events.DebuggerPaused, de)
}

func (b *Bridge) topLocation(frames []*proto.DebuggerCallFrame) *types.SourcePosition {
	if len(frames) == 0 || frames[0].Location == nil {
		return nil
	}
	loc := frames[0].Location
	file := frames[0].URL
	if file == "" {
		if s, ok := b.opts.Registry.ByID(string(loc.ScriptID)); ok {
			file = s.URL
		}
	}
	col := 0
	if loc.ColumnNumber != nil {
		col = *loc.ColumnNumber
	}
	return &types.SourcePosition{File: file, Line: loc.LineNumber + 1, Column: col + 1}
}

func (b *Bridge) onResumed(events.Event) {
	b.mu.Lock()
	b.paused = false
	b.frames = nil
	b.mu.Unlock()

	de := types.DebuggerEvent{Timestamp: b.clock.Now(), Kind: types.DebuggerResumed}
	b.opts.Ledger.AppendEvent(de)
	b.publish(events.DebuggerResumed, de)
}

func (b *Bridge) onBindingCalled(e events.Event) {
	var evt proto.RuntimeBindingCalled
	if err := e.Decode(&evt); err != nil {
		b.log.Warn("malformed bindingCalled", zap.Error(err))
		return
	}
	if evt.Name != b.opts.Binding {
		return
	}
	b.hit(evt.Payload, int(evt.ExecutionContextID), ChannelBinding)
}

func (b *Bridge) onConsole(e events.Event) {
	var evt proto.RuntimeConsoleAPICalled
	if err := e.Decode(&evt); err != nil {
		b.log.Warn("malformed consoleAPICalled", zap.Error(err))
		return
	}

	if len(evt.Args) > 0 && evt.Args[0].Type == proto.RuntimeRemoteObjectTypeString {
		if raw, ok := logpoint.StripMarker(evt.Args[0].Value.Str()); ok {
			b.hit(raw, int(evt.ExecutionContextID), ChannelConsole)
			return
		}
	}

	parts := make([]string, 0, len(evt.Args))
	for _, arg := range evt.Args {
		parts = append(parts, Describe(arg))
	}
	msg := types.ConsoleMessage{
		Timestamp:          b.clock.Now(),
		Type:               string(evt.Type),
		Text:               strings.Join(parts, " "),
		ExecutionContextID: int(evt.ExecutionContextID),
	}
	b.opts.Ledger.AppendConsole(msg)
	b.publish(events.ConsoleMessage, msg)
}

func (b *Bridge) hit(raw string, contextID int, channel string) {
	p := logpoint.ParsePayload(raw)
	h := types.LogpointHit{
		Timestamp:          p.Timestamp,
		ExecutionContextID: contextID,
		Raw:                raw,
		Message:            p.Message,
		Values:             p.Values,
		Errors:             p.Errors,
		Level:              p.Level,
		Location:           p.Location,
		Channel:            channel,
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = b.clock.Now()
	}
	b.opts.Ledger.AppendHit(h)
	b.publish(events.LogpointHit, h)
}

func (b *Bridge) onContextCreated(e events.Event) {
	var evt proto.RuntimeExecutionContextCreated
	if err := e.Decode(&evt); err != nil || evt.Context == nil {
		b.log.Warn("malformed executionContextCreated", zap.Error(err))
		return
	}
	if b.opts.Client == nil {
		return
	}

	// Handlers run on the session's read loop, which must stay free to
	// deliver the reply.
	id := evt.Context.ID
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.InstallBinding(id); err != nil {
			b.log.Warn("installing logpoint binding failed",
				zap.Int("executionContextId", int(id)), zap.Error(err))
		}
	}()
}

func (b *Bridge) onBreakpointResolved(e events.Event) {
	var evt proto.DebuggerBreakpointResolved
	if err := e.Decode(&evt); err != nil || evt.Location == nil {
		b.log.Warn("malformed breakpointResolved", zap.Error(err))
		return
	}

	script, ok := b.opts.Registry.ByID(string(evt.Location.ScriptID))
	if !ok {
		b.log.Debug("breakpoint resolved in unknown script",
			zap.String("breakpointId", string(evt.BreakpointID)),
			zap.String("scriptId", string(evt.Location.ScriptID)))
		return
	}
	col := 0
	if evt.Location.ColumnNumber != nil {
		col = *evt.Location.ColumnNumber
	}
	loc := types.ResolvedLocation{
		ScriptID: script.ID,
		URL:      script.URL,
		Line:     evt.Location.LineNumber + 1,
		Column:   col + 1,
	}

	rec, ok := b.opts.Ledger.MarkVerified(string(evt.BreakpointID), loc)
	if !ok {
		return
	}
	b.log.Info("breakpoint verified", zap.String("breakpointId", rec.ID), zap.String("url", script.URL))
	b.publish(events.BreakpointVerified, rec)
}

func (b *Bridge) publish(kind events.Kind, data interface{}) {
	b.opts.Bus.Publish(events.Event{Kind: kind, Time: b.clock.Now(), Data: data})
}

// Describe renders a remote object the way a console would print it.
func Describe(obj *proto.RuntimeRemoteObject) string {
	if obj == nil {
		return ""
	}
	switch {
	case obj.Type == proto.RuntimeRemoteObjectTypeString:
		return obj.Value.Str()
	case obj.Type == proto.RuntimeRemoteObjectTypeUndefined:
		return "undefined"
	case obj.UnserializableValue != "":
		return string(obj.UnserializableValue)
	case obj.ObjectID == "" && !obj.Value.Nil():
		return obj.Value.JSON("", "")
	case obj.Description != "":
		return obj.Description
	case obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull:
		return "null"
	}
	return string(obj.Type)
}
