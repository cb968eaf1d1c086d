// Package dapbridge presents the engine's records and events in Debug
// Adapter Protocol form.
//
// The engine speaks the inspector protocol to the target. Tools and editors
// that understand DAP can follow a session through the messages built here:
// stopped, continued, output and breakpoint events, and Breakpoint bodies for
// tracked records. An unverified record maps to a DAP breakpoint with
// verified=false and its message; it is never turned into an error.
package dapbridge

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/go-dap"

	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// ThreadID is the single thread a JavaScript target reports.
const ThreadID = 1

// Converter builds DAP messages. DAP identifies breakpoints by integer, so a
// Converter hands out stable integers for record ids.
type Converter struct {
	mu   sync.Mutex
	next int
	ids  map[string]int
}

// NewConverter creates a Converter.
func NewConverter() *Converter {
	return &Converter{next: 1, ids: make(map[string]int)}
}

// ID returns the DAP breakpoint id for a record or runtime id.
func (c *Converter) ID(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.ids[id]; ok {
		return n
	}
	n := c.next
	c.next++
	c.ids[id] = n
	return n
}

// Breakpoint converts a tracked record. Line and column stay in the
// coordinates of the requested file.
func (c *Converter) Breakpoint(rec types.BreakpointRecord) dap.Breakpoint {
	bp := dap.Breakpoint{
		Id:       c.ID(rec.ID),
		Verified: rec.Verified,
		Message:  rec.Message,
		Line:     rec.Line,
		Column:   rec.Column,
	}
	if rec.File != "" {
		bp.Source = &dap.Source{Name: filepath.Base(rec.File), Path: rec.File}
	}
	return bp
}

// Breakpoints converts a batch, preserving order.
func (c *Converter) Breakpoints(recs []types.BreakpointRecord) []dap.Breakpoint {
	out := make([]dap.Breakpoint, 0, len(recs))
	for _, r := range recs {
		out = append(out, c.Breakpoint(r))
	}
	return out
}

func event(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

// Stopped converts a pause.
func (c *Converter) Stopped(ev types.DebuggerEvent) *dap.StoppedEvent {
	msg := &dap.StoppedEvent{
		Event: event("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            stopReason(ev.Reason),
			Description:       ev.Description,
			ThreadId:          ThreadID,
			AllThreadsStopped: true,
		},
	}
	for _, id := range ev.HitBreakpoints {
		msg.Body.HitBreakpointIds = append(msg.Body.HitBreakpointIds, c.ID(id))
	}
	if ev.Location != nil {
		msg.Body.Text = fmt.Sprintf("%s:%d:%d", ev.Location.File, ev.Location.Line, ev.Location.Column)
	}
	return msg
}

func stopReason(r types.StopReason) string {
	switch r {
	case types.StopBreakpoint, types.StopException, types.StopStep, types.StopPause:
		return string(r)
	}
	return string(types.StopPause)
}

// Continued converts a resume.
func (c *Converter) Continued() *dap.ContinuedEvent {
	return &dap.ContinuedEvent{
		Event: event("continued"),
		Body:  dap.ContinuedEventBody{ThreadId: ThreadID, AllThreadsContinued: true},
	}
}

// LogpointOutput converts a logpoint hit.
func (c *Converter) LogpointOutput(hit types.LogpointHit) *dap.OutputEvent {
	out := hit.Message
	if hit.Location != "" {
		out = fmt.Sprintf("[%s] %s", hit.Location, hit.Message)
	}
	return output(levelCategory(string(hit.Level)), out)
}

// ConsoleOutput converts a console message.
func (c *Converter) ConsoleOutput(msg types.ConsoleMessage) *dap.OutputEvent {
	return output(levelCategory(msg.Type), msg.Text)
}

func levelCategory(level string) string {
	switch level {
	case "error", "warn", "warning", "assert", "trace":
		return "stderr"
	}
	return "stdout"
}

func output(category, text string) *dap.OutputEvent {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return &dap.OutputEvent{
		Event: event("output"),
		Body:  dap.OutputEventBody{Category: category, Output: text},
	}
}

// BreakpointChanged converts a verification change of rec.
func (c *Converter) BreakpointChanged(rec types.BreakpointRecord) *dap.BreakpointEvent {
	return &dap.BreakpointEvent{
		Event: event("breakpoint"),
		Body:  dap.BreakpointEventBody{Reason: "changed", Breakpoint: c.Breakpoint(rec)},
	}
}

// Convert maps a classified bus event to its DAP message. Other kinds, and
// classified events with an unexpected payload, report false.
func (c *Converter) Convert(e events.Event) (dap.Message, bool) {
	switch e.Kind {
	case events.DebuggerPaused:
		if ev, ok := e.Data.(types.DebuggerEvent); ok {
			return c.Stopped(ev), true
		}
	case events.DebuggerResumed:
		return c.Continued(), true
	case events.LogpointHit:
		if hit, ok := e.Data.(types.LogpointHit); ok {
			return c.LogpointOutput(hit), true
		}
	case events.ConsoleMessage:
		if msg, ok := e.Data.(types.ConsoleMessage); ok {
			return c.ConsoleOutput(msg), true
		}
	case events.BreakpointVerified:
		if rec, ok := e.Data.(types.BreakpointRecord); ok {
			return c.BreakpointChanged(rec), true
		}
	}
	return nil, false
}
