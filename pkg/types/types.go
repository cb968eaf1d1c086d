// Package types defines shared data types used across the CDP-MCP server.
//
// This package provides type definitions for:
//   - ConnectionState: inspector session states (disconnected, connecting, connected, reconnecting)
//   - Target: a debuggable target listed by the inspector endpoint
//   - Script: a generated-source unit reported by the runtime
//   - BreakpointSpec / BreakpointRecord: placement requests and their tracked results
//   - LogpointHit, DebuggerEvent, ConsoleMessage: runtime observations
//   - StackFrame, Scope, Variable, EvaluateResult: inspection results
//
// All line and column numbers in these types are 1-based.
package types

import "time"

// ConnectionState represents the state of the inspector session
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// Target is one entry of the inspector endpoint's /json/list response
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	Description          string `json:"description,omitempty"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl,omitempty"`
}

// Script is a generated-source unit known to the runtime
type Script struct {
	ID                 string    `json:"scriptId"`
	URL                string    `json:"url"`
	SourceMapURL       string    `json:"sourceMapUrl,omitempty"`
	Hash               string    `json:"hash,omitempty"`
	ExecutionContextID int       `json:"executionContextId,omitempty"`
	DiscoveredAt       time.Time `json:"discoveredAt"`
}

// BreakpointKind distinguishes pausing breakpoints from logpoints
type BreakpointKind string

const (
	KindBreakpoint BreakpointKind = "breakpoint"
	KindLogpoint   BreakpointKind = "logpoint"
)

// LogLevel is the severity attached to a logpoint
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Valid reports whether l is one of the known levels
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// BreakpointSpec is a single breakpoint or logpoint request for a file
type BreakpointSpec struct {
	Line       int      `json:"line"`
	Column     int      `json:"column,omitempty"`
	Condition  string   `json:"condition,omitempty"`
	LogMessage string   `json:"logMessage,omitempty"`
	LogLevel   LogLevel `json:"logLevel,omitempty"`
}

// Kind returns logpoint when the spec carries a log template
func (s BreakpointSpec) Kind() BreakpointKind {
	if s.LogMessage != "" {
		return KindLogpoint
	}
	return KindBreakpoint
}

// SourcePosition is a file coordinate
type SourcePosition struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Provenance records how a requested coordinate was translated
type Provenance struct {
	Used          bool   `json:"used"`
	MatchedSource string `json:"matchedSource,omitempty"`
	MapFile       string `json:"mapFile,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
	GeneratedFile string `json:"generatedFile,omitempty"`
}

// ResolvedLocation is where the runtime actually placed a breakpoint
type ResolvedLocation struct {
	ScriptID string `json:"scriptId"`
	URL      string `json:"url,omitempty"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// BreakpointRecord is a tracked breakpoint or logpoint
type BreakpointRecord struct {
	ID         string            `json:"id"`
	Kind       BreakpointKind    `json:"kind"`
	File       string            `json:"file"`
	Line       int               `json:"line"`
	Column     int               `json:"column"`
	Condition  string            `json:"condition,omitempty"`
	LogMessage string            `json:"logMessage,omitempty"`
	LogLevel   LogLevel          `json:"logLevel,omitempty"`
	Verified   bool              `json:"verified"`
	Message    string            `json:"message,omitempty"`
	Location   *ResolvedLocation `json:"location,omitempty"`
	Provenance Provenance        `json:"provenance"`
	Placement  string            `json:"placement,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`

	// RuntimeID is empty when the runtime never accepted the breakpoint
	RuntimeID string `json:"runtimeId,omitempty"`
}

// LogpointHit is one report delivered by a logpoint
type LogpointHit struct {
	Timestamp          time.Time              `json:"timestamp"`
	ExecutionContextID int                    `json:"executionContextId"`
	Raw                string                 `json:"raw"`
	Message            string                 `json:"message"`
	Values             map[string]interface{} `json:"values,omitempty"`
	Errors             map[string]string      `json:"errors,omitempty"`
	Level              LogLevel               `json:"level"`
	Location           string                 `json:"location,omitempty"`
	Channel            string                 `json:"channel"`
}

// StopReason is the normalized reason for a pause
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopException  StopReason = "exception"
	StopStep       StopReason = "step"
	StopPause      StopReason = "pause"
)

// DebuggerEventKind distinguishes pause and resume events
type DebuggerEventKind string

const (
	DebuggerPaused  DebuggerEventKind = "paused"
	DebuggerResumed DebuggerEventKind = "resumed"
)

// DebuggerEvent is a recorded pause or resume
type DebuggerEvent struct {
	Timestamp      time.Time         `json:"timestamp"`
	Kind           DebuggerEventKind `json:"kind"`
	Reason         StopReason        `json:"reason,omitempty"`
	RawReason      string            `json:"rawReason,omitempty"`
	HitBreakpoints []string          `json:"hitBreakpoints,omitempty"`
	Location       *SourcePosition   `json:"location,omitempty"`
	Description    string            `json:"description,omitempty"`
}

// ConsoleMessage is a console API call observed in the target
type ConsoleMessage struct {
	Timestamp          time.Time `json:"timestamp"`
	Type               string    `json:"type"`
	Text               string    `json:"text"`
	ExecutionContextID int       `json:"executionContextId"`
}

// StackFrame is one frame of the paused call stack
type StackFrame struct {
	Index        int             `json:"index"`
	CallFrameID  string          `json:"callFrameId"`
	FunctionName string          `json:"functionName"`
	ScriptID     string          `json:"scriptId"`
	URL          string          `json:"url,omitempty"`
	Line         int             `json:"line"`
	Column       int             `json:"column"`
	Original     *SourcePosition `json:"original,omitempty"`
}

// Scope is one entry of a frame's scope chain
type Scope struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	ObjectID string `json:"objectId,omitempty"`
}

// Variable is a property of a scope or object
type Variable struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Type     string `json:"type,omitempty"`
	ObjectID string `json:"objectId,omitempty"`
}

// EvaluateResult represents the result of evaluating an expression
type EvaluateResult struct {
	Result    string `json:"result"`
	Type      string `json:"type,omitempty"`
	ObjectID  string `json:"objectId,omitempty"`
	Exception string `json:"exception,omitempty"`
}

// SessionInfo summarizes the current inspector session
type SessionInfo struct {
	SessionID         string          `json:"sessionId,omitempty"`
	State             ConnectionState `json:"state"`
	Target            *Target         `json:"target,omitempty"`
	Domains           []string        `json:"domains,omitempty"`
	ReconnectAttempts int             `json:"reconnectAttempts"`
	Paused            bool            `json:"paused"`
}
