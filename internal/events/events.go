// Package events is the typed publish/subscribe channel shared by the
// inspector session, the event bridge and the tool layer.
//
// Every event carries a Kind from a closed enumeration. Protocol kinds wrap a
// raw inspector notification (method plus JSON params); lifecycle kinds are
// produced by the session state machine; classified kinds are produced by the
// bridge after it has interpreted protocol events.
package events

import (
	"encoding/json"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Kind identifies the type of an event.
type Kind int

const (
	// Lifecycle
	Connected Kind = iota + 1
	Disconnected
	Reconnecting
	Fatal

	// Protocol notifications
	ScriptParsed
	Paused
	Resumed
	BindingCalled
	ConsoleAPICalled
	ExecutionContextCreated
	ExecutionContextsCleared
	BreakpointResolved
	OtherProtocol

	// Classified by the bridge
	LogpointHit
	DebuggerPaused
	DebuggerResumed
	BreakpointVerified
	ConsoleMessage
)

var kindNames = map[Kind]string{
	Connected:                "connected",
	Disconnected:             "disconnected",
	Reconnecting:             "reconnecting",
	Fatal:                    "fatal",
	ScriptParsed:             "scriptParsed",
	Paused:                   "paused",
	Resumed:                  "resumed",
	BindingCalled:            "bindingCalled",
	ConsoleAPICalled:         "consoleAPICalled",
	ExecutionContextCreated:  "executionContextCreated",
	ExecutionContextsCleared: "executionContextsCleared",
	BreakpointResolved:       "breakpointResolved",
	OtherProtocol:            "protocol",
	LogpointHit:              "logpointHit",
	DebuggerPaused:           "debuggerPaused",
	DebuggerResumed:          "debuggerResumed",
	BreakpointVerified:       "breakpointVerified",
	ConsoleMessage:           "consoleMessage",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsProtocol reports whether k wraps a raw inspector notification.
func (k Kind) IsProtocol() bool {
	return k >= ScriptParsed && k <= OtherProtocol
}

var methodKinds = map[string]Kind{
	proto.DebuggerScriptParsed{}.ProtoEvent():            ScriptParsed,
	proto.DebuggerPaused{}.ProtoEvent():                  Paused,
	proto.DebuggerResumed{}.ProtoEvent():                 Resumed,
	proto.DebuggerBreakpointResolved{}.ProtoEvent():      BreakpointResolved,
	proto.RuntimeBindingCalled{}.ProtoEvent():            BindingCalled,
	proto.RuntimeConsoleAPICalled{}.ProtoEvent():         ConsoleAPICalled,
	proto.RuntimeExecutionContextCreated{}.ProtoEvent():  ExecutionContextCreated,
	proto.RuntimeExecutionContextsCleared{}.ProtoEvent(): ExecutionContextsCleared,
}

// KindOf maps a protocol method name to its event kind. Methods without a
// dedicated kind map to OtherProtocol.
func KindOf(method string) Kind {
	if k, ok := methodKinds[method]; ok {
		return k
	}
	return OtherProtocol
}

// Event is a single published event.
type Event struct {
	Kind Kind
	Time time.Time

	// Method and Params are set for protocol kinds.
	Method string
	Params json.RawMessage

	// Data holds the typed payload of lifecycle and classified kinds.
	Data interface{}
}

// Decode unmarshals the protocol params of e into v, typically a proto event
// struct such as *proto.DebuggerPaused.
func (e Event) Decode(v proto.Event) error {
	return json.Unmarshal(e.Params, v)
}

// ConnectedData is the payload of Connected.
type ConnectedData struct {
	TargetID    string
	URL         string
	Reconnected bool
}

// ReconnectingData is the payload of Reconnecting.
type ReconnectingData struct {
	Attempt     int
	MaxAttempts int
}

// DisconnectedData is the payload of Disconnected.
type DisconnectedData struct {
	Explicit bool
	Reason   string
}
