// Package inspectortest provides an in-memory inspector endpoint for tests.
//
// Inspector implements cdp.WebSocketable, so a real cdp.Client can run on
// top of it, and proto.Client, so packages that only need typed calls can
// use it without a websocket at all.
package inspectortest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/ctagard/cdp-mcp/internal/inspector"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// HandlerFunc answers one command. Returning a *cdp.Error produces a
// protocol-level error response.
type HandlerFunc func(params json.RawMessage) (interface{}, error)

// Call is a recorded command.
type Call struct {
	Method string
	Params json.RawMessage
}

// Decode unmarshals the recorded params into v.
func (c Call) Decode(v interface{}) error {
	return json.Unmarshal(c.Params, v)
}

// Inspector is a scripted inspector endpoint.
type Inspector struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call

	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates an Inspector that accepts the enable/binding housekeeping
// commands with empty results.
func New() *Inspector {
	i := &Inspector{
		handlers: make(map[string]HandlerFunc),
		inbox:    make(chan []byte, 4096),
		closed:   make(chan struct{}),
	}
	empty := func(json.RawMessage) (interface{}, error) { return map[string]interface{}{}, nil }
	for _, m := range []string{
		"Runtime.enable",
		"Console.enable",
		"Profiler.enable",
		"HeapProfiler.enable",
		"Runtime.addBinding",
		"Runtime.runIfWaitingForDebugger",
		"Debugger.removeBreakpoint",
		"Debugger.resume",
		"Debugger.pause",
		"Debugger.stepOver",
		"Debugger.stepInto",
		"Debugger.stepOut",
		"Debugger.setPauseOnExceptions",
	} {
		i.handlers[m] = empty
	}
	i.handlers["Debugger.enable"] = func(json.RawMessage) (interface{}, error) {
		return map[string]interface{}{"debuggerId": "fake-debugger"}, nil
	}
	return i
}

// Handle registers fn for method, replacing any previous handler.
func (i *Inspector) Handle(method string, fn HandlerFunc) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handlers[method] = fn
}

// HandleResult registers a handler that always returns result.
func (i *Inspector) HandleResult(method string, result interface{}) {
	i.Handle(method, func(json.RawMessage) (interface{}, error) { return result, nil })
}

// Reject registers a handler that always fails with a protocol error.
func (i *Inspector) Reject(method string, code int, message string) {
	i.Handle(method, func(json.RawMessage) (interface{}, error) {
		return nil, &cdp.Error{Code: code, Message: message}
	})
}

// errNoReply makes Send swallow the request so the caller times out.
var errNoReply = fmt.Errorf("no reply")

// Ignore registers a handler that never answers.
func (i *Inspector) Ignore(method string) {
	i.Handle(method, func(json.RawMessage) (interface{}, error) { return nil, errNoReply })
}

// Calls returns the recorded calls of method, or all calls when method is empty.
func (i *Inspector) Calls(method string) []Call {
	i.mu.Lock()
	defer i.mu.Unlock()
	var out []Call
	for _, c := range i.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// dispatch runs the handler for method and records the call.
func (i *Inspector) dispatch(method string, params json.RawMessage) (json.RawMessage, error) {
	i.mu.Lock()
	i.calls = append(i.calls, Call{Method: method, Params: params})
	fn, ok := i.handlers[method]
	i.mu.Unlock()

	if !ok {
		return nil, &cdp.Error{Code: -32601, Message: fmt.Sprintf("'%s' wasn't found", method)}
	}
	res, err := fn(params)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = map[string]interface{}{}
	}
	return json.Marshal(res)
}

// Call implements proto.Client without going through a websocket.
func (i *Inspector) Call(ctx context.Context, _ string, method string, params interface{}) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return i.dispatch(method, raw)
}

// Send implements cdp.WebSocketable: it receives a request from the client
// and queues the response.
func (i *Inspector) Send(data []byte) error {
	select {
	case <-i.closed:
		return io.ErrClosedPipe
	default:
	}

	var req struct {
		ID     int             `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	res, err := i.dispatch(req.Method, req.Params)
	if err == errNoReply {
		return nil
	}
	msg := map[string]interface{}{"id": req.ID}
	if err != nil {
		if cerr, ok := err.(*cdp.Error); ok {
			msg["error"] = cerr
		} else {
			msg["error"] = &cdp.Error{Code: -32000, Message: err.Error()}
		}
	} else {
		msg["result"] = res
	}
	i.push(msg)
	return nil
}

// Read implements cdp.WebSocketable.
func (i *Inspector) Read() ([]byte, error) {
	select {
	case <-i.closed:
		return nil, io.EOF
	case data := <-i.inbox:
		return data, nil
	}
}

// Close drops the connection. The client observes it as a transport failure.
func (i *Inspector) Close() error {
	i.closeOnce.Do(func() { close(i.closed) })
	return nil
}

// Closed reports whether Close was called.
func (i *Inspector) Closed() bool {
	select {
	case <-i.closed:
		return true
	default:
		return false
	}
}

// Emit queues a notification.
func (i *Inspector) Emit(method string, params interface{}) {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	i.push(map[string]interface{}{"method": method, "params": json.RawMessage(raw)})
}

// EmitEvent queues a typed notification.
func (i *Inspector) EmitEvent(evt proto.Event) {
	i.Emit(evt.ProtoEvent(), evt)
}

func (i *Inspector) push(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	select {
	case i.inbox <- data:
	case <-i.closed:
	}
}

// Dialer hands out Inspectors. Every successful Dial creates a fresh
// Inspector, configured by Setup when set.
type Dialer struct {
	mu      sync.Mutex
	targets []types.Target
	listErr error
	dialErr error
	dials   int
	current *Inspector

	// Setup configures each new Inspector before it is returned.
	Setup func(*Inspector)
}

// NewDialer returns a Dialer that lists the given targets.
func NewDialer(targets ...types.Target) *Dialer {
	return &Dialer{targets: targets}
}

// DefaultTarget is a typical Node target entry.
func DefaultTarget() types.Target {
	return types.Target{
		ID:                   "0f2c0d2e-1111-4c1a-9b7e-000000000001",
		Type:                 "node",
		Title:                "app.js",
		URL:                  "file:///srv/app/dist/app.js",
		WebSocketDebuggerURL: "ws://127.0.0.1:9229/0f2c0d2e-1111-4c1a-9b7e-000000000001",
	}
}

// SetTargets replaces the listed targets.
func (d *Dialer) SetTargets(targets ...types.Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = targets
}

// FailList makes ListTargets fail with err (nil restores it).
func (d *Dialer) FailList(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listErr = err
}

// FailDial makes Dial fail with err (nil restores it).
func (d *Dialer) FailDial(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// ListTargets implements inspector.Dialer.
func (d *Dialer) ListTargets(ctx context.Context, host string, port int) ([]types.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	return append([]types.Target(nil), d.targets...), nil
}

// Dial implements inspector.Dialer.
func (d *Dialer) Dial(ctx context.Context, wsURL string) (inspector.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	in := New()
	if d.Setup != nil {
		d.Setup(in)
	}
	d.current = in
	return in, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Current returns the Inspector from the last successful Dial.
func (d *Dialer) Current() *Inspector {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}
