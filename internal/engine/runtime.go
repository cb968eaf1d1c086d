package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/bridge"
	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/scripts"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Step kinds accepted by Step.
const (
	StepOver = "over"
	StepInto = "into"
	StepOut  = "out"
)

// objectGroup is released with the pause; handles from it are only valid
// while the target stays suspended.
const objectGroup = "cdp-mcp"

func removeBreakpoint(c proto.Client, id string) error {
	return proto.DebuggerRemoveBreakpoint{BreakpointID: proto.DebuggerBreakpointID(id)}.Call(c)
}

// Resume continues a paused target.
func (e *Engine) Resume(ctx context.Context) error {
	if !e.bridge.Paused() {
		return errors.NotPaused("resume")
	}
	return proto.DebuggerResume{}.Call(e.client(ctx))
}

// Pause suspends a running target. The pause is reported through the
// event stream.
func (e *Engine) Pause(ctx context.Context) error {
	return proto.DebuggerPause{}.Call(e.client(ctx))
}

// Step performs one step of the given kind.
func (e *Engine) Step(ctx context.Context, kind string) error {
	if !e.bridge.Paused() {
		return errors.NotPaused("step " + kind)
	}

	var req proto.Request
	switch kind {
	case StepOver, "":
		kind, req = StepOver, proto.DebuggerStepOver{}
	case StepInto:
		req = proto.DebuggerStepInto{}
	case StepOut:
		req = proto.DebuggerStepOut{}
	default:
		return errors.InvalidParameter("type", kind, "over, into or out")
	}

	e.bridge.ExpectStep()
	if _, err := e.session.Call(ctx, "", req.ProtoReq(), req); err != nil {
		return errors.StepFailed(kind, err)
	}
	return nil
}

// SetPauseOnExceptions selects which exceptions suspend the target.
func (e *Engine) SetPauseOnExceptions(ctx context.Context, state string) error {
	s := proto.DebuggerSetPauseOnExceptionsState(state)
	switch s {
	case proto.DebuggerSetPauseOnExceptionsStateNone,
		proto.DebuggerSetPauseOnExceptionsStateCaught,
		proto.DebuggerSetPauseOnExceptionsStateUncaught,
		proto.DebuggerSetPauseOnExceptionsStateAll:
	default:
		return errors.InvalidParameter("state", state, "none, caught, uncaught or all")
	}
	return proto.DebuggerSetPauseOnExceptions{State: s}.Call(e.client(ctx))
}

// frame returns call frame index of the current pause.
func (e *Engine) frame(operation string, index int) (*proto.DebuggerCallFrame, error) {
	frames := e.bridge.CallFrames()
	if len(frames) == 0 {
		return nil, errors.NotPaused(operation)
	}
	if index < 0 || index >= len(frames) {
		return nil, errors.InvalidParameter("frameIndex", index, fmt.Sprintf("0 to %d", len(frames)-1))
	}
	return frames[index], nil
}

// Evaluate runs expression on call frame frameIndex while paused, or in the
// global scope while running.
func (e *Engine) Evaluate(ctx context.Context, expression string, frameIndex int) (*types.EvaluateResult, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, errors.MissingParameter("expression", "JavaScript expression to evaluate.")
	}

	var (
		obj     *proto.RuntimeRemoteObject
		details *proto.RuntimeExceptionDetails
	)
	if e.bridge.Paused() {
		f, err := e.frame("evaluate", frameIndex)
		if err != nil {
			return nil, err
		}
		res, err := proto.DebuggerEvaluateOnCallFrame{
			CallFrameID: f.CallFrameID,
			Expression:  expression,
			ObjectGroup: objectGroup,
		}.Call(e.client(ctx))
		if err != nil {
			return nil, errors.EvaluationFailed(expression, err)
		}
		obj, details = res.Result, res.ExceptionDetails
	} else {
		res, err := proto.RuntimeEvaluate{
			Expression:   expression,
			ObjectGroup:  objectGroup,
			AwaitPromise: true,
		}.Call(e.client(ctx))
		if err != nil {
			return nil, errors.EvaluationFailed(expression, err)
		}
		obj, details = res.Result, res.ExceptionDetails
	}

	out := &types.EvaluateResult{Result: bridge.Describe(obj)}
	if obj != nil {
		out.Type = string(obj.Type)
		out.ObjectID = string(obj.ObjectID)
	}
	if details != nil {
		out.Exception = exceptionText(details)
	}
	return out, nil
}

func exceptionText(d *proto.RuntimeExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

// Stack returns the call frames of the current pause. Frames in generated
// code also carry their original position when a source map covers them.
func (e *Engine) Stack(ctx context.Context) ([]types.StackFrame, error) {
	frames := e.bridge.CallFrames()
	if len(frames) == 0 {
		return nil, errors.NotPaused("stack")
	}

	out := make([]types.StackFrame, 0, len(frames))
	for i, f := range frames {
		sf := types.StackFrame{
			Index:        i,
			CallFrameID:  string(f.CallFrameID),
			FunctionName: f.FunctionName,
			URL:          f.URL,
		}
		if f.Location != nil {
			sf.ScriptID = string(f.Location.ScriptID)
			sf.Line = f.Location.LineNumber + 1
			sf.Column = 1
			if f.Location.ColumnNumber != nil {
				sf.Column = *f.Location.ColumnNumber + 1
			}
		}
		if sf.URL == "" {
			if s, ok := e.registry.ByID(sf.ScriptID); ok {
				sf.URL = s.URL
			}
		}
		sf.Original = e.original(sf)
		out = append(out, sf)
	}
	return out, nil
}

// original maps a frame in an on-disk script back through its source map.
func (e *Engine) original(sf types.StackFrame) *types.SourcePosition {
	if sf.Line < 1 || !(strings.HasPrefix(sf.URL, "file://") || filepath.IsAbs(sf.URL)) {
		return nil
	}
	res, err := e.resolver.ResolveOriginal(scripts.StripFileURL(sf.URL), sf.Line, sf.Column, nil)
	if err != nil || !res.Found {
		return nil
	}
	pos := res.Position
	return &pos
}

// Scopes returns the scope chain of call frame frameIndex.
func (e *Engine) Scopes(frameIndex int) ([]types.Scope, error) {
	f, err := e.frame("scopes", frameIndex)
	if err != nil {
		return nil, err
	}
	out := make([]types.Scope, 0, len(f.ScopeChain))
	for _, s := range f.ScopeChain {
		sc := types.Scope{Type: string(s.Type), Name: s.Name}
		if s.Object != nil {
			sc.ObjectID = string(s.Object.ObjectID)
		}
		out = append(out, sc)
	}
	return out, nil
}

// Variables lists the own properties of a remote object, typically a scope
// object returned by Scopes.
func (e *Engine) Variables(ctx context.Context, objectID string) ([]types.Variable, error) {
	if objectID == "" {
		return nil, errors.MissingParameter("objectId", "Object id from debug_scopes or a previous debug_variables call.")
	}
	res, err := proto.RuntimeGetProperties{
		ObjectID:      proto.RuntimeRemoteObjectID(objectID),
		OwnProperties: true,
	}.Call(e.client(ctx))
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		e.log.Debug("getProperties threw", zap.String("objectId", objectID), zap.String("text", res.ExceptionDetails.Text))
	}

	out := make([]types.Variable, 0, len(res.Result))
	for _, p := range res.Result {
		v := types.Variable{Name: p.Name}
		switch {
		case p.Value != nil:
			v.Value = bridge.Describe(p.Value)
			v.Type = string(p.Value.Type)
			v.ObjectID = string(p.Value.ObjectID)
		case p.Get != nil:
			v.Value = "[getter]"
			v.Type = "accessor"
		}
		out = append(out, v)
	}
	return out, nil
}
