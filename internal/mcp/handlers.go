package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/engine"
	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/launchconfig"
	"github.com/ctagard/cdp-mcp/internal/launcher"
	"github.com/ctagard/cdp-mcp/internal/ledger"
	"github.com/ctagard/cdp-mcp/internal/version"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

const breakpointsExample = `[{"line": 12}, {"line": 20, "condition": "n > 3"}, {"line": 31, "logMessage": "user={user.id}"}]`

// Session Handlers

func (s *Server) handleDebugConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		target types.Target
		err    error
	)

	if configName := request.GetString("configName", ""); configName != "" {
		workspace := request.GetString("workspace", "")
		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		attach, lerr := launchconfig.LoadAttach(workspace, configName)
		if lerr != nil {
			return toolError(lerr), nil
		}
		if attach.WSURL != "" {
			target, err = s.engine.ConnectURL(ctx, attach.WSURL)
		} else {
			target, err = s.engine.Connect(ctx, attach.Host, attach.Port, engine.SelectorFor(""))
		}
		if err != nil {
			return toolError(err), nil
		}
		s.setAttachPaths(attach.SearchPaths)
		s.log.Info("connected from launch configuration",
			zap.String("config", configName), zap.Strings("searchPaths", attach.SearchPaths))
		return s.connectedResult(target, map[string]interface{}{"configuration": attach.Name})
	}

	s.setAttachPaths(nil)
	if wsURL := request.GetString("wsUrl", ""); wsURL != "" {
		target, err = s.engine.ConnectURL(ctx, wsURL)
	} else {
		host := request.GetString("host", s.config.Inspector.Host)
		port := request.GetInt("port", s.config.Inspector.Port)
		targetID := request.GetString("targetId", s.config.Inspector.TargetID)
		target, err = s.engine.Connect(ctx, host, port, engine.SelectorFor(targetID))
	}
	if err != nil {
		return toolError(err), nil
	}
	return s.connectedResult(target, nil)
}

func (s *Server) connectedResult(target types.Target, extra map[string]interface{}) (*mcp.CallToolResult, error) {
	result := map[string]interface{}{
		"target":  target,
		"session": s.engine.Info(),
		"message": fmt.Sprintf("Connected to %s. Set breakpoints with debug_set_breakpoints.", target.Title),
	}
	for k, v := range extra {
		result[k] = v
	}
	return jsonResult(result)
}

func (s *Server) handleDebugDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.Disconnect(); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{
		"state":   s.engine.State(),
		"message": "Disconnected",
	})
}

// StatusResult is the debug_status payload.
type StatusResult struct {
	Version     string               `json:"version"`
	Update      string               `json:"update,omitempty"`
	Mode        string               `json:"mode"`
	Session     types.SessionInfo    `json:"session"`
	Counts      ledger.Stats         `json:"counts"`
	Scripts     int                  `json:"scripts"`
	Files       []string             `json:"files"`
	LastEvent   *types.DebuggerEvent `json:"lastEvent,omitempty"`
	Launched    []*launcher.Process  `json:"launched,omitempty"`
	DAPLog      string               `json:"dapLog,omitempty"`
	EventsTotal uint64               `json:"eventsPublished"`
}

func (s *Server) handleDebugStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	published, _ := s.engine.Bus().Stats()
	status := StatusResult{
		Version:     version.Version,
		Mode:        string(s.config.Mode),
		Session:     s.engine.Info(),
		Counts:      s.engine.Ledger().Stats(),
		Scripts:     s.engine.Registry().Len(),
		Files:       s.engine.Ledger().Files(),
		Launched:    s.launcher.Processes(),
		EventsTotal: published,
	}
	if ev, ok := s.engine.Ledger().LastEvent(); ok {
		status.LastEvent = &ev
	}
	if s.dapLog != nil {
		status.DAPLog = s.dapLog.Path()
	}
	if s.checker != nil {
		status.Update = s.checker.UpdateInfo().UpdateMessage()
	}
	return jsonResult(status)
}

func (s *Server) handleDebugListTargets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := request.GetString("host", s.config.Inspector.Host)
	port := request.GetInt("port", s.config.Inspector.Port)

	targets, err := s.engine.ListTargets(ctx, host, port)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{
		"endpoint": fmt.Sprintf("%s:%d", host, port),
		"targets":  targets,
	})
}

// Breakpoint Handlers

func (s *Server) handleDebugSetBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return toolError(errors.MissingParameter("file",
			"Path of the source file, e.g. '/app/src/server.ts'. TypeScript and other original sources are translated through source maps.")), nil
	}

	raw, err := request.RequireString("breakpoints")
	if err != nil {
		return toolError(errors.MissingParameter("breakpoints",
			"JSON array of breakpoints. Use [] to clear the file. Example: "+breakpointsExample)), nil
	}
	var specs []types.BreakpointSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return toolError(errors.InvalidJSON("breakpoints", err, breakpointsExample)), nil
	}

	recs, err := s.engine.SetBreakpoints(ctx, file, specs, s.searchPaths(request))
	if err != nil {
		return toolError(err), nil
	}

	verified := lo.CountBy(recs, func(r types.BreakpointRecord) bool { return r.Verified })
	result := map[string]interface{}{
		"file":       file,
		"verified":   verified,
		"unverified": len(recs) - verified,
	}
	if request.GetString("format", "records") == "dap" {
		result["breakpoints"] = s.converter.Breakpoints(recs)
	} else {
		result["breakpoints"] = recs
	}
	return jsonResult(result)
}

func (s *Server) handleDebugRemoveBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return toolError(errors.MissingParameter("id", "Breakpoint id from debug_list_breakpoints.")), nil
	}
	rec, err := s.engine.RemoveBreakpoint(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{
		"removed": rec,
	})
}

func (s *Server) handleDebugListBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs := s.engine.ListBreakpoints(request.GetString("file", ""))
	return jsonResult(map[string]interface{}{
		"breakpoints": recs,
		"count":       len(recs),
	})
}

// Execution Control Handlers

func (s *Server) handleDebugResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.Resume(ctx); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{"resumed": true})
}

func (s *Server) handleDebugPause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.Pause(ctx); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{
		"requested": true,
		"message":   "Pause requested. Check debug_events or debug_stack.",
	})
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := request.GetString("type", engine.StepOver)
	if err := s.engine.Step(ctx, kind); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{"stepped": kind})
}

func (s *Server) handleDebugPauseOnExceptions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := request.RequireString("state")
	if err != nil {
		return toolError(errors.MissingParameter("state", "One of 'none', 'caught', 'uncaught' or 'all'.")), nil
	}
	if err := s.engine.SetPauseOnExceptions(ctx, state); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{"state": state})
}

// Inspection Handlers

func (s *Server) handleDebugEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := request.RequireString("expression")
	if err != nil {
		return toolError(errors.MissingParameter("expression", "JavaScript expression to evaluate, e.g. 'user.id'.")), nil
	}
	result, err := s.engine.Evaluate(ctx, expression, request.GetInt("frameIndex", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleDebugStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frames, err := s.engine.Stack(ctx)
	if err != nil {
		return toolError(err), nil
	}
	result := map[string]interface{}{"frames": frames}
	if ev, ok := s.engine.Ledger().LastEvent(); ok && ev.Kind == types.DebuggerPaused {
		result["reason"] = ev.Reason
		result["hitBreakpoints"] = ev.HitBreakpoints
	}
	return jsonResult(result)
}

func (s *Server) handleDebugScopes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scopes, err := s.engine.Scopes(request.GetInt("frameIndex", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{"scopes": scopes})
}

func (s *Server) handleDebugVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	objectID, err := request.RequireString("objectId")
	if err != nil {
		return toolError(errors.MissingParameter("objectId", "objectId from debug_scopes or debug_evaluate.")), nil
	}
	vars, err := s.engine.Variables(ctx, objectID)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{"variables": vars})
}

func (s *Server) handleDebugLogpointHits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l := s.engine.Ledger()
	hits := l.Hits(request.GetInt("limit", 0))
	stats := l.Stats()
	if request.GetBool("clear", false) {
		l.ClearHits()
	}
	return jsonResult(map[string]interface{}{
		"hits":    hits,
		"count":   len(hits),
		"dropped": stats.DroppedHits,
	})
}

func (s *Server) handleDebugEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l := s.engine.Ledger()
	evs := l.Events(request.GetInt("limit", 0))
	stats := l.Stats()
	if request.GetBool("clear", false) {
		l.ClearEvents()
	}
	return jsonResult(map[string]interface{}{
		"events":  evs,
		"count":   len(evs),
		"dropped": stats.DroppedEvents,
		"paused":  s.engine.Paused(),
	})
}

func (s *Server) handleDebugConsole(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l := s.engine.Ledger()
	msgs := l.Console(request.GetInt("limit", 0))
	stats := l.Stats()
	if request.GetBool("clear", false) {
		l.ClearConsole()
	}
	return jsonResult(map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
		"dropped":  stats.DroppedConsole,
	})
}

func (s *Server) handleDebugResolveSource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return toolError(errors.MissingParameter("file", "Source or generated file to translate from.")), nil
	}
	line, err := request.RequireInt("line")
	if err != nil {
		return toolError(errors.MissingParameter("line", "1-based line number.")), nil
	}
	column := request.GetInt("column", 1)
	paths := s.searchPaths(request)

	resolver := s.engine.Resolver()
	direction := strings.ToLower(request.GetString("direction", "generated"))
	switch direction {
	case "generated":
		res, err := resolver.ResolveGenerated(file, line, column, paths)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	case "original":
		res, err := resolver.ResolveOriginal(file, line, column, paths)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(res)
	default:
		return toolError(errors.InvalidParameter("direction", direction, "generated or original")), nil
	}
}

// Launch Handlers

func (s *Server) handleDebugLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proc, err := s.launcher.Launch(ctx, launcher.Request{
		Program: request.GetString("program", ""),
		Args:    request.GetStringSlice("args", nil),
		Cwd:     request.GetString("cwd", ""),
		Port:    request.GetInt("port", 0),
	})
	if err != nil {
		return toolError(err), nil
	}

	s.setAttachPaths(nil)
	target, err := s.engine.ConnectURL(ctx, proc.WSURL)
	if err != nil {
		if serr := proc.Stop(); serr != nil {
			s.log.Warn("stopping launched program failed", zap.Int("pid", proc.PID), zap.Error(serr))
		}
		return toolError(err), nil
	}
	return s.connectedResult(target, map[string]interface{}{"process": proc})
}

// Helper Functions

// searchPaths merges the request's searchPaths with those of the attach
// configuration in use.
func (s *Server) searchPaths(request mcp.CallToolRequest) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Uniq(append(request.GetStringSlice("searchPaths", nil), s.attachPaths...))
}

func (s *Server) setAttachPaths(paths []string) {
	s.mu.Lock()
	s.attachPaths = paths
	s.mu.Unlock()
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
