package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Requirement is the session state a tool needs.
type Requirement string

const (
	RequireAny       Requirement = "any"
	RequireConnected Requirement = "connected"
	RequirePaused    Requirement = "paused"
)

// Permission is the capability a tool needs beyond its state.
type Permission string

const (
	PermNone     Permission = ""
	PermControl  Permission = "control"
	PermEvaluate Permission = "evaluate"
	PermLaunch   Permission = "launch"
)

// Access is one row of the access policy.
type Access struct {
	State      Requirement
	Permission Permission
}

// policy maps every tool to its access requirements.
var policy = map[string]Access{
	"debug_connect":             {RequireAny, PermNone},
	"debug_disconnect":          {RequireAny, PermNone},
	"debug_status":              {RequireAny, PermNone},
	"debug_list_targets":        {RequireAny, PermNone},
	"debug_set_breakpoints":     {RequireAny, PermControl},
	"debug_remove_breakpoint":   {RequireAny, PermControl},
	"debug_list_breakpoints":    {RequireAny, PermNone},
	"debug_resume":              {RequirePaused, PermControl},
	"debug_pause":               {RequireConnected, PermControl},
	"debug_step":                {RequirePaused, PermControl},
	"debug_pause_on_exceptions": {RequireConnected, PermControl},
	"debug_evaluate":            {RequireConnected, PermEvaluate},
	"debug_stack":               {RequirePaused, PermNone},
	"debug_scopes":              {RequirePaused, PermNone},
	"debug_variables":           {RequireConnected, PermNone},
	"debug_logpoint_hits":       {RequireAny, PermNone},
	"debug_events":              {RequireAny, PermNone},
	"debug_console":             {RequireAny, PermNone},
	"debug_resolve_source":      {RequireAny, PermNone},
	"debug_launch":              {RequireAny, PermLaunch},
}

// check returns the structured error denying tool, or nil.
func (s *Server) check(tool string) error {
	access, ok := policy[tool]
	if !ok {
		return errors.Wrap(errors.KindInternal, "UNKNOWN_TOOL", "no access policy for "+tool, "", nil)
	}

	switch access.Permission {
	case PermControl:
		if !s.config.CanUseControlTools() {
			return errors.PermissionDenied("control", string(s.config.Mode))
		}
	case PermEvaluate:
		if !s.config.CanEvaluate() {
			return errors.PermissionDenied("evaluate", string(s.config.Mode))
		}
	case PermLaunch:
		if !s.config.CanLaunch() {
			return errors.PermissionDenied("launch", string(s.config.Mode))
		}
	}

	state := s.engine.State()
	switch access.State {
	case RequireConnected:
		if state != types.StateConnected {
			return errors.InvalidState(tool, string(RequireConnected), string(state))
		}
	case RequirePaused:
		if state != types.StateConnected {
			return errors.InvalidState(tool, string(RequirePaused), string(state))
		}
		if !s.engine.Paused() {
			return errors.InvalidState(tool, string(RequirePaused), "running")
		}
	}
	return nil
}

// guard wraps handler with the access check of tool.
func (s *Server) guard(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := s.check(tool); err != nil {
			s.log.Debug("tool call denied", zap.String("tool", tool), zap.Error(err))
			return toolError(err), nil
		}
		return handler(ctx, request)
	}
}

// addTool registers tool behind its access check.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	guarded := s.guard(tool.Name, handler)
	s.tools[tool.Name] = guarded
	s.mcpServer.AddTool(tool, guarded)
}

// toolError renders err as a structured JSON error result.
func toolError(err error) *mcp.CallToolResult {
	de := errors.FromError(err)
	b, merr := json.Marshal(de)
	if merr != nil {
		return mcp.NewToolResultError(de.Error())
	}
	return mcp.NewToolResultError(string(b))
}
