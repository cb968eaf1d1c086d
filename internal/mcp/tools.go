package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug tool set. Every tool is registered;
// the access policy rejects calls the mode or session state do not allow.
func (s *Server) registerTools() {
	// Session
	s.registerDebugConnect()
	s.registerDebugDisconnect()
	s.registerDebugStatus()
	s.registerDebugListTargets()

	// Breakpoints
	s.registerDebugSetBreakpoints()
	s.registerDebugRemoveBreakpoint()
	s.registerDebugListBreakpoints()

	// Execution control
	s.registerDebugResume()
	s.registerDebugPause()
	s.registerDebugStep()
	s.registerDebugPauseOnExceptions()

	// Inspection
	s.registerDebugEvaluate()
	s.registerDebugStack()
	s.registerDebugScopes()
	s.registerDebugVariables()
	s.registerDebugLogpointHits()
	s.registerDebugEvents()
	s.registerDebugConsole()
	s.registerDebugResolveSource()

	// Launching
	s.registerDebugLaunch()
}

// Session Tools

func (s *Server) registerDebugConnect() {
	tool := mcp.NewTool("debug_connect",
		mcp.WithDescription("Connect to a Node.js inspector. Enables the Runtime and Debugger domains, installs the logpoint binding and lets a --inspect-brk program start. Connecting replaces the previous session and drops its breakpoints."),
		mcp.WithString("host",
			mcp.Description("Inspector host (default from config, usually 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Inspector port (default from config, usually 9229)"),
		),
		mcp.WithString("targetId",
			mcp.Description("Target id from debug_list_targets. Defaults to the first target."),
		),
		mcp.WithString("wsUrl",
			mcp.Description("Explicit websocket url, e.g. ws://127.0.0.1:9229/<id>. Skips target discovery."),
		),
		mcp.WithString("configName",
			mcp.Description("Name of a node attach configuration in .vscode/launch.json. Its address, port and outFiles are used."),
		),
		mcp.WithString("workspace",
			mcp.Description("Directory to start the launch.json search from (default: current directory)"),
		),
	)
	s.addTool(tool, s.handleDebugConnect)
}

func (s *Server) registerDebugDisconnect() {
	tool := mcp.NewTool("debug_disconnect",
		mcp.WithDescription("Close the inspector session. Tracked breakpoints stay listed until the next connect."),
	)
	s.addTool(tool, s.handleDebugDisconnect)
}

func (s *Server) registerDebugStatus() {
	tool := mcp.NewTool("debug_status",
		mcp.WithDescription("Report the connection state, target, reconnect attempts, pause state, buffer counters, launched programs and server version."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugStatus)
}

func (s *Server) registerDebugListTargets() {
	tool := mcp.NewTool("debug_list_targets",
		mcp.WithDescription("List the debuggable targets of an inspector endpoint without connecting."),
		mcp.WithString("host",
			mcp.Description("Inspector host (default from config)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Inspector port (default from config)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugListTargets)
}

// Breakpoint Tools

func (s *Server) registerDebugSetBreakpoints() {
	tool := mcp.NewTool("debug_set_breakpoints",
		mcp.WithDescription("Replace every breakpoint and logpoint of a source file. Coordinates are 1-based and refer to the file you name, original TypeScript included; source maps translate them. Items fail independently: an item that cannot be placed comes back with verified=false and a message."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Path of the source file, e.g. /app/src/server.ts"),
		),
		mcp.WithString("breakpoints",
			mcp.Required(),
			mcp.Description(`JSON array of breakpoints: [{"line": 12}, {"line": 20, "condition": "n > 3"}, {"line": 31, "logMessage": "user={user.id}", "logLevel": "info"}]. An empty array clears the file.`),
		),
		mcp.WithArray("searchPaths",
			mcp.Description("Extra directories to search for source maps"),
			mcp.WithStringItems(),
		),
		mcp.WithString("format",
			mcp.Description("Result shape: 'records' (default) or 'dap' for DAP Breakpoint objects"),
			mcp.Enum("records", "dap"),
		),
	)
	s.addTool(tool, s.handleDebugSetBreakpoints)
}

func (s *Server) registerDebugRemoveBreakpoint() {
	tool := mcp.NewTool("debug_remove_breakpoint",
		mcp.WithDescription("Remove one tracked breakpoint or logpoint by id."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Breakpoint id from debug_set_breakpoints or debug_list_breakpoints"),
		),
		mcp.WithDestructiveHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugRemoveBreakpoint)
}

func (s *Server) registerDebugListBreakpoints() {
	tool := mcp.NewTool("debug_list_breakpoints",
		mcp.WithDescription("List tracked breakpoints and logpoints, verified and unverified."),
		mcp.WithString("file",
			mcp.Description("Only list the breakpoints of this file"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugListBreakpoints)
}

// Execution Control Tools

func (s *Server) registerDebugResume() {
	tool := mcp.NewTool("debug_resume",
		mcp.WithDescription("Resume a paused target."),
	)
	s.addTool(tool, s.handleDebugResume)
}

func (s *Server) registerDebugPause() {
	tool := mcp.NewTool("debug_pause",
		mcp.WithDescription("Pause a running target. The pause shows up in debug_events."),
	)
	s.addTool(tool, s.handleDebugPause)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Step a paused target. The next pause is reported with reason 'step'."),
		mcp.WithString("type",
			mcp.Description("Step type: 'over' (default), 'into' or 'out'"),
			mcp.Enum("over", "into", "out"),
		),
	)
	s.addTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugPauseOnExceptions() {
	tool := mcp.NewTool("debug_pause_on_exceptions",
		mcp.WithDescription("Choose which thrown exceptions pause the target."),
		mcp.WithString("state",
			mcp.Required(),
			mcp.Description("'none', 'caught', 'uncaught' or 'all'"),
			mcp.Enum("none", "caught", "uncaught", "all"),
		),
	)
	s.addTool(tool, s.handleDebugPauseOnExceptions)
}

// Inspection Tools

func (s *Server) registerDebugEvaluate() {
	tool := mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Evaluate a JavaScript expression. While paused it runs on the selected call frame, otherwise in the global scope."),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("Expression to evaluate"),
		),
		mcp.WithNumber("frameIndex",
			mcp.Description("Call frame to evaluate on while paused (default: 0, the top frame)"),
		),
	)
	s.addTool(tool, s.handleDebugEvaluate)
}

func (s *Server) registerDebugStack() {
	tool := mcp.NewTool("debug_stack",
		mcp.WithDescription("Call stack of the current pause, with original source positions where a source map is known."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugStack)
}

func (s *Server) registerDebugScopes() {
	tool := mcp.NewTool("debug_scopes",
		mcp.WithDescription("Scope chain of a call frame. Pass a scope objectId to debug_variables to read it."),
		mcp.WithNumber("frameIndex",
			mcp.Description("Call frame index (default: 0)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugScopes)
}

func (s *Server) registerDebugVariables() {
	tool := mcp.NewTool("debug_variables",
		mcp.WithDescription("Own properties of a scope or object."),
		mcp.WithString("objectId",
			mcp.Required(),
			mcp.Description("objectId from debug_scopes, debug_variables or debug_evaluate"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugVariables)
}

func (s *Server) registerDebugLogpointHits() {
	tool := mcp.NewTool("debug_logpoint_hits",
		mcp.WithDescription("Logpoint reports, oldest first, with the rendered message and the captured values."),
		mcp.WithNumber("limit",
			mcp.Description("Return only the most recent N hits (default: all)"),
		),
		mcp.WithBoolean("clear",
			mcp.Description("Clear the buffer after reading"),
		),
	)
	s.addTool(tool, s.handleDebugLogpointHits)
}

func (s *Server) registerDebugEvents() {
	tool := mcp.NewTool("debug_events",
		mcp.WithDescription("Recorded pause and resume events, oldest first."),
		mcp.WithNumber("limit",
			mcp.Description("Return only the most recent N events (default: all)"),
		),
		mcp.WithBoolean("clear",
			mcp.Description("Clear the buffer after reading"),
		),
	)
	s.addTool(tool, s.handleDebugEvents)
}

func (s *Server) registerDebugConsole() {
	tool := mcp.NewTool("debug_console",
		mcp.WithDescription("Console output of the target, oldest first."),
		mcp.WithNumber("limit",
			mcp.Description("Return only the most recent N messages (default: all)"),
		),
		mcp.WithBoolean("clear",
			mcp.Description("Clear the buffer after reading"),
		),
	)
	s.addTool(tool, s.handleDebugConsole)
}

func (s *Server) registerDebugResolveSource() {
	tool := mcp.NewTool("debug_resolve_source",
		mcp.WithDescription("Translate a position through source maps. direction=generated maps an original position (e.g. src/app.ts) to the generated JavaScript, direction=original maps back."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file for direction=generated, generated file for direction=original"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based line"),
		),
		mcp.WithNumber("column",
			mcp.Description("1-based column (default: 1)"),
		),
		mcp.WithString("direction",
			mcp.Description("'generated' (default) or 'original'"),
			mcp.Enum("generated", "original"),
		),
		mcp.WithArray("searchPaths",
			mcp.Description("Extra directories to search for source maps"),
			mcp.WithStringItems(),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.addTool(tool, s.handleDebugResolveSource)
}

// Launch Tools

func (s *Server) registerDebugLaunch() {
	tool := mcp.NewTool("debug_launch",
		mcp.WithDescription("Start a Node.js program with --inspect-brk and connect to it. Requires full mode and allow_launch."),
		mcp.WithString("program",
			mcp.Required(),
			mcp.Description("JavaScript entry point, e.g. dist/server.js"),
		),
		mcp.WithArray("args",
			mcp.Description("Program arguments"),
			mcp.WithStringItems(),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the program"),
		),
		mcp.WithNumber("port",
			mcp.Description("Inspector port (default: a free port)"),
		),
	)
	s.addTool(tool, s.handleDebugLaunch)
}
