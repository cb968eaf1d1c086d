// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes the debugging engine through MCP tools that can be used
// by AI assistants and other MCP clients:
//
// Session (always available):
//   - debug_connect: Attach to an inspector endpoint or a launch.json configuration
//   - debug_disconnect: Close the inspector session
//   - debug_status: Connection state, pause state, counters and version
//   - debug_list_targets: List the targets of an inspector endpoint
//
// Breakpoints (full mode):
//   - debug_set_breakpoints: Replace the breakpoints and logpoints of a file
//   - debug_remove_breakpoint: Remove one tracked breakpoint
//   - debug_list_breakpoints: List tracked breakpoints (always available)
//
// Execution control (full mode):
//   - debug_resume, debug_pause, debug_step, debug_pause_on_exceptions
//
// Inspection:
//   - debug_evaluate (requires allow_evaluate), debug_stack, debug_scopes, debug_variables
//   - debug_logpoint_hits, debug_events, debug_console
//   - debug_resolve_source
//
// Launching (full mode with allow_launch):
//   - debug_launch: Start a Node program under the inspector and attach to it
//
// Every classified engine event is also forwarded to clients as a
// notifications/message notification.
package mcp

import (
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/config"
	"github.com/ctagard/cdp-mcp/internal/dapbridge"
	"github.com/ctagard/cdp-mcp/internal/engine"
	"github.com/ctagard/cdp-mcp/internal/inspector"
	"github.com/ctagard/cdp-mcp/internal/launcher"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/internal/version"
)

const instructions = `Breakpoint and logpoint debugging for Node.js programs over the V8 inspector.
Connect with debug_connect (or start a program with debug_launch), then place breakpoints with
debug_set_breakpoints using original source paths and 1-based lines. Logpoints are breakpoints
with a logMessage such as "user={user.id}"; their output is read with debug_logpoint_hits.`

// Options configures a Server beyond its Config.
type Options struct {
	Logger *zap.Logger
	// Dialer reaches inspector endpoints; nil means HTTP discovery.
	Dialer inspector.Dialer
	// Notifier receives forwarded events; nil means the MCP server itself.
	Notifier Notifier
	// Checker reports available updates in debug_status; nil disables it.
	Checker *version.Checker
}

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	launcher  *launcher.Launcher
	converter *dapbridge.Converter
	dapLog    *dapbridge.EventLog
	forwarder *forwarder
	checker   *version.Checker
	config    *config.Config
	log       *zap.Logger

	// tools holds the guarded handler of every registered tool.
	tools map[string]server.ToolHandlerFunc

	mu sync.Mutex
	// attachPaths are source map search paths contributed by the last
	// launch.json configuration used to connect.
	attachPaths []string
}

// NewServer creates a new CDP-MCP server
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	mcpServer := server.NewMCPServer(
		version.Name,
		version.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	eng, err := engine.New(engine.Options{
		Config: cfg,
		Dialer: opts.Dialer,
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		mcpServer: mcpServer,
		engine:    eng,
		launcher: launcher.New(launcher.Options{
			Allowed:      cfg.CanLaunch(),
			Mode:         string(cfg.Mode),
			NodePath:     cfg.Node.Path,
			Host:         cfg.Inspector.Host,
			ReadyTimeout: cfg.Timeouts.Launch,
			Logger:       opts.Logger,
		}),
		converter: dapbridge.NewConverter(),
		checker:   opts.Checker,
		config:    cfg,
		log:       logging.Named(opts.Logger, "mcp"),
		tools:     make(map[string]server.ToolHandlerFunc),
	}

	if cfg.DAPLog != "" {
		s.dapLog, err = dapbridge.OpenLog(cfg.DAPLog, eng.Bus(), s.converter, opts.Logger)
		if err != nil {
			_ = eng.Close()
			return nil, err
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = mcpServer
	}
	s.forwarder = newForwarder(eng.Bus(), notifier, opts.Logger)

	s.registerTools()
	return s, nil
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close stops forwarding, kills launched programs and disconnects.
func (s *Server) Close() error {
	s.forwarder.stop()
	s.launcher.StopAll()
	err := s.engine.Close()
	if s.dapLog != nil {
		if cerr := s.dapLog.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Engine returns the debugging engine
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Launcher returns the program launcher
func (s *Server) Launcher() *launcher.Launcher {
	return s.launcher
}

// GetConfig returns the server configuration
func (s *Server) GetConfig() *config.Config {
	return s.config
}
