package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/internal/version"
)

// NotificationMethod is the MCP method events are forwarded with.
const NotificationMethod = "notifications/message"

// Notifier delivers a notification to every connected client.
// *server.MCPServer satisfies it.
type Notifier interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// forwardedKinds are the events clients are notified about.
var forwardedKinds = []events.Kind{
	events.Connected,
	events.Disconnected,
	events.Reconnecting,
	events.Fatal,
	events.LogpointHit,
	events.DebuggerPaused,
	events.DebuggerResumed,
	events.BreakpointVerified,
	events.ConsoleMessage,
}

type forwarder struct {
	notifier Notifier
	sub      *events.Subscription
	log      *zap.Logger
}

func newForwarder(bus *events.Bus, n Notifier, logger *zap.Logger) *forwarder {
	f := &forwarder{notifier: n, log: logging.Named(logger, "notify")}
	f.sub = bus.Subscribe(f.forward, forwardedKinds...)
	return f
}

func (f *forwarder) forward(e events.Event) {
	f.notifier.SendNotificationToAllClients(NotificationMethod, map[string]any{
		"level":  levelOf(e.Kind),
		"logger": version.Name,
		"data": map[string]any{
			"kind": e.Kind.String(),
			"data": e.Data,
		},
	})
	f.log.Debug("forwarded event", zap.String("kind", e.Kind.String()))
}

func (f *forwarder) stop() {
	f.sub.Unsubscribe()
}

func levelOf(k events.Kind) mcp.LoggingLevel {
	switch k {
	case events.Fatal:
		return mcp.LoggingLevelError
	case events.Disconnected, events.Reconnecting:
		return mcp.LoggingLevelWarning
	default:
		return mcp.LoggingLevelInfo
	}
}
