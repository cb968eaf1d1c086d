package dapbridge

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/internal/logging"
)

// EventLog appends every classified event published on a bus to a file as
// DAP messages.
type EventLog struct {
	path   string
	stream *Stream
	conv   *Converter
	sub    *events.Subscription
	log    *zap.Logger
}

// OpenLog creates (or appends to) the file at path and starts following bus.
func OpenLog(path string, bus *events.Bus, conv *Converter, logger *zap.Logger) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = NewConverter()
	}

	l := &EventLog{
		path:   path,
		stream: NewStream(f),
		conv:   conv,
		log:    logging.Named(logger, "dap-log"),
	}
	l.sub = bus.Subscribe(l.write,
		events.DebuggerPaused,
		events.DebuggerResumed,
		events.LogpointHit,
		events.ConsoleMessage,
		events.BreakpointVerified)
	l.log.Info("writing DAP event log", zap.String("path", path))
	return l, nil
}

func (l *EventLog) write(e events.Event) {
	msg, ok := l.conv.Convert(e)
	if !ok {
		return
	}
	if err := l.stream.Send(msg); err != nil {
		l.log.Warn("DAP event log write failed", zap.String("kind", e.Kind.String()), zap.Error(err))
	}
}

// Path returns the file the log writes to.
func (l *EventLog) Path() string { return l.path }

// Close stops following the bus and closes the file.
func (l *EventLog) Close() error {
	l.sub.Unsubscribe()
	return l.stream.Close()
}
