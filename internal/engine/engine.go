// Package engine is the single-session debugging engine behind the tool
// layer. It owns the inspector session and every component that interprets
// it: script registry, source map resolver, placement engine, ledger and
// event bridge.
//
// Opening a connection supersedes the previous one. The registry, ledger
// and pause state are reset on every connect and on every reconnect.
package engine

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/bridge"
	"github.com/ctagard/cdp-mcp/internal/config"
	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/internal/inspector"
	"github.com/ctagard/cdp-mcp/internal/ledger"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/internal/placement"
	"github.com/ctagard/cdp-mcp/internal/scripts"
	"github.com/ctagard/cdp-mcp/internal/sourcemap"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Options configures an Engine. Config is required.
type Options struct {
	Config *config.Config
	Dialer inspector.Dialer
	Bus    *events.Bus
	Clock  clock.Clock
	Logger *zap.Logger
}

// Engine drives one inspector session.
type Engine struct {
	cfg    *config.Config
	dialer inspector.Dialer
	bus    *events.Bus
	clock  clock.Clock
	log    *zap.Logger

	session  *inspector.Session
	registry *scripts.Registry
	ledger   *ledger.Ledger
	resolver *sourcemap.Resolver
	placer   *placement.Engine
	bridge   *bridge.Bridge

	sub *events.Subscription

	// placeMu serializes SetBreakpoints so replace-on-file batches do not
	// interleave.
	placeMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates an Engine. The bridge starts consuming events immediately;
// nothing is sent until Connect.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Dialer == nil {
		opts.Dialer = &inspector.HTTPDialer{}
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	session, err := inspector.NewSession(inspector.Options{
		Dialer:               opts.Dialer,
		Bus:                  opts.Bus,
		Clock:                opts.Clock,
		Logger:               opts.Logger,
		CommandTimeout:       cfg.Timeouts.Command,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectDelay:       cfg.Reconnect.BaseDelay,
		Domains:              cfg.Inspector.Domains,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		dialer:   opts.Dialer,
		bus:      opts.Bus,
		clock:    opts.Clock,
		log:      logging.Named(opts.Logger, "engine"),
		session:  session,
		registry: scripts.NewRegistry(opts.Clock, opts.Logger),
		ledger: ledger.New(ledger.Options{
			MaxHits:    cfg.Buffers.MaxHits,
			MaxEvents:  cfg.Buffers.MaxEvents,
			MaxConsole: cfg.Buffers.MaxConsole,
		}),
		resolver: sourcemap.NewResolver(sourcemap.Options{
			SearchPaths:    cfg.SourceMaps.SearchPaths,
			BuildDirs:      cfg.SourceMaps.BuildDirs,
			ProjectMarkers: cfg.SourceMaps.ProjectMarkers,
			MaxFiles:       cfg.SourceMaps.MaxFiles,
			Logger:         opts.Logger,
		}),
		placer: placement.New(opts.Logger),
	}
	e.bridge = bridge.New(bridge.Options{
		Bus:      opts.Bus,
		Registry: e.registry,
		Ledger:   e.ledger,
		Client:   session.Context(context.Background()),
		Binding:  cfg.Logpoint.Binding,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
	})
	e.bridge.Start()
	e.sub = opts.Bus.Subscribe(e.onLifecycle, events.Connected, events.Disconnected)
	return e, nil
}

// Bus returns the event bus every component publishes on.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Session returns the inspector session.
func (e *Engine) Session() *inspector.Session { return e.session }

// Ledger returns the breakpoint ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Registry returns the script registry.
func (e *Engine) Registry() *scripts.Registry { return e.registry }

// Resolver returns the source map resolver.
func (e *Engine) Resolver() *sourcemap.Resolver { return e.resolver }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// ListTargets lists the debuggable targets at host:port without connecting.
func (e *Engine) ListTargets(ctx context.Context, host string, port int) ([]types.Target, error) {
	return e.dialer.ListTargets(ctx, host, port)
}

// Connect lists the targets at host:port, opens the one sel picks and
// prepares it for debugging.
func (e *Engine) Connect(ctx context.Context, host string, port int, sel inspector.Selector) (types.Target, error) {
	e.supersede()
	target, err := e.session.Connect(ctx, host, port, sel)
	if err != nil {
		return types.Target{}, err
	}
	return e.prepareOrDrop(ctx, target)
}

// ConnectURL opens an explicit websocket url and prepares it for debugging.
func (e *Engine) ConnectURL(ctx context.Context, wsURL string) (types.Target, error) {
	e.supersede()
	target, err := e.session.ConnectURL(ctx, wsURL)
	if err != nil {
		return types.Target{}, err
	}
	return e.prepareOrDrop(ctx, target)
}

// ConnectConfigured connects using the inspector section of the config.
func (e *Engine) ConnectConfigured(ctx context.Context) (types.Target, error) {
	in := e.cfg.Inspector
	if in.WSURL != "" {
		return e.ConnectURL(ctx, in.WSURL)
	}
	return e.Connect(ctx, in.Host, in.Port, SelectorFor(in.TargetID))
}

// SelectorFor picks the target with the given id, or the first target when
// id is empty.
func SelectorFor(id string) inspector.Selector {
	if id == "" {
		return inspector.First()
	}
	return inspector.ByID(id)
}

// prepareOrDrop prepares target and closes the session when that fails, so
// no tool sees a connected but half-prepared target.
func (e *Engine) prepareOrDrop(ctx context.Context, target types.Target) (types.Target, error) {
	if err := e.prepare(ctx); err != nil {
		e.log.Warn("preparing target failed, disconnecting", zap.String("target", target.ID), zap.Error(err))
		if derr := e.session.Disconnect(); derr != nil {
			e.log.Debug("disconnect after failed prepare", zap.Error(derr))
		}
		return types.Target{}, err
	}
	return target, nil
}

// prepare enables the configured domains, installs the logpoint binding and
// lets an --inspect-brk target start.
func (e *Engine) prepare(ctx context.Context) error {
	if err := e.session.EnableDefaultDomains(ctx); err != nil {
		return err
	}
	if err := e.bridge.InstallBinding(0); err != nil {
		e.log.Warn("installing logpoint binding failed", zap.Error(err))
	}
	if err := (proto.RuntimeRunIfWaitingForDebugger{}).Call(e.session.Context(ctx)); err != nil {
		e.log.Debug("runIfWaitingForDebugger failed", zap.Error(err))
	}
	return nil
}

// supersede drops everything learned from the previous session.
func (e *Engine) supersede() {
	e.registry.Reset()
	e.ledger.Reset()
	e.bridge.Reset()
}

func (e *Engine) onLifecycle(ev events.Event) {
	switch ev.Kind {
	case events.Connected:
		data, _ := ev.Data.(events.ConnectedData)
		if !data.Reconnected {
			return
		}
		e.log.Info("reconnected, resetting session state", zap.String("target", data.TargetID))
		e.supersede()
		// Published from the reconnect loop, which still has to re-enable
		// the domains.
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.bridge.InstallBinding(0); err != nil {
				e.log.Warn("reinstalling logpoint binding failed", zap.Error(err))
			}
		}()
	case events.Disconnected:
		e.bridge.Reset()
	}
}

// Disconnect closes the session. Tracked records stay readable until the
// next connect.
func (e *Engine) Disconnect() error {
	return e.session.Disconnect()
}

// Close disconnects and stops the event bridge.
func (e *Engine) Close() error {
	err := e.session.Disconnect()
	e.sub.Unsubscribe()
	e.bridge.Stop()
	e.wg.Wait()
	return err
}

// Paused reports whether the target is suspended.
func (e *Engine) Paused() bool { return e.bridge.Paused() }

// Info returns the session snapshot including the pause state.
func (e *Engine) Info() types.SessionInfo {
	info := e.session.Info()
	info.Paused = e.bridge.Paused()
	return info
}

// State returns the connection state.
func (e *Engine) State() types.ConnectionState { return e.session.State() }

// client returns a proto.Client bound to ctx.
func (e *Engine) client(ctx context.Context) proto.Client {
	return e.session.Context(ctx)
}
