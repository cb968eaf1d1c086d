// Package inspector implements the session transport to a V8/Node inspector
// endpoint speaking the Chrome DevTools Protocol.
//
// The package provides:
//   - Dialer: target listing over HTTP and websocket dialing
//   - Selector: exact-id, predicate, or first-available target selection
//   - Session: the connection state machine with bounded, linear-backoff
//     reconnection, command correlation, domain enablement, and publication
//     of every inbound notification on an events.Bus
//
// Session implements proto.Client, so typed requests from rod's proto
// package can be sent directly:
//
//	res, err := proto.DebuggerSetBreakpoint{...}.Call(session.Context(ctx))
package inspector

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultCommandTimeout       = 10 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 500 * time.Millisecond
)

// Options configures a Session.
type Options struct {
	Dialer               Dialer
	Bus                  *events.Bus
	Clock                clock.Clock
	Logger               *zap.Logger
	CommandTimeout       time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	// Domains are enabled by EnableDefaultDomains. Unknown names are
	// rejected by NewSession.
	Domains []string
}

// endpoint remembers how the current session was opened so a reconnect can
// repeat it.
type endpoint struct {
	host     string
	port     int
	selector Selector
	wsURL    string
}

func (e endpoint) String() string {
	if e.wsURL != "" {
		return e.wsURL
	}
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}

// Session is the single connection to an inspector target.
type Session struct {
	opts  Options
	bus   *events.Bus
	clock clock.Clock
	log   *zap.Logger

	mu       sync.Mutex
	id       string
	state    types.ConnectionState
	client   *cdp.Client
	socket   Socket
	target   *types.Target
	endpoint endpoint
	domains  []string
	attempts int

	// gen identifies the live connection. Event loops and reconnect loops
	// belonging to an older generation stop without side effects.
	gen uint64
}

// NewSession creates a disconnected session.
func NewSession(opts Options) (*Session, error) {
	if err := ValidateDomains(opts.Domains); err != nil {
		return nil, err
	}
	if opts.Dialer == nil {
		opts.Dialer = &HTTPDialer{}
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}

	return &Session{
		opts:  opts,
		bus:   opts.Bus,
		clock: opts.Clock,
		log:   logging.Named(opts.Logger, "inspector"),
		state: types.StateDisconnected,
	}, nil
}

// Bus returns the bus the session publishes on.
func (s *Session) Bus() *events.Bus {
	return s.bus
}

// Connect lists the targets at host:port, selects one and opens it. Any
// previous connection is closed first and the reconnect counter is reset.
func (s *Session) Connect(ctx context.Context, host string, port int, sel Selector) (types.Target, error) {
	ep := endpoint{host: host, port: port, selector: sel}

	s.beginConnect(ep)

	target, sock, err := s.open(ctx, ep, nil)
	if err != nil {
		s.failConnect()
		return types.Target{}, err
	}
	s.attach(sock, target, ep, false)
	return target, nil
}

// ConnectURL opens an explicit websocket URL without listing targets.
func (s *Session) ConnectURL(ctx context.Context, wsURL string) (types.Target, error) {
	ep := endpoint{wsURL: wsURL}
	target := types.Target{URL: wsURL, WebSocketDebuggerURL: wsURL}

	s.beginConnect(ep)

	target, sock, err := s.open(ctx, ep, &target)
	if err != nil {
		s.failConnect()
		return types.Target{}, err
	}
	s.attach(sock, target, ep, false)
	return target, nil
}

func (s *Session) beginConnect(ep endpoint) {
	s.mu.Lock()
	old := s.socket
	wasConnected := s.client != nil
	s.gen++
	s.client = nil
	s.socket = nil
	s.target = nil
	s.domains = nil
	s.attempts = 0
	s.endpoint = ep
	s.state = types.StateConnecting
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if wasConnected {
		s.publish(events.Disconnected, events.DisconnectedData{Explicit: true, Reason: "superseded by a new connection"})
	}
	s.log.Info("connecting", zap.String("endpoint", ep.String()))
}

func (s *Session) failConnect() {
	s.mu.Lock()
	s.state = types.StateDisconnected
	s.mu.Unlock()
}

// open resolves the target for ep (unless fixed is given) and dials it.
func (s *Session) open(ctx context.Context, ep endpoint, fixed *types.Target) (types.Target, Socket, error) {
	var target types.Target
	if fixed != nil {
		target = *fixed
	} else {
		targets, err := s.opts.Dialer.ListTargets(ctx, ep.host, ep.port)
		if err != nil {
			return types.Target{}, nil, errors.ConnectFailed(ep.String(), err)
		}
		target, err = ep.selector.Select(ep.String(), targets)
		if err != nil {
			return types.Target{}, nil, err
		}
	}

	sock, err := s.opts.Dialer.Dial(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		return types.Target{}, nil, errors.ConnectFailed(target.WebSocketDebuggerURL, err)
	}
	return target, sock, nil
}

// attach makes sock the live connection and starts its event loop.
func (s *Session) attach(sock Socket, target types.Target, ep endpoint, reconnected bool) {
	client := cdp.New().Start(sock)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.client = client
	s.socket = sock
	s.target = &target
	s.endpoint = ep
	s.attempts = 0
	s.state = types.StateConnected
	if !reconnected {
		s.id = uuid.NewString()
	}
	s.mu.Unlock()

	go s.readEvents(gen, client)

	s.log.Info("connected",
		zap.String("target", target.ID),
		zap.String("url", target.WebSocketDebuggerURL),
		zap.Bool("reconnected", reconnected))
	s.publish(events.Connected, events.ConnectedData{
		TargetID:    target.ID,
		URL:         target.WebSocketDebuggerURL,
		Reconnected: reconnected,
	})
}

// readEvents drains the client's event channel onto the bus until the
// socket fails, then hands over to the reconnect loop.
func (s *Session) readEvents(gen uint64, client *cdp.Client) {
	for evt := range client.Event() {
		if !s.isGen(gen) {
			continue
		}
		s.bus.Publish(events.Event{
			Kind:   events.KindOf(evt.Method),
			Time:   s.clock.Now(),
			Method: evt.Method,
			Params: evt.Params,
		})
	}
	s.handleDrop(gen)
}

func (s *Session) isGen(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Session) handleDrop(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		// explicit disconnect or superseded
		s.mu.Unlock()
		return
	}
	s.client = nil
	s.socket = nil
	s.state = types.StateReconnecting
	ep := s.endpoint
	target := s.target
	s.mu.Unlock()

	s.log.Warn("inspector connection lost", zap.String("endpoint", ep.String()))
	s.reconnect(gen, ep, target)
}

// reconnect runs the bounded reconnect loop on the goroutine that observed
// the drop, so at most one loop exists per connection generation.
func (s *Session) reconnect(gen uint64, ep endpoint, target *types.Target) {
	maxAttempts := s.opts.MaxReconnectAttempts
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.attempts = attempt
		s.state = types.StateReconnecting
		s.mu.Unlock()

		s.publish(events.Reconnecting, events.ReconnectingData{Attempt: attempt, MaxAttempts: maxAttempts})
		s.clock.Sleep(time.Duration(attempt) * s.opts.ReconnectDelay)

		if !s.isGen(gen) {
			return
		}

		var fixed *types.Target
		if ep.wsURL != "" {
			fixed = target
		}
		ctx, cancel := s.clock.WithTimeout(context.Background(), s.opts.CommandTimeout)
		newTarget, sock, err := s.open(ctx, ep, fixed)
		cancel()
		if err != nil {
			lastErr = err
			s.log.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", maxAttempts),
				zap.Error(err))
			continue
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			_ = sock.Close()
			return
		}
		domains := append([]string(nil), s.domains...)
		s.mu.Unlock()

		s.attach(sock, newTarget, ep, true)

		if len(domains) > 0 {
			ctx, cancel := s.clock.WithTimeout(context.Background(), s.opts.CommandTimeout)
			if err := s.enable(ctx, domains); err != nil {
				s.log.Warn("re-enabling domains after reconnect failed", zap.Error(err))
			}
			cancel()
		}
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.state = types.StateDisconnected
	s.target = nil
	attempts := s.attempts
	s.mu.Unlock()

	fatal := errors.ReconnectExhausted(attempts, lastErr)
	s.log.Error("giving up on inspector connection", zap.Int("attempts", attempts), zap.Error(lastErr))
	s.publish(events.Fatal, fatal)
	s.publish(events.Disconnected, events.DisconnectedData{Reason: fatal.Message})
}

// Disconnect closes the connection. It does not trigger reconnection.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == types.StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	sock := s.socket
	s.client = nil
	s.socket = nil
	s.target = nil
	s.domains = nil
	s.state = types.StateDisconnected
	s.mu.Unlock()

	var err error
	if sock != nil {
		err = sock.Close()
	}
	s.log.Info("disconnected")
	s.publish(events.Disconnected, events.DisconnectedData{Explicit: true, Reason: "disconnect requested"})
	return err
}

// EnableDomains enables each named domain in order and stops at the first
// failure. Names are validated before anything is sent.
func (s *Session) EnableDomains(ctx context.Context, names ...string) error {
	if err := ValidateDomains(names); err != nil {
		return err
	}
	return s.enable(ctx, names)
}

// EnableDefaultDomains enables Options.Domains.
func (s *Session) EnableDefaultDomains(ctx context.Context) error {
	return s.enable(ctx, s.opts.Domains)
}

func (s *Session) enable(ctx context.Context, names []string) error {
	for _, name := range names {
		req := domainEnablers[name]
		if _, err := s.Call(ctx, "", req.ProtoReq(), req); err != nil {
			return fmt.Errorf("enable %s: %w", name, err)
		}

		s.mu.Lock()
		if !lo.Contains(s.domains, name) {
			s.domains = append(s.domains, name)
		}
		s.mu.Unlock()
	}
	return nil
}

// Call sends one command and waits for its result. It implements proto.Client.
func (s *Session) Call(ctx context.Context, sessionID, method string, params interface{}) ([]byte, error) {
	if !Supported(method) {
		return nil, errors.UnsupportedMethod(method)
	}

	s.mu.Lock()
	client := s.client
	state := s.state
	s.mu.Unlock()
	if client == nil {
		return nil, errors.NotConnected(string(state))
	}

	ctx, cancel := s.clock.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()

	start := s.clock.Now()
	res, err := client.Call(ctx, sessionID, method, params)
	s.log.Debug("command",
		zap.String("method", method),
		zap.Duration("took", s.clock.Since(start)),
		zap.Bool("ok", err == nil))
	if err != nil {
		return nil, classify(method, err)
	}
	return res, nil
}

func classify(method string, err error) error {
	var protoErr *cdp.Error
	switch {
	case stderrors.As(err, &protoErr):
		return errors.CommandRejected(method, protoErr)
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return errors.CommandTimeout(method, err)
	default:
		return errors.TransportClosed(method, err)
	}
}

// Context returns a proto.Client view of the session bound to ctx.
func (s *Session) Context(ctx context.Context) *Caller {
	return &Caller{session: s, ctx: ctx}
}

// Caller binds a context to a Session for typed proto calls.
type Caller struct {
	session *Session
	ctx     context.Context
}

// Call implements proto.Client using the bound context.
func (c *Caller) Call(_ context.Context, sessionID, method string, params interface{}) ([]byte, error) {
	return c.session.Call(c.ctx, sessionID, method, params)
}

// GetContext implements proto.Contextable.
func (c *Caller) GetContext() context.Context {
	return c.ctx
}

// State returns the current connection state.
func (s *Session) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectAttempts returns the attempt counter of the current or last reconnect loop.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Info returns a snapshot of the session.
func (s *Session) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := types.SessionInfo{
		SessionID:         s.id,
		State:             s.state,
		Domains:           append([]string(nil), s.domains...),
		ReconnectAttempts: s.attempts,
	}
	if s.target != nil {
		t := *s.target
		info.Target = &t
	}
	return info
}

func (s *Session) publish(kind events.Kind, data interface{}) {
	s.bus.Publish(events.Event{Kind: kind, Time: s.clock.Now(), Data: data})
}
