// Package launcher starts Node programs under the inspector so the engine
// can attach to them.
//
// A program is started as `node --inspect-brk=host:port program args...`.
// The launcher waits for the "Debugger listening on ws://..." banner on
// stderr and reports the websocket url. The process stays paused on its
// first line until a debugger runs it.
package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/logging"
)

var bannerPattern = regexp.MustCompile(`Debugger listening on (ws://\S+)`)

// Options configures a Launcher.
type Options struct {
	// Allowed gates every launch; a disallowed launch is a permission error.
	Allowed bool
	// Mode is reported in permission errors.
	Mode string

	NodePath     string
	Host         string
	ReadyTimeout time.Duration
	Logger       *zap.Logger
}

// Request describes one program to start.
type Request struct {
	Program string            `json:"program"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	// Port 0 picks a free port.
	Port int `json:"port,omitempty"`
}

// Process is a started program.
type Process struct {
	Program string `json:"program"`
	PID     int    `json:"pid"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	WSURL   string `json:"wsUrl"`

	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error once Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// Stop kills the process and everything it started.
func (p *Process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return killProcessGroup(p.PID, p.cmd)
}

// Launcher starts and tracks launched programs.
type Launcher struct {
	opts Options
	log  *zap.Logger

	mu    sync.Mutex
	procs map[int]*Process
}

// New creates a Launcher.
func New(opts Options) *Launcher {
	if opts.NodePath == "" {
		opts.NodePath = "node"
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	return &Launcher{
		opts:  opts,
		log:   logging.Named(opts.Logger, "launcher"),
		procs: make(map[int]*Process),
	}
}

// Launch starts req and waits for the inspector banner.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Process, error) {
	if !l.opts.Allowed {
		return nil, errors.PermissionDenied("launch", l.opts.Mode)
	}
	if req.Program == "" {
		return nil, errors.MissingParameter("program", "Path of the JavaScript entry point to run.")
	}

	port := req.Port
	if port == 0 {
		p, err := findAvailablePort(l.opts.Host)
		if err != nil {
			return nil, errors.LaunchFailed(req.Program, fmt.Errorf("failed to find available port: %w", err))
		}
		port = p
	}

	args := append([]string{fmt.Sprintf("--inspect-brk=%s:%d", l.opts.Host, port), req.Program}, req.Args...)
	// The process outlives ctx; ctx only bounds the wait for the banner.
	cmd := exec.Command(l.opts.NodePath, args...)
	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Explicitly disconnect stdin to prevent TTY issues when run as MCP server.
	cmd.Stdin = nil
	cmd.Dir = req.Cwd
	setProcAttr(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.LaunchFailed(req.Program, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.LaunchFailed(req.Program, err)
	}

	proc := &Process{
		Program: req.Program,
		PID:     cmd.Process.Pid,
		Host:    l.opts.Host,
		Port:    port,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	log := l.log.With(zap.String("program", req.Program), zap.Int("pid", proc.PID))

	banner := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stderr)
		found := false
		for scanner.Scan() {
			line := scanner.Text()
			if !found {
				if m := bannerPattern.FindStringSubmatch(line); m != nil {
					found = true
					banner <- m[1]
					continue
				}
			}
			log.Debug("stderr", zap.String("line", line))
		}
		_, _ = io.Copy(io.Discard, stderr)
		err := cmd.Wait()

		l.mu.Lock()
		delete(l.procs, proc.PID)
		l.mu.Unlock()
		proc.err = err
		close(proc.done)
		log.Info("process exited", zap.Error(err))
	}()

	timer := time.NewTimer(l.opts.ReadyTimeout)
	defer timer.Stop()
	select {
	case url := <-banner:
		proc.WSURL = url
	case <-proc.done:
		return nil, errors.LaunchFailed(req.Program, fmt.Errorf("process exited before the inspector started: %v", proc.err))
	case <-timer.C:
		_ = proc.Stop()
		return nil, errors.LaunchFailed(req.Program, fmt.Errorf("no inspector banner after %s", l.opts.ReadyTimeout))
	case <-ctx.Done():
		_ = proc.Stop()
		return nil, errors.LaunchFailed(req.Program, ctx.Err())
	}

	l.mu.Lock()
	l.procs[proc.PID] = proc
	l.mu.Unlock()
	log.Info("launched", zap.String("wsUrl", proc.WSURL), zap.Int("port", port))
	return proc, nil
}

// Processes returns the running launched processes.
func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Process, 0, len(l.procs))
	for _, p := range l.procs {
		out = append(out, p)
	}
	return out
}

// StopAll kills every running launched process.
func (l *Launcher) StopAll() {
	for _, p := range l.Processes() {
		if err := p.Stop(); err != nil {
			l.log.Warn("stopping process failed", zap.Int("pid", p.PID), zap.Error(err))
		}
	}
}

// findAvailablePort finds an available TCP port
func findAvailablePort(host string) (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	_, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}
