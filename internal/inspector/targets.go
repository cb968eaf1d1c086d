package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/samber/lo"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/version"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Socket is an open websocket to an inspector target.
type Socket interface {
	cdp.WebSocketable
	Close() error
}

// Dialer lists the targets of an inspector endpoint and opens sockets to them.
type Dialer interface {
	ListTargets(ctx context.Context, host string, port int) ([]types.Target, error)
	Dial(ctx context.Context, wsURL string) (Socket, error)
}

// HTTPDialer talks to a real inspector endpoint: targets come from
// GET /json/list and sockets are opened with rod's websocket client.
type HTTPDialer struct {
	Client *http.Client
}

// ListTargets fetches the target list of host:port.
func (d *HTTPDialer) ListTargets(ctx context.Context, host string, port int) ([]types.Target, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	url := fmt.Sprintf("http://%s/json/list", net.JoinHostPort(host, strconv.Itoa(port)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error getting debug targets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inspector returned status %d for %s", resp.StatusCode, url)
	}

	var targets []types.Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("error decoding targets: %w", err)
	}
	return targets, nil
}

// Dial opens a websocket to wsURL.
func (d *HTTPDialer) Dial(ctx context.Context, wsURL string) (Socket, error) {
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		return nil, err
	}
	return ws, nil
}

// Selector picks one target out of a target list.
type Selector struct {
	desc  string
	match func(types.Target) bool
}

// First selects the first available target.
func First() Selector {
	return Selector{desc: "first available target"}
}

// ByID selects the target with the given id.
func ByID(id string) Selector {
	return Selector{
		desc:  fmt.Sprintf("target id %q", id),
		match: func(t types.Target) bool { return t.ID == id },
	}
}

// Match selects the first target for which fn returns true.
func Match(desc string, fn func(types.Target) bool) Selector {
	return Selector{desc: desc, match: fn}
}

func (s Selector) String() string {
	if s.desc == "" {
		return "first available target"
	}
	return s.desc
}

// Select applies the selector. endpoint is only used in error messages.
func (s Selector) Select(endpoint string, targets []types.Target) (types.Target, error) {
	if len(targets) == 0 {
		return types.Target{}, errors.NoTargets(endpoint)
	}
	if s.match == nil {
		return targets[0], nil
	}
	if t, ok := lo.Find(targets, s.match); ok {
		return t, nil
	}
	ids := lo.Map(targets, func(t types.Target, _ int) string { return t.ID })
	return types.Target{}, errors.TargetNotFound(s.String(), ids)
}
