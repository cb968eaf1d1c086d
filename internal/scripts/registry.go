// Package scripts tracks the generated scripts reported by the target and
// resolves file paths to script identities.
package scripts

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// PollInterval is how often Resolve re-checks the index while waiting.
const PollInterval = 50 * time.Millisecond

// Registry is an append-only arena of scripts plus a url index.
type Registry struct {
	clock clock.Clock
	log   *zap.Logger

	mu    sync.RWMutex
	arena []types.Script
	byURL map[string]int
	byID  map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry(clk clock.Clock, logger *zap.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		clock: clk,
		log:   logging.Named(logger, "scripts"),
		byURL: make(map[string]int),
		byID:  make(map[string]int),
	}
}

// Add records a parsed script. Scripts without a url (eval code, internals)
// are indexed by id only. A url reported again points at the newest script.
func (r *Registry) Add(s types.Script) {
	if s.DiscoveredAt.IsZero() {
		s.DiscoveredAt = r.clock.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := len(r.arena)
	r.arena = append(r.arena, s)
	r.byID[s.ID] = idx
	if s.URL != "" {
		r.byURL[s.URL] = idx
	}
}

// ByID returns the script with the given identity.
func (r *Registry) ByID(id string) (types.Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return types.Script{}, false
	}
	return r.arena[idx], true
}

// ByURL returns the script registered under exactly url.
func (r *Registry) ByURL(url string) (types.Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byURL[url]
	if !ok {
		return types.Script{}, false
	}
	return r.arena[idx], true
}

// All returns a snapshot of every script in discovery order.
func (r *Registry) All() []types.Script {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Script(nil), r.arena...)
}

// Len returns the number of scripts seen.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.arena)
}

// Reset forgets every script. Used when a new session replaces the old one.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arena = nil
	r.byURL = make(map[string]int)
	r.byID = make(map[string]int)
}

// Resolve finds the script for p. The exact file-url and bare-path forms are
// checked first, then re-checked every PollInterval until timeout elapses,
// and finally every known url is scanned for one ending in p or in "/" plus
// the basename of p.
func (r *Registry) Resolve(ctx context.Context, p string, timeout time.Duration) (types.Script, error) {
	forms := URLForms(p)

	if s, ok := r.lookupAny(forms); ok {
		return s, nil
	}

	if timeout > 0 {
		if s, ok := r.wait(ctx, forms, timeout); ok {
			return s, nil
		}
	}

	if s, ok := r.scanSuffix(p); ok {
		r.log.Debug("resolved script by suffix", zap.String("path", p), zap.String("url", s.URL))
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return types.Script{}, errors.ScriptNotFound(p).WithCause(err)
	}
	return types.Script{}, errors.ScriptNotFound(p)
}

func (r *Registry) wait(ctx context.Context, forms []string, timeout time.Duration) (types.Script, bool) {
	ticker := r.clock.Ticker(PollInterval)
	defer ticker.Stop()
	deadline := r.clock.Timer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.Script{}, false
		case <-deadline.C:
			return r.lookupAny(forms)
		case <-ticker.C:
			if s, ok := r.lookupAny(forms); ok {
				return s, true
			}
		}
	}
}

func (r *Registry) lookupAny(forms []string) (types.Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range forms {
		if idx, ok := r.byURL[f]; ok {
			return r.arena[idx], true
		}
	}
	return types.Script{}, false
}

func (r *Registry) scanSuffix(p string) (types.Script, bool) {
	bare := filepath.ToSlash(StripFileURL(p))
	base := "/" + path.Base(bare)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.arena {
		if s.URL != "" && strings.HasSuffix(s.URL, bare) {
			return s, true
		}
	}
	if base == "/" || base == "/." {
		return types.Script{}, false
	}
	for _, s := range r.arena {
		if s.URL != "" && strings.HasSuffix(s.URL, base) {
			return s, true
		}
	}
	return types.Script{}, false
}

// URLForms returns the spellings under which the runtime may report p:
// the path itself, its file:// url, and the bare path of a file:// url.
func URLForms(p string) []string {
	forms := []string{p}
	if strings.HasPrefix(p, "file://") {
		return append(forms, StripFileURL(p))
	}
	return append(forms, FileURL(p))
}

// FileURL converts a filesystem path to a file:// url.
func FileURL(p string) string {
	slashed := filepath.ToSlash(p)
	if !strings.HasPrefix(slashed, "/") {
		// drive-letter paths: C:/x -> file:///C:/x
		slashed = "/" + slashed
	}
	return "file://" + slashed
}

// StripFileURL returns the filesystem path of a file:// url, or p unchanged.
func StripFileURL(p string) string {
	if !strings.HasPrefix(p, "file://") {
		return p
	}
	rest := strings.TrimPrefix(p, "file://")
	// file:///C:/x -> C:/x
	if len(rest) >= 3 && rest[0] == '/' && rest[2] == ':' {
		return rest[1:]
	}
	return rest
}
