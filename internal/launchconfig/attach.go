package launchconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/ctagard/cdp-mcp/internal/errors"
)

// Defaults used by the Node debug extension when address or port is omitted.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 9229
)

// IsNodeAttach reports whether cfg attaches to a Node inspector.
func IsNodeAttach(cfg *Configuration) bool {
	return (cfg.Type == "node" || cfg.Type == "pwa-node") && cfg.Request == "attach"
}

func hostOrDefault(h string) string {
	if h == "" || h == "localhost" {
		return DefaultHost
	}
	return h
}

func portOrDefault(p int) int {
	if p == 0 {
		return DefaultPort
	}
	return p
}

// Attach resolves cfg into an attach target. outFiles globs become the
// directories in front of their first wildcard.
func Attach(cfg *Configuration, ctx *ResolutionContext) (*AttachTarget, error) {
	if !IsNodeAttach(cfg) {
		return nil, errors.ConfigInvalid(cfg.Name,
			fmt.Sprintf("type %q with request %q is not a node attach configuration", cfg.Type, cfg.Request))
	}
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	target := &AttachTarget{
		Name:       cfg.Name,
		Host:       hostOrDefault(cfg.Address),
		Port:       portOrDefault(cfg.Port),
		WSURL:      cfg.WebSocketAddress,
		SourceMaps: cfg.SourceMaps == nil || *cfg.SourceMaps,
	}

	globs, err := ResolveStringSlice(lo.Filter(cfg.OutFiles, func(g string, _ int) bool {
		return !strings.HasPrefix(g, "!")
	}), ctx)
	if err != nil {
		return nil, errors.ConfigInvalid(cfg.Name, err.Error())
	}
	if target.SourceMaps {
		target.SearchPaths = lo.Uniq(lo.FilterMap(globs, func(g string, _ int) (string, bool) {
			dir := GlobRoot(g)
			return dir, dir != ""
		}))
	}
	return target, nil
}

// GlobRoot returns the directory part of pattern in front of the first path
// element containing a wildcard.
func GlobRoot(pattern string) string {
	parts := strings.Split(filepath.ToSlash(pattern), "/")
	var keep []string
	for _, p := range parts {
		if strings.ContainsAny(p, "*?[{") {
			break
		}
		keep = append(keep, p)
	}
	if len(keep) == len(parts) && len(parts) > 1 {
		// no wildcard: the pattern names a file
		keep = keep[:len(keep)-1]
	}
	root := strings.Join(keep, "/")
	if root == "" && strings.HasPrefix(pattern, "/") {
		root = "/"
	}
	return filepath.FromSlash(root)
}

// LoadAttach discovers launch.json from startPath and resolves the attach
// configuration called name.
func LoadAttach(startPath, name string) (*AttachTarget, error) {
	lj, path, err := LoadAndDiscover(startPath)
	if err != nil {
		return nil, errors.ConfigNotFound(name, nil).WithCause(err)
	}
	cfg, err := FindConfiguration(lj, name)
	if err != nil {
		attach := lo.FilterMap(lj.Configurations, func(c Configuration, _ int) (string, bool) {
			return c.Name, IsNodeAttach(&c)
		})
		return nil, errors.ConfigNotFound(name, attach)
	}
	return Attach(cfg, &ResolutionContext{WorkspaceFolder: GetWorkspaceFolder(path)})
}
