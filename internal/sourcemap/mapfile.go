package sourcemap

import (
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-sourcemap/sourcemap"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/ctagard/cdp-mcp/internal/scripts"
)

// Strategy names recorded in provenance.
const (
	StrategyExact    = "exact"
	StrategyBasename = "basename"
	StrategySegments = "trailing-segments"
	StrategyForward  = "generated-lookup"
)

// mapFile is a parsed source map. The forward consumer and the reverse
// index are built on first use.
type mapFile struct {
	path       string
	raw        []byte
	file       string
	sourceRoot string
	sources    []string
	resolved   []string

	consumer *sourcemap.Consumer
	reverse  *reverseIndex
}

func loadMapFile(p string) (*mapFile, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return parseMapFile(p, raw)
}

func parseMapFile(p string, raw []byte) (*mapFile, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%s is not valid JSON", p)
	}
	if v := gjson.GetBytes(raw, "version"); v.Exists() && v.Int() != 3 {
		return nil, fmt.Errorf("%s: unsupported source map version %d", p, v.Int())
	}

	m := &mapFile{
		path:       p,
		raw:        raw,
		file:       gjson.GetBytes(raw, "file").String(),
		sourceRoot: gjson.GetBytes(raw, "sourceRoot").String(),
	}
	for _, s := range gjson.GetBytes(raw, "sources").Array() {
		m.sources = append(m.sources, s.String())
	}
	dir := filepath.Dir(p)
	m.resolved = lo.Map(m.sources, func(s string, _ int) string {
		return resolveSourcePath(dir, m.sourceRoot, s)
	})
	return m, nil
}

// resolveSourcePath turns a "sources" entry into a filesystem-like path.
func resolveSourcePath(mapDir, sourceRoot, source string) string {
	s := source
	switch {
	case strings.HasPrefix(s, "file://"):
		return filepath.Clean(filepath.FromSlash(scripts.StripFileURL(s)))
	case strings.HasPrefix(s, "webpack://"):
		// webpack://<namespace>/./src/x.ts
		rest := strings.TrimPrefix(s, "webpack://")
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[i+1:]
		}
		return path.Clean(strings.TrimPrefix(rest, "./"))
	case strings.Contains(s, "://"):
		return s
	}

	if sourceRoot != "" && !strings.Contains(sourceRoot, "://") && !path.IsAbs(s) {
		s = path.Join(sourceRoot, s)
	}
	if filepath.IsAbs(s) || path.IsAbs(s) {
		return filepath.Clean(filepath.FromSlash(s))
	}
	return filepath.Clean(filepath.Join(mapDir, filepath.FromSlash(s)))
}

// generatedFile returns the path of the script this map describes.
func (m *mapFile) generatedFile() string {
	if m.file != "" {
		if filepath.IsAbs(m.file) {
			return m.file
		}
		return filepath.Join(filepath.Dir(m.path), filepath.FromSlash(m.file))
	}
	return strings.TrimSuffix(m.path, ".map")
}

func (m *mapFile) forward() (*sourcemap.Consumer, error) {
	if m.consumer == nil {
		c, err := sourcemap.Parse("", m.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.path, err)
		}
		m.consumer = c
	}
	return m.consumer, nil
}

func (m *mapFile) reverseIndex() (*reverseIndex, error) {
	if m.reverse == nil {
		if gjson.GetBytes(m.raw, "sections").Exists() {
			return nil, fmt.Errorf("%s: indexed source maps only support generated-to-original lookups", m.path)
		}
		segs, err := decodeMappings(gjson.GetBytes(m.raw, "mappings").String())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.path, err)
		}
		m.reverse = newReverseIndex(segs)
	}
	return m.reverse, nil
}

// sourceIndex finds the "sources" entry the forward consumer reported.
// The consumer joins sourceRoot onto relative entries, so a suffix match
// is accepted when no entry matches exactly.
func (m *mapFile) sourceIndex(name string) int {
	if i := lo.IndexOf(m.sources, name); i >= 0 {
		return i
	}
	for i, s := range m.sources {
		if strings.HasSuffix(name, "/"+strings.TrimPrefix(s, "./")) {
			return i
		}
	}
	return -1
}

// candidate is a "sources" entry that may correspond to the requested file.
type candidate struct {
	index    int
	strategy string
}

// candidates ranks the sources of m against target: exact matches first,
// then equal basenames, then entries containing the trailing path
// segments of target.
func (m *mapFile) candidates(target string) []candidate {
	abs := target
	if a, err := filepath.Abs(target); err == nil {
		abs = a
	}
	slashed := filepath.ToSlash(target)
	base := path.Base(slashed)

	var out []candidate
	seen := make(map[int]bool)
	add := func(i int, strategy string) {
		if !seen[i] {
			seen[i] = true
			out = append(out, candidate{index: i, strategy: strategy})
		}
	}

	for i, s := range m.sources {
		if s == target || m.resolved[i] == abs || m.resolved[i] == filepath.Clean(target) {
			add(i, StrategyExact)
		}
	}
	for i, s := range m.sources {
		if path.Base(filepath.ToSlash(m.resolved[i])) == base || path.Base(s) == base {
			add(i, StrategyBasename)
		}
	}
	for _, suffix := range trailingSegments(slashed) {
		for i, s := range m.sources {
			if strings.Contains(s, suffix) || strings.Contains(filepath.ToSlash(m.resolved[i]), suffix) {
				add(i, StrategySegments)
			}
		}
	}
	return out
}

// trailingSegments returns the path suffixes of p from longest to the last
// two segments, e.g. a/b/c.ts -> [a/b/c.ts b/c.ts].
func trailingSegments(p string) []string {
	parts := lo.Filter(strings.Split(p, "/"), func(s string, _ int) bool { return s != "" && s != "." && s != ".." })
	var out []string
	for k := len(parts); k >= 2; k-- {
		out = append(out, strings.Join(parts[len(parts)-k:], "/"))
	}
	return out
}

// mapForScript locates the map of a generated file: its sourceMappingURL
// comment (file path or inline data url), then <file>.map.
func mapForScript(generated string) (*mapFile, error) {
	generated = scripts.StripFileURL(generated)

	if content, err := os.ReadFile(generated); err == nil {
		if ref := sourceMappingURL(string(content)); ref != "" {
			if raw, ok := decodeDataURL(ref); ok {
				return parseMapFile(generated+" (inline)", raw)
			}
			ref = scripts.StripFileURL(ref)
			if !filepath.IsAbs(ref) {
				ref = filepath.Join(filepath.Dir(generated), filepath.FromSlash(ref))
			}
			if m, err := loadMapFile(ref); err == nil {
				return m, nil
			}
		}
	}
	return loadMapFile(generated + ".map")
}

// sourceMappingURL returns the last sourceMappingURL annotation in content.
func sourceMappingURL(content string) string {
	for _, marker := range []string{"//# sourceMappingURL=", "//@ sourceMappingURL="} {
		if i := strings.LastIndex(content, marker); i >= 0 {
			rest := content[i+len(marker):]
			if j := strings.IndexAny(rest, " \r\n\t"); j >= 0 {
				rest = rest[:j]
			}
			return rest
		}
	}
	return ""
}

func decodeDataURL(ref string) ([]byte, bool) {
	const prefix = "data:application/json"
	if !strings.HasPrefix(ref, prefix) {
		return nil, false
	}
	i := strings.Index(ref, ",")
	if i < 0 {
		return nil, false
	}
	meta, data := ref[:i], ref[i+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return []byte(data), true
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, false
	}
	return raw, true
}
