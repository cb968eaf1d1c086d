// Package sourcemap translates coordinates between original and generated
// source using source map files found on disk.
//
// Lines and columns are 1-based at every exported function. The mapping
// data is 0-based; the conversion happens in this file and nowhere else.
package sourcemap

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

const maxSuggestions = 5

// Options configures discovery.
type Options struct {
	// SearchPaths are consulted in addition to per-call search paths.
	SearchPaths    []string
	BuildDirs      []string
	ProjectMarkers []string
	MaxFiles       int
	Logger         *zap.Logger
}

// Resolver translates positions. It keeps no state between calls; maps are
// parsed lazily and cached for the duration of one call.
type Resolver struct {
	opts Options
	log  *zap.Logger
}

// NewResolver creates a Resolver, filling unset options with the usual
// build directories and project markers.
func NewResolver(opts Options) *Resolver {
	if len(opts.BuildDirs) == 0 {
		opts.BuildDirs = []string{"dist", "build", "out", "lib"}
	}
	if len(opts.ProjectMarkers) == 0 {
		opts.ProjectMarkers = []string{"package.json"}
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 500
	}
	return &Resolver{opts: opts, log: logging.Named(opts.Logger, "sourcemap")}
}

// Result is the outcome of a translation. When Found is false, Diagnostic
// explains what was searched.
type Result struct {
	Found      bool                 `json:"found"`
	Position   types.SourcePosition `json:"position"`
	Provenance types.Provenance     `json:"provenance"`
	Diagnostic *Diagnostic          `json:"diagnostic,omitempty"`
}

// Diagnostic describes a failed translation.
type Diagnostic struct {
	Reason      string              `json:"reason"`
	Input       string              `json:"input"`
	MapFiles    []string            `json:"mapFiles"`
	Sources     map[string][]string `json:"sources,omitempty"`
	Errors      []string            `json:"errors,omitempty"`
	Suggestions []string            `json:"suggestions,omitempty"`
}

// Err converts the diagnostic into a SourceMapError.
func (d *Diagnostic) Err() error {
	return errors.SourceMapNotFound(d.Input, d.MapFiles, d.Suggestions).
		WithDetails("reason", d.Reason)
}

func validate(line, column int) error {
	if line < 1 {
		return errors.InvalidCoordinate("line", line)
	}
	if column < 1 {
		return errors.InvalidCoordinate("column", column)
	}
	return nil
}

// ResolveGenerated maps a 1-based position in original source to the
// generated file. Every discovered map is tried; within a map, candidate
// sources are tried in rank order. A missing mapping is reported through
// Result.Diagnostic, not as an error.
func (r *Resolver) ResolveGenerated(source string, line, column int, searchPaths []string) (*Result, error) {
	if err := validate(line, column); err != nil {
		return nil, err
	}

	files := r.Discover(source, searchPaths)
	diag := &Diagnostic{Input: source, MapFiles: files, Sources: make(map[string][]string)}
	if len(files) == 0 {
		diag.Reason = "no source map files found"
		return &Result{Diagnostic: diag}, nil
	}

	// internal coordinates from here on
	line0, col0 := line-1, column-1

	for _, f := range files {
		m, err := loadMapFile(f)
		if err != nil {
			diag.Errors = append(diag.Errors, err.Error())
			continue
		}
		diag.Sources[f] = m.sources

		cands := m.candidates(source)
		if len(cands) == 0 {
			continue
		}
		idx, err := m.reverseIndex()
		if err != nil {
			diag.Errors = append(diag.Errors, err.Error())
			continue
		}

		for _, c := range cands {
			seg, ok := idx.lowerBound(c.index, line0, col0)
			if !ok && col0 == 0 {
				seg, ok = idx.upperBound(c.index, line0, col0)
			}
			if !ok {
				continue
			}

			gen := m.generatedFile()
			res := &Result{
				Found: true,
				Position: types.SourcePosition{
					File:   gen,
					Line:   seg.genLine + 1,
					Column: seg.genColumn + 1,
				},
				Provenance: types.Provenance{
					Used:          true,
					MatchedSource: m.sources[c.index],
					MapFile:       f,
					Strategy:      c.strategy,
					GeneratedFile: gen,
				},
			}
			r.log.Debug("resolved generated position",
				zap.String("source", source),
				zap.Int("line", line),
				zap.String("mapFile", f),
				zap.String("strategy", c.strategy),
				zap.Int("generatedLine", res.Position.Line))
			return res, nil
		}
	}

	diag.Reason = fmt.Sprintf("no mapping for %s:%d:%d in %d source map file(s)", source, line, column, len(files))
	diag.Suggestions = suggest(source, diag.Sources)
	r.log.Warn("source map lookup failed",
		zap.String("source", source),
		zap.Int("line", line),
		zap.Int("mapFiles", len(files)))
	return &Result{Diagnostic: diag}, nil
}

// ResolveOriginal maps a 1-based generated position back to original
// source using a single map: the one belonging to generated when given,
// otherwise the first map discovered from searchPaths.
func (r *Resolver) ResolveOriginal(generated string, line, column int, searchPaths []string) (*Result, error) {
	if err := validate(line, column); err != nil {
		return nil, err
	}

	diag := &Diagnostic{Input: fmt.Sprintf("%s:%d:%d", generated, line, column)}

	var m *mapFile
	if generated != "" {
		if found, err := mapForScript(generated); err == nil {
			m = found
		} else {
			diag.Errors = append(diag.Errors, err.Error())
		}
	}
	if m == nil {
		files := r.Discover(generated, searchPaths)
		diag.MapFiles = files
		if generated != "" {
			files = lo.Filter(files, func(f string, _ int) bool { return describes(f, generated) })
		}
		for _, f := range files {
			loaded, err := loadMapFile(f)
			if err != nil {
				diag.Errors = append(diag.Errors, err.Error())
				continue
			}
			if generated == "" || loaded.describesFile(generated) {
				m = loaded
				break
			}
		}
	}
	if m == nil {
		diag.Reason = "no source map found for generated position"
		return &Result{Diagnostic: diag}, nil
	}
	diag.MapFiles = []string{m.path}

	c, err := m.forward()
	if err != nil {
		diag.Reason = err.Error()
		return &Result{Diagnostic: diag}, nil
	}

	src, _, origLine, origCol, ok := c.Source(line, column-1)
	if !ok || src == "" {
		diag.Reason = fmt.Sprintf("no mapping at generated %d:%d in %s", line, column, m.path)
		return &Result{Diagnostic: diag}, nil
	}

	file := src
	if i := m.sourceIndex(src); i >= 0 {
		file = m.resolved[i]
	}
	return &Result{
		Found: true,
		Position: types.SourcePosition{
			File:   file,
			Line:   origLine,
			Column: origCol + 1,
		},
		Provenance: types.Provenance{
			Used:          true,
			MatchedSource: src,
			MapFile:       m.path,
			Strategy:      StrategyForward,
			GeneratedFile: m.generatedFile(),
		},
	}, nil
}

// describes reports whether the map file name suggests it belongs to generated.
func describes(mapPath, generated string) bool {
	base := path.Base(filepath.ToSlash(strings.TrimPrefix(generated, "file://")))
	return filepath.Base(mapPath) == base+".map" || strings.HasPrefix(filepath.Base(mapPath), strings.TrimSuffix(base, path.Ext(base)))
}

func (m *mapFile) describesFile(generated string) bool {
	base := path.Base(filepath.ToSlash(strings.TrimPrefix(generated, "file://")))
	return path.Base(filepath.ToSlash(m.generatedFile())) == base
}

// suggest proposes mapped sources whose names resemble source.
func suggest(source string, sources map[string][]string) []string {
	var all []string
	for _, list := range sources {
		all = append(all, list...)
	}
	all = lo.Uniq(all)

	base := path.Base(filepath.ToSlash(source))
	pattern := strings.TrimSuffix(base, path.Ext(base))
	matches := fuzzy.Find(pattern, all)

	out := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
