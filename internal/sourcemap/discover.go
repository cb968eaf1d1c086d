package sourcemap

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// FindProjectRoot walks upward from start until a directory containing one
// of markers is found.
func FindProjectRoot(start string, markers []string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Discover returns the map files to consult for near (an original or
// generated file, may be empty). Explicit search paths win; otherwise the
// conventional build directories of the project root and of near's own
// directory are walked.
func (r *Resolver) Discover(near string, searchPaths []string) []string {
	roots := r.searchRoots(near, searchPaths)

	var files []string
	for _, root := range roots {
		if len(files) >= r.opts.MaxFiles {
			break
		}
		files = append(files, r.walk(root, r.opts.MaxFiles-len(files))...)
	}
	files = lo.Uniq(files)
	r.log.Debug("discovered source maps",
		zap.String("near", near),
		zap.Strings("roots", roots),
		zap.Int("count", len(files)))
	return files
}

func (r *Resolver) searchRoots(near string, searchPaths []string) []string {
	explicit := append(append([]string(nil), searchPaths...), r.opts.SearchPaths...)
	if len(explicit) > 0 {
		return lo.Uniq(lo.Map(explicit, func(p string, _ int) string { return globBase(p) }))
	}

	var roots []string
	start := near
	if start == "" {
		if wd, err := os.Getwd(); err == nil {
			start = wd
		}
	}
	if root, ok := FindProjectRoot(start, r.opts.ProjectMarkers); ok {
		for _, d := range r.opts.BuildDirs {
			roots = append(roots, filepath.Join(root, d))
		}
	}
	if near != "" {
		dir := filepath.Dir(near)
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		for _, d := range r.opts.BuildDirs {
			roots = append(roots, filepath.Join(dir, d))
		}
		// maps emitted next to the file itself
		roots = append(roots, dir)
	}
	return lo.Uniq(roots)
}

// walk collects up to limit *.map files under root. root may be a single
// map file. Dependency and hidden directories are skipped.
func (r *Resolver) walk(root string, limit int) []string {
	info, err := os.Stat(root)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		if strings.HasSuffix(root, ".map") {
			return []string{root}
		}
		return nil
	}

	var out []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if p != root && (name == "node_modules" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, ".map") {
			out = append(out, p)
			if len(out) >= limit {
				return filepath.SkipAll
			}
		}
		return nil
	})
	return out
}

// globBase strips a glob pattern (as used by launch.json outFiles) down to
// its static directory prefix.
func globBase(p string) string {
	i := strings.IndexAny(p, "*?[{")
	if i < 0 {
		return p
	}
	return filepath.Dir(p[:i] + "x")
}
