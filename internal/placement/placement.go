// Package placement turns a generated coordinate into a breakpoint the
// runtime accepts.
package placement

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/internal/scripts"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Strategy names reported in Result.Strategy.
const (
	StrategyPossibleLocations = "possible-locations"
	StrategyURL               = "url"
	StrategyURLRegex          = "url-regex"
)

// maxColumn spans a whole line when probing for locations.
const maxColumn = 200

// Window is a probe range relative to the target line.
type Window struct {
	Before int
	After  int
}

// DefaultWindows are probed in order until one yields candidates.
var DefaultWindows = []Window{
	{Before: 0, After: 10},
	{Before: 2, After: 20},
	{Before: 10, After: 50},
}

// Request is a placement request in 1-based generated coordinates.
type Request struct {
	// ScriptID may be empty when the script could not be resolved; the
	// engine then goes straight to url-based registration.
	ScriptID  string
	ScriptURL string

	// Path is the generated file path used for url-based registration.
	Path string

	Line      int
	Column    int
	Condition string
}

// Result describes the registered breakpoint.
type Result struct {
	BreakpointID string
	Verified     bool
	Location     *types.ResolvedLocation
	Strategy     string
	Message      string
}

// Engine places breakpoints.
type Engine struct {
	windows []Window
	log     *zap.Logger
}

// New creates an Engine using DefaultWindows.
func New(logger *zap.Logger) *Engine {
	return &Engine{windows: DefaultWindows, log: logging.Named(logger, "placement")}
}

// Place registers a breakpoint for req through client. A breakpoint that
// the runtime registered but could not bind yet is returned unverified;
// an error means nothing was registered at all.
func (e *Engine) Place(client proto.Client, req Request) (*Result, error) {
	if req.Line < 1 {
		return nil, errors.InvalidCoordinate("line", req.Line)
	}
	col := req.Column
	if col < 1 {
		col = 1
	}
	line0, col0 := req.Line-1, col-1

	log := e.log.With(zap.String("scriptId", req.ScriptID), zap.Int("line", req.Line))

	if req.ScriptID != "" {
		loc, err := e.probe(client, proto.RuntimeScriptID(req.ScriptID), line0, col0)
		if err != nil {
			log.Debug("probing possible breakpoints failed", zap.Error(err))
		}
		if loc != nil {
			res, err := proto.DebuggerSetBreakpoint{Location: loc, Condition: req.Condition}.Call(client)
			if err == nil {
				actual := res.ActualLocation
				if actual == nil {
					actual = loc
				}
				return &Result{
					BreakpointID: string(res.BreakpointID),
					Verified:     true,
					Location:     toResolved(actual, req.ScriptURL),
					Strategy:     StrategyPossibleLocations,
				}, nil
			}
			log.Warn("setBreakpoint rejected, falling back to url", zap.Error(err))
		}
	}

	return e.placeByURL(client, req, line0, col0)
}

// probe returns the chosen location of the first window that has any
// candidates, or nil.
func (e *Engine) probe(client proto.Client, scriptID proto.RuntimeScriptID, line0, col0 int) (*proto.DebuggerLocation, error) {
	var lastErr error
	for _, w := range e.windows {
		start := line0 - w.Before
		if start < 0 {
			start = 0
		}
		res, err := proto.DebuggerGetPossibleBreakpoints{
			Start: &proto.DebuggerLocation{ScriptID: scriptID, LineNumber: start, ColumnNumber: intPtr(0)},
			End:   &proto.DebuggerLocation{ScriptID: scriptID, LineNumber: line0 + w.After, ColumnNumber: intPtr(maxColumn)},
		}.Call(client)
		if err != nil {
			lastErr = err
			continue
		}
		if len(res.Locations) == 0 {
			continue
		}
		best := Choose(res.Locations, line0, col0)
		return &proto.DebuggerLocation{
			ScriptID:     scriptID,
			LineNumber:   best.LineNumber,
			ColumnNumber: intPtr(column(best.ColumnNumber)),
		}, nil
	}
	return nil, lastErr
}

// Choose picks the first candidate at or after (line0, col0), ordered by
// line then column. When none is, the candidate with the smallest line
// distance wins. candidates must not be empty.
func Choose(candidates []*proto.DebuggerBreakLocation, line0, col0 int) *proto.DebuggerBreakLocation {
	sorted := append([]*proto.DebuggerBreakLocation(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].LineNumber != sorted[j].LineNumber {
			return sorted[i].LineNumber < sorted[j].LineNumber
		}
		return column(sorted[i].ColumnNumber) < column(sorted[j].ColumnNumber)
	})

	for _, c := range sorted {
		if c.LineNumber > line0 || (c.LineNumber == line0 && column(c.ColumnNumber) >= col0) {
			return c
		}
	}

	best := sorted[0]
	for _, c := range sorted[1:] {
		if abs(c.LineNumber-line0) < abs(best.LineNumber-line0) {
			best = c
		}
	}
	return best
}

// placeByURL registers by exact file url, then by a regex matching the
// path as a url suffix.
func (e *Engine) placeByURL(client proto.Client, req Request, line0, col0 int) (*Result, error) {
	if req.Path == "" {
		return nil, errors.PlacementFailed(req.ScriptURL, req.Line, fmt.Errorf("no file path for url-based placement"))
	}

	url := scripts.FileURL(req.Path)
	byURL, err := proto.DebuggerSetBreakpointByURL{
		LineNumber:   line0,
		URL:          url,
		ColumnNumber: intPtr(col0),
		Condition:    req.Condition,
	}.Call(client)
	if err == nil && len(byURL.Locations) > 0 {
		return &Result{
			BreakpointID: string(byURL.BreakpointID),
			Verified:     true,
			Location:     toResolved(byURL.Locations[0], url),
			Strategy:     StrategyURL,
		}, nil
	}
	if err == nil {
		// registered but bound nowhere; the regex form may match more urls
		if rerr := (proto.DebuggerRemoveBreakpoint{BreakpointID: byURL.BreakpointID}).Call(client); rerr != nil {
			e.log.Warn("removing unbound url breakpoint failed",
				zap.String("breakpointId", string(byURL.BreakpointID)), zap.Error(rerr))
		}
	}

	pattern := regexp.QuoteMeta(filepath.ToSlash(req.Path)) + "$"
	byRegex, err := proto.DebuggerSetBreakpointByURL{
		LineNumber:   line0,
		URLRegex:     pattern,
		ColumnNumber: intPtr(col0),
		Condition:    req.Condition,
	}.Call(client)
	if err != nil {
		e.log.Warn("url placement failed", zap.String("path", req.Path), zap.Int("line", req.Line), zap.Error(err))
		return nil, errors.PlacementFailed(req.Path, req.Line, err)
	}
	if len(byRegex.Locations) > 0 {
		return &Result{
			BreakpointID: string(byRegex.BreakpointID),
			Verified:     true,
			Location:     toResolved(byRegex.Locations[0], ""),
			Strategy:     StrategyURLRegex,
		}, nil
	}
	return &Result{
		BreakpointID: string(byRegex.BreakpointID),
		Strategy:     StrategyURLRegex,
		Message:      fmt.Sprintf("breakpoint registered for urls matching %s but no loaded script contains line %d", pattern, req.Line),
	}, nil
}

func toResolved(loc *proto.DebuggerLocation, url string) *types.ResolvedLocation {
	return &types.ResolvedLocation{
		ScriptID: string(loc.ScriptID),
		URL:      url,
		Line:     loc.LineNumber + 1,
		Column:   column(loc.ColumnNumber) + 1,
	}
}

func column(c *int) int {
	if c == nil {
		return 0
	}
	return *c
}

func intPtr(v int) *int {
	return &v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
