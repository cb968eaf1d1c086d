package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/errors"
	"github.com/ctagard/cdp-mcp/internal/events"
	"github.com/ctagard/cdp-mcp/internal/logpoint"
	"github.com/ctagard/cdp-mcp/internal/placement"
	"github.com/ctagard/cdp-mcp/internal/scripts"
	"github.com/ctagard/cdp-mcp/pkg/types"
)

// UnverifiedPrefix starts the id of a record the runtime never accepted.
const UnverifiedPrefix = "unverified-"

// generated is the generated-side target of one spec.
type generated struct {
	path       string
	line       int
	column     int
	provenance types.Provenance
	note       string
}

// scriptLookup memoizes script resolution within one batch so a missing
// script costs the resolve timeout once.
type scriptLookup struct {
	script types.Script
	err    error
}

// SetBreakpoints declares the complete set of breakpoints for file. Every
// record previously tracked for file is removed first, from the runtime and
// from the ledger. Items fail independently: an item that cannot be placed
// becomes an unverified record and the rest of the batch proceeds.
//
// file names original source; lines and columns are 1-based. A column of 0
// means the start of the line.
func (e *Engine) SetBreakpoints(ctx context.Context, file string, specs []types.BreakpointSpec, searchPaths []string) ([]types.BreakpointRecord, error) {
	if file == "" {
		return nil, errors.MissingParameter("file", "Path of the source file the breakpoints belong to.")
	}
	for _, s := range specs {
		if s.Line < 1 {
			return nil, errors.InvalidCoordinate("line", s.Line)
		}
		if s.Column < 0 {
			return nil, errors.InvalidCoordinate("column", s.Column)
		}
		if s.LogLevel != "" && !s.LogLevel.Valid() {
			return nil, errors.InvalidParameter("logLevel", s.LogLevel, "debug, info, warn or error")
		}
	}

	e.placeMu.Lock()
	defer e.placeMu.Unlock()

	file = normalizeFile(file)
	log := e.log.With(zap.String("file", file))

	// An empty list clears the file even without a session, like
	// RemoveBreakpoint does.
	if state := e.session.State(); state != types.StateConnected {
		if len(specs) > 0 {
			return nil, errors.NotConnected(string(state))
		}
		dropped := e.ledger.ReplaceFile(file, nil)
		log.Info("breakpoints cleared offline", zap.Int("dropped", len(dropped)))
		return []types.BreakpointRecord{}, nil
	}

	for _, old := range e.ledger.ReplaceFile(file, nil) {
		e.removeRuntime(ctx, old)
	}
	e.ledger.DropResolved()
	defer e.ledger.DropResolved()

	client := e.client(ctx)
	lookups := make(map[string]scriptLookup)
	recs := make([]types.BreakpointRecord, 0, len(specs))

	for _, spec := range specs {
		rec := types.BreakpointRecord{
			Kind:       spec.Kind(),
			File:       file,
			Line:       spec.Line,
			Column:     spec.Column,
			Condition:  spec.Condition,
			LogMessage: spec.LogMessage,
			LogLevel:   spec.LogLevel,
			CreatedAt:  e.clock.Now(),
		}
		if rec.Kind == types.KindLogpoint && rec.LogLevel == "" {
			rec.LogLevel = types.LogLevelInfo
		}

		gen, err := e.toGenerated(file, spec, searchPaths)
		if err != nil {
			recs = append(recs, e.commit(unverified(rec, err.Error()), nil))
			continue
		}
		rec.Provenance = gen.provenance

		condition := spec.Condition
		if rec.Kind == types.KindLogpoint {
			condition, err = logpoint.Compile(spec.LogMessage, logpoint.Options{
				Binding:   e.cfg.Logpoint.Binding,
				Level:     rec.LogLevel,
				Condition: spec.Condition,
				Location:  fmt.Sprintf("%s:%d", file, spec.Line),
			})
			if err != nil {
				recs = append(recs, e.commit(unverified(rec, err.Error()), nil))
				continue
			}
		}

		lk, ok := lookups[gen.path]
		if !ok {
			lk.script, lk.err = e.registry.Resolve(ctx, gen.path, e.cfg.Timeouts.ScriptResolve)
			lookups[gen.path] = lk
		}

		req := placement.Request{
			Path:      gen.path,
			Line:      gen.line,
			Column:    gen.column,
			Condition: condition,
		}
		if lk.err == nil {
			req.ScriptID = lk.script.ID
			req.ScriptURL = lk.script.URL
		}

		res, err := e.placer.Place(client, req)
		if err != nil {
			msg := err.Error()
			if lk.err != nil {
				msg = fmt.Sprintf("%s (%s)", msg, lk.err.Error())
			}
			log.Warn("breakpoint not placed", zap.Int("line", spec.Line), zap.Error(err))
			recs = append(recs, e.commit(unverified(rec, msg), nil))
			continue
		}
		recs = append(recs, e.commit(e.fromPlacement(rec, res, gen)))
	}

	// resolutions reported while later items were placed
	for i, rec := range recs {
		if cur, ok := e.ledger.Get(rec.ID); ok {
			recs[i] = cur
		}
	}
	log.Info("breakpoints set",
		zap.Int("requested", len(specs)),
		zap.Int("verified", lo.CountBy(recs, func(r types.BreakpointRecord) bool { return r.Verified })))
	return recs, nil
}

// toGenerated translates spec through the source maps. A file without a
// mapping is taken to be generated source itself.
func (e *Engine) toGenerated(file string, spec types.BreakpointSpec, searchPaths []string) (generated, error) {
	col := lo.Ternary(spec.Column < 1, 1, spec.Column)
	gen := generated{path: scripts.StripFileURL(file), line: spec.Line, column: col}

	res, err := e.resolver.ResolveGenerated(gen.path, spec.Line, col, searchPaths)
	if err != nil {
		return gen, err
	}
	if !res.Found {
		if res.Diagnostic != nil && len(res.Diagnostic.MapFiles) > 0 {
			gen.note = "no source map entry for this file, placed as generated source"
		}
		return gen, nil
	}

	gen.line = res.Position.Line
	gen.column = res.Position.Column
	gen.provenance = res.Provenance
	if p := res.Provenance.GeneratedFile; p != "" {
		gen.path = p
	} else if res.Position.File != "" {
		gen.path = res.Position.File
	}
	return gen, nil
}

// fromPlacement builds the record of a placed breakpoint. A location in a
// script the registry has not reported yet is returned separately so the
// record can be promoted when the script arrives.
func (e *Engine) fromPlacement(rec types.BreakpointRecord, res *placement.Result, gen generated) (types.BreakpointRecord, *types.ResolvedLocation) {
	rec.ID = res.BreakpointID
	rec.RuntimeID = res.BreakpointID
	rec.Placement = res.Strategy
	rec.Verified = res.Verified
	rec.Message = lo.Ternary(res.Message != "", res.Message, gen.note)

	if res.Location == nil {
		return rec, nil
	}
	loc := *res.Location
	script, known := e.registry.ByID(loc.ScriptID)
	if known && loc.URL == "" {
		loc.URL = script.URL
	}
	// a verified record always names a script the registry knows
	if rec.Verified && !known {
		rec.Verified = false
		rec.Message = fmt.Sprintf("bound to script %s, which has not been reported yet", loc.ScriptID)
		return rec, &loc
	}
	rec.Location = &loc
	return rec, nil
}

// commit stores rec in the ledger as soon as it is placed, so runtime
// resolutions reported while the rest of the batch is placed find it.
// waiting is the location of a binding to a script not reported yet.
func (e *Engine) commit(rec types.BreakpointRecord, waiting *types.ResolvedLocation) types.BreakpointRecord {
	stored, promoted := e.ledger.Add(rec)
	if promoted {
		e.publishVerified(stored)
		return stored
	}
	if waiting == nil || stored.Verified {
		return stored
	}

	e.ledger.AwaitScript(stored.RuntimeID, *waiting)
	// the script may have been reported between placement and AwaitScript
	if script, ok := e.registry.ByID(waiting.ScriptID); ok {
		for _, r := range e.ledger.BindScript(script) {
			e.publishVerified(r)
			if r.ID == stored.ID {
				stored = r
			}
		}
	}
	return stored
}

func (e *Engine) publishVerified(rec types.BreakpointRecord) {
	e.log.Info("breakpoint verified", zap.String("breakpointId", rec.ID))
	e.bus.Publish(events.Event{Kind: events.BreakpointVerified, Time: e.clock.Now(), Data: rec})
}

func unverified(rec types.BreakpointRecord, msg string) types.BreakpointRecord {
	rec.ID = UnverifiedPrefix + uuid.NewString()
	rec.Verified = false
	rec.Message = msg
	return rec
}

// RemoveBreakpoint removes one tracked record and its runtime breakpoint.
func (e *Engine) RemoveBreakpoint(ctx context.Context, id string) (types.BreakpointRecord, error) {
	rec, ok := e.ledger.Get(id)
	if !ok {
		return types.BreakpointRecord{}, errors.BreakpointNotFound(id)
	}
	if rec.RuntimeID != "" && e.session.State() == types.StateConnected {
		err := e.removeRuntimeErr(ctx, rec)
		if err != nil && !errors.IsCode(err, errors.CodeCommandRejected) {
			return types.BreakpointRecord{}, err
		}
	}
	e.ledger.Remove(id)
	return rec, nil
}

// ListBreakpoints returns the tracked records, optionally only those of file.
func (e *Engine) ListBreakpoints(file string) []types.BreakpointRecord {
	if file == "" {
		return e.ledger.List()
	}
	return e.ledger.File(normalizeFile(file))
}

func (e *Engine) removeRuntime(ctx context.Context, rec types.BreakpointRecord) {
	if rec.RuntimeID == "" {
		return
	}
	if err := e.removeRuntimeErr(ctx, rec); err != nil {
		e.log.Warn("removing breakpoint failed", zap.String("breakpointId", rec.RuntimeID), zap.Error(err))
	}
}

func (e *Engine) removeRuntimeErr(ctx context.Context, rec types.BreakpointRecord) error {
	return removeBreakpoint(e.client(ctx), rec.RuntimeID)
}

// normalizeFile makes relative paths absolute so records of the same file
// share one ledger key. Urls are kept as they are.
func normalizeFile(file string) string {
	if strings.Contains(file, "://") {
		return file
	}
	if abs, err := filepath.Abs(file); err == nil {
		return abs
	}
	return filepath.Clean(file)
}
