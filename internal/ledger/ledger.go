// Package ledger keeps the breakpoints placed in the current session and
// the observations made while it runs.
package ledger

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/ctagard/cdp-mcp/pkg/types"
)

// Default buffer capacities.
const (
	DefaultMaxHits    = 1000
	DefaultMaxEvents  = 1000
	DefaultMaxConsole = 1000
)

// Options configures buffer capacities. Zero means the default.
type Options struct {
	MaxHits    int
	MaxEvents  int
	MaxConsole int
}

// Ledger tracks breakpoint records by id and by originating file, plus the
// logpoint hit, debugger event and console buffers.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]types.BreakpointRecord
	seq     map[string]uint64
	next    uint64
	byFile  map[string][]string

	// resolved holds runtime resolutions reported before their record was
	// stored, keyed by runtime id.
	resolved map[string]types.ResolvedLocation
	// awaiting holds bindings of unverified records to scripts the registry
	// has not reported yet, keyed by runtime id.
	awaiting map[string]types.ResolvedLocation

	hits    *buffer[types.LogpointHit]
	events  *buffer[types.DebuggerEvent]
	console *buffer[types.ConsoleMessage]
}

// New creates an empty ledger.
func New(opts Options) *Ledger {
	return &Ledger{
		records: make(map[string]types.BreakpointRecord),
		seq:     make(map[string]uint64),
		byFile:  make(map[string][]string),

		resolved: make(map[string]types.ResolvedLocation),
		awaiting: make(map[string]types.ResolvedLocation),

		hits:    newBuffer[types.LogpointHit](lo.Ternary(opts.MaxHits > 0, opts.MaxHits, DefaultMaxHits)),
		events:  newBuffer[types.DebuggerEvent](lo.Ternary(opts.MaxEvents > 0, opts.MaxEvents, DefaultMaxEvents)),
		console: newBuffer[types.ConsoleMessage](lo.Ternary(opts.MaxConsole > 0, opts.MaxConsole, DefaultMaxConsole)),
	}
}

// ReplaceFile drops every record of file and stores recs in its place.
// The dropped records are returned so their runtime breakpoints can be
// removed. An empty recs clears the file.
func (l *Ledger) ReplaceFile(file string, recs []types.BreakpointRecord) []types.BreakpointRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.fileLocked(file)
	for _, r := range old {
		l.deleteLocked(r.ID)
	}
	for _, r := range recs {
		l.putLocked(r)
	}
	return old
}

// Add stores rec, replacing a record with the same id. An unverified rec
// whose runtime resolution was already reported is stored verified. Add
// returns the stored record and whether it was promoted that way.
func (l *Ledger) Add(rec types.BreakpointRecord) (types.BreakpointRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	promoted := false
	if loc, ok := l.resolved[rec.RuntimeID]; ok && rec.RuntimeID != "" && !rec.Verified {
		delete(l.resolved, rec.RuntimeID)
		rec = verify(rec, loc)
		promoted = true
	}
	l.putLocked(rec)
	return rec, promoted
}

func (l *Ledger) putLocked(rec types.BreakpointRecord) {
	if _, exists := l.records[rec.ID]; exists {
		l.deleteLocked(rec.ID)
	}
	l.next++
	l.records[rec.ID] = rec
	l.seq[rec.ID] = l.next
	l.byFile[rec.File] = append(l.byFile[rec.File], rec.ID)
}

func (l *Ledger) deleteLocked(id string) (types.BreakpointRecord, bool) {
	rec, ok := l.records[id]
	if !ok {
		return types.BreakpointRecord{}, false
	}
	delete(l.records, id)
	delete(l.seq, id)
	if rec.RuntimeID != "" {
		delete(l.awaiting, rec.RuntimeID)
	}
	ids := lo.Without(l.byFile[rec.File], id)
	if len(ids) == 0 {
		delete(l.byFile, rec.File)
	} else {
		l.byFile[rec.File] = ids
	}
	return rec, true
}

// Remove deletes the record with the given id.
func (l *Ledger) Remove(id string) (types.BreakpointRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deleteLocked(id)
}

// Get returns the record with the given id.
func (l *Ledger) Get(id string) (types.BreakpointRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	return rec, ok
}

// File returns the records of file in insertion order.
func (l *Ledger) File(file string) []types.BreakpointRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fileLocked(file)
}

func (l *Ledger) fileLocked(file string) []types.BreakpointRecord {
	return lo.Map(l.byFile[file], func(id string, _ int) types.BreakpointRecord { return l.records[id] })
}

// List returns a snapshot of all records in insertion order.
func (l *Ledger) List() []types.BreakpointRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := lo.Values(l.records)
	sort.Slice(out, func(i, j int) bool { return l.seq[out[i].ID] < l.seq[out[j].ID] })
	return out
}

// Files returns the files that currently have records, sorted.
func (l *Ledger) Files() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	files := lo.Keys(l.byFile)
	sort.Strings(files)
	return files
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// MarkVerified attaches loc to the unverified record registered under
// runtimeID. It returns the updated record, or false when no unverified
// record matches. A resolution nothing matches is kept until DropResolved,
// so a record stored later by Add still picks it up.
func (l *Ledger) MarkVerified(runtimeID string, loc types.ResolvedLocation) (types.BreakpointRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, rec := range l.records {
		if rec.RuntimeID != runtimeID {
			continue
		}
		if rec.Verified {
			return types.BreakpointRecord{}, false
		}
		rec = verify(rec, loc)
		l.records[id] = rec
		delete(l.awaiting, runtimeID)
		return rec, true
	}
	if runtimeID != "" {
		l.resolved[runtimeID] = loc
	}
	return types.BreakpointRecord{}, false
}

// DropResolved forgets the resolutions no record has claimed.
func (l *Ledger) DropResolved() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resolved = make(map[string]types.ResolvedLocation)
}

// AwaitScript notes that the runtime bound runtimeID at loc in a script the
// registry has not reported yet. BindScript promotes the record once it is.
func (l *Ledger) AwaitScript(runtimeID string, loc types.ResolvedLocation) {
	if runtimeID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.awaiting[runtimeID] = loc
}

// BindScript promotes the unverified records waiting for script and returns
// them.
func (l *Ledger) BindScript(script types.Script) []types.BreakpointRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var promoted []types.BreakpointRecord
	for runtimeID, loc := range l.awaiting {
		if loc.ScriptID != script.ID {
			continue
		}
		delete(l.awaiting, runtimeID)
		loc.URL = script.URL
		for id, rec := range l.records {
			if rec.RuntimeID != runtimeID || rec.Verified {
				continue
			}
			rec = verify(rec, loc)
			l.records[id] = rec
			promoted = append(promoted, rec)
		}
	}
	sort.Slice(promoted, func(i, j int) bool { return l.seq[promoted[i].ID] < l.seq[promoted[j].ID] })
	return promoted
}

func verify(rec types.BreakpointRecord, loc types.ResolvedLocation) types.BreakpointRecord {
	rec.Verified = true
	rec.Message = ""
	rec.Location = &loc
	return rec
}

// AppendHit records a logpoint hit.
func (l *Ledger) AppendHit(h types.LogpointHit) { l.hits.push(h) }

// Hits returns up to limit of the most recent hits, oldest first. A limit
// of zero returns all of them.
func (l *Ledger) Hits(limit int) []types.LogpointHit { return l.hits.last(limit) }

// ClearHits empties the hit buffer.
func (l *Ledger) ClearHits() { l.hits.reset() }

// AppendEvent records a pause or resume.
func (l *Ledger) AppendEvent(e types.DebuggerEvent) { l.events.push(e) }

// Events works like Hits for debugger events.
func (l *Ledger) Events(limit int) []types.DebuggerEvent { return l.events.last(limit) }

// LastEvent returns the most recent debugger event.
func (l *Ledger) LastEvent() (types.DebuggerEvent, bool) {
	last := l.events.last(1)
	if len(last) == 0 {
		return types.DebuggerEvent{}, false
	}
	return last[0], true
}

// ClearEvents empties the debugger event buffer.
func (l *Ledger) ClearEvents() { l.events.reset() }

// AppendConsole records a console message.
func (l *Ledger) AppendConsole(m types.ConsoleMessage) { l.console.push(m) }

// Console works like Hits for console messages.
func (l *Ledger) Console(limit int) []types.ConsoleMessage { return l.console.last(limit) }

// ClearConsole empties the console buffer.
func (l *Ledger) ClearConsole() { l.console.reset() }

// Stats summarizes the ledger.
type Stats struct {
	Breakpoints    int `json:"breakpoints"`
	Hits           int `json:"hits"`
	Events         int `json:"events"`
	Console        int `json:"console"`
	DroppedHits    int `json:"droppedHits"`
	DroppedEvents  int `json:"droppedEvents"`
	DroppedConsole int `json:"droppedConsole"`
}

// Stats returns the current counts.
func (l *Ledger) Stats() Stats {
	return Stats{
		Breakpoints:    l.Len(),
		Hits:           l.hits.size(),
		Events:         l.events.size(),
		Console:        l.console.size(),
		DroppedHits:    l.hits.droppedCount(),
		DroppedEvents:  l.events.droppedCount(),
		DroppedConsole: l.console.droppedCount(),
	}
}

// Reset forgets all records and empties every buffer.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.records = make(map[string]types.BreakpointRecord)
	l.seq = make(map[string]uint64)
	l.byFile = make(map[string][]string)
	l.resolved = make(map[string]types.ResolvedLocation)
	l.awaiting = make(map[string]types.ResolvedLocation)
	l.mu.Unlock()

	l.hits.reset()
	l.events.reset()
	l.console.reset()
}
