package logpoint

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ctagard/cdp-mcp/pkg/types"
)

// MarkerPrefix tags console.debug output produced by a logpoint when the
// reporting binding is missing from the current execution context.
const MarkerPrefix = "__cdp_mcp_logpoint__:"

// DefaultBinding is the name of the runtime binding reports are sent to.
const DefaultBinding = "__cdpMcpLogpoint"

// Options controls compilation.
type Options struct {
	Binding string
	Level   types.LogLevel
	// Condition guards the report; an empty condition always reports.
	Condition string
	// Location is copied into the payload, e.g. "src/app.ts:12".
	Location string
}

// Compile turns template into an expression suitable as a breakpoint
// condition. Each distinct placeholder expression is evaluated once inside
// its own try/catch; a failing expression renders as "undefined" and its
// error is reported alongside the other values. The expression always
// evaluates to false.
func Compile(template string, opts Options) (string, error) {
	segs, err := Parse(template)
	if err != nil {
		return "", fmt.Errorf("invalid logpoint template: %w", err)
	}
	if opts.Binding == "" {
		opts.Binding = DefaultBinding
	}
	if opts.Level == "" {
		opts.Level = types.LogLevelInfo
	}
	if !opts.Level.Valid() {
		return "", fmt.Errorf("invalid log level %q", opts.Level)
	}

	exprs := Expressions(segs)
	slot := make(map[string]int, len(exprs))

	var b strings.Builder
	b.WriteString("(() => {\n")
	if strings.TrimSpace(opts.Condition) != "" {
		fmt.Fprintf(&b, "  try { if (!(%s)) { return false; } } catch (__e) { return false; }\n", opts.Condition)
	}
	b.WriteString("  const __vals = {}, __errs = {}, __text = [];\n")
	b.WriteString("  const __safe = (v) => { if (v === undefined) { return null; } try { return JSON.parse(JSON.stringify(v)); } catch (__e) { return String(v); } };\n")
	b.WriteString("  const __fmt = (v) => { if (typeof v === 'string') { return v; } if (v === undefined) { return 'undefined'; } try { const s = JSON.stringify(v); return s === undefined ? String(v) : s; } catch (__e) { return String(v); } };\n")

	for i, expr := range exprs {
		slot[expr] = i
		key := jsString(expr)
		fmt.Fprintf(&b, "  try { const __r = (%s); __text[%d] = __fmt(__r); __vals[%s] = __safe(__r); }", expr, i, key)
		fmt.Fprintf(&b, " catch (__e) { __text[%d] = 'undefined'; __vals[%s] = null; __errs[%s] = String(__e && __e.message !== undefined ? __e.message : __e); }\n", i, key, key)
	}

	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.Expr {
			parts = append(parts, fmt.Sprintf("__text[%d]", slot[s.Text]))
		} else {
			parts = append(parts, jsString(s.Text))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, `""`)
	}

	fmt.Fprintf(&b, "  const __payload = { message: %s, values: __vals, errors: __errs, timestamp: Date.now(), level: %s, location: %s };\n",
		strings.Join(parts, " + "), jsString(string(opts.Level)), jsString(opts.Location))
	b.WriteString("  try {\n")
	b.WriteString("    const __json = JSON.stringify(__payload);\n")
	fmt.Fprintf(&b, "    if (typeof globalThis[%s] === 'function') { globalThis[%s](__json); }\n", jsString(opts.Binding), jsString(opts.Binding))
	fmt.Fprintf(&b, "    else if (typeof console !== 'undefined') { console.debug(%s + __json); }\n", jsString(MarkerPrefix))
	b.WriteString("  } catch (__e) {}\n")
	b.WriteString("  return false;\n")
	b.WriteString("})()")
	return b.String(), nil
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	out, _ := json.Marshal(s)
	return string(out)
}
