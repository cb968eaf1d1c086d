package inspector

import (
	"sort"

	"github.com/go-rod/rod/lib/proto"

	"github.com/ctagard/cdp-mcp/internal/errors"
)

// supportedMethods is the closed set of remote methods a Session will send.
// Entries are derived from the typed proto requests so a renamed or removed
// method fails to compile instead of failing at runtime.
var supportedMethods = methodTable(
	proto.DebuggerEnable{},
	proto.DebuggerDisable{},
	proto.DebuggerGetPossibleBreakpoints{},
	proto.DebuggerSetBreakpoint{},
	proto.DebuggerSetBreakpointByURL{},
	proto.DebuggerRemoveBreakpoint{},
	proto.DebuggerSetBreakpointsActive{},
	proto.DebuggerSetPauseOnExceptions{},
	proto.DebuggerResume{},
	proto.DebuggerPause{},
	proto.DebuggerStepOver{},
	proto.DebuggerStepInto{},
	proto.DebuggerStepOut{},
	proto.DebuggerEvaluateOnCallFrame{},
	proto.RuntimeEnable{},
	proto.RuntimeEvaluate{},
	proto.RuntimeGetProperties{},
	proto.RuntimeAddBinding{},
	proto.RuntimeRunIfWaitingForDebugger{},
	proto.ConsoleEnable{},
	proto.ProfilerEnable{},
	proto.HeapProfilerEnable{},
)

// domainEnablers maps a capability domain to the request that enables it.
var domainEnablers = map[string]proto.Request{
	"Runtime":      proto.RuntimeEnable{},
	"Debugger":     proto.DebuggerEnable{},
	"Console":      proto.ConsoleEnable{},
	"Profiler":     proto.ProfilerEnable{},
	"HeapProfiler": proto.HeapProfilerEnable{},
}

func methodTable(reqs ...proto.Request) map[string]bool {
	table := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		table[r.ProtoReq()] = true
	}
	return table
}

// Supported reports whether method is in the dispatch table.
func Supported(method string) bool {
	return supportedMethods[method]
}

// Domains returns the names accepted by EnableDomains, sorted.
func Domains() []string {
	names := make([]string, 0, len(domainEnablers))
	for name := range domainEnablers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDomains checks every name against the domain table.
func ValidateDomains(names []string) error {
	for _, name := range names {
		if _, ok := domainEnablers[name]; !ok {
			return errors.UnknownDomain(name, Domains())
		}
	}
	return nil
}
