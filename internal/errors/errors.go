// Package errors provides structured error types for the CDP-MCP server.
// These errors include helpful hints and suggestions that guide the LLM
// to correct course when something goes wrong.
//
// Every error carries a Kind from a small taxonomy (connection, placement,
// source map, command, coordinate, parameter, permission) so callers can
// decide whether a failure is fatal, recoverable, or the caller's fault.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind is the coarse category of a failure.
type Kind string

const (
	KindConnection Kind = "ConnectionError"
	KindPlacement  Kind = "PlacementError"
	KindSourceMap  Kind = "SourceMapError"
	KindCommand    Kind = "CommandError"
	KindCoordinate Kind = "CoordinateError"
	KindParameter  Kind = "ParameterError"
	KindPermission Kind = "PermissionError"
	KindInternal   Kind = "InternalError"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Connection errors
	CodeNoTargets          ErrorCode = "NO_TARGETS"
	CodeTargetNotFound     ErrorCode = "TARGET_NOT_FOUND"
	CodeConnectFailed      ErrorCode = "CONNECT_FAILED"
	CodeReconnectExhausted ErrorCode = "RECONNECT_EXHAUSTED"
	CodeNotConnected       ErrorCode = "NOT_CONNECTED"
	CodeUnknownDomain      ErrorCode = "UNKNOWN_DOMAIN"

	// Command errors
	CodeCommandRejected   ErrorCode = "COMMAND_REJECTED"
	CodeCommandTimeout    ErrorCode = "COMMAND_TIMEOUT"
	CodeTransportClosed   ErrorCode = "TRANSPORT_CLOSED"
	CodeUnsupportedMethod ErrorCode = "UNSUPPORTED_METHOD"

	// Placement and source map errors
	CodeInvalidCoordinate  ErrorCode = "INVALID_COORDINATE"
	CodeSourceMapNotFound  ErrorCode = "SOURCE_MAP_NOT_FOUND"
	CodePlacementFailed    ErrorCode = "PLACEMENT_FAILED"
	CodeScriptNotFound     ErrorCode = "SCRIPT_NOT_FOUND"
	CodeBreakpointNotFound ErrorCode = "BREAKPOINT_NOT_FOUND"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidState     ErrorCode = "INVALID_STATE"

	// Configuration errors
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Runtime errors
	CodeNotPaused        ErrorCode = "NOT_PAUSED"
	CodeEvaluationFailed ErrorCode = "EVALUATION_FAILED"
	CodeStepFailed       ErrorCode = "STEP_FAILED"
	CodeLaunchFailed     ErrorCode = "LAUNCH_FAILED"
)

// DebugError is a structured error type that includes helpful information
// for the LLM to understand what went wrong and how to fix it.
type DebugError struct {
	// Kind is the taxonomy bucket the error belongs to
	Kind Kind `json:"kind"`

	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human/LLM-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// IsKind reports whether any DebugError in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var de *DebugError
	for err != nil {
		if !stderrors.As(err, &de) {
			return false
		}
		if de.Kind == kind {
			return true
		}
		err = de.Cause
	}
	return false
}

// IsCode reports whether any DebugError in err's chain has the given code.
func IsCode(err error, code ErrorCode) bool {
	var de *DebugError
	for err != nil {
		if !stderrors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Cause
	}
	return false
}

// --- Connection Errors ---

// NoTargets creates an error when the inspector endpoint lists no debuggable targets
func NoTargets(endpoint string) *DebugError {
	return &DebugError{
		Kind:    KindConnection,
		Code:    CodeNoTargets,
		Message: fmt.Sprintf("no debuggable targets at %s", endpoint),
		Hint:    "Start the program with --inspect or --inspect-brk and check that host and port match the inspector address.",
		Details: map[string]interface{}{
			"endpoint": endpoint,
		},
	}
}

// TargetNotFound creates an error when the target selector matched nothing
func TargetNotFound(selector string, available []string) *DebugError {
	hint := "Use debug_list_targets to see the available targets."
	if len(available) > 0 {
		hint = fmt.Sprintf("Available targets: %s", strings.Join(available, ", "))
	}
	return &DebugError{
		Kind:    KindConnection,
		Code:    CodeTargetNotFound,
		Message: fmt.Sprintf("no target matches %s", selector),
		Hint:    hint,
		Details: map[string]interface{}{
			"selector":  selector,
			"available": available,
		},
	}
}

// ConnectFailed creates an error when the websocket to a target cannot be opened
func ConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Kind:    KindConnection,
		Code:    CodeConnectFailed,
		Message: fmt.Sprintf("failed to connect to inspector at %s: %v", address, err),
		Hint:    "The target may have exited or another debugger may already be attached. Check the address and try again.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// ReconnectExhausted creates an error after the reconnect budget is used up
func ReconnectExhausted(attempts int, err error) *DebugError {
	return &DebugError{
		Kind:    KindConnection,
		Code:    CodeReconnectExhausted,
		Message: fmt.Sprintf("lost connection to inspector and %d reconnect attempts failed", attempts),
		Hint:    "Restart the target process if needed, then use debug_connect to open a new session.",
		Cause:   err,
		Details: map[string]interface{}{
			"attempts": attempts,
		},
	}
}

// NotConnected creates an error for operations that need a live session
func NotConnected(state string) *DebugError {
	return &DebugError{
		Kind:    KindConnection,
		Code:    CodeNotConnected,
		Message: fmt.Sprintf("no active inspector session (state: %s)", state),
		Hint:    "Use debug_connect to attach to a running target first.",
		Details: map[string]interface{}{
			"state": state,
		},
	}
}

// UnknownDomain creates an error for a capability domain outside the supported set
func UnknownDomain(name string, supported []string) *DebugError {
	return &DebugError{
		Kind:    KindConnection,
		Code:    CodeUnknownDomain,
		Message: fmt.Sprintf("unknown inspector domain: %s", name),
		Hint:    fmt.Sprintf("Supported domains are: %s.", strings.Join(supported, ", ")),
		Details: map[string]interface{}{
			"domain":    name,
			"supported": supported,
		},
	}
}

// --- Command Errors ---

// CommandRejected creates an error when the remote side rejected a command
func CommandRejected(method string, err error) *DebugError {
	return &DebugError{
		Kind:    KindCommand,
		Code:    CodeCommandRejected,
		Message: fmt.Sprintf("%s was rejected by the target: %v", method, err),
		Hint:    "The target refused the command. Check the parameters, or the current pause state for stepping and frame evaluation.",
		Cause:   err,
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// CommandTimeout creates an error when a command round trip exceeded its budget
func CommandTimeout(method string, err error) *DebugError {
	return &DebugError{
		Kind:    KindCommand,
		Code:    CodeCommandTimeout,
		Message: fmt.Sprintf("%s timed out", method),
		Hint:    "The target did not answer in time. It may be busy or blocked. Try debug_pause or retry the operation.",
		Cause:   err,
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// TransportClosed creates an error when the connection dropped mid-call
func TransportClosed(method string, err error) *DebugError {
	return &DebugError{
		Kind:    KindCommand,
		Code:    CodeTransportClosed,
		Message: fmt.Sprintf("connection lost while sending %s: %v", method, err),
		Hint:    "The session will try to reconnect automatically. Use debug_status to watch the connection state.",
		Cause:   err,
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// UnsupportedMethod creates an error for a method outside the dispatch table
func UnsupportedMethod(method string) *DebugError {
	return &DebugError{
		Kind:    KindCommand,
		Code:    CodeUnsupportedMethod,
		Message: fmt.Sprintf("method %s is not supported by this session", method),
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// --- Placement and Source Map Errors ---

// InvalidCoordinate creates an error for a line or column below 1
func InvalidCoordinate(name string, value int) *DebugError {
	return &DebugError{
		Kind:    KindCoordinate,
		Code:    CodeInvalidCoordinate,
		Message: fmt.Sprintf("%s must be 1-based, got %d", name, value),
		Hint:    "Lines and columns are 1-based at this interface. The first line of a file is line 1 and the first column is column 1.",
		Details: map[string]interface{}{
			"coordinate": name,
			"value":      value,
		},
	}
}

// SourceMapNotFound creates an error when no mapping covers the requested source
func SourceMapNotFound(source string, mapFiles []string, suggestions []string) *DebugError {
	hint := "Pass searchPaths pointing at the build output that contains the .map files."
	if len(suggestions) > 0 {
		hint = fmt.Sprintf("Did you mean: %s?", strings.Join(suggestions, ", "))
	}
	return &DebugError{
		Kind:    KindSourceMap,
		Code:    CodeSourceMapNotFound,
		Message: fmt.Sprintf("no source map maps %s", source),
		Hint:    hint,
		Details: map[string]interface{}{
			"source":      source,
			"mapFiles":    mapFiles,
			"suggestions": suggestions,
		},
	}
}

// PlacementFailed creates an error when every placement strategy failed
func PlacementFailed(path string, line int, err error) *DebugError {
	return &DebugError{
		Kind:    KindPlacement,
		Code:    CodePlacementFailed,
		Message: fmt.Sprintf("could not place breakpoint at %s:%d", path, line),
		Hint:    "The breakpoint is kept as unverified. Ensure the script is loaded and the line contains executable code.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
			"line": line,
		},
	}
}

// ScriptNotFound creates an error when no loaded script matches a path
func ScriptNotFound(path string) *DebugError {
	return &DebugError{
		Kind:    KindPlacement,
		Code:    CodeScriptNotFound,
		Message: fmt.Sprintf("no loaded script matches %s", path),
		Hint:    "The script may not have been loaded yet. Start the target with --inspect-brk so breakpoints can be set before code runs.",
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// BreakpointNotFound creates an error for an unknown breakpoint id
func BreakpointNotFound(id string) *DebugError {
	return &DebugError{
		Kind:    KindParameter,
		Code:    CodeBreakpointNotFound,
		Message: fmt.Sprintf("breakpoint '%s' not found", id),
		Hint:    "Use debug_list_breakpoints to see tracked breakpoints.",
		Details: map[string]interface{}{
			"id": id,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Kind:    KindParameter,
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Kind:    KindParameter,
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Kind:    KindParameter,
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for permission denied
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "launch":
		hint = "The server is configured to disallow launching processes. Ask the administrator to enable 'allow_launch' in the configuration."
	case "evaluate":
		hint = "Expression evaluation is disabled in the current server mode. This may be intentional for security reasons."
	case "control":
		hint = "Execution control and breakpoints need full mode. The server is running in read-only mode."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Kind:    KindPermission,
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// InvalidState creates an error when a tool is called in the wrong session state
func InvalidState(tool, required, current string) *DebugError {
	return &DebugError{
		Kind:    KindPermission,
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("%s requires a %s session, current state is %s", tool, required, current),
		Hint:    "Use debug_status to check the session. Connect first, or pause execution for frame inspection.",
		Details: map[string]interface{}{
			"tool":     tool,
			"required": required,
			"current":  current,
		},
	}
}

// --- Configuration Errors ---

// ConfigNotFound creates an error for missing launch.json configurations
func ConfigNotFound(configName string, availableConfigs []string) *DebugError {
	var hint string
	if len(availableConfigs) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(availableConfigs, ", "))
	} else {
		hint = "No node attach configurations found in launch.json."
	}

	return &DebugError{
		Kind:    KindParameter,
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("configuration '%s' not found in launch.json", configName),
		Hint:    hint,
		Details: map[string]interface{}{
			"configName":       configName,
			"availableConfigs": availableConfigs,
		},
	}
}

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(configName, reason string) *DebugError {
	return &DebugError{
		Kind:    KindParameter,
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", configName, reason),
		Hint:    "Check the launch.json file for syntax errors and ensure all required fields are present.",
		Details: map[string]interface{}{
			"configName": configName,
			"reason":     reason,
		},
	}
}

// --- Runtime Errors ---

// NotPaused creates an error for frame operations while the target runs
func NotPaused(operation string) *DebugError {
	return &DebugError{
		Kind:    KindCommand,
		Code:    CodeNotPaused,
		Message: fmt.Sprintf("%s needs the target to be paused", operation),
		Hint:    "Use debug_pause or wait for a breakpoint hit, then retry.",
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// EvaluationFailed creates an error for expression evaluation failures
func EvaluationFailed(expression string, err error) *DebugError {
	return &DebugError{
		Kind:    KindCommand,
		Code:    CodeEvaluationFailed,
		Message: fmt.Sprintf("failed to evaluate expression '%s': %v", expression, err),
		Hint:    "Check that the expression is valid JavaScript and that referenced variables are in scope.",
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// StepFailed creates an error for step failures
func StepFailed(stepType string, err error) *DebugError {
	var hint string
	switch stepType {
	case "over":
		hint = "Step over failed. The target may have resumed or terminated. Use debug_status to check the current state."
	case "into":
		hint = "Step into failed. The target may have resumed or terminated."
	case "out":
		hint = "Step out failed. The target may have resumed or terminated."
	default:
		hint = "The step operation failed. Use debug_status to check the current program state."
	}

	return &DebugError{
		Kind:    KindCommand,
		Code:    CodeStepFailed,
		Message: fmt.Sprintf("step %s failed: %v", stepType, err),
		Hint:    hint,
		Cause:   err,
		Details: map[string]interface{}{
			"stepType": stepType,
		},
	}
}

// LaunchFailed creates an error when spawning the target process fails
func LaunchFailed(program string, err error) *DebugError {
	return &DebugError{
		Kind:    KindConnection,
		Code:    CodeLaunchFailed,
		Message: fmt.Sprintf("failed to launch %s: %v", program, err),
		Hint:    "Check that node is installed and the program path exists.",
		Cause:   err,
		Details: map[string]interface{}{
			"program": program,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(kind Kind, code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Kind:    KindInternal,
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
