package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the unified error type for the pipeline core.
type Error struct {
	// Kind is the machine-readable layer the error originates from.
	Kind Kind `json:"kind"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context: failing identifiers, source
	// layers, attempted variants.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with default retryable detection for the kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: IsRetryableKind(kind),
	}
}

// GetKind extracts the Kind from an error chain.
// Returns an empty Kind when no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// --- Configuration errors ---

// Configuration creates an error for a malformed or inconsistent
// configuration value. Source names the layer that produced the value
// (document path, environment, runtime override).
func Configuration(key, source, reason string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf("invalid configuration for %q: %s", key, reason),
		Details: map[string]any{"key": key, "source": source},
	}
}

// UnresolvedVariable creates an error for a required interpolation variable
// with no value.
func UnresolvedVariable(variable, source, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("required variable %q is not set", variable)
	}
	return &Error{
		Kind:    KindConfiguration,
		Message: message,
		Details: map[string]any{"variable": variable, "source": source},
	}
}

// MalformedDocument creates an error for a document that fails to parse.
func MalformedDocument(path string, cause error) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf("malformed configuration document %s", path),
		Details: map[string]any{"path": path},
		Cause:   cause,
	}
}

// --- Resolution errors ---

// ModuleNotFound creates an error for a module name that resolved under
// none of its attempted variants.
func ModuleNotFound(name string, attempted []string) *Error {
	return &Error{
		Kind:    KindResolution,
		Message: fmt.Sprintf("module %q not found (tried %v)", name, attempted),
		Details: map[string]any{"module": name, "attempted": attempted},
	}
}

// UnresolvedDependency creates an error for a node depending on a name
// absent from the composed graph.
func UnresolvedDependency(node, dependency string) *Error {
	return &Error{
		Kind:    KindResolution,
		Message: fmt.Sprintf("node %q depends on %q which is not in the composed graph", node, dependency),
		Details: map[string]any{"node": node, "dependency": dependency},
	}
}

// UnknownOutput creates an error for a requested output variable with no
// producing node.
func UnknownOutput(name string) *Error {
	return &Error{
		Kind:    KindResolution,
		Message: fmt.Sprintf("requested output %q does not resolve to any node", name),
		Details: map[string]any{"output": name},
	}
}

// --- Execution errors ---

// NodeFailed creates an error for a node whose computation raised.
// Partial results of completed nodes travel in the details.
func NodeFailed(node string, partial map[string]any, cause error) *Error {
	e := &Error{
		Kind:    KindExecution,
		Message: fmt.Sprintf("node %q failed", node),
		Details: map[string]any{"node": node},
		Cause:   cause,
	}
	if len(partial) > 0 {
		e.Details["partial_results"] = partial
	}
	return e
}

// Cycle creates an error for a graph that is not acyclic.
func Cycle(detail string) *Error {
	return &Error{
		Kind:    KindResolution,
		Message: fmt.Sprintf("cycle detected in composed graph: %s", detail),
	}
}

// --- Backend errors ---

// BackendUnavailable creates an error for an unreachable broker or store.
func BackendUnavailable(backend string, cause error) *Error {
	return &Error{
		Kind:      KindBackend,
		Message:   fmt.Sprintf("backend %q is unavailable", backend),
		Retryable: true,
		Details:   map[string]any{"backend": backend},
		Cause:     cause,
	}
}

// JobNotFound creates an error for an unknown job handle.
func JobNotFound(id string) *Error {
	return &Error{
		Kind:    KindBackend,
		Message: fmt.Sprintf("job %q not found", id),
		Details: map[string]any{"job_id": id},
	}
}

// InvalidTransition creates an error for a job state transition the
// backend cannot honor.
func InvalidTransition(id, from, op string) *Error {
	return &Error{
		Kind:    KindBackend,
		Message: fmt.Sprintf("cannot %s job %q in state %s", op, id, from),
		Details: map[string]any{"job_id": id, "state": from, "operation": op},
	}
}

// --- Capability errors ---

// Unsupported creates an error for a feature the selected backend or
// runtime cannot provide.
func Unsupported(feature, target string) *Error {
	return &Error{
		Kind:    KindCapability,
		Message: fmt.Sprintf("%s is not supported by %s", feature, target),
		Details: map[string]any{"feature": feature, "target": target},
	}
}
