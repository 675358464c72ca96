package errors

// Kind identifies the layer an error originates from.
type Kind string

const (
	// KindConfiguration covers malformed documents, unresolved required
	// variables, and type-incompatible overrides. Never retried.
	KindConfiguration Kind = "CONFIGURATION"
	// KindResolution covers module-not-found, unresolved node dependencies,
	// and unresolvable output names. Raised before any execution side effect.
	KindResolution Kind = "RESOLUTION"
	// KindExecution covers a node computation failing during a graph run.
	KindExecution Kind = "EXECUTION"
	// KindBackend covers broker/store unavailability and other job-engine
	// failures. May be retryable depending on the backend.
	KindBackend Kind = "BACKEND"
	// KindCapability covers requests for features the selected backend or
	// runtime cannot provide, such as suspendable execution. Never silently
	// downgraded.
	KindCapability Kind = "CAPABILITY"
)

var retryableKinds = map[Kind]bool{
	KindBackend: true,
}

// IsRetryableKind reports whether errors of the kind are retryable by default.
func IsRetryableKind(k Kind) bool {
	return retryableKinds[k]
}
