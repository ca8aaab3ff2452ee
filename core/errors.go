package core

import (
	"errors"
	"fmt"
)

var (
	errNotAString         = errors.New("envelope body is not a string")
	errUnsupportedCoercion = errors.New("unsupported content-type coercion")
)

// CoercionError is returned by Envelope.CoerceTo when a conversion between
// content types is unsupported or fails.
type CoercionError struct {
	From, To ContentType
	Cause    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %s->%s: %v", e.From, e.To, e.Cause)
}

func (e *CoercionError) Unwrap() error { return e.Cause }

// CompilationError is produced by the diagram compiler when a diagram fails
// validation. It is fatal to the run and carries the full diagnostics list
// that produced it.
type CompilationError struct {
	Diagnostics []Diagnostic
}

func (e *CompilationError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "diagram compilation failed"
	}
	first := e.Diagnostics[0]
	return fmt.Sprintf("diagram compilation failed: [%s] %s", first.Phase, first.Message)
}

// NodeExecutionError wraps a handler failure. NodeID identifies the node
// that produced it; Cause is the underlying error returned by the handler.
type NodeExecutionError struct {
	NodeID NodeID
	Cause  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

// TimeoutError signals that a node or execution deadline expired.
type TimeoutError struct {
	Scope  string // "node" or "execution"
	NodeID NodeID // empty when Scope == "execution"
}

func (e *TimeoutError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s %s exceeded its timeout", e.Scope, e.NodeID)
	}
	return fmt.Sprintf("%s exceeded its timeout", e.Scope)
}

// CancellationError signals an external abort (user cancel, shutdown).
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "execution cancelled"
	}
	return "execution cancelled: " + e.Reason
}

// MaxIterationsReached signals that a loop-capable node exhausted its
// iteration budget while still expected to re-fire.
type MaxIterationsReached struct {
	NodeID        NodeID
	MaxIterations int
}

func (e *MaxIterationsReached) Error() string {
	return fmt.Sprintf("node %s reached max_iterations=%d", e.NodeID, e.MaxIterations)
}

// ServiceResolutionError wraps a missing required ServiceKey at handler
// invocation time. It is always surfaced to callers as a NodeExecutionError.
type ServiceResolutionError struct {
	Key string
}

func (e *ServiceResolutionError) Error() string {
	return fmt.Sprintf("service key %q is not registered", e.Key)
}

// TransportError marks an observer/subscriber failure. These never
// propagate back into the engine; they are logged and re-emitted as an
// execution_log event of level ERROR by the bus's panic/error recovery.
type TransportError struct {
	Handler string
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("observer %q failed: %v", e.Handler, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }
