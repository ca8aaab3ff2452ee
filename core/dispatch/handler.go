package dispatch

import (
	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/registry"
)

// ResolveRequired resolves key from services, wrapping a miss as a
// NodeExecutionError the same way
// _examples/original_source/dipeo/application/execution/handlers/utils/service_helpers.py's
// resolve_required_service raises KeyError. Handlers call this once per
// dispatch for every service they cannot proceed without.
func ResolveRequired[T any](services *registry.Registry, key registry.ServiceKey[T], nodeID core.NodeID) (T, error) {
	v, ok := registry.ResolveOK(services, key)
	if !ok {
		var zero T
		return zero, &core.NodeExecutionError{NodeID: nodeID, Cause: &core.ServiceResolutionError{Key: key.Name()}}
	}
	return v, nil
}

// ResolveOptional resolves key from services, returning fallback on a miss
// instead of an error, mirroring resolve_optional_service.
func ResolveOptional[T any](services *registry.Registry, key registry.ServiceKey[T], fallback T) T {
	v, ok := registry.ResolveOK(services, key)
	if !ok {
		return fallback
	}
	return v
}

// HasService reports whether key resolves to anything, mirroring
// has_service.
func HasService[T any](services *registry.Registry, key registry.ServiceKey[T]) bool {
	return registry.Has(services, key)
}
