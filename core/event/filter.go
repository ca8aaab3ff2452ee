package event

// Filter is a pure predicate over an Event. Subscriptions with a non-nil
// Filter only see events for which Filter returns true.
type Filter func(Event) bool

// SubDiagramFilter scopes a subscription to a single nested execution.
// When propagateToSub is true, every event the child emits passes through
// (used by the child's own observers, e.g. its metrics observer). When
// false, only the child's terminal execution-level events pass through,
// which is how the parent run's observers watch a nested run complete
// without being flooded by its per-node events (spec.md §4.3).
func SubDiagramFilter(parentExecutionID string, propagateToSub bool, scopeToExecution string) Filter {
	return func(ev Event) bool {
		if ev.Scope.ExecutionID != scopeToExecution {
			return false
		}
		if propagateToSub {
			return true
		}
		switch ev.Type {
		case ExecutionCompleted, ExecutionError:
			return true
		default:
			return false
		}
	}
}

// And combines filters with logical AND; a nil filter in the list is
// treated as "always true".
func And(filters ...Filter) Filter {
	return func(ev Event) bool {
		for _, f := range filters {
			if f != nil && !f(ev) {
				return false
			}
		}
		return true
	}
}
