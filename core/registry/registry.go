// Package registry implements the typed service container described in
// spec.md §4.11 (C11 Service Registry), grounded on
// _examples/original_source/dipeo/application/registry/keys.py's flat,
// package-level typed-key pattern. ServiceKey[T] is the one place this
// module keeps a teacher-style generic (dshills-langgraph-go's Node[S]),
// because Go has no other ergonomic way to carry a phantom type through a
// map lookup for a heterogeneous set of services.
package registry

import (
	"fmt"
	"sync"
)

// ServiceKey is a typed key. Entries are stored by name, so two keys with
// the same name but different type parameters share one entry, and
// resolving through the key whose type does not match the stored value
// panics. Resolve returns a value already asserted to type T so callers
// never see an `any`.
type ServiceKey[T any] struct {
	name string
}

// NewServiceKey constructs a ServiceKey with the given diagnostic name.
func NewServiceKey[T any](name string) ServiceKey[T] {
	return ServiceKey[T]{name: name}
}

// Name returns the key's diagnostic name, used in ServiceResolutionError
// messages and the "report unused" diagnostic.
func (k ServiceKey[T]) Name() string { return k.name }

type entry struct {
	value     any
	factory   func() any
	resolved  bool
	usedCount int
}

// Registry is a typed key -> service container. A child registry created
// via CreateChild inherits its parent's entries by reference and may
// override them locally; overrides never propagate back to the parent,
// which is what keeps isolated sub-diagram/batch-item contexts from
// cross-contaminating each other (spec.md §4.9).
type Registry struct {
	mu     sync.RWMutex
	parent *Registry
	byName map[string]*entry
}

// New constructs an empty root Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*entry)}
}

// Register binds key to a concrete instance.
func Register[T any](r *Registry, key ServiceKey[T], instance T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[key.name] = &entry{value: instance, resolved: true}
}

// RegisterFactory binds key to a factory invoked lazily, at most once, on
// first Resolve.
func RegisterFactory[T any](r *Registry, key ServiceKey[T], factory func() T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[key.name] = &entry{factory: func() any { return factory() }}
}

// Resolve returns the instance bound to key, materializing a factory
// lazily if necessary, and records the key as used for ReportUnused. It
// panics when key is not registered; ResolveOK is the non-panicking form.
// Use Resolve only when the caller is certain the key is registered (e.g.
// infrastructure wiring at startup).
func Resolve[T any](r *Registry, key ServiceKey[T]) T {
	v, ok := ResolveOK(r, key)
	if !ok {
		panic(fmt.Sprintf("registry: service key %q is not registered", key.name))
	}
	return v
}

// ResolveOK is the non-panicking form of Resolve.
func ResolveOK[T any](r *Registry, key ServiceKey[T]) (T, bool) {
	var zero T
	e := r.lookup(key.name)
	if e == nil {
		return zero, false
	}
	return e.value.(T), true
}

func (r *Registry) lookup(name string) *entry {
	r.mu.Lock()
	e, ok := r.byName[name]
	r.mu.Unlock()
	if ok {
		if e.factory != nil {
			r.mu.Lock()
			if !e.resolved {
				e.value = e.factory()
				e.resolved = true
			}
			r.mu.Unlock()
		}
		r.mu.Lock()
		e.usedCount++
		r.mu.Unlock()
		return e
	}
	if r.parent != nil {
		return r.parent.lookup(name)
	}
	return nil
}

// Has reports whether key resolves to something in this registry or one of
// its ancestors.
func Has[T any](r *Registry, key ServiceKey[T]) bool {
	return r.lookup(key.name) != nil
}

// CreateChild returns a new Registry that falls back to r on a lookup
// miss. Registering a key on the child shadows the parent's entry for
// that child only.
func (r *Registry) CreateChild() *Registry {
	return &Registry{parent: r, byName: make(map[string]*entry)}
}

// ReportUnused returns the names of keys registered directly on r (not its
// ancestors) that were never resolved. Useful as a startup diagnostic.
func (r *Registry) ReportUnused() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var unused []string
	for name, e := range r.byName {
		if e.usedCount == 0 {
			unused = append(unused, name)
		}
	}
	return unused
}
