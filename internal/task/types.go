package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TypeInfo is the static metadata of a task type.
type TypeInfo struct {
	// Name identifies the task type in requests and callback declarations.
	Name string

	// Parent is the task type this one descends from. Handlers declared for
	// the parent receive the generic callbacks of its descendants.
	Parent string

	// Traverse makes callback resolution scan the embedded ancestors of
	// handler types. Descendants inherit it.
	Traverse bool

	// New creates the executable logic. Abstract types leave it nil and
	// cannot be submitted.
	New func() Task
}

// TypeRegistry holds the known task types. It implements callback.Hierarchy.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]TypeInfo
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]TypeInfo)}
}

// Register adds a task type. Parents must be registered first.
func (r *TypeRegistry) Register(info TypeInfo) error {
	if info.Name == "" {
		return errors.New("task type name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[info.Name]; exists {
		return fmt.Errorf("task type %q already registered", info.Name)
	}
	if info.Parent != "" {
		if _, ok := r.types[info.Parent]; !ok {
			return fmt.Errorf("task type %q: parent %q is not registered", info.Name, info.Parent)
		}
	}
	r.types[info.Name] = info
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level setup.
func (r *TypeRegistry) MustRegister(info TypeInfo) {
	if err := r.Register(info); err != nil {
		panic(err)
	}
}

// Lookup returns the metadata for name.
func (r *TypeRegistry) Lookup(name string) (TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[name]
	return info, ok
}

// Runnable returns the metadata for a task type that can be submitted.
func (r *TypeRegistry) Runnable(name string) (TypeInfo, error) {
	info, ok := r.Lookup(name)
	if !ok {
		return TypeInfo{}, fmt.Errorf("%w: %q", ErrUnknownTaskType, name)
	}
	if info.New == nil {
		return TypeInfo{}, fmt.Errorf("%w: %q is abstract", ErrUnknownTaskType, name)
	}
	return info, nil
}

// Names returns the registered task types in sorted order.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Assignable reports whether taskType is target or one of its descendants.
func (r *TypeRegistry) Assignable(taskType, target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for t := taskType; t != ""; t = r.types[t].Parent {
		if t == target {
			return true
		}
	}
	return false
}

// Traverse reports whether taskType or any ancestor is marked Traverse.
func (r *TypeRegistry) Traverse(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for t := taskType; t != ""; t = r.types[t].Parent {
		if r.types[t].Traverse {
			return true
		}
	}
	return false
}
