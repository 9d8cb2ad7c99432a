package callback

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	taskType    string
	handlerType reflect.Type
}

// Resolver resolves and caches dispatch tables per (task type, handler type).
// Generated tables win over introspection; a missing generated table is
// never an error. Concurrent misses for the same pair build the table once.
type Resolver struct {
	hierarchy Hierarchy
	logger    *slog.Logger

	mu     sync.RWMutex
	tables map[cacheKey]*Table
	group  singleflight.Group
}

// NewResolver creates a Resolver. A nil hierarchy only matches task types
// exactly and never traverses handler ancestors.
func NewResolver(h Hierarchy, logger *slog.Logger) *Resolver {
	if h == nil {
		h = flatHierarchy{}
	}
	return &Resolver{
		hierarchy: h,
		logger:    logger.With("component", "callback_resolver"),
		tables:    make(map[cacheKey]*Table),
	}
}

// Resolve returns the table for handlerType under taskType. Resolution
// errors are returned unchanged and are not cached.
func (r *Resolver) Resolve(handlerType reflect.Type, taskType string) (*Table, error) {
	key := cacheKey{taskType: taskType, handlerType: handlerType}

	r.mu.RLock()
	table, ok := r.tables[key]
	r.mu.RUnlock()
	if ok {
		return table, nil
	}

	v, err, _ := r.group.Do(flightKey(key), func() (any, error) {
		r.mu.RLock()
		cached, ok := r.tables[key]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		built, err := r.build(handlerType, taskType)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.tables[key] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	table = v.(*Table)
	if table.handlerType != handlerType {
		// Two distinct types printed the same flight key; resolve directly.
		return r.resolveUncached(key)
	}
	return table, nil
}

func (r *Resolver) resolveUncached(key cacheKey) (*Table, error) {
	built, err := r.build(key.handlerType, key.taskType)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.tables[key]; ok {
		return cached, nil
	}
	r.tables[key] = built
	return built, nil
}

func (r *Resolver) build(handlerType reflect.Type, taskType string) (*Table, error) {
	if table := lookupGenerated(handlerType, taskType); table != nil {
		r.logger.Debug("using generated callback table",
			"handler_type", handlerType.String(),
			"task_type", taskType,
			"specs", table.Len())
		return table, nil
	}

	table, err := introspect(handlerType, taskType, r.hierarchy)
	if err != nil {
		r.logger.Error("failed to resolve callback table",
			"handler_type", handlerType.String(),
			"task_type", taskType,
			"error", err)
		return nil, err
	}

	r.logger.Debug("resolved callback table by introspection",
		"handler_type", handlerType.String(),
		"task_type", taskType,
		"specs", table.Len())
	return table, nil
}

// Len returns the number of cached tables.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// Reset drops every cached table.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[cacheKey]*Table)
}

// flightKey is the singleflight key for a cache entry. Locally scoped types
// may print alike, so Resolve re-checks the handler type of a shared result.
func flightKey(k cacheKey) string {
	t := k.handlerType
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return fmt.Sprintf("%s|%s|%s", k.taskType, t.PkgPath(), k.handlerType)
}
