package callback

import (
	"reflect"
	"sync"
)

// generated holds the table builders registered by generated code, keyed by
// TableName.
var generated = struct {
	sync.RWMutex
	builders map[string]func() *Table
}{builders: make(map[string]func() *Table)}

// TableName returns the deterministic name a generated table for the
// (handler type, task type) pair is registered under. Pointer handler types
// share the name of their element type. Unnamed types have no name.
func TableName(handlerType reflect.Type, taskType string) string {
	t := handlerType
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return ""
	}
	return t.PkgPath() + "." + t.Name() + "$$" + taskType
}

// RegisterGenerated makes a generated table available to every Resolver.
// Generated code calls it from init. Registering the same name twice
// replaces the earlier builder.
func RegisterGenerated(name string, build func() *Table) {
	generated.Lock()
	defer generated.Unlock()
	generated.builders[name] = build
}

// UnregisterGenerated removes a generated table. It exists for tests.
func UnregisterGenerated(name string) {
	generated.Lock()
	defer generated.Unlock()
	delete(generated.builders, name)
}

func lookupGenerated(handlerType reflect.Type, taskType string) *Table {
	name := TableName(handlerType, taskType)
	if name == "" {
		return nil
	}

	generated.RLock()
	build, ok := generated.builders[name]
	generated.RUnlock()
	if !ok {
		return nil
	}

	table := build()
	if table == nil || table.handlerType != handlerType {
		return nil
	}
	table.generated = true
	return table
}

// TableBuilder assembles a generated table.
type TableBuilder struct {
	table *Table
}

// NewTableBuilder starts a table for the given handler and task type.
func NewTableBuilder(handlerType reflect.Type, taskType string) *TableBuilder {
	return &TableBuilder{table: newTable(handlerType, taskType)}
}

// Add appends a spec. Params must line up with keys.
func (b *TableBuilder) Add(kind Kind, name, method string, keys []string, params []reflect.Type, invoke Thunk) *TableBuilder {
	b.table.add(Spec{
		Kind:   kind,
		Name:   name,
		Method: method,
		Keys:   keys,
		Params: params,
		Invoke: invoke,
	})
	return b
}

// Build returns the assembled table.
func (b *TableBuilder) Build() *Table {
	return b.table
}
