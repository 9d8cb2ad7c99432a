package callback

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// On is the marker type for callback declarations. Handlers declare
// callbacks with blank fields of this type; the struct tag carries the
// declaration.
//
// Recognised tag keys:
//
//	kind   callback kind (start, success, failure, cancel, progress, named)
//	tasks  comma-separated task types the callback applies to
//	call   method name and ordered payload keys, e.g. "Done(path, bytes)"
//	name   callback name, required for and only allowed on the named kind
type On struct{}

var onType = reflect.TypeOf(On{})

// Hierarchy supplies the task-type metadata consulted during resolution.
type Hierarchy interface {
	// Assignable reports whether taskType is target or descends from it.
	Assignable(taskType, target string) bool

	// Traverse reports whether handler ancestors are scanned for taskType.
	Traverse(taskType string) bool
}

type flatHierarchy struct{}

func (flatHierarchy) Assignable(taskType, target string) bool { return taskType == target }
func (flatHierarchy) Traverse(string) bool                    { return false }

// declaration is one parsed marker field.
type declaration struct {
	kind   Kind
	tasks  []string
	name   string
	method string
	keys   []string
}

// introspect builds a table by scanning the marker fields of the handler's
// struct type. Embedded structs are the handler's ancestors and are only
// scanned when the task type traverses.
func introspect(handlerType reflect.Type, taskType string, h Hierarchy) (*Table, error) {
	table := newTable(handlerType, taskType)

	structType := handlerType
	for structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return table, nil
	}

	decls, err := collect(handlerType, structType, h.Traverse(taskType))
	if err != nil {
		return nil, err
	}

	for _, d := range decls {
		if !matches(d, taskType, h) {
			continue
		}
		spec, err := specFor(handlerType, d)
		if err != nil {
			return nil, err
		}
		table.add(spec)
	}
	return table, nil
}

// collect walks the struct depth-first: its own markers first, then each
// embedded ancestor in field order when traverse is set.
func collect(handlerType, structType reflect.Type, traverse bool) ([]declaration, error) {
	var decls []declaration
	var ancestors []reflect.Type

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if field.Type == onType {
			d, err := parseDeclaration(handlerType, field.Tag)
			if err != nil {
				return nil, err
			}
			decls = append(decls, d)
			continue
		}
		if !field.Anonymous {
			continue
		}
		embedded := field.Type
		if embedded.Kind() == reflect.Pointer {
			embedded = embedded.Elem()
		}
		if embedded.Kind() == reflect.Struct {
			ancestors = append(ancestors, embedded)
		}
	}

	if !traverse {
		return decls, nil
	}
	for _, ancestor := range ancestors {
		inherited, err := collect(handlerType, ancestor, true)
		if err != nil {
			return nil, err
		}
		decls = append(decls, inherited...)
	}
	return decls, nil
}

func parseDeclaration(handlerType reflect.Type, tag reflect.StructTag) (declaration, error) {
	invalid := func(method, format string, args ...any) (declaration, error) {
		return declaration{}, &ResolutionError{
			HandlerType: handlerType,
			Method:      method,
			Reason:      fmt.Sprintf(format, args...),
		}
	}

	call := strings.TrimSpace(tag.Get("call"))
	if call == "" {
		return invalid("", "callback declaration %q has no call", string(tag))
	}
	method, keys, err := parseCall(call)
	if err != nil {
		return invalid("", "%v", err)
	}

	kind, err := ParseKind(tag.Get("kind"))
	if err != nil {
		return invalid(method, "%v", err)
	}

	var tasks []string
	for _, t := range strings.Split(tag.Get("tasks"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return invalid(method, "callback declaration lists no task types")
	}

	name := strings.TrimSpace(tag.Get("name"))
	switch {
	case kind == Named && name == "":
		return invalid(method, "named callback requires a name")
	case kind != Named && name != "":
		return invalid(method, "only named callbacks may declare a name")
	}

	return declaration{kind: kind, tasks: tasks, name: name, method: method, keys: keys}, nil
}

// parseCall splits "Method(a, b)" into the method name and its keys. A bare
// method name declares no parameters.
func parseCall(call string) (string, []string, error) {
	open := strings.IndexByte(call, '(')
	if open < 0 {
		return call, nil, nil
	}
	if !strings.HasSuffix(call, ")") {
		return "", nil, fmt.Errorf("malformed call %q", call)
	}

	method := strings.TrimSpace(call[:open])
	if method == "" {
		return "", nil, fmt.Errorf("malformed call %q", call)
	}
	inner := strings.TrimSpace(call[open+1 : len(call)-1])
	if inner == "" {
		return method, nil, nil
	}

	var keys []string
	for _, k := range strings.Split(inner, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			return "", nil, fmt.Errorf("parameter without key in call %q", call)
		}
		keys = append(keys, k)
	}
	return method, keys, nil
}

func matches(d declaration, taskType string, h Hierarchy) bool {
	for _, declared := range d.tasks {
		if d.kind == Named {
			if declared == taskType {
				return true
			}
			continue
		}
		if h.Assignable(taskType, declared) {
			return true
		}
	}
	return false
}

func specFor(handlerType reflect.Type, d declaration) (Spec, error) {
	invalid := func(reason string) (Spec, error) {
		return Spec{}, &ResolutionError{HandlerType: handlerType, Method: d.method, Reason: reason}
	}

	if r, _ := utf8.DecodeRuneInString(d.method); !unicode.IsUpper(r) {
		return invalid("method is not exported")
	}
	m, ok := handlerType.MethodByName(d.method)
	if !ok {
		return invalid("no such method")
	}

	mt := m.Type
	if mt.NumOut() != 0 {
		return invalid("callback methods must not return values")
	}
	if mt.IsVariadic() {
		return invalid("callback methods must not be variadic")
	}

	// The receiver is the first input of a method value taken from the type.
	paramCount := mt.NumIn() - 1
	if paramCount != len(d.keys) {
		return invalid(fmt.Sprintf("method takes %d parameters but declares %d keys; every parameter needs a key",
			paramCount, len(d.keys)))
	}

	params := make([]reflect.Type, paramCount)
	for i := range params {
		params[i] = mt.In(i + 1)
	}

	fn := m.Func
	return Spec{
		Kind:   d.kind,
		Name:   d.name,
		Method: d.method,
		Keys:   d.keys,
		Params: params,
		Invoke: func(handler any, args []reflect.Value) {
			in := make([]reflect.Value, 0, len(args)+1)
			in = append(in, reflect.ValueOf(handler))
			fn.Call(append(in, args...))
		},
	}, nil
}
