package callback

import (
	"errors"
	"fmt"
	"reflect"
)

// Thunk invokes one resolved callback method on a handler with already
// bound arguments.
type Thunk func(handler any, args []reflect.Value)

// Spec is one resolved callback method.
type Spec struct {
	Kind   Kind
	Name   string
	Method string
	Keys   []string
	Params []reflect.Type
	Invoke Thunk
}

// Table maps callback kinds to the ordered method specs a handler type
// declares for one task type.
type Table struct {
	handlerType reflect.Type
	taskType    string
	generated   bool
	specs       map[Kind][]Spec
}

func newTable(handlerType reflect.Type, taskType string) *Table {
	return &Table{
		handlerType: handlerType,
		taskType:    taskType,
		specs:       make(map[Kind][]Spec),
	}
}

// HandlerType returns the handler type the table was resolved for.
func (t *Table) HandlerType() reflect.Type { return t.handlerType }

// TaskType returns the task type the table was resolved for.
func (t *Table) TaskType() string { return t.taskType }

// Generated reports whether the table came from a registered generated table
// rather than introspection.
func (t *Table) Generated() bool { return t.generated }

// Specs returns the specs registered for kind in declaration order.
func (t *Table) Specs(kind Kind) []Spec {
	return t.specs[kind]
}

// Len returns the total number of specs in the table.
func (t *Table) Len() int {
	n := 0
	for _, specs := range t.specs {
		n += len(specs)
	}
	return n
}

func (t *Table) add(s Spec) {
	t.specs[s.Kind] = append(t.specs[s.Kind], s)
}

// Apply invokes every spec registered for kind on handler, binding
// parameters from payload. Named specs only run when their name matches the
// payload's callback name. A failing spec does not stop the remaining ones;
// all failures are joined into the returned error.
func (t *Table) Apply(handler any, kind Kind, payload Payload) error {
	specs := t.specs[kind]
	if len(specs) == 0 {
		return nil
	}

	name := payload.Name()
	var errs []error
	for i := range specs {
		s := &specs[i]
		if s.Name != "" && s.Name != name {
			continue
		}

		method := t.methodName(s.Method)
		args, err := bind(s, method, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := invoke(s, method, handler, args); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Table) methodName(method string) string {
	return fmt.Sprintf("%s.%s", t.handlerType, method)
}

func invoke(s *Spec, method string, handler any, args []reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InvocationError{Method: method, Value: r}
		}
	}()
	s.Invoke(handler, args)
	return nil
}

// bind reads each parameter key from payload. Missing or nil values become
// the zero value of the parameter type.
func bind(s *Spec, method string, payload Payload) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(s.Params))
	for i, param := range s.Params {
		key := s.Keys[i]
		raw, ok := payload[key]
		if !ok || raw == nil {
			args[i] = reflect.Zero(param)
			continue
		}

		v := reflect.ValueOf(raw)
		converted, ok := coerce(v, param)
		if !ok {
			return nil, &ArgumentError{Key: key, Method: method, Expected: param, Actual: v.Type()}
		}
		args[i] = converted
	}
	return args, nil
}

// Numeric ranks for widening. A value may move to a kind of equal or higher
// rank within the signed/float ladder; unsigned values may widen among
// themselves, into strictly larger signed kinds, or into floats.
var signedRank = map[reflect.Kind]int{
	reflect.Int8:    1,
	reflect.Int16:   2,
	reflect.Int32:   3,
	reflect.Int:     4,
	reflect.Int64:   5,
	reflect.Float32: 6,
	reflect.Float64: 7,
}

var unsignedRank = map[reflect.Kind]int{
	reflect.Uint8:  1,
	reflect.Uint16: 2,
	reflect.Uint32: 3,
	reflect.Uint:   4,
	reflect.Uint64: 5,
}

func coerce(v reflect.Value, to reflect.Type) (reflect.Value, bool) {
	from := v.Type()
	if from.AssignableTo(to) {
		if to.Kind() == reflect.Interface {
			out := reflect.New(to).Elem()
			out.Set(v)
			return out, true
		}
		return v.Convert(to), true
	}
	if widens(from.Kind(), to.Kind()) {
		return v.Convert(to), true
	}
	return reflect.Value{}, false
}

func widens(from, to reflect.Kind) bool {
	toSigned, toIsSigned := signedRank[to]
	if fromSigned, ok := signedRank[from]; ok {
		return toIsSigned && fromSigned <= toSigned
	}

	fromUnsigned, ok := unsignedRank[from]
	if !ok {
		return false
	}
	if toUnsigned, ok := unsignedRank[to]; ok {
		return fromUnsigned <= toUnsigned
	}
	if !toIsSigned {
		return false
	}
	if to == reflect.Float32 || to == reflect.Float64 {
		return true
	}
	return toSigned > fromUnsigned
}
