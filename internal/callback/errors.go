package callback

import (
	"errors"
	"fmt"
	"reflect"
)

// Common callback errors
var (
	// ErrInvalidHandler is wrapped by every resolution error. A handler whose
	// declarations cannot be resolved is a configuration mistake, not a
	// runtime condition.
	ErrInvalidHandler = errors.New("invalid callback handler")

	// ErrArgumentType is wrapped by argument binding errors raised at dispatch.
	ErrArgumentType = errors.New("callback argument type mismatch")

	// ErrInvocation is wrapped by errors recovered from a panicking callback method.
	ErrInvocation = errors.New("callback invocation failed")

	// ErrRouterDone is returned when handlers are appended to a router that
	// already delivered its terminal event.
	ErrRouterDone = errors.New("callback router already delivered a terminal event")
)

// ResolutionError describes a handler declaration that cannot be turned
// into a dispatch table.
type ResolutionError struct {
	HandlerType reflect.Type
	Method      string
	Reason      string
}

// Error implements the error interface for ResolutionError.
func (e *ResolutionError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%v: %s: %s", ErrInvalidHandler, e.HandlerType, e.Reason)
	}
	return fmt.Sprintf("%v: %s.%s: %s", ErrInvalidHandler, e.HandlerType, e.Method, e.Reason)
}

// Unwrap returns ErrInvalidHandler so callers can use errors.Is.
func (e *ResolutionError) Unwrap() error {
	return ErrInvalidHandler
}

// ArgumentError reports a payload value that cannot be passed to a callback
// parameter, even after numeric widening.
type ArgumentError struct {
	Key      string
	Method   string
	Expected reflect.Type
	Actual   reflect.Type
}

// Error implements the error interface for ArgumentError.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%v: parameter %q of %s expects %s, got %s",
		ErrArgumentType, e.Key, e.Method, e.Expected, e.Actual)
}

// Unwrap returns ErrArgumentType.
func (e *ArgumentError) Unwrap() error {
	return ErrArgumentType
}

// InvocationError wraps a panic raised inside a callback method.
type InvocationError struct {
	Method string
	Value  any
}

// Error implements the error interface for InvocationError.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrInvocation, e.Method, e.Value)
}

// Unwrap returns ErrInvocation.
func (e *InvocationError) Unwrap() error {
	return ErrInvocation
}
