package callback

import (
	"fmt"
	"maps"
	"strings"
)

// Kind identifies the category of a callback event.
type Kind int

// Callback kinds
const (
	Start Kind = iota + 1
	Success
	Failure
	Cancelled
	Progress
	Named
)

var kindNames = map[Kind]string{
	Start:     "start",
	Success:   "success",
	Failure:   "failure",
	Cancelled: "cancelled",
	Progress:  "progress",
	Named:     "named",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Terminal reports whether the kind ends the routing of a unit of work.
func (k Kind) Terminal() bool {
	return k == Success || k == Failure || k == Cancelled
}

// ParseKind converts a tag or wire value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return Start, nil
	case "success":
		return Success, nil
	case "failure":
		return Failure, nil
	case "cancel", "cancelled":
		return Cancelled, nil
	case "progress":
		return Progress, nil
	case "named":
		return Named, nil
	}
	return 0, fmt.Errorf("unknown callback kind %q", s)
}

// Well-known payload keys
const (
	KeyWorkID       = "work_id"
	KeyGroupID      = "group_id"
	KeyCallbackName = "callback_name"
	KeyProgress     = "progress"
	KeyCrashMessage = "crash_message"
	KeyCancelReason = "cancel_reason"
	KeyNotExecuted  = "not_executed"

	// KeyRedeliverable marks a not-executed unit that stays journalled and
	// is run again on the next start.
	KeyRedeliverable = "redeliverable"
)

// Payload is the key-value content of a callback event.
type Payload map[string]any

// Clone returns a shallow copy of the payload. A nil payload clones to an
// empty, non-nil one.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+2)
	maps.Copy(out, p)
	return out
}

// Name returns the named-callback disambiguator carried by the payload.
func (p Payload) Name() string {
	name, _ := p[KeyCallbackName].(string)
	return name
}
