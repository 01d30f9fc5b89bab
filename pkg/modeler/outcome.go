package modeler

import "errors"

// ErrorKind classifies a modeling outcome.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	// ErrorIgnored marks a record that is structurally valid but out of
	// scope. It is an expected outcome, never surfaced as a fault.
	ErrorIgnored
	ErrorNoModeler
	ErrorNoTemplate
	ErrorBadTemplate
	ErrorPlaceholder
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorIgnored:
		return "ignored"
	case ErrorNoModeler:
		return "modeler-not-found"
	case ErrorNoTemplate:
		return "template-not-found"
	case ErrorBadTemplate:
		return "template-malformed"
	case ErrorPlaceholder:
		return "placeholder-failure"
	}
	return "unknown"
}

// ErrIgnored is the signal an accessor or template hook raises to veto a
// record mid-expansion. It converts the whole outcome to ErrorIgnored.
var ErrIgnored = errors.New("modeler: record ignored")

// Outcome is the result of modeling one source record.
type Outcome struct {
	Error     ErrorKind
	Source    any
	Aux       any
	Template  string
	Statement map[string]any
	Cause     error
}

func (o Outcome) OK() bool { return o.Error == ErrorNone }
