// Package fault classifies the errors a run can end with.
//
// Every failure of an OS-level or primitive operation is wrapped into an *Error
// that names the operation and the affected resource, so that the CLI can pick
// an exit code and print something a human can act on.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// Configuration covers bad or missing arguments and config values.
	// Nothing has been created yet when it is returned.
	Configuration Kind = iota + 1
	// ResourceSetup covers segment and primitive creation, mapping and removal.
	ResourceSetup
	// RuntimeBlocking covers failed acquire/release calls inside a worker.
	RuntimeBlocking
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case ResourceSetup:
		return "resource setup"
	case RuntimeBlocking:
		return "runtime blocking"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified failure.
type Error struct {
	Kind     Kind
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Op
	if e.Resource != "" {
		msg += " " + e.Resource
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config returns a Configuration error.
func Config(op string, err error) error {
	return &Error{Kind: Configuration, Op: op, Err: err}
}

// Configf returns a Configuration error with a formatted cause.
func Configf(op, format string, args ...any) error {
	return Config(op, fmt.Errorf(format, args...))
}

// Setup returns a ResourceSetup error.
func Setup(op, resource string, err error) error {
	return &Error{Kind: ResourceSetup, Op: op, Resource: resource, Err: err}
}

// Runtime returns a RuntimeBlocking error.
func Runtime(op, resource string, err error) error {
	return &Error{Kind: RuntimeBlocking, Op: op, Resource: resource, Err: err}
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
