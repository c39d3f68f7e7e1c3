package subscription

import (
	"errors"
	"fmt"
)

// FailureKind classifies where in a handler a collaborator failed.
type FailureKind string

const (
	FailureLookup  FailureKind = "lookup"
	FailurePersist FailureKind = "persist"
	FailureNotify  FailureKind = "notify"
)

// HandlerError tags a collaborator failure with the step it occurred in, so
// callers and tests can tell a missed lookup from a rejected write or a
// bounced email.
type HandlerError struct {
	Kind FailureKind
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func lookupFailed(err error) error {
	return &HandlerError{Kind: FailureLookup, Err: err}
}

func persistFailed(err error) error {
	return &HandlerError{Kind: FailurePersist, Err: err}
}

func notifyFailed(err error) error {
	return &HandlerError{Kind: FailureNotify, Err: err}
}

// KindOf extracts the failure kind from a handler error. Returns the empty
// kind for nil or untagged errors.
func KindOf(err error) FailureKind {
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Kind
	}
	return ""
}
