package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLaunched is returned by page operations before Launch succeeds or after Close.
	ErrNotLaunched = errors.New("browser: session not launched")
	// ErrClosed is returned when launching a session that was already closed.
	ErrClosed = errors.New("browser: session closed")
	// ErrElementNotFound matches every *ElementNotFoundError.
	ErrElementNotFound = errors.New("browser: element not found")
	// ErrProfileInUse reports a persistent profile locked by another live browser.
	ErrProfileInUse = errors.New("browser: profile already in use")
	// ErrTimeout reports an elapsed wait (selectors, lock polling).
	ErrTimeout = errors.New("browser: timed out")
)

// Error wraps a protocol or transport failure with the operation and its target.
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("browser %s %q: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ElementNotFoundError is returned when an ordinal is out of range after the
// page re-enumerated its interactive elements.
type ElementNotFoundError struct {
	Index int
	Count int
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found at index %d (%d interactive elements)", e.Index, e.Count)
}

func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }

func wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Target: target, Err: err}
}
