package fdloop

import (
	"errors"
	"fmt"
)

// UsageError reports a caller mistake: a missing argument, an unknown watch
// option, a non-callable callback, or an invalid pid. It is always returned
// synchronously from the call that triggered it, leaving no partial state.
type UsageError struct {
	Op      string
	Message string
}

func (e *UsageError) Error() string {
	if e.Op == "" {
		return "fdloop: usage error: " + e.Message
	}
	return fmt.Sprintf("fdloop: usage error: %s: %s", e.Op, e.Message)
}

// KernelError wraps a syscall failure encountered during registration,
// modification, reaping, or draining. Cause is the underlying errno.
type KernelError struct {
	Op    string
	Cause error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("fdloop: kernel error: %s: %v", e.Op, e.Cause)
}

func (e *KernelError) Unwrap() error { return e.Cause }

// StateError reports a Pid subscription's reap discovering that the pid is
// not (or is no longer) a waitable child of this process, once reaping was
// requested. Cause wraps ErrNotAChild and the wait4 errno (ECHILD).
type StateError struct {
	Op      string
	Message string
	Cause   error
}

func (e *StateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fdloop: state error: %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("fdloop: state error: %s: %s", e.Op, e.Message)
}

func (e *StateError) Unwrap() error { return e.Cause }

// ResourceError reports exhaustion of a kernel-backed resource, such as the
// Wakeup counter saturating while non-blocking.
type ResourceError struct {
	Op      string
	Message string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("fdloop: resource error: %s: %s", e.Op, e.Message)
}

// newUsageError is a convenience constructor used throughout the package.
func newUsageError(op, message string) error {
	return &UsageError{Op: op, Message: message}
}

func newKernelError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &KernelError{Op: op, Cause: cause}
}

func newStateError(op, message string, cause error) error {
	return &StateError{Op: op, Message: message, Cause: cause}
}

func newResourceError(op, message string) error {
	return &ResourceError{Op: op, Message: message}
}

// ErrNotAChild is the cause surfaced by a Pid subscription's reap when the
// kernel reports the pid is not (or is no longer) our waitable child.
var ErrNotAChild = errors.New("fdloop: pid is not a waitable child")
