package core

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Sentinel errors of the kernel taxonomy. Per-item failures surface inside
// settlements and match one of these through errors.Is; only ErrInvalidConfig
// is ever returned directly from an operation.
var (
	ErrPolicyViolation  = errors.New("policy violation")
	ErrBudgetExceeded   = errors.New("budget exceeded")
	ErrHookDenied       = errors.New("hook denied")
	ErrExecutionTimeout = errors.New("execution timeout")
	ErrExecutionError   = errors.New("execution error")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	ErrCancelled        = errors.New("cancelled")
	ErrInvalidConfig    = errors.New("invalid config")
)

// PolicyViolationError reports a call to a tool outside the session allow-list.
type PolicyViolationError struct {
	Tool string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation: tool %q is not allowed", e.Tool)
}

// Is matches ErrPolicyViolation.
func (e *PolicyViolationError) Is(target error) bool { return target == ErrPolicyViolation }

// BudgetExceededError reports a reservation the working budget cannot cover.
type BudgetExceededError struct {
	Requested Cost
	Remaining Budget
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: requested %dms/%d tokens, remaining %dms/%d tokens",
		e.Requested.TimeMs, e.Requested.Tokens, e.Remaining.TimeRemainingMs, e.Remaining.TokenRemaining)
}

// Is matches ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// HookDeniedError is an explicit veto by a hook handler.
type HookDeniedError struct {
	Reason    string
	HandlerID string
	Phase     string
}

func (e *HookDeniedError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("hook denied (%s): %s", e.Phase, e.Reason)
	}
	return fmt.Sprintf("hook denied: %s", e.Reason)
}

// Is matches ErrHookDenied.
func (e *HookDeniedError) Is(target error) bool { return target == ErrHookDenied }

// ExecutionError wraps a failure raised by the work itself.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return ErrExecutionError.Error()
	}
	return fmt.Sprintf("execution error: %v", e.Cause)
}

// Unwrap exposes the cause.
func (e *ExecutionError) Unwrap() error { return e.Cause }

// Is matches ErrExecutionError.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecutionError }

// PanicError carries a recovered panic value and the stack at recovery.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(v any) *PanicError { return &PanicError{Value: v, Stack: debug.Stack()} }

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// InvalidConfigError is a programmer error detected before any work starts.
type InvalidConfigError struct {
	Field   string
	Message string
}

// NewInvalidConfigError builds an InvalidConfigError.
func NewInvalidConfigError(field, message string) *InvalidConfigError {
	return &InvalidConfigError{Field: field, Message: message}
}

func (e *InvalidConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid config: %s", e.Message)
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidConfig.
func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// AsRejection keeps errors that already belong to the taxonomy and wraps
// anything else into an *ExecutionError.
func AsRejection(err error) error {
	if err == nil {
		return nil
	}

	for _, known := range []error{
		ErrPolicyViolation,
		ErrBudgetExceeded,
		ErrHookDenied,
		ErrExecutionTimeout,
		ErrExecutionError,
		ErrDeadlineExceeded,
		ErrCancelled,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	return &ExecutionError{Cause: err}
}
