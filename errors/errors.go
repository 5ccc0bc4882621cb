// Package errors provides error handling for Mainspring.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Common sentinel errors for use across Mainspring.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRecurrence indicates a recurrence definition that fails
	// validation (frequency < 1, weekly with no days-of-week, due date
	// delay < 1). Rejected synchronously at create/update time; never
	// reaches the trigger runner.
	ErrInvalidRecurrence = New("invalid recurrence")

	// ErrUnsupportedRecurrence indicates a recurrence type or basis the
	// planner does not know how to schedule. It means a new enum value
	// was added without wiring it into the planner.
	ErrUnsupportedRecurrence = New("unsupported recurrence")

	// ErrSchedulerUnavailable indicates a transient failure registering or
	// cancelling a trigger. Retryable; the schedule row is left unchanged
	// so the same operation can be retried safely.
	ErrSchedulerUnavailable = New("scheduler unavailable")

	// ErrConflict indicates a resource conflict, e.g. a stale version on
	// an optimistic-concurrency update.
	ErrConflict = New("resource conflict")

	// ErrStaleRecurrence indicates the staleness circuit breaker tripped:
	// the recent run of generated work orders was never engaged with, so
	// the schedule was force-disabled instead of armed.
	ErrStaleRecurrence = New("stale recurrence")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRecurrence checks if an error is or wraps ErrInvalidRecurrence.
func IsInvalidRecurrence(err error) bool {
	return err != nil && Is(err, ErrInvalidRecurrence)
}

// IsSchedulerUnavailable checks if an error is or wraps ErrSchedulerUnavailable.
func IsSchedulerUnavailable(err error) bool {
	return err != nil && Is(err, ErrSchedulerUnavailable)
}

// IsStaleRecurrence checks if an error is or wraps ErrStaleRecurrence.
func IsStaleRecurrence(err error) bool {
	return err != nil && Is(err, ErrStaleRecurrence)
}

// NewNotFoundf creates a not-found error with a formatted message.
func NewNotFoundf(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRecurrencef creates an invalid-recurrence error with a formatted message.
func NewInvalidRecurrencef(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRecurrence, Newf(format, args...).Error())
}
